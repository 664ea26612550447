// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package precompiletest provides an in-memory state and a table-driven test
// runner for stateful precompiles.
package precompiletest

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/deployguard/deployguard/precompile/contract"
)

var _ contract.StateDB = (*TestStateDB)(nil)

type account struct {
	storage map[common.Hash]common.Hash
	balance *uint256.Int
	nonce   uint64
	code    []byte
}

func newAccount() *account {
	return &account{
		storage: make(map[common.Hash]common.Hash),
		balance: new(uint256.Int),
	}
}

func (a *account) copy() *account {
	c := &account{
		storage: make(map[common.Hash]common.Hash, len(a.storage)),
		balance: new(uint256.Int).Set(a.balance),
		nonce:   a.nonce,
		code:    append([]byte(nil), a.code...),
	}
	for k, v := range a.storage {
		c.storage[k] = v
	}
	return c
}

// TestStateDB is an in-memory implementation of contract.StateDB. Snapshots
// are deep copies, so RevertToSnapshot restores state and logs exactly.
type TestStateDB struct {
	accounts  map[common.Address]*account
	logs      []*types.Log
	snapshots []*TestStateDB
}

func NewTestStateDB() *TestStateDB {
	return &TestStateDB{
		accounts: make(map[common.Address]*account),
	}
}

func (s *TestStateDB) copy() *TestStateDB {
	c := &TestStateDB{
		accounts: make(map[common.Address]*account, len(s.accounts)),
		logs:     append([]*types.Log(nil), s.logs...),
	}
	for addr, acc := range s.accounts {
		c.accounts[addr] = acc.copy()
	}
	return c
}

func (s *TestStateDB) getOrNewAccount(addr common.Address) *account {
	acc, ok := s.accounts[addr]
	if !ok {
		acc = newAccount()
		s.accounts[addr] = acc
	}
	return acc
}

func (s *TestStateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	if acc, ok := s.accounts[addr]; ok {
		return acc.storage[key]
	}
	return common.Hash{}
}

func (s *TestStateDB) SetState(addr common.Address, key common.Hash, value common.Hash) {
	s.getOrNewAccount(addr).storage[key] = value
}

func (s *TestStateDB) GetNonce(addr common.Address) uint64 {
	if acc, ok := s.accounts[addr]; ok {
		return acc.nonce
	}
	return 0
}

func (s *TestStateDB) SetNonce(addr common.Address, nonce uint64) {
	s.getOrNewAccount(addr).nonce = nonce
}

func (s *TestStateDB) GetBalance(addr common.Address) *uint256.Int {
	if acc, ok := s.accounts[addr]; ok {
		return new(uint256.Int).Set(acc.balance)
	}
	return new(uint256.Int)
}

func (s *TestStateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	acc := s.getOrNewAccount(addr)
	acc.balance.Add(acc.balance, amount)
}

func (s *TestStateDB) SubBalance(addr common.Address, amount *uint256.Int) {
	acc := s.getOrNewAccount(addr)
	acc.balance.Sub(acc.balance, amount)
}

func (s *TestStateDB) GetCode(addr common.Address) []byte {
	if acc, ok := s.accounts[addr]; ok {
		return acc.code
	}
	return nil
}

func (s *TestStateDB) SetCode(addr common.Address, code []byte) {
	s.getOrNewAccount(addr).code = code
}

func (s *TestStateDB) GetCodeSize(addr common.Address) int {
	return len(s.GetCode(addr))
}

func (s *TestStateDB) CreateAccount(addr common.Address) {
	s.accounts[addr] = newAccount()
}

func (s *TestStateDB) Exist(addr common.Address) bool {
	_, ok := s.accounts[addr]
	return ok
}

func (s *TestStateDB) AddLog(log *types.Log) {
	s.logs = append(s.logs, log)
}

// GetLogData returns the (topics, data) pairs of all appended logs.
func (s *TestStateDB) GetLogData() ([][]common.Hash, [][]byte) {
	topics := make([][]common.Hash, 0, len(s.logs))
	data := make([][]byte, 0, len(s.logs))
	for _, log := range s.logs {
		topics = append(topics, log.Topics)
		data = append(data, common.CopyBytes(log.Data))
	}
	return topics, data
}

// Logs returns the appended logs.
func (s *TestStateDB) Logs() []*types.Log {
	return s.logs
}

func (s *TestStateDB) Snapshot() int {
	s.snapshots = append(s.snapshots, s.copy())
	return len(s.snapshots) - 1
}

func (s *TestStateDB) RevertToSnapshot(id int) {
	snapshot := s.snapshots[id]
	s.accounts = snapshot.accounts
	s.logs = snapshot.logs
	s.snapshots = s.snapshots[:id]
}
