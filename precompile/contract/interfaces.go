// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Defines the interface for the configuration and execution of a precompile contract
package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/deployguard/deployguard/precompile/precompileconfig"
)

// StatefulPrecompiledContract is the interface for executing a precompiled contract
type StatefulPrecompiledContract interface {
	// Run executes the precompiled contract.
	Run(accessibleState AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error)
}

// StateReader is the read-only subset of StateDB used by view functions and
// by external consumers that read frozen storage layouts by computed key.
type StateReader interface {
	GetState(common.Address, common.Hash) common.Hash
}

// StateDB is the interface for accessing EVM state
type StateDB interface {
	GetState(common.Address, common.Hash) common.Hash
	SetState(common.Address, common.Hash, common.Hash)

	GetNonce(common.Address) uint64
	SetNonce(common.Address, uint64)

	GetBalance(common.Address) *uint256.Int
	AddBalance(common.Address, *uint256.Int)
	SubBalance(common.Address, *uint256.Int)

	GetCode(common.Address) []byte
	SetCode(common.Address, []byte)
	GetCodeSize(common.Address) int

	CreateAccount(common.Address)
	Exist(common.Address) bool

	AddLog(*types.Log)

	Snapshot() int
	RevertToSnapshot(int)
}

// AccessibleState defines the interface exposed to stateful precompile contracts
type AccessibleState interface {
	GetStateDB() StateDB
	GetBlockContext() BlockContext
	// CallValue returns the wei attached to the call that reached the precompile.
	CallValue() *uint256.Int
	// Call executes [input] against [addr] with [caller] as the caller and
	// [value] attached. The host EVM provides the implementation; precompiles
	// use it for initialization calls against freshly created contracts.
	Call(caller common.Address, addr common.Address, input []byte, gas uint64, value *uint256.Int) (ret []byte, remainingGas uint64, err error)
}

// BlockContext defines an interface that provides information to a stateful precompile
// about the current block.
type BlockContext interface {
	Number() *big.Int
	Timestamp() uint64
}

type Configurator interface {
	MakeConfig() precompileconfig.Config
	Configure(
		state StateDB,
		precompileConfig precompileconfig.Config,
		blockContext BlockContext,
	) error
}
