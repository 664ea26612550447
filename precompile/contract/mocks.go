// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var errNoCallHandler = errors.New("no call handler configured")

// mockBlockContext is a test implementation of BlockContext.
type mockBlockContext struct {
	blockNumber *big.Int
	timestamp   uint64
}

func NewMockBlockContext(blockNumber *big.Int, timestamp uint64) BlockContext {
	return &mockBlockContext{
		blockNumber: blockNumber,
		timestamp:   timestamp,
	}
}

func (mb *mockBlockContext) Number() *big.Int  { return mb.blockNumber }
func (mb *mockBlockContext) Timestamp() uint64 { return mb.timestamp }

// CallHandler executes a nested call issued by a precompile under test.
type CallHandler func(state StateDB, caller common.Address, addr common.Address, input []byte, gas uint64, value *uint256.Int) (ret []byte, remainingGas uint64, err error)

// mockAccessibleState is a test implementation of AccessibleState backed by a
// plain StateDB and an optional handler for nested calls.
type mockAccessibleState struct {
	state        StateDB
	blockContext BlockContext
	callValue    *uint256.Int
	callHandler  CallHandler
}

func NewMockAccessibleState(state StateDB, blockContext BlockContext) AccessibleState {
	return &mockAccessibleState{
		state:        state,
		blockContext: blockContext,
		callValue:    new(uint256.Int),
	}
}

// NewMockPayableState returns an AccessibleState carrying [callValue] wei and
// dispatching nested calls to [handler].
func NewMockPayableState(state StateDB, blockContext BlockContext, callValue *uint256.Int, handler CallHandler) AccessibleState {
	if callValue == nil {
		callValue = new(uint256.Int)
	}
	return &mockAccessibleState{
		state:        state,
		blockContext: blockContext,
		callValue:    callValue,
		callHandler:  handler,
	}
}

func (m *mockAccessibleState) GetStateDB() StateDB           { return m.state }
func (m *mockAccessibleState) GetBlockContext() BlockContext { return m.blockContext }
func (m *mockAccessibleState) CallValue() *uint256.Int       { return new(uint256.Int).Set(m.callValue) }

func (m *mockAccessibleState) Call(caller common.Address, addr common.Address, input []byte, gas uint64, value *uint256.Int) ([]byte, uint64, error) {
	if m.callHandler == nil {
		return nil, gas, errNoCallHandler
	}
	return m.callHandler(m.state, caller, addr, input, gas, value)
}
