// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package vmerrs

import (
	"github.com/ethereum/go-ethereum/core/vm"
)

// List evm execution errors
var (
	ErrOutOfGas                 = vm.ErrOutOfGas
	ErrDepth                    = vm.ErrDepth
	ErrInsufficientBalance      = vm.ErrInsufficientBalance
	ErrContractAddressCollision = vm.ErrContractAddressCollision
	ErrExecutionReverted        = vm.ErrExecutionReverted
	ErrWriteProtection          = vm.ErrWriteProtection
)
