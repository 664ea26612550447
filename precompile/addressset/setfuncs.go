// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package addressset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/contract"
	"github.com/deployguard/deployguard/vmerrs"
)

const (
	ContainsGasCost = contract.ReadGasCostPerSlot
	AddGasCost      = 2*contract.WriteGasCostPerSlot + ContainsGasCost + allowlist.ReadAllowListGasCost
	RemoveGasCost   = 2*contract.WriteGasCostPerSlot + ContainsGasCost + allowlist.ReadAllowListGasCost
	// RemoveScanGasCost is the surcharge for omitting the predecessor, which
	// forces a scan from the sentinel. Callers should supply the predecessor.
	RemoveScanGasCost = 32 * contract.ReadGasCostPerSlot

	PaginateBaseGasCost    = contract.ReadGasCostPerSlot
	PaginatePerItemGasCost = contract.ReadGasCostPerSlot

	// AddressAdded/AddressRemoved carry three indexed topics and no data.
	SetEventGasCost = contract.LogGas + 4*contract.LogTopicGas

	// MaxPageSize bounds a single paginate read.
	MaxPageSize = 4096
)

var (
	ErrCannotModifySet = errors.New("non-enabled cannot modify address set")
	ErrPageTooLarge    = fmt.Errorf("page size exceeds maximum of %d", MaxPageSize)
)

// MethodNames binds one set instance to the method names of the containing
// contract's ABI.
type MethodNames struct {
	Add      string
	Remove   string
	Contains string
	Paginate string
}

// packSetEvent packs an AddressAdded or AddressRemoved event of the
// containing contract.
func packSetEvent(parsedABI abi.ABI, name string, setID byte, addr common.Address, sender common.Address) ([]common.Hash, []byte, error) {
	topics := []common.Hash{
		common.BigToHash(new(big.Int).SetUint64(uint64(setID))),
		common.BytesToHash(addr.Bytes()),
		common.BytesToHash(sender.Bytes()),
	}
	return contract.PackEvent(parsedABI, name, topics)
}

func createAdd(precompileAddr common.Address, setID byte, parsedABI abi.ABI, methodName string) contract.RunStatefulPrecompileFunc {
	return func(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
		if remainingGas, err = contract.DeductGas(suppliedGas, AddGasCost); err != nil {
			return nil, 0, err
		}
		if readOnly {
			return nil, remainingGas, vmerrs.ErrWriteProtection
		}

		res, err := contract.UnpackInput(parsedABI, methodName, input)
		if err != nil {
			return nil, remainingGas, err
		}
		member := *abi.ConvertType(res[0], new(common.Address)).(*common.Address)

		stateDB := accessibleState.GetStateDB()
		if !allowlist.GetAllowListStatus(stateDB, precompileAddr, caller).IsEnabled() {
			return nil, remainingGas, fmt.Errorf("%w: %s", ErrCannotModifySet, caller)
		}

		if remainingGas, err = contract.DeductGas(remainingGas, SetEventGasCost); err != nil {
			return nil, 0, err
		}

		if err := Add(stateDB, precompileAddr, setID, member); err != nil {
			return nil, remainingGas, err
		}

		topics, data, err := packSetEvent(parsedABI, "AddressAdded", setID, member, caller)
		if err != nil {
			return nil, remainingGas, err
		}
		stateDB.AddLog(contract.NewLog(precompileAddr, topics, data, accessibleState.GetBlockContext().Number().Uint64()))

		return []byte{}, remainingGas, nil
	}
}

func createRemove(precompileAddr common.Address, setID byte, parsedABI abi.ABI, methodName string) contract.RunStatefulPrecompileFunc {
	return func(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
		if remainingGas, err = contract.DeductGas(suppliedGas, RemoveGasCost); err != nil {
			return nil, 0, err
		}
		if readOnly {
			return nil, remainingGas, vmerrs.ErrWriteProtection
		}

		res, err := contract.UnpackInput(parsedABI, methodName, input)
		if err != nil {
			return nil, remainingGas, err
		}
		member := *abi.ConvertType(res[0], new(common.Address)).(*common.Address)
		knownPrev := *abi.ConvertType(res[1], new(common.Address)).(*common.Address)

		if knownPrev == (common.Address{}) {
			if remainingGas, err = contract.DeductGas(remainingGas, RemoveScanGasCost); err != nil {
				return nil, 0, err
			}
		}

		stateDB := accessibleState.GetStateDB()
		if !allowlist.GetAllowListStatus(stateDB, precompileAddr, caller).IsEnabled() {
			return nil, remainingGas, fmt.Errorf("%w: %s", ErrCannotModifySet, caller)
		}

		if remainingGas, err = contract.DeductGas(remainingGas, SetEventGasCost); err != nil {
			return nil, 0, err
		}

		if err := Remove(stateDB, precompileAddr, setID, member, knownPrev); err != nil {
			return nil, remainingGas, err
		}

		topics, data, err := packSetEvent(parsedABI, "AddressRemoved", setID, member, caller)
		if err != nil {
			return nil, remainingGas, err
		}
		stateDB.AddLog(contract.NewLog(precompileAddr, topics, data, accessibleState.GetBlockContext().Number().Uint64()))

		return []byte{}, remainingGas, nil
	}
}

func createContains(precompileAddr common.Address, setID byte, parsedABI abi.ABI, methodName string) contract.RunStatefulPrecompileFunc {
	return func(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
		if remainingGas, err = contract.DeductGas(suppliedGas, ContainsGasCost); err != nil {
			return nil, 0, err
		}

		res, err := contract.UnpackInput(parsedABI, methodName, input)
		if err != nil {
			return nil, remainingGas, err
		}
		member := *abi.ConvertType(res[0], new(common.Address)).(*common.Address)

		contained := Contains(accessibleState.GetStateDB(), precompileAddr, setID, member)
		packedOutput, err := contract.PackOutput(parsedABI, methodName, contained)
		if err != nil {
			return nil, remainingGas, err
		}

		return packedOutput, remainingGas, nil
	}
}

func createPaginate(precompileAddr common.Address, setID byte, parsedABI abi.ABI, methodName string) contract.RunStatefulPrecompileFunc {
	return func(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
		if remainingGas, err = contract.DeductGas(suppliedGas, PaginateBaseGasCost); err != nil {
			return nil, 0, err
		}

		res, err := contract.UnpackInput(parsedABI, methodName, input)
		if err != nil {
			return nil, remainingGas, err
		}
		cursor := *abi.ConvertType(res[0], new(common.Address)).(*common.Address)
		howMany := *abi.ConvertType(res[1], new(*big.Int)).(**big.Int)

		if !howMany.IsUint64() || howMany.Uint64() > MaxPageSize {
			return nil, remainingGas, ErrPageTooLarge
		}
		size := howMany.Uint64()
		if remainingGas, err = contract.DeductGas(remainingGas, size*PaginatePerItemGasCost); err != nil {
			return nil, 0, err
		}

		page := Paginate(accessibleState.GetStateDB(), precompileAddr, setID, cursor, size)
		packedOutput, err := contract.PackOutput(parsedABI, methodName, page)
		if err != nil {
			return nil, remainingGas, err
		}

		return packedOutput, remainingGas, nil
	}
}

// CreateSetFunctions returns the four ABI entry points of one set instance:
// enabled-gated add/remove, public contains/paginate. [parsedABI] must define
// the methods named in [names] plus the AddressAdded and AddressRemoved
// events.
func CreateSetFunctions(precompileAddr common.Address, setID byte, parsedABI abi.ABI, names MethodNames) []*contract.StatefulPrecompileFunction {
	creators := map[string]func(common.Address, byte, abi.ABI, string) contract.RunStatefulPrecompileFunc{
		names.Add:      createAdd,
		names.Remove:   createRemove,
		names.Contains: createContains,
		names.Paginate: createPaginate,
	}

	functions := make([]*contract.StatefulPrecompileFunction, 0, len(creators))
	for name, creator := range creators {
		method, ok := parsedABI.Methods[name]
		if !ok {
			panic(fmt.Errorf("given method (%s) does not exist in the ABI", name))
		}
		functions = append(functions, contract.NewStatefulPrecompileFunction(method.ID, creator(precompileAddr, setID, parsedABI, name)))
	}
	return functions
}
