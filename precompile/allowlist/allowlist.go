// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package allowlist provides the role facility shared by every precompile in
// this repository: per-contract membership lists with a single admin role
// governing grants and revocations.
package allowlist

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	_ "embed"

	"github.com/deployguard/deployguard/precompile/contract"
	"github.com/deployguard/deployguard/vmerrs"
)

const (
	ModifyAllowListGasCost = contract.WriteGasCostPerSlot
	ReadAllowListGasCost   = contract.ReadGasCostPerSlot

	// RoleSet carries three indexed topics and one 32 byte data word.
	AllowListEventGasCost = contract.LogGas + 4*contract.LogTopicGas + 32*contract.LogDataGas
)

var (
	ErrCannotModifyAllowList = errors.New("non-admin cannot modify allow list")

	// AllowListRawABI contains the raw ABI of the shared allow list surface.
	//go:embed allowlist.abi
	AllowListRawABI string

	AllowListABI = contract.ParseABI(AllowListRawABI)
)

// SetRoleGuard lets a consumer contract veto a role assignment before it is
// written. TransactionBlockPolicy uses this to keep contract accounts out of
// its manager list.
type SetRoleGuard func(state contract.StateDB, account common.Address, role Role) error

// GetAllowListStatus returns the role of [address] for the allow list stored
// at [contractAddress]. The role of an address occupies the storage slot keyed
// by the address itself; that layout is read directly by the execution layer
// and must not change.
func GetAllowListStatus(state contract.StateReader, contractAddress common.Address, address common.Address) Role {
	addressKey := common.BytesToHash(address.Bytes())
	return Role(state.GetState(contractAddress, addressKey))
}

// SetAllowListRole sets the permissions of [address] to [role] for the
// allow list stored at [contractAddress]. Assumes [role] has already been
// verified as valid.
func SetAllowListRole(state contract.StateDB, contractAddress, address common.Address, role Role) {
	addressKey := common.BytesToHash(address.Bytes())
	state.SetState(contractAddress, addressKey, role.Hash())
}

// PackModifyAllowList packs the arguments for one of the three role setters
// according to [role]. This function is mostly used for tests.
func PackModifyAllowList(address common.Address, role Role) ([]byte, error) {
	switch role {
	case AdminRole:
		return AllowListABI.Pack("setAdmin", address)
	case EnabledRole:
		return AllowListABI.Pack("setEnabled", address)
	case NoRole:
		return AllowListABI.Pack("setNone", address)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}
}

// PackReadAllowList packs the readAllowList call with its selector.
// This function is mostly used for tests.
func PackReadAllowList(address common.Address) ([]byte, error) {
	return AllowListABI.Pack("readAllowList", address)
}

// PackReadAllowListOutput packs [role] to conform the readAllowList output.
func PackReadAllowListOutput(role Role) ([]byte, error) {
	return contract.PackOutput(AllowListABI, "readAllowList", role.Big())
}

// PackRoleSetEvent packs the RoleSet event emitted whenever membership
// changes.
func PackRoleSetEvent(role Role, account common.Address, sender common.Address, oldRole Role) ([]common.Hash, []byte, error) {
	topics := []common.Hash{
		role.Hash(),
		common.BytesToHash(account.Bytes()),
		common.BytesToHash(sender.Bytes()),
	}
	return contract.PackEvent(AllowListABI, "RoleSet", topics, oldRole.Big())
}

func unpackAddressInput(methodName string, input []byte) (common.Address, error) {
	res, err := contract.UnpackInput(AllowListABI, methodName, input)
	if err != nil {
		return common.Address{}, err
	}
	unpacked := *abi.ConvertType(res[0], new(common.Address)).(*common.Address)
	return unpacked, nil
}

// createAllowListRoleSetter returns an execution function for setting the
// allow list status of an address to [role]. Only callers holding AdminRole
// on [precompileAddr] may change membership.
func createAllowListRoleSetter(precompileAddr common.Address, methodName string, role Role, guard SetRoleGuard) contract.RunStatefulPrecompileFunc {
	return func(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
		if remainingGas, err = contract.DeductGas(suppliedGas, ModifyAllowListGasCost); err != nil {
			return nil, 0, err
		}
		if readOnly {
			return nil, remainingGas, vmerrs.ErrWriteProtection
		}

		modifyAddress, err := unpackAddressInput(methodName, input)
		if err != nil {
			return nil, remainingGas, err
		}

		stateDB := accessibleState.GetStateDB()

		// Verify that the caller is an admin with the right to modify the allow list.
		callerStatus := GetAllowListStatus(stateDB, precompileAddr, caller)
		if !callerStatus.IsAdmin() {
			return nil, remainingGas, fmt.Errorf("%w: %s", ErrCannotModifyAllowList, caller)
		}

		if guard != nil {
			if err := guard(stateDB, modifyAddress, role); err != nil {
				return nil, remainingGas, err
			}
		}

		if remainingGas, err = contract.DeductGas(remainingGas, AllowListEventGasCost); err != nil {
			return nil, 0, err
		}
		oldRole := GetAllowListStatus(stateDB, precompileAddr, modifyAddress)
		topics, data, err := PackRoleSetEvent(role, modifyAddress, caller, oldRole)
		if err != nil {
			return nil, remainingGas, err
		}
		stateDB.AddLog(contract.NewLog(precompileAddr, topics, data, accessibleState.GetBlockContext().Number().Uint64()))

		SetAllowListRole(stateDB, precompileAddr, modifyAddress, role)

		return []byte{}, remainingGas, nil
	}
}

// createReadAllowList returns an execution function that reads the allow list
// for the given [precompileAddr]. Reads are public.
func createReadAllowList(precompileAddr common.Address) contract.RunStatefulPrecompileFunc {
	return func(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
		if remainingGas, err = contract.DeductGas(suppliedGas, ReadAllowListGasCost); err != nil {
			return nil, 0, err
		}

		readAddress, err := unpackAddressInput("readAllowList", input)
		if err != nil {
			return nil, remainingGas, err
		}

		role := GetAllowListStatus(accessibleState.GetStateDB(), precompileAddr, readAddress)
		packedOutput, err := PackReadAllowListOutput(role)
		if err != nil {
			return nil, remainingGas, err
		}

		return packedOutput, remainingGas, nil
	}
}

// CreateAllowListFunctions returns the four shared membership functions for a
// precompile at [precompileAddr].
func CreateAllowListFunctions(precompileAddr common.Address) []*contract.StatefulPrecompileFunction {
	return CreateGuardedAllowListFunctions(precompileAddr, nil)
}

// CreateGuardedAllowListFunctions is CreateAllowListFunctions with a
// [guard] consulted before any role is written.
func CreateGuardedAllowListFunctions(precompileAddr common.Address, guard SetRoleGuard) []*contract.StatefulPrecompileFunction {
	setters := map[string]Role{
		"setAdmin":   AdminRole,
		"setEnabled": EnabledRole,
		"setNone":    NoRole,
	}
	functions := make([]*contract.StatefulPrecompileFunction, 0, len(setters)+1)
	for name, role := range setters {
		method, ok := AllowListABI.Methods[name]
		if !ok {
			panic(fmt.Errorf("given method (%s) does not exist in the ABI", name))
		}
		functions = append(functions, contract.NewStatefulPrecompileFunction(method.ID, createAllowListRoleSetter(precompileAddr, name, role, guard)))
	}

	method, ok := AllowListABI.Methods["readAllowList"]
	if !ok {
		panic(fmt.Errorf("given method (%s) does not exist in the ABI", "readAllowList"))
	}
	functions = append(functions, contract.NewStatefulPrecompileFunction(method.ID, createReadAllowList(precompileAddr)))

	return functions
}
