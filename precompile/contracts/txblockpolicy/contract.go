// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txblockpolicy implements the transaction block policy precompile:
// one managed set of blocked addresses plus a global block-all switch.
//
// The policy deliberately exposes the wider access policy ABI so that callers
// probing the base surface fail loudly instead of silently writing into a set
// nobody reads; every such entry point reverts with ErrNotImplemented.
//
// Storage layout, read directly by the execution layer and frozen across
// versions: the blocked set occupies set id 0x01 under this contract's
// address with the addressset key derivation, and the block-all flag lives in
// the slot named by blockAllKey.
package txblockpolicy

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	_ "embed"

	"github.com/deployguard/deployguard/precompile/addressset"
	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/contract"
	"github.com/deployguard/deployguard/vmerrs"
)

// BlockedSetID identifies the blocked set. It mirrors the first set of the
// access policy layout on purpose: the execution layer computes the same keys
// for both policies.
const BlockedSetID byte = 0x01

const (
	SetBlockedAllGasCost  = contract.WriteGasCostPerSlot + allowlist.ReadAllowListGasCost
	IsBlockedAllGasCost   = contract.ReadGasCostPerSlot
	NotImplementedGasCost = contract.ReadGasCostPerSlot

	// BlockAllChanged carries one indexed topic and one data word.
	BlockAllEventGasCost = contract.LogGas + 2*contract.LogTopicGas + 32*contract.LogDataGas
)

var (
	// Singleton StatefulPrecompiledContract for the transaction block policy.
	TxBlockPolicyPrecompile contract.StatefulPrecompiledContract = createTxBlockPolicyPrecompile()

	ErrNotImplemented   = errors.New("not implemented by transaction block policy")
	ErrCannotSetBlocked = errors.New("non-enabled cannot change block-all flag")
	ErrNotPlainAccount  = errors.New("cannot grant role to contract account")

	// blockAllKey is the frozen slot of the global block-all flag.
	blockAllKey = common.Hash{'b', 'a', 'l', 'l'}

	blockAllSetValue = common.BigToHash(common.Big1)

	// TxBlockPolicyRawABI contains the raw ABI of TxBlockPolicy contract.
	//go:embed contract.abi
	TxBlockPolicyRawABI string

	TxBlockPolicyABI = contract.ParseABI(TxBlockPolicyRawABI)

	// disabledMethods is the access policy surface that must fail explicitly
	// rather than silently no-op.
	disabledMethods = []string{
		"addCreateAllowed",
		"removeCreateAllowed",
		"isCreateAllowed",
		"paginateCreateAllowed",
		"addCallDenied",
		"removeCallDenied",
		"isCallDenied",
		"paginateCallDenied",
	}
)

// IsBlockedAddress reports whether [addr] is in the blocked set. Exposed for
// the execution layer.
func IsBlockedAddress(state contract.StateReader, addr common.Address) bool {
	return addressset.Contains(state, ContractAddress, BlockedSetID, addr)
}

// GetBlockedAll returns the stored block-all flag.
func GetBlockedAll(state contract.StateReader) bool {
	return state.GetState(ContractAddress, blockAllKey) == blockAllSetValue
}

// StoreBlockedAll stores the block-all flag.
func StoreBlockedAll(state contract.StateDB, blocked bool) {
	value := common.Hash{}
	if blocked {
		value = blockAllSetValue
	}
	state.SetState(ContractAddress, blockAllKey, value)
}

// PackAddBlockedList packs [addr] into the addBlockedList call.
// This function is mostly used for tests.
func PackAddBlockedList(addr common.Address) ([]byte, error) {
	return TxBlockPolicyABI.Pack("addBlockedList", addr)
}

// PackRemoveBlockedList packs [addr] and [prevAddr] into the removeBlockedList
// call. This function is mostly used for tests.
func PackRemoveBlockedList(addr common.Address, prevAddr common.Address) ([]byte, error) {
	return TxBlockPolicyABI.Pack("removeBlockedList", addr, prevAddr)
}

// PackIsBlockedAddress packs [addr] into the isBlockedAddress call.
// This function is mostly used for tests.
func PackIsBlockedAddress(addr common.Address) ([]byte, error) {
	return TxBlockPolicyABI.Pack("isBlockedAddress", addr)
}

// PackPaginateBlocked packs the paginateBlocked call.
// This function is mostly used for tests.
func PackPaginateBlocked(cursor common.Address, howMany *big.Int) ([]byte, error) {
	return TxBlockPolicyABI.Pack("paginateBlocked", cursor, howMany)
}

// PackSetBlockedAll packs [blocked] into the setBlockedAll call.
// This function is mostly used for tests.
func PackSetBlockedAll(blocked bool) ([]byte, error) {
	return TxBlockPolicyABI.Pack("setBlockedAll", blocked)
}

// PackIsBlockedAll packs the isBlockedAll call.
// This function is mostly used for tests.
func PackIsBlockedAll() ([]byte, error) {
	return TxBlockPolicyABI.Pack("isBlockedAll")
}

// PackBlockAllChangedEvent packs the BlockAllChanged event.
func PackBlockAllChangedEvent(sender common.Address, enabled bool) ([]common.Hash, []byte, error) {
	topics := []common.Hash{common.BytesToHash(sender.Bytes())}
	return contract.PackEvent(TxBlockPolicyABI, "BlockAllChanged", topics, enabled)
}

// plainAccountGuard rejects role grants to accounts carrying code. Revoking
// (setting NoRole) stays possible for any account.
func plainAccountGuard(state contract.StateDB, account common.Address, role allowlist.Role) error {
	if role.IsNoRole() {
		return nil
	}
	if state.GetCodeSize(account) > 0 {
		return fmt.Errorf("%w: %s", ErrNotPlainAccount, account)
	}
	return nil
}

func setBlockedAll(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, SetBlockedAllGasCost); err != nil {
		return nil, 0, err
	}
	if readOnly {
		return nil, remainingGas, vmerrs.ErrWriteProtection
	}

	res, err := contract.UnpackInput(TxBlockPolicyABI, "setBlockedAll", input)
	if err != nil {
		return nil, remainingGas, err
	}
	blocked := *abi.ConvertType(res[0], new(bool)).(*bool)

	stateDB := accessibleState.GetStateDB()
	if !allowlist.GetAllowListStatus(stateDB, ContractAddress, caller).IsEnabled() {
		return nil, remainingGas, fmt.Errorf("%w: %s", ErrCannotSetBlocked, caller)
	}

	if remainingGas, err = contract.DeductGas(remainingGas, BlockAllEventGasCost); err != nil {
		return nil, 0, err
	}
	topics, data, err := PackBlockAllChangedEvent(caller, blocked)
	if err != nil {
		return nil, remainingGas, err
	}
	stateDB.AddLog(contract.NewLog(ContractAddress, topics, data, accessibleState.GetBlockContext().Number().Uint64()))

	StoreBlockedAll(stateDB, blocked)

	return []byte{}, remainingGas, nil
}

func isBlockedAll(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, IsBlockedAllGasCost); err != nil {
		return nil, 0, err
	}

	blocked := GetBlockedAll(accessibleState.GetStateDB())
	packedOutput, err := contract.PackOutput(TxBlockPolicyABI, "isBlockedAll", blocked)
	if err != nil {
		return nil, remainingGas, err
	}

	return packedOutput, remainingGas, nil
}

// notImplemented rejects a disabled base entry point.
func notImplemented(methodName string) contract.RunStatefulPrecompileFunc {
	return func(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
		if remainingGas, err = contract.DeductGas(suppliedGas, NotImplementedGasCost); err != nil {
			return nil, 0, err
		}
		return nil, remainingGas, fmt.Errorf("%w: %s", ErrNotImplemented, methodName)
	}
}

// createTxBlockPolicyPrecompile returns a StatefulPrecompiledContract with the
// blocked set, the block-all switch and the explicitly disabled access policy
// surface. Role grants are additionally restricted to plain accounts.
func createTxBlockPolicyPrecompile() contract.StatefulPrecompiledContract {
	var functions []*contract.StatefulPrecompileFunction
	functions = append(functions, allowlist.CreateGuardedAllowListFunctions(ContractAddress, plainAccountGuard)...)

	functions = append(functions, addressset.CreateSetFunctions(ContractAddress, BlockedSetID, TxBlockPolicyABI, addressset.MethodNames{
		Add:      "addBlockedList",
		Remove:   "removeBlockedList",
		Contains: "isBlockedAddress",
		Paginate: "paginateBlocked",
	})...)

	abiFunctionMap := map[string]contract.RunStatefulPrecompileFunc{
		"setBlockedAll": setBlockedAll,
		"isBlockedAll":  isBlockedAll,
	}
	for _, name := range disabledMethods {
		abiFunctionMap[name] = notImplemented(name)
	}

	for name, function := range abiFunctionMap {
		method, ok := TxBlockPolicyABI.Methods[name]
		if !ok {
			panic(fmt.Errorf("given method (%s) does not exist in the ABI", name))
		}
		functions = append(functions, contract.NewStatefulPrecompileFunction(method.ID, function))
	}

	// Construct the contract with no fallback function.
	statefulContract, err := contract.NewStatefulPrecompileContract(nil, functions)
	if err != nil {
		panic(err)
	}
	return statefulContract
}
