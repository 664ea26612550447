// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metadataregistry implements the provenance registry precompile: an
// append-only (created address -> creator, tag) ledger. A registry may hold an
// immutable reference to a predecessor registry, letting a new factory
// generation present the full deployment history without copying records.
package metadataregistry

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	_ "embed"

	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/contract"
	"github.com/deployguard/deployguard/vmerrs"
)

const (
	// register writes the entry slots, the index mapping and the count, plus
	// one tag chunk per 32 bytes charged separately.
	RegisterBaseGasCost = 5*contract.WriteGasCostPerSlot + allowlist.ReadAllowListGasCost + 2*maxChainDepth*contract.ReadGasCostPerSlot
	TagChunkGasCost     = contract.WriteGasCostPerSlot

	TotalCountGasCost        = contract.ReadGasCostPerSlot
	TotalCountHistoryGasCost = maxChainDepth * 2 * contract.ReadGasCostPerSlot
	GetByAddressGasCost      = maxChainDepth * 2 * contract.ReadGasCostPerSlot
	GetByIndexGasCost        = maxChainDepth * 2 * contract.ReadGasCostPerSlot
	PredecessorGasCost       = contract.ReadGasCostPerSlot

	// MetadataRegistered carries two indexed topics plus the tag payload.
	MetadataRegisteredEventGasCost = contract.LogGas + 3*contract.LogTopicGas + 128*contract.LogDataGas
)

var (
	// Singleton StatefulPrecompiledContract for the metadata registry.
	MetadataRegistryPrecompile contract.StatefulPrecompiledContract = createMetadataRegistryPrecompile()

	ErrCannotRegister = errors.New("non-enabled cannot register metadata")

	// MetadataRegistryRawABI contains the raw ABI of MetadataRegistry contract.
	//go:embed contract.abi
	MetadataRegistryRawABI string

	MetadataRegistryABI = contract.ParseABI(MetadataRegistryRawABI)
)

// PackRegister packs a register call with its selector.
// This function is mostly used for tests.
func PackRegister(created common.Address, creator common.Address, tag string) ([]byte, error) {
	return MetadataRegistryABI.Pack("register", created, creator, tag)
}

// PackTotalCount packs the totalCount call.
// This function is mostly used for tests.
func PackTotalCount() ([]byte, error) {
	return MetadataRegistryABI.Pack("totalCount")
}

// PackTotalCountIncludingHistory packs the totalCountIncludingHistory call.
// This function is mostly used for tests.
func PackTotalCountIncludingHistory() ([]byte, error) {
	return MetadataRegistryABI.Pack("totalCountIncludingHistory")
}

// PackGetByAddress packs the getByAddress call.
// This function is mostly used for tests.
func PackGetByAddress(created common.Address) ([]byte, error) {
	return MetadataRegistryABI.Pack("getByAddress", created)
}

// PackGetByIndex packs the getByIndex call.
// This function is mostly used for tests.
func PackGetByIndex(index *big.Int) ([]byte, error) {
	return MetadataRegistryABI.Pack("getByIndex", index)
}

// PackPredecessor packs the predecessor call.
// This function is mostly used for tests.
func PackPredecessor() ([]byte, error) {
	return MetadataRegistryABI.Pack("predecessor")
}

// PackMetadataOutput packs [metadata] to conform the getByAddress/getByIndex
// outputs.
func PackMetadataOutput(methodName string, metadata Metadata) ([]byte, error) {
	return contract.PackOutput(MetadataRegistryABI, methodName, metadata.Created, metadata.Creator, metadata.Tag)
}

// UnpackMetadataOutput unpacks a getByAddress/getByIndex result.
func UnpackMetadataOutput(methodName string, output []byte) (Metadata, error) {
	res, err := MetadataRegistryABI.Unpack(methodName, output)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Created: *abi.ConvertType(res[0], new(common.Address)).(*common.Address),
		Creator: *abi.ConvertType(res[1], new(common.Address)).(*common.Address),
		Tag:     *abi.ConvertType(res[2], new(string)).(*string),
	}, nil
}

// PackMetadataRegisteredEvent packs the MetadataRegistered event.
func PackMetadataRegisteredEvent(creator common.Address, created common.Address, tag string) ([]common.Hash, []byte, error) {
	topics := []common.Hash{
		common.BytesToHash(creator.Bytes()),
		common.BytesToHash(created.Bytes()),
	}
	return contract.PackEvent(MetadataRegistryABI, "MetadataRegistered", topics, tag)
}

// EmitMetadataRegistered charges for and appends the MetadataRegistered log.
// Shared with the deployment factory, which registers through the same
// layout.
func EmitMetadataRegistered(accessibleState contract.AccessibleState, registry common.Address, creator common.Address, created common.Address, tag string, remainingGas uint64) (uint64, error) {
	remainingGas, err := contract.DeductGas(remainingGas, MetadataRegisteredEventGasCost)
	if err != nil {
		return 0, err
	}
	topics, data, err := PackMetadataRegisteredEvent(creator, created, tag)
	if err != nil {
		return remainingGas, err
	}
	accessibleState.GetStateDB().AddLog(contract.NewLog(registry, topics, data, accessibleState.GetBlockContext().Number().Uint64()))
	return remainingGas, nil
}

func register(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, RegisterBaseGasCost); err != nil {
		return nil, 0, err
	}
	if readOnly {
		return nil, remainingGas, vmerrs.ErrWriteProtection
	}

	res, err := contract.UnpackInput(MetadataRegistryABI, "register", input)
	if err != nil {
		return nil, remainingGas, err
	}
	created := *abi.ConvertType(res[0], new(common.Address)).(*common.Address)
	creator := *abi.ConvertType(res[1], new(common.Address)).(*common.Address)
	tag := *abi.ConvertType(res[2], new(string)).(*string)

	stateDB := accessibleState.GetStateDB()
	// Verify that the caller is in the allow list and therefore has the right to register.
	if !allowlist.GetAllowListStatus(stateDB, ContractAddress, caller).IsEnabled() {
		return nil, remainingGas, fmt.Errorf("%w: %s", ErrCannotRegister, caller)
	}

	chunks := (uint64(len(tag)) + tagChunkSize - 1) / tagChunkSize
	if remainingGas, err = contract.DeductGas(remainingGas, chunks*TagChunkGasCost); err != nil {
		return nil, 0, err
	}

	if err := RegisterMetadata(stateDB, ContractAddress, created, creator, tag); err != nil {
		return nil, remainingGas, err
	}

	if remainingGas, err = EmitMetadataRegistered(accessibleState, ContractAddress, creator, created, tag, remainingGas); err != nil {
		return nil, remainingGas, err
	}

	return []byte{}, remainingGas, nil
}

func totalCount(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, TotalCountGasCost); err != nil {
		return nil, 0, err
	}

	count := GetLocalCount(accessibleState.GetStateDB(), ContractAddress)
	packedOutput, err := contract.PackOutput(MetadataRegistryABI, "totalCount", new(big.Int).SetUint64(count))
	if err != nil {
		return nil, remainingGas, err
	}

	return packedOutput, remainingGas, nil
}

func totalCountIncludingHistory(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, TotalCountHistoryGasCost); err != nil {
		return nil, 0, err
	}

	count, err := TotalCountIncludingHistory(accessibleState.GetStateDB(), ContractAddress)
	if err != nil {
		return nil, remainingGas, err
	}
	packedOutput, err := contract.PackOutput(MetadataRegistryABI, "totalCountIncludingHistory", new(big.Int).SetUint64(count))
	if err != nil {
		return nil, remainingGas, err
	}

	return packedOutput, remainingGas, nil
}

func getByAddress(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, GetByAddressGasCost); err != nil {
		return nil, 0, err
	}

	res, err := contract.UnpackInput(MetadataRegistryABI, "getByAddress", input)
	if err != nil {
		return nil, remainingGas, err
	}
	created := *abi.ConvertType(res[0], new(common.Address)).(*common.Address)

	metadata, err := LookupMetadata(accessibleState.GetStateDB(), ContractAddress, created)
	if err != nil {
		return nil, remainingGas, err
	}
	packedOutput, err := PackMetadataOutput("getByAddress", metadata)
	if err != nil {
		return nil, remainingGas, err
	}

	return packedOutput, remainingGas, nil
}

func getByIndex(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, GetByIndexGasCost); err != nil {
		return nil, 0, err
	}

	res, err := contract.UnpackInput(MetadataRegistryABI, "getByIndex", input)
	if err != nil {
		return nil, remainingGas, err
	}
	index := *abi.ConvertType(res[0], new(*big.Int)).(**big.Int)
	if !index.IsUint64() {
		return nil, remainingGas, ErrIndexOutOfRange
	}

	metadata, err := GetByMergedIndex(accessibleState.GetStateDB(), ContractAddress, index.Uint64())
	if err != nil {
		return nil, remainingGas, err
	}
	packedOutput, err := PackMetadataOutput("getByIndex", metadata)
	if err != nil {
		return nil, remainingGas, err
	}

	return packedOutput, remainingGas, nil
}

func predecessor(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, PredecessorGasCost); err != nil {
		return nil, 0, err
	}

	pred := GetPredecessor(accessibleState.GetStateDB(), ContractAddress)
	packedOutput, err := contract.PackOutput(MetadataRegistryABI, "predecessor", pred)
	if err != nil {
		return nil, remainingGas, err
	}

	return packedOutput, remainingGas, nil
}

// createMetadataRegistryPrecompile returns a StatefulPrecompiledContract with
// the ledger functions. Registration is controlled by an allow list for
// ContractAddress; reads are public.
func createMetadataRegistryPrecompile() contract.StatefulPrecompiledContract {
	var functions []*contract.StatefulPrecompileFunction
	functions = append(functions, allowlist.CreateAllowListFunctions(ContractAddress)...)

	abiFunctionMap := map[string]contract.RunStatefulPrecompileFunc{
		"register":                   register,
		"totalCount":                 totalCount,
		"totalCountIncludingHistory": totalCountIncludingHistory,
		"getByAddress":               getByAddress,
		"getByIndex":                 getByIndex,
		"predecessor":                predecessor,
	}

	for name, function := range abiFunctionMap {
		method, ok := MetadataRegistryABI.Methods[name]
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
