// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package deployerfactory implements the deterministic deployment factory
// precompile. Creation addresses depend only on the factory address, a
// caller-chosen salt and the bytecode, so they can be computed off-chain
// before the deploying transaction exists. Every successful creation is
// recorded in the configured metadata registry.
package deployerfactory

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	_ "embed"

	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/contract"
	"github.com/deployguard/deployguard/precompile/contracts/metadataregistry"
	"github.com/deployguard/deployguard/vmerrs"
)

const (
	PredictGasCost = contract.ReadGasCostPerSlot

	// create writes the account (code, nonce, balance) plus the registry
	// record; bytecode storage is charged per 32-byte word on top.
	CreateBaseGasCost   = 3*contract.WriteGasCostPerSlot + allowlist.ReadAllowListGasCost + metadataregistry.RegisterBaseGasCost
	BytecodeWordGasCost = contract.WriteGasCostPerSlot / 8

	TotalCreatedGasCost = contract.ReadGasCostPerSlot
	RegistryGasCost     = contract.ReadGasCostPerSlot

	ContractCreatedEventGasCost = contract.LogGas + 3*contract.LogTopicGas + 256*contract.LogDataGas
)

var (
	// Singleton StatefulPrecompiledContract for the deployment factory.
	DeployerFactoryPrecompile contract.StatefulPrecompiledContract = createDeployerFactoryPrecompile()

	// registryKey holds the address of the metadata registry this factory
	// records into. Set once at configuration time.
	registryKey = common.Hash{'d', 'f', 'r'}

	ErrCannotCreate            = errors.New("non-enabled cannot create contract")
	ErrInvalidAmountSent       = errors.New("invalid amount sent")
	ErrInsufficientAmountSent  = errors.New("insufficient amount sent")
	ErrTooMuchAmountSent       = errors.New("too much amount sent")
	ErrUnexpectedDeployAddress = errors.New("unexpected deploy address")
	ErrEmptyBytecode           = errors.New("cannot deploy empty bytecode")

	// DeployerFactoryRawABI contains the raw ABI of DeployerFactory contract.
	//go:embed contract.abi
	DeployerFactoryRawABI string

	DeployerFactoryABI = contract.ParseABI(DeployerFactoryRawABI)
)

// DeployRequest mirrors the create arguments and the bulkCreate tuple.
type DeployRequest struct {
	Amount          *big.Int
	Salt            [32]byte
	Bytecode        []byte
	ExpectedAddress common.Address
	Tag             string
	PostDeployCalls [][]byte
}

// GetRegistry returns the metadata registry this factory records into.
func GetRegistry(state contract.StateReader) common.Address {
	return common.BytesToAddress(state.GetState(ContractAddress, registryKey).Bytes())
}

// StoreRegistry fixes the metadata registry of the factory. Set once at
// configuration time.
func StoreRegistry(state contract.StateDB, registry common.Address) {
	state.SetState(ContractAddress, registryKey, common.BytesToHash(registry.Bytes()))
}

// DeployAddress computes the deterministic creation address for [bytecode]
// and [salt]: Keccak256(0xff ++ factory ++ salt ++ Keccak256(bytecode))[12:].
func DeployAddress(salt [32]byte, bytecode []byte) common.Address {
	return crypto.CreateAddress2(ContractAddress, salt, crypto.Keccak256(bytecode))
}

// PackPredictDeployAddress packs a predictDeployAddress call with its selector.
// This function is mostly used for tests.
func PackPredictDeployAddress(bytecode []byte, salt [32]byte) ([]byte, error) {
	return DeployerFactoryABI.Pack("predictDeployAddress", bytecode, salt)
}

// PackCreate packs a create call with its selector.
// This function is mostly used for tests.
func PackCreate(req DeployRequest) ([]byte, error) {
	return DeployerFactoryABI.Pack("create", req.Amount, req.Salt, req.Bytecode, req.ExpectedAddress, req.Tag, req.PostDeployCalls)
}

// PackBulkCreate packs a bulkCreate call with its selector.
// This function is mostly used for tests.
func PackBulkCreate(reqs []DeployRequest) ([]byte, error) {
	return DeployerFactoryABI.Pack("bulkCreate", reqs)
}

// PackTotalCreated packs the totalCreated call.
// This function is mostly used for tests.
func PackTotalCreated() ([]byte, error) {
	return DeployerFactoryABI.Pack("totalCreated")
}

// PackRegistry packs the registry call.
// This function is mostly used for tests.
func PackRegistry() ([]byte, error) {
	return DeployerFactoryABI.Pack("registry")
}

// PackContractCreatedEvent packs the ContractCreated event.
func PackContractCreatedEvent(creator common.Address, value *big.Int, salt [32]byte, bytecode []byte, created common.Address) ([]common.Hash, []byte, error) {
	topics := []common.Hash{
		common.BytesToHash(creator.Bytes()),
		common.BytesToHash(created.Bytes()),
	}
	return contract.PackEvent(DeployerFactoryABI, "ContractCreated", topics, value, salt, bytecode)
}

func predictDeployAddress(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, PredictGasCost); err != nil {
		return nil, 0, err
	}

	res, err := contract.UnpackInput(DeployerFactoryABI, "predictDeployAddress", input)
	if err != nil {
		return nil, remainingGas, err
	}
	bytecode := *abi.ConvertType(res[0], new([]byte)).(*[]byte)
	salt := *abi.ConvertType(res[1], new([32]byte)).(*[32]byte)

	packedOutput, err := contract.PackOutput(DeployerFactoryABI, "predictDeployAddress", DeployAddress(salt, bytecode))
	if err != nil {
		return nil, remainingGas, err
	}

	return packedOutput, remainingGas, nil
}

// deployOne performs a single deterministic creation against the state.
// Callers wrap it in a snapshot so that a failed request leaves no trace.
func deployOne(accessibleState contract.AccessibleState, caller common.Address, registry common.Address, req DeployRequest, remainingGas uint64) (common.Address, uint64, error) {
	if len(req.Bytecode) == 0 {
		return common.Address{}, remainingGas, ErrEmptyBytecode
	}
	words := (uint64(len(req.Bytecode)) + 31) / 32
	remainingGas, err := contract.DeductGas(remainingGas, words*BytecodeWordGasCost)
	if err != nil {
		return common.Address{}, 0, err
	}

	amount, overflow := uint256.FromBig(req.Amount)
	if overflow {
		return common.Address{}, remainingGas, fmt.Errorf("%w: %v", ErrInvalidAmountSent, req.Amount)
	}

	stateDB := accessibleState.GetStateDB()
	created := DeployAddress(req.Salt, req.Bytecode)

	// An account with a nonce or code at the target address, or an existing
	// registry record, means this (salt, bytecode) pair was already consumed.
	if stateDB.GetNonce(created) != 0 || stateDB.GetCodeSize(created) != 0 {
		return common.Address{}, remainingGas, vmerrs.ErrContractAddressCollision
	}
	switch _, lookupErr := metadataregistry.LookupMetadata(stateDB, registry, created); {
	case lookupErr == nil:
		return common.Address{}, remainingGas, vmerrs.ErrContractAddressCollision
	case !errors.Is(lookupErr, metadataregistry.ErrNotFound):
		return common.Address{}, remainingGas, lookupErr
	}

	if req.ExpectedAddress != created {
		return common.Address{}, remainingGas, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedDeployAddress, req.ExpectedAddress, created)
	}

	if !stateDB.Exist(created) {
		stateDB.CreateAccount(created)
	}
	stateDB.SetCode(created, req.Bytecode)
	stateDB.SetNonce(created, 1)
	if !amount.IsZero() {
		stateDB.SubBalance(ContractAddress, amount)
		stateDB.AddBalance(created, amount)
	}

	if err := metadataregistry.RegisterMetadata(stateDB, registry, created, caller, req.Tag); err != nil {
		return common.Address{}, remainingGas, err
	}

	// Initialization calls run with the factory as caller; any failure
	// propagates verbatim and aborts the request.
	for _, callInput := range req.PostDeployCalls {
		if _, remainingGas, err = accessibleState.Call(ContractAddress, created, callInput, remainingGas, new(uint256.Int)); err != nil {
			return common.Address{}, remainingGas, err
		}
	}

	if remainingGas, err = contract.DeductGas(remainingGas, ContractCreatedEventGasCost); err != nil {
		return common.Address{}, 0, err
	}
	topics, data, err := PackContractCreatedEvent(caller, req.Amount, req.Salt, req.Bytecode, created)
	if err != nil {
		return common.Address{}, remainingGas, err
	}
	blockNumber := accessibleState.GetBlockContext().Number().Uint64()
	stateDB.AddLog(contract.NewLog(ContractAddress, topics, data, blockNumber))

	if remainingGas, err = metadataregistry.EmitMetadataRegistered(accessibleState, registry, caller, created, req.Tag, remainingGas); err != nil {
		return common.Address{}, remainingGas, err
	}

	log.Debug("deployed contract", "factory", ContractAddress, "creator", caller, "created", created, "tag", req.Tag)
	return created, remainingGas, nil
}

func create(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, CreateBaseGasCost); err != nil {
		return nil, 0, err
	}
	if readOnly {
		return nil, remainingGas, vmerrs.ErrWriteProtection
	}

	res, err := contract.UnpackInput(DeployerFactoryABI, "create", input)
	if err != nil {
		return nil, remainingGas, err
	}
	req := DeployRequest{
		Amount:          *abi.ConvertType(res[0], new(*big.Int)).(**big.Int),
		Salt:            *abi.ConvertType(res[1], new([32]byte)).(*[32]byte),
		Bytecode:        *abi.ConvertType(res[2], new([]byte)).(*[]byte),
		ExpectedAddress: *abi.ConvertType(res[3], new(common.Address)).(*common.Address),
		Tag:             *abi.ConvertType(res[4], new(string)).(*string),
		PostDeployCalls: *abi.ConvertType(res[5], new([][]byte)).(*[][]byte),
	}

	stateDB := accessibleState.GetStateDB()
	// Verify that the caller is in the allow list and therefore has the right to create.
	if !allowlist.GetAllowListStatus(stateDB, ContractAddress, caller).IsEnabled() {
		return nil, remainingGas, fmt.Errorf("%w: %s", ErrCannotCreate, caller)
	}

	amount, overflow := uint256.FromBig(req.Amount)
	if overflow || accessibleState.CallValue().Cmp(amount) != 0 {
		return nil, remainingGas, fmt.Errorf("%w: attached %s, requested %v", ErrInvalidAmountSent, accessibleState.CallValue(), req.Amount)
	}

	registry := GetRegistry(stateDB)

	snapshot := stateDB.Snapshot()
	created, remainingGas, err := deployOne(accessibleState, caller, registry, req, remainingGas)
	if err != nil {
		stateDB.RevertToSnapshot(snapshot)
		return nil, remainingGas, err
	}

	packedOutput, err := contract.PackOutput(DeployerFactoryABI, "create", created)
	if err != nil {
		return nil, remainingGas, err
	}

	return packedOutput, remainingGas, nil
}

func bulkCreate(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, CreateBaseGasCost); err != nil {
		return nil, 0, err
	}
	if readOnly {
		return nil, remainingGas, vmerrs.ErrWriteProtection
	}

	res, err := contract.UnpackInput(DeployerFactoryABI, "bulkCreate", input)
	if err != nil {
		return nil, remainingGas, err
	}
	requests := *abi.ConvertType(res[0], new([]DeployRequest)).(*[]DeployRequest)

	stateDB := accessibleState.GetStateDB()
	if !allowlist.GetAllowListStatus(stateDB, ContractAddress, caller).IsEnabled() {
		return nil, remainingGas, fmt.Errorf("%w: %s", ErrCannotCreate, caller)
	}

	registry := GetRegistry(stateDB)
	remaining := new(uint256.Int).Set(accessibleState.CallValue())

	for i, req := range requests {
		if i > 0 {
			if remainingGas, err = contract.DeductGas(remainingGas, CreateBaseGasCost); err != nil {
				return nil, 0, err
			}
		}
		amount, overflow := uint256.FromBig(req.Amount)
		if overflow || amount.Gt(remaining) {
			return nil, remainingGas, fmt.Errorf("%w: request %d needs %v, %s remaining", ErrInsufficientAmountSent, i, req.Amount, remaining)
		}

		// Each request is atomic on its own. Any failure still aborts the
		// whole call, so the host reverts the preceding requests with it.
		snapshot := stateDB.Snapshot()
		if _, remainingGas, err = deployOne(accessibleState, caller, registry, req, remainingGas); err != nil {
			stateDB.RevertToSnapshot(snapshot)
			return nil, remainingGas, fmt.Errorf("request %d: %w", i, err)
		}
		remaining.Sub(remaining, amount)
	}

	if !remaining.IsZero() {
		return nil, remainingGas, fmt.Errorf("%w: %s left unconsumed", ErrTooMuchAmountSent, remaining)
	}

	return []byte{}, remainingGas, nil
}

func totalCreated(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, TotalCreatedGasCost); err != nil {
		return nil, 0, err
	}

	stateDB := accessibleState.GetStateDB()
	count := metadataregistry.GetLocalCount(stateDB, GetRegistry(stateDB))
	packedOutput, err := contract.PackOutput(DeployerFactoryABI, "totalCreated", new(big.Int).SetUint64(count))
	if err != nil {
		return nil, remainingGas, err
	}

	return packedOutput, remainingGas, nil
}

func registry(accessibleState contract.AccessibleState, caller common.Address, addr common.Address, input []byte, suppliedGas uint64, readOnly bool) (ret []byte, remainingGas uint64, err error) {
	if remainingGas, err = contract.DeductGas(suppliedGas, RegistryGasCost); err != nil {
		return nil, 0, err
	}

	packedOutput, err := contract.PackOutput(DeployerFactoryABI, "registry", GetRegistry(accessibleState.GetStateDB()))
	if err != nil {
		return nil, remainingGas, err
	}

	return packedOutput, remainingGas, nil
}

// createDeployerFactoryPrecompile returns a StatefulPrecompiledContract with
// the factory functions. Creation is controlled by an allow list for
// ContractAddress; the views are public.
func createDeployerFactoryPrecompile() contract.StatefulPrecompiledContract {
	var functions []*contract.StatefulPrecompileFunction
	functions = append(functions, allowlist.CreateAllowListFunctions(ContractAddress)...)

	abiFunctionMap := map[string]contract.RunStatefulPrecompileFunc{
		"predictDeployAddress": predictDeployAddress,
		"create":               create,
		"bulkCreate":           bulkCreate,
		"totalCreated":         totalCreated,
		"registry":             registry,
	}

	for name, function := range abiFunctionMap {
		method, ok := DeployerFactoryABI.Methods[name]
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
