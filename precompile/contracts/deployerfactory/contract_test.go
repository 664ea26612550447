// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package deployerfactory

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/contract"
	"github.com/deployguard/deployguard/precompile/contracts/metadataregistry"
	"github.com/deployguard/deployguard/precompile/precompiletest"
	"github.com/deployguard/deployguard/utils"
	"github.com/deployguard/deployguard/vmerrs"
)

var (
	adminAddr   = common.HexToAddress("0x0100000000000000000000000000000000000001")
	creatorAddr = common.HexToAddress("0x0100000000000000000000000000000000000002")
	noRoleAddr  = common.HexToAddress("0x0100000000000000000000000000000000000003")

	registryAddr = metadataregistry.ContractAddress

	testBytecode = []byte{0x60, 0x80, 0x60, 0x40, 0x52}
	testSalt     = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")
)

func testConfig() *Config {
	return NewConfig(utils.NewUint64(0), []common.Address{adminAddr}, []common.Address{creatorAddr}, registryAddr)
}

func testRequest(amount int64) DeployRequest {
	return DeployRequest{
		Amount:          big.NewInt(amount),
		Salt:            testSalt,
		Bytecode:        testBytecode,
		ExpectedAddress: DeployAddress(testSalt, testBytecode),
		Tag:             "v1",
	}
}

// createGasCost is the full cost of a create call deploying [bytecodeLen]
// bytes of code.
func createGasCost(bytecodeLen int) uint64 {
	words := (uint64(bytecodeLen) + 31) / 32
	return CreateBaseGasCost + words*BytecodeWordGasCost + ContractCreatedEventGasCost + metadataregistry.MetadataRegisteredEventGasCost
}

func TestPredictDeployAddress(t *testing.T) {
	predicted := DeployAddress(testSalt, testBytecode)

	test := precompiletest.PrecompileTest{
		Caller: noRoleAddr,
		Config: testConfig(),
		InputFn: func(t *testing.T) []byte {
			input, err := PackPredictDeployAddress(testBytecode, testSalt)
			require.NoError(t, err)
			return input
		},
		SuppliedGas: PredictGasCost,
		ExpectedRes: mustPackAddressOutput(t, "predictDeployAddress", predicted),
	}
	test.Run(t, Module, precompiletest.NewTestStateDB())
}

func TestCreate(t *testing.T) {
	created := DeployAddress(testSalt, testBytecode)

	tests := map[string]precompiletest.PrecompileTest{
		"creator deploys with value": {
			Caller:    creatorAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(42),
			BeforeHook: func(t *testing.T, state contract.StateDB) {
				// the host credits the attached value to the factory
				state.AddBalance(ContractAddress, uint256.NewInt(42))
			},
			InputFn: func(t *testing.T) []byte {
				input, err := PackCreate(testRequest(42))
				require.NoError(t, err)
				return input
			},
			SuppliedGas: createGasCost(len(testBytecode)),
			ExpectedRes: mustPackAddressOutput(t, "create", created),
			AfterHook: func(t *testing.T, state contract.StateDB) {
				require.Equal(t, testBytecode, state.GetCode(created))
				require.Equal(t, uint64(1), state.GetNonce(created))
				require.Equal(t, uint256.NewInt(42), state.GetBalance(created))
				require.True(t, state.GetBalance(ContractAddress).IsZero())

				metadata, err := metadataregistry.LookupMetadata(state, registryAddr, created)
				require.NoError(t, err)
				require.Equal(t, creatorAddr, metadata.Creator)
				require.Equal(t, "v1", metadata.Tag)
			},
		},
		"no role cannot create": {
			Caller:    noRoleAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(0),
			InputFn: func(t *testing.T) []byte {
				input, err := PackCreate(testRequest(0))
				require.NoError(t, err)
				return input
			},
			SuppliedGas: CreateBaseGasCost,
			ExpectedErr: ErrCannotCreate.Error(),
		},
		"read only create fails": {
			Caller: creatorAddr,
			Config: testConfig(),
			InputFn: func(t *testing.T) []byte {
				input, err := PackCreate(testRequest(0))
				require.NoError(t, err)
				return input
			},
			SuppliedGas: CreateBaseGasCost,
			ReadOnly:    true,
			ExpectedErr: "write protection",
		},
		"attached value must equal amount": {
			Caller:    creatorAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(41),
			InputFn: func(t *testing.T) []byte {
				input, err := PackCreate(testRequest(42))
				require.NoError(t, err)
				return input
			},
			SuppliedGas: CreateBaseGasCost,
			ExpectedErr: ErrInvalidAmountSent.Error(),
		},
		"unexpected deploy address": {
			Caller:    creatorAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(0),
			InputFn: func(t *testing.T) []byte {
				req := testRequest(0)
				req.ExpectedAddress = noRoleAddr
				input, err := PackCreate(req)
				require.NoError(t, err)
				return input
			},
			SuppliedGas: CreateBaseGasCost + BytecodeWordGasCost,
			ExpectedErr: ErrUnexpectedDeployAddress.Error(),
		},
		"address collision with existing account": {
			Caller:    creatorAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(0),
			BeforeHook: func(t *testing.T, state contract.StateDB) {
				state.SetNonce(created, 1)
			},
			InputFn: func(t *testing.T) []byte {
				input, err := PackCreate(testRequest(0))
				require.NoError(t, err)
				return input
			},
			SuppliedGas: CreateBaseGasCost + BytecodeWordGasCost,
			ExpectedErr: vmerrs.ErrContractAddressCollision.Error(),
		},
		"address collision with registry record": {
			Caller:    creatorAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(0),
			BeforeHook: func(t *testing.T, state contract.StateDB) {
				require.NoError(t, metadataregistry.RegisterMetadata(state, registryAddr, created, creatorAddr, "ghost"))
			},
			InputFn: func(t *testing.T) []byte {
				input, err := PackCreate(testRequest(0))
				require.NoError(t, err)
				return input
			},
			SuppliedGas: CreateBaseGasCost + BytecodeWordGasCost,
			ExpectedErr: vmerrs.ErrContractAddressCollision.Error(),
		},
		"empty bytecode": {
			Caller:    creatorAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(0),
			InputFn: func(t *testing.T) []byte {
				req := testRequest(0)
				req.Bytecode = []byte{}
				req.ExpectedAddress = DeployAddress(testSalt, nil)
				input, err := PackCreate(req)
				require.NoError(t, err)
				return input
			},
			SuppliedGas: CreateBaseGasCost,
			ExpectedErr: ErrEmptyBytecode.Error(),
		},
	}

	precompiletest.RunPrecompileTests(t, Module, tests)
}

// A failed creation leaves no trace: the snapshot rolls back the account and
// the registry record.
func TestCreateRevertsOnPostDeployFailure(t *testing.T) {
	require := require.New(t)
	state := precompiletest.NewTestStateDB()
	created := DeployAddress(testSalt, testBytecode)

	req := testRequest(0)
	req.PostDeployCalls = [][]byte{{0xde, 0xad}}

	test := precompiletest.PrecompileTest{
		Caller:    creatorAddr,
		Config:    testConfig(),
		CallValue: uint256.NewInt(0),
		CallHandler: func(state contract.StateDB, caller common.Address, addr common.Address, input []byte, gas uint64, value *uint256.Int) ([]byte, uint64, error) {
			return nil, gas, vmerrs.ErrExecutionReverted
		},
		InputFn: func(t *testing.T) []byte {
			input, err := PackCreate(req)
			require.NoError(err)
			return input
		},
		SuppliedGas:  createGasCost(len(testBytecode)),
		SkipGasCheck: true,
		ExpectedErr:  vmerrs.ErrExecutionReverted.Error(),
	}
	test.Run(t, Module, state)

	require.Empty(state.GetCode(created))
	require.Zero(state.GetNonce(created))
	_, err := metadataregistry.LookupMetadata(state, registryAddr, created)
	require.ErrorIs(err, metadataregistry.ErrNotFound)
	require.Empty(state.Logs())
}

// An initializer call stores the constructor argument after the deterministic
// deployment, with the factory as the caller.
func TestCreateWithInitializer(t *testing.T) {
	require := require.New(t)
	state := precompiletest.NewTestStateDB()
	created := DeployAddress(testSalt, testBytecode)
	initSlot := common.Hash{'i', 'n', 'i', 't'}

	req := testRequest(42)
	req.PostDeployCalls = [][]byte{common.BigToHash(big.NewInt(42)).Bytes()}

	test := precompiletest.PrecompileTest{
		Caller:    creatorAddr,
		Config:    testConfig(),
		CallValue: uint256.NewInt(42),
		BeforeHook: func(t *testing.T, state contract.StateDB) {
			state.AddBalance(ContractAddress, uint256.NewInt(42))
		},
		CallHandler: func(state contract.StateDB, caller common.Address, addr common.Address, input []byte, gas uint64, value *uint256.Int) ([]byte, uint64, error) {
			require.Equal(ContractAddress, caller)
			require.Equal(created, addr)
			state.SetState(addr, initSlot, common.BytesToHash(input))
			return nil, gas, nil
		},
		InputFn: func(t *testing.T) []byte {
			input, err := PackCreate(req)
			require.NoError(err)
			return input
		},
		SuppliedGas: createGasCost(len(testBytecode)),
		ExpectedRes: mustPackAddressOutput(t, "create", created),
	}
	test.Run(t, Module, state)

	require.Equal(common.BigToHash(big.NewInt(42)), state.GetState(created, initSlot))
	require.Equal(uint256.NewInt(42), state.GetBalance(created))
}

func TestBulkCreate(t *testing.T) {
	reqA := testRequest(0)

	saltB := common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000bb")
	reqB := DeployRequest{
		Amount:          big.NewInt(7),
		Salt:            saltB,
		Bytecode:        testBytecode,
		ExpectedAddress: DeployAddress(saltB, testBytecode),
		Tag:             "v2",
	}

	saltC := common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000cc")
	reqC := DeployRequest{
		Amount:          big.NewInt(3),
		Salt:            saltC,
		Bytecode:        testBytecode,
		ExpectedAddress: DeployAddress(saltC, testBytecode),
		Tag:             "v3",
	}

	t.Run("amounts split across requests", func(t *testing.T) {
		require := require.New(t)
		state := precompiletest.NewTestStateDB()

		test := precompiletest.PrecompileTest{
			Caller:    creatorAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(10),
			BeforeHook: func(t *testing.T, state contract.StateDB) {
				state.AddBalance(ContractAddress, uint256.NewInt(10))
			},
			InputFn: func(t *testing.T) []byte {
				input, err := PackBulkCreate([]DeployRequest{reqA, reqB, reqC})
				require.NoError(err)
				return input
			},
			SuppliedGas:  3 * createGasCost(len(testBytecode)),
			SkipGasCheck: true,
			ExpectedRes:  []byte{},
		}
		test.Run(t, Module, state)

		require.True(state.GetBalance(reqA.ExpectedAddress).IsZero())
		require.Equal(uint256.NewInt(7), state.GetBalance(reqB.ExpectedAddress))
		require.Equal(uint256.NewInt(3), state.GetBalance(reqC.ExpectedAddress))
		require.True(state.GetBalance(ContractAddress).IsZero())

		require.Equal(uint64(3), metadataregistry.GetLocalCount(state, registryAddr))
	})

	t.Run("insufficient amount", func(t *testing.T) {
		require := require.New(t)
		test := precompiletest.PrecompileTest{
			Caller:    creatorAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(5),
			InputFn: func(t *testing.T) []byte {
				input, err := PackBulkCreate([]DeployRequest{reqB})
				require.NoError(err)
				return input
			},
			SuppliedGas:  createGasCost(len(testBytecode)),
			SkipGasCheck: true,
			ExpectedErr:  ErrInsufficientAmountSent.Error(),
		}
		test.Run(t, Module, precompiletest.NewTestStateDB())
	})

	t.Run("too much amount", func(t *testing.T) {
		require := require.New(t)
		test := precompiletest.PrecompileTest{
			Caller:    creatorAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(9),
			BeforeHook: func(t *testing.T, state contract.StateDB) {
				state.AddBalance(ContractAddress, uint256.NewInt(9))
			},
			InputFn: func(t *testing.T) []byte {
				input, err := PackBulkCreate([]DeployRequest{reqB})
				require.NoError(err)
				return input
			},
			SuppliedGas:  createGasCost(len(testBytecode)),
			SkipGasCheck: true,
			ExpectedErr:  ErrTooMuchAmountSent.Error(),
		}
		test.Run(t, Module, precompiletest.NewTestStateDB())
	})

	t.Run("failing request aborts the call", func(t *testing.T) {
		require := require.New(t)
		state := precompiletest.NewTestStateDB()
		// reqB twice: the second one collides with the first
		test := precompiletest.PrecompileTest{
			Caller:    creatorAddr,
			Config:    testConfig(),
			CallValue: uint256.NewInt(14),
			BeforeHook: func(t *testing.T, state contract.StateDB) {
				state.AddBalance(ContractAddress, uint256.NewInt(14))
			},
			InputFn: func(t *testing.T) []byte {
				input, err := PackBulkCreate([]DeployRequest{reqB, reqB})
				require.NoError(err)
				return input
			},
			SuppliedGas:  2 * createGasCost(len(testBytecode)),
			SkipGasCheck: true,
			ExpectedErr:  vmerrs.ErrContractAddressCollision.Error(),
		}
		test.Run(t, Module, state)
	})
}

func TestTotalCreatedAndRegistryViews(t *testing.T) {
	require := require.New(t)
	state := precompiletest.NewTestStateDB()

	createTest := precompiletest.PrecompileTest{
		Caller:    creatorAddr,
		Config:    testConfig(),
		CallValue: uint256.NewInt(0),
		InputFn: func(t *testing.T) []byte {
			input, err := PackCreate(testRequest(0))
			require.NoError(err)
			return input
		},
		SuppliedGas: createGasCost(len(testBytecode)),
		ExpectedRes: mustPackAddressOutput(t, "create", DeployAddress(testSalt, testBytecode)),
	}
	createTest.Run(t, Module, state)

	totalTest := precompiletest.PrecompileTest{
		Caller: noRoleAddr,
		InputFn: func(t *testing.T) []byte {
			input, err := PackTotalCreated()
			require.NoError(err)
			return input
		},
		SuppliedGas: TotalCreatedGasCost,
		ExpectedRes: mustPackCountOutput(t, "totalCreated", 1),
	}
	totalTest.Run(t, Module, state)

	registryTest := precompiletest.PrecompileTest{
		Caller: noRoleAddr,
		InputFn: func(t *testing.T) []byte {
			input, err := PackRegistry()
			require.NoError(err)
			return input
		},
		SuppliedGas: RegistryGasCost,
		ExpectedRes: mustPackAddressOutput(t, "registry", registryAddr),
	}
	registryTest.Run(t, Module, state)
}

func TestCreateEmitsEvents(t *testing.T) {
	require := require.New(t)
	state := precompiletest.NewTestStateDB()
	created := DeployAddress(testSalt, testBytecode)

	test := precompiletest.PrecompileTest{
		Caller:    creatorAddr,
		Config:    testConfig(),
		CallValue: uint256.NewInt(0),
		InputFn: func(t *testing.T) []byte {
			input, err := PackCreate(testRequest(0))
			require.NoError(err)
			return input
		},
		SuppliedGas: createGasCost(len(testBytecode)),
		ExpectedRes: mustPackAddressOutput(t, "create", created),
	}
	test.Run(t, Module, state)

	logs := state.Logs()
	require.Len(logs, 2)

	require.Equal(ContractAddress, logs[0].Address)
	require.Equal(DeployerFactoryABI.Events["ContractCreated"].ID, logs[0].Topics[0])
	require.Equal(common.BytesToHash(creatorAddr.Bytes()), logs[0].Topics[1])
	require.Equal(common.BytesToHash(created.Bytes()), logs[0].Topics[2])

	require.Equal(registryAddr, logs[1].Address)
	require.Equal(metadataregistry.MetadataRegistryABI.Events["MetadataRegistered"].ID, logs[1].Topics[0])
	require.Equal(common.BytesToHash(creatorAddr.Bytes()), logs[1].Topics[1])
	require.Equal(common.BytesToHash(created.Bytes()), logs[1].Topics[2])
}

func TestConfigure(t *testing.T) {
	require := require.New(t)
	state := precompiletest.NewTestStateDB()

	blockContext := contract.NewMockBlockContext(big.NewInt(0), 0)
	require.NoError(Module.Configure(state, testConfig(), blockContext))

	require.Equal(registryAddr, GetRegistry(state))
	require.Equal(allowlist.AdminRole, allowlist.GetAllowListStatus(state, ContractAddress, adminAddr))
	require.Equal(allowlist.EnabledRole, allowlist.GetAllowListStatus(state, ContractAddress, creatorAddr))
	// the factory is visible as an enabled registrant of its registry
	require.Equal(allowlist.EnabledRole, allowlist.GetAllowListStatus(state, registryAddr, ContractAddress))
}

func TestConfigVerify(t *testing.T) {
	require := require.New(t)

	require.NoError(testConfig().Verify())
	require.ErrorContains(
		NewConfig(utils.NewUint64(0), nil, nil, common.Address{}).Verify(),
		"registry address cannot be empty",
	)
	require.ErrorContains(
		NewConfig(utils.NewUint64(0), nil, nil, ContractAddress).Verify(),
		"cannot be its own registry",
	)
}

func TestConfigEqual(t *testing.T) {
	require := require.New(t)

	base := testConfig()
	require.True(base.Equal(testConfig()))
	require.False(base.Equal(nil))
	require.False(base.Equal(NewConfig(utils.NewUint64(0), []common.Address{adminAddr}, []common.Address{creatorAddr}, ContractAddress)))
	require.False(base.Equal(metadataregistry.NewConfig(utils.NewUint64(0), nil, nil, common.Address{})))
}

func mustPackAddressOutput(t *testing.T, methodName string, addr common.Address) []byte {
	t.Helper()
	out, err := contract.PackOutput(DeployerFactoryABI, methodName, addr)
	require.NoError(t, err)
	return out
}

func mustPackCountOutput(t *testing.T, methodName string, count int64) []byte {
	t.Helper()
	out, err := contract.PackOutput(DeployerFactoryABI, methodName, big.NewInt(count))
	require.NoError(t, err)
	return out
}
