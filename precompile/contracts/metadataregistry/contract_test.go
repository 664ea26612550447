// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package metadataregistry

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/contract"
	"github.com/deployguard/deployguard/precompile/precompiletest"
	"github.com/deployguard/deployguard/utils"
)

var (
	adminAddr   = common.HexToAddress("0x0100000000000000000000000000000000000001")
	enabledAddr = common.HexToAddress("0x0100000000000000000000000000000000000002")
	noRoleAddr  = common.HexToAddress("0x0100000000000000000000000000000000000003")
)

func testConfig() *Config {
	return NewConfig(utils.NewUint64(0), []common.Address{adminAddr}, []common.Address{enabledAddr}, common.Address{})
}

// registerGasCost is the full cost of a register call with a tag spanning
// [chunks] storage words.
func registerGasCost(chunks uint64) uint64 {
	return RegisterBaseGasCost + chunks*TagChunkGasCost + MetadataRegisteredEventGasCost
}

func TestMetadataRegistryRun(t *testing.T) {
	tests := map[string]precompiletest.PrecompileTest{
		"enabled registers metadata": {
			Caller: enabledAddr,
			Config: testConfig(),
			InputFn: func(t *testing.T) []byte {
				input, err := PackRegister(createdAddr1, creatorAddr, "v1")
				require.NoError(t, err)
				return input
			},
			SuppliedGas: registerGasCost(1),
			ExpectedRes: []byte{},
			AfterHook: func(t *testing.T, state contract.StateDB) {
				metadata, err := LookupMetadata(state, ContractAddress, createdAddr1)
				require.NoError(t, err)
				require.Equal(t, creatorAddr, metadata.Creator)
				require.Equal(t, "v1", metadata.Tag)
			},
		},
		"no role cannot register": {
			Caller: noRoleAddr,
			Config: testConfig(),
			InputFn: func(t *testing.T) []byte {
				input, err := PackRegister(createdAddr1, creatorAddr, "v1")
				require.NoError(t, err)
				return input
			},
			SuppliedGas: RegisterBaseGasCost,
			ExpectedErr: ErrCannotRegister.Error(),
		},
		"read only register fails": {
			Caller: enabledAddr,
			Config: testConfig(),
			InputFn: func(t *testing.T) []byte {
				input, err := PackRegister(createdAddr1, creatorAddr, "v1")
				require.NoError(t, err)
				return input
			},
			SuppliedGas: RegisterBaseGasCost,
			ReadOnly:    true,
			ExpectedErr: "write protection",
		},
		"duplicate register fails": {
			Caller: enabledAddr,
			Config: testConfig(),
			BeforeHook: func(t *testing.T, state contract.StateDB) {
				require.NoError(t, RegisterMetadata(state, ContractAddress, createdAddr1, creatorAddr, "v1"))
			},
			InputFn: func(t *testing.T) []byte {
				input, err := PackRegister(createdAddr1, creatorAddr, "v2")
				require.NoError(t, err)
				return input
			},
			SuppliedGas: RegisterBaseGasCost + TagChunkGasCost,
			ExpectedErr: ErrAlreadyRegistered.Error(),
		},
		"get by address": {
			Caller: noRoleAddr,
			Config: testConfig(),
			BeforeHook: func(t *testing.T, state contract.StateDB) {
				require.NoError(t, RegisterMetadata(state, ContractAddress, createdAddr1, creatorAddr, "v1"))
			},
			InputFn: func(t *testing.T) []byte {
				input, err := PackGetByAddress(createdAddr1)
				require.NoError(t, err)
				return input
			},
			SuppliedGas: GetByAddressGasCost,
			ExpectedRes: mustPackMetadata(t, "getByAddress", Metadata{Created: createdAddr1, Creator: creatorAddr, Tag: "v1"}),
		},
		"get by unknown address fails": {
			Caller: noRoleAddr,
			Config: testConfig(),
			InputFn: func(t *testing.T) []byte {
				input, err := PackGetByAddress(createdAddr1)
				require.NoError(t, err)
				return input
			},
			SuppliedGas: GetByAddressGasCost,
			ExpectedErr: ErrNotFound.Error(),
		},
		"get by index": {
			Caller: noRoleAddr,
			Config: testConfig(),
			BeforeHook: func(t *testing.T, state contract.StateDB) {
				require.NoError(t, RegisterMetadata(state, ContractAddress, createdAddr1, creatorAddr, "v1"))
				require.NoError(t, RegisterMetadata(state, ContractAddress, createdAddr2, creatorAddr, "v2"))
			},
			InputFn: func(t *testing.T) []byte {
				input, err := PackGetByIndex(big.NewInt(1))
				require.NoError(t, err)
				return input
			},
			SuppliedGas: GetByIndexGasCost,
			ExpectedRes: mustPackMetadata(t, "getByIndex", Metadata{Created: createdAddr2, Creator: creatorAddr, Tag: "v2"}),
		},
		"get by index out of range": {
			Caller: noRoleAddr,
			Config: testConfig(),
			InputFn: func(t *testing.T) []byte {
				input, err := PackGetByIndex(big.NewInt(0))
				require.NoError(t, err)
				return input
			},
			SuppliedGas: GetByIndexGasCost,
			ExpectedErr: ErrIndexOutOfRange.Error(),
		},
		"total count": {
			Caller: noRoleAddr,
			Config: testConfig(),
			BeforeHook: func(t *testing.T, state contract.StateDB) {
				require.NoError(t, RegisterMetadata(state, ContractAddress, createdAddr1, creatorAddr, "v1"))
			},
			InputFn: func(t *testing.T) []byte {
				input, err := PackTotalCount()
				require.NoError(t, err)
				return input
			},
			SuppliedGas: TotalCountGasCost,
			ExpectedRes: mustPackCount(t, "totalCount", 1),
		},
		"predecessor defaults to zero": {
			Caller: noRoleAddr,
			Config: testConfig(),
			InputFn: func(t *testing.T) []byte {
				input, err := PackPredecessor()
				require.NoError(t, err)
				return input
			},
			SuppliedGas: PredecessorGasCost,
			ExpectedRes: mustPackAddress(t, "predecessor", common.Address{}),
		},
	}

	precompiletest.RunPrecompileTests(t, Module, tests)
}

func TestRunWithPredecessor(t *testing.T) {
	require := require.New(t)
	state := precompiletest.NewTestStateDB()

	// older generation lives at registryA and already has a record
	require.NoError(RegisterMetadata(state, registryA, createdAddr1, creatorAddr, "old"))

	config := NewConfig(utils.NewUint64(0), []common.Address{adminAddr}, []common.Address{enabledAddr}, registryA)
	registerTest := precompiletest.PrecompileTest{
		Caller: enabledAddr,
		Config: config,
		InputFn: func(t *testing.T) []byte {
			input, err := PackRegister(createdAddr2, creatorAddr, "new")
			require.NoError(err)
			return input
		},
		SuppliedGas: registerGasCost(1),
		ExpectedRes: []byte{},
	}
	registerTest.Run(t, Module, state)

	// local count excludes history, the history count includes it
	require.Equal(uint64(1), GetLocalCount(state, ContractAddress))
	total, err := TotalCountIncludingHistory(state, ContractAddress)
	require.NoError(err)
	require.Equal(uint64(2), total)

	// getByAddress reaches into the predecessor
	lookupTest := precompiletest.PrecompileTest{
		Caller: noRoleAddr,
		InputFn: func(t *testing.T) []byte {
			input, err := PackGetByAddress(createdAddr1)
			require.NoError(err)
			return input
		},
		SuppliedGas: GetByAddressGasCost,
		ExpectedRes: mustPackMetadata(t, "getByAddress", Metadata{Created: createdAddr1, Creator: creatorAddr, Tag: "old"}),
	}
	lookupTest.Run(t, Module, state)

	// merged index space: predecessor entry first
	indexTest := precompiletest.PrecompileTest{
		Caller: noRoleAddr,
		InputFn: func(t *testing.T) []byte {
			input, err := PackGetByIndex(big.NewInt(0))
			require.NoError(err)
			return input
		},
		SuppliedGas: GetByIndexGasCost,
		ExpectedRes: mustPackMetadata(t, "getByIndex", Metadata{Created: createdAddr1, Creator: creatorAddr, Tag: "old"}),
	}
	indexTest.Run(t, Module, state)

	// a record in the predecessor blocks re-registration
	duplicateTest := precompiletest.PrecompileTest{
		Caller: enabledAddr,
		InputFn: func(t *testing.T) []byte {
			input, err := PackRegister(createdAddr1, creatorAddr, "again")
			require.NoError(err)
			return input
		},
		SuppliedGas: RegisterBaseGasCost + TagChunkGasCost,
		ExpectedErr: ErrAlreadyRegistered.Error(),
	}
	duplicateTest.Run(t, Module, state)
}

func TestMetadataRegisteredLog(t *testing.T) {
	require := require.New(t)
	state := precompiletest.NewTestStateDB()

	test := precompiletest.PrecompileTest{
		Caller: enabledAddr,
		Config: testConfig(),
		InputFn: func(t *testing.T) []byte {
			input, err := PackRegister(createdAddr1, creatorAddr, "v1")
			require.NoError(err)
			return input
		},
		SuppliedGas: registerGasCost(1),
		ExpectedRes: []byte{},
	}
	test.Run(t, Module, state)

	logs := state.Logs()
	require.Len(logs, 1)
	require.Equal(ContractAddress, logs[0].Address)
	require.Equal(MetadataRegistryABI.Events["MetadataRegistered"].ID, logs[0].Topics[0])
	require.Equal(common.BytesToHash(creatorAddr.Bytes()), logs[0].Topics[1])
	require.Equal(common.BytesToHash(createdAddr1.Bytes()), logs[0].Topics[2])
}

func TestConfigVerify(t *testing.T) {
	require := require.New(t)

	require.NoError(testConfig().Verify())

	selfChained := NewConfig(utils.NewUint64(0), nil, nil, ContractAddress)
	require.ErrorContains(selfChained.Verify(), "cannot be its own predecessor")
}

func TestConfigEqual(t *testing.T) {
	require := require.New(t)

	base := testConfig()
	require.True(base.Equal(testConfig()))
	require.False(base.Equal(nil))
	require.False(base.Equal(NewConfig(utils.NewUint64(0), []common.Address{adminAddr}, []common.Address{enabledAddr}, registryA)))
}

func mustPackMetadata(t *testing.T, methodName string, metadata Metadata) []byte {
	t.Helper()
	out, err := PackMetadataOutput(methodName, metadata)
	require.NoError(t, err)
	return out
}

func mustPackCount(t *testing.T, methodName string, count int64) []byte {
	t.Helper()
	out, err := contract.PackOutput(MetadataRegistryABI, methodName, big.NewInt(count))
	require.NoError(t, err)
	return out
}

func mustPackAddress(t *testing.T, methodName string, addr common.Address) []byte {
	t.Helper()
	out, err := contract.PackOutput(MetadataRegistryABI, methodName, addr)
	require.NoError(t, err)
	return out
}

// allowlist entry points are composed in; spot-check role reads work here too.
func TestReadAllowList(t *testing.T) {
	test := precompiletest.PrecompileTest{
		Caller: noRoleAddr,
		Config: testConfig(),
		InputFn: func(t *testing.T) []byte {
			input, err := allowlist.PackReadAllowList(enabledAddr)
			require.NoError(t, err)
			return input
		},
		SuppliedGas: allowlist.ReadAllowListGasCost,
		ExpectedRes: func() []byte {
			out, err := allowlist.PackReadAllowListOutput(allowlist.EnabledRole)
			if err != nil {
				panic(err)
			}
			return out
		}(),
	}
	test.Run(t, Module, precompiletest.NewTestStateDB())
}
