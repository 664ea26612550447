// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deployguard/deployguard/precompile/contracts/accesspolicy"
	"github.com/deployguard/deployguard/precompile/contracts/deployerfactory"
	"github.com/deployguard/deployguard/precompile/contracts/metadataregistry"
	"github.com/deployguard/deployguard/precompile/contracts/txblockpolicy"
	"github.com/deployguard/deployguard/precompile/modules"
)

func TestRegisteredModules(t *testing.T) {
	require := require.New(t)

	registered := modules.RegisteredModules()
	require.Len(registered, 4)

	// sorted by address
	for i := 1; i < len(registered); i++ {
		require.Less(registered[i-1].Address.Hex(), registered[i].Address.Hex())
	}

	for _, key := range []string{
		accesspolicy.ConfigKey,
		txblockpolicy.ConfigKey,
		metadataregistry.ConfigKey,
		deployerfactory.ConfigKey,
	} {
		module, ok := modules.GetPrecompileModule(key)
		require.True(ok, key)
		require.NotNil(module.Contract)

		byAddress, ok := modules.GetPrecompileModuleByAddress(module.Address)
		require.True(ok)
		require.Equal(key, byAddress.ConfigKey)
	}
}
