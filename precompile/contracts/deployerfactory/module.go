// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package deployerfactory

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/contract"
	"github.com/deployguard/deployguard/precompile/modules"
	"github.com/deployguard/deployguard/precompile/precompileconfig"
)

var _ contract.Configurator = &configurator{}

// ConfigKey is the key used in json config files to specify this precompile config.
// must be unique across all precompiles.
const ConfigKey = "deployerFactoryConfig"

var ContractAddress = common.HexToAddress("0x0300000000000000000000000000000000000004")

var Module = modules.Module{
	ConfigKey:    ConfigKey,
	Address:      ContractAddress,
	Contract:     DeployerFactoryPrecompile,
	Configurator: &configurator{},
}

type configurator struct{}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

func (*configurator) MakeConfig() precompileconfig.Config {
	return new(Config)
}

// Configure configures [state] with the given [cfg] precompileconfig. The
// registry reference is fixed for the lifetime of the factory, and the
// factory itself is enabled on the registry allow list so the relationship is
// visible on chain.
func (*configurator) Configure(state contract.StateDB, cfg precompileconfig.Config, _ contract.BlockContext) error {
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("incorrect config %T: %v", cfg, cfg)
	}
	if err := config.AllowListConfig.Configure(state, ContractAddress); err != nil {
		return err
	}
	StoreRegistry(state, config.RegistryAddress)
	allowlist.SetAllowListRole(state, config.RegistryAddress, ContractAddress, allowlist.EnabledRole)
	return nil
}
