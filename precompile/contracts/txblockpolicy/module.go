// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package txblockpolicy

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/deployguard/deployguard/precompile/contract"
	"github.com/deployguard/deployguard/precompile/modules"
	"github.com/deployguard/deployguard/precompile/precompileconfig"
)

var _ contract.Configurator = &configurator{}

// ConfigKey is the key used in json config files to specify this precompile config.
// must be unique across all precompiles.
const ConfigKey = "txBlockPolicyConfig"

var ContractAddress = common.HexToAddress("0x0300000000000000000000000000000000000002")

var Module = modules.Module{
	ConfigKey:    ConfigKey,
	Address:      ContractAddress,
	Contract:     TxBlockPolicyPrecompile,
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

// Configure configures [state] with the given [cfg] precompileconfig.
func (*configurator) Configure(state contract.StateDB, cfg precompileconfig.Config, _ contract.BlockContext) error {
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("incorrect config %T: %v", cfg, cfg)
	}
	if err := config.AllowListConfig.Configure(state, ContractAddress); err != nil {
		return err
	}
	StoreBlockedAll(state, config.InitialBlockAll)
	return nil
}
