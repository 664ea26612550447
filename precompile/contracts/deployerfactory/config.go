// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package deployerfactory

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/precompileconfig"
)

var _ precompileconfig.Config = &Config{}

// Config implements the precompileconfig.Config interface and adds the
// immutable registry reference of the factory. Admins of the allow list
// govern the creator set; EnabledRole addresses may create contracts.
type Config struct {
	allowlist.AllowListConfig
	precompileconfig.Upgrade

	// RegistryAddress is the metadata registry every creation is recorded in.
	RegistryAddress common.Address `json:"registryAddress"`
}

// NewConfig returns a config for a network upgrade at [blockTimestamp] that
// enables DeployerFactory with [admins] governing and [enableds] allowed to
// create, recording into [registry].
func NewConfig(blockTimestamp *uint64, admins []common.Address, enableds []common.Address, registry common.Address) *Config {
	return &Config{
		AllowListConfig: allowlist.AllowListConfig{
			AdminAddresses:   admins,
			EnabledAddresses: enableds,
		},
		Upgrade:         precompileconfig.Upgrade{BlockTimestamp: blockTimestamp},
		RegistryAddress: registry,
	}
}

// NewDisableConfig returns config for a network upgrade at [blockTimestamp]
// that disables DeployerFactory.
func NewDisableConfig(blockTimestamp *uint64) *Config {
	return &Config{
		Upgrade: precompileconfig.Upgrade{
			BlockTimestamp: blockTimestamp,
			Disable:        true,
		},
	}
}

// Key returns the key for the DeployerFactory precompileconfig.
func (*Config) Key() string { return ConfigKey }

// Verify tries to verify Config and returns an error accordingly.
func (c *Config) Verify() error {
	if c.RegistryAddress == (common.Address{}) {
		return fmt.Errorf("registry address cannot be empty")
	}
	if c.RegistryAddress == ContractAddress {
		return fmt.Errorf("factory cannot be its own registry: %s", c.RegistryAddress)
	}
	return c.AllowListConfig.Verify()
}

// Equal returns true if [cfg] is a [*Config] and it has been configured identical to [c].
func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := (cfg).(*Config)
	if !ok {
		return false
	}
	return c.Upgrade.Equal(&other.Upgrade) &&
		c.AllowListConfig.Equal(&other.AllowListConfig) &&
		c.RegistryAddress == other.RegistryAddress
}
