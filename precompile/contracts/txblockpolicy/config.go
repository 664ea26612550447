// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package txblockpolicy

import (
	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/precompileconfig"

	"github.com/ethereum/go-ethereum/common"
)

var _ precompileconfig.Config = &Config{}

// Config implements the precompileconfig.Config interface and adds the
// initial block-all flag.
type Config struct {
	allowlist.AllowListConfig
	precompileconfig.Upgrade

	InitialBlockAll bool `json:"initialBlockAll,omitempty"`
}

// NewConfig returns a config for a network upgrade at [blockTimestamp] that
// enables TxBlockPolicy with [admins] and [enableds] as members of the
// manager allow list.
func NewConfig(blockTimestamp *uint64, admins []common.Address, enableds []common.Address) *Config {
	return &Config{
		AllowListConfig: allowlist.AllowListConfig{
			AdminAddresses:   admins,
			EnabledAddresses: enableds,
		},
		Upgrade: precompileconfig.Upgrade{BlockTimestamp: blockTimestamp},
	}
}

// NewDisableConfig returns config for a network upgrade at [blockTimestamp]
// that disables TxBlockPolicy.
func NewDisableConfig(blockTimestamp *uint64) *Config {
	return &Config{
		Upgrade: precompileconfig.Upgrade{
			BlockTimestamp: blockTimestamp,
			Disable:        true,
		},
	}
}

// Key returns the key for the TxBlockPolicy precompileconfig.
func (*Config) Key() string { return ConfigKey }

// Verify tries to verify Config and returns an error accordingly.
func (c *Config) Verify() error {
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
		c.InitialBlockAll == other.InitialBlockAll
}
