// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package metadataregistry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/precompileconfig"
)

var _ precompileconfig.Config = &Config{}

// Config implements the precompileconfig.Config interface and adds the
// immutable predecessor reference of this registry generation.
type Config struct {
	allowlist.AllowListConfig
	precompileconfig.Upgrade

	// Predecessor is the previous registry generation consulted for
	// historical queries, or the zero address for a first generation.
	Predecessor common.Address `json:"predecessor,omitempty"`
}

// NewConfig returns a config for a network upgrade at [blockTimestamp] that
// enables MetadataRegistry with [admins] and [enableds] allowed to register,
// chained to [predecessor].
func NewConfig(blockTimestamp *uint64, admins []common.Address, enableds []common.Address, predecessor common.Address) *Config {
	return &Config{
		AllowListConfig: allowlist.AllowListConfig{
			AdminAddresses:   admins,
			EnabledAddresses: enableds,
		},
		Upgrade:     precompileconfig.Upgrade{BlockTimestamp: blockTimestamp},
		Predecessor: predecessor,
	}
}

// NewDisableConfig returns config for a network upgrade at [blockTimestamp]
// that disables MetadataRegistry.
func NewDisableConfig(blockTimestamp *uint64) *Config {
	return &Config{
		Upgrade: precompileconfig.Upgrade{
			BlockTimestamp: blockTimestamp,
			Disable:        true,
		},
	}
}

// Key returns the key for the MetadataRegistry precompileconfig.
func (*Config) Key() string { return ConfigKey }

// Verify tries to verify Config and returns an error accordingly.
func (c *Config) Verify() error {
	if c.Predecessor == ContractAddress {
		return fmt.Errorf("registry cannot be its own predecessor: %s", c.Predecessor)
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
		c.Predecessor == other.Predecessor
}
