// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package accesspolicy

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/deployguard/deployguard/constants"
	"github.com/deployguard/deployguard/precompile/addressset"
	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/contract"
	"github.com/deployguard/deployguard/precompile/precompileconfig"
)

var _ precompileconfig.Config = &Config{}

// Config implements the precompileconfig.Config interface and adds the
// initial membership of both policy sets.
type Config struct {
	allowlist.AllowListConfig
	precompileconfig.Upgrade

	InitialCreateAllowed []common.Address `json:"initialCreateAllowed,omitempty"`
	InitialCallDenied    []common.Address `json:"initialCallDenied,omitempty"`
}

// NewConfig returns a config for a network upgrade at [blockTimestamp] that
// enables AccessPolicy with [admins] and [enableds] as members of the manager
// allow list.
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
// that disables AccessPolicy.
func NewDisableConfig(blockTimestamp *uint64) *Config {
	return &Config{
		Upgrade: precompileconfig.Upgrade{
			BlockTimestamp: blockTimestamp,
			Disable:        true,
		},
	}
}

// Key returns the key for the AccessPolicy precompileconfig.
func (*Config) Key() string { return ConfigKey }

// Verify tries to verify Config and returns an error accordingly.
func (c *Config) Verify() error {
	if err := verifyInitialMembers(c.InitialCreateAllowed); err != nil {
		return fmt.Errorf("invalid initial create-allowed set: %w", err)
	}
	if err := verifyInitialMembers(c.InitialCallDenied); err != nil {
		return fmt.Errorf("invalid initial call-denied set: %w", err)
	}
	return c.AllowListConfig.Verify()
}

// Equal returns true if [cfg] is a [*Config] and it has been configured identical to [c].
func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := (cfg).(*Config)
	if !ok {
		return false
	}
	if !c.Upgrade.Equal(&other.Upgrade) || !c.AllowListConfig.Equal(&other.AllowListConfig) {
		return false
	}
	return equalAddressSlices(c.InitialCreateAllowed, other.InitialCreateAllowed) &&
		equalAddressSlices(c.InitialCallDenied, other.InitialCallDenied)
}

func equalAddressSlices(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// verifyInitialMembers rejects members that Add would reject at runtime.
func verifyInitialMembers(members []common.Address) error {
	seen := mapset.NewThreadUnsafeSet[common.Address]()
	for _, addr := range members {
		switch addr {
		case (common.Address{}):
			return addressset.ErrZeroAddress
		case constants.SentinelAddr:
			return addressset.ErrSentinelAddress
		case ContractAddress:
			return addressset.ErrSelfAddress
		}
		if !seen.Add(addr) {
			return fmt.Errorf("%w: %s", addressset.ErrAddressExists, addr)
		}
	}
	return nil
}

// addressSetAdd seeds one member during Configure.
func addressSetAdd(state contract.StateDB, setID byte, addr common.Address) error {
	return addressset.Add(state, ContractAddress, setID, addr)
}
