// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package allowlist

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/deployguard/deployguard/precompile/contract"
)

// AllowListConfig specifies the initial set of addresses with Admin or Enabled roles.
type AllowListConfig struct {
	AdminAddresses   []common.Address `json:"adminAddresses,omitempty"`   // initial admin addresses
	EnabledAddresses []common.Address `json:"enabledAddresses,omitempty"` // initial enabled addresses
}

// Configure initializes the address space of [precompileAddr] by assigning
// the role of each configured address.
func (c *AllowListConfig) Configure(state contract.StateDB, precompileAddr common.Address) error {
	for _, enabledAddr := range c.EnabledAddresses {
		SetAllowListRole(state, precompileAddr, enabledAddr, EnabledRole)
	}
	for _, adminAddr := range c.AdminAddresses {
		SetAllowListRole(state, precompileAddr, adminAddr, AdminRole)
	}
	return nil
}

// Equal returns true iff [other] has the same admins in the same order in its allow list.
func (c *AllowListConfig) Equal(other *AllowListConfig) bool {
	if other == nil {
		return false
	}

	return areEqualAddressLists(c.AdminAddresses, other.AdminAddresses) &&
		areEqualAddressLists(c.EnabledAddresses, other.EnabledAddresses)
}

// areEqualAddressLists returns true iff [current] and [other] have the same addresses in the same order.
func areEqualAddressLists(current []common.Address, other []common.Address) bool {
	if len(current) != len(other) {
		return false
	}
	for i, address := range current {
		if address != other[i] {
			return false
		}
	}
	return true
}

// Verify returns an error if an address is repeated within a role or appears
// under both roles.
func (c *AllowListConfig) Verify() error {
	seen := mapset.NewThreadUnsafeSet[common.Address]()

	for _, enabledAddr := range c.EnabledAddresses {
		if !seen.Add(enabledAddr) {
			return fmt.Errorf("duplicate address in enabled list: %s", enabledAddr)
		}
	}

	admins := mapset.NewThreadUnsafeSet[common.Address]()
	for _, adminAddr := range c.AdminAddresses {
		if !admins.Add(adminAddr) {
			return fmt.Errorf("duplicate address in admin list: %s", adminAddr)
		}
		if seen.Contains(adminAddr) {
			return fmt.Errorf("cannot set address as both admin and enabled: %s", adminAddr)
		}
	}

	return nil
}
