// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package allowlist

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// NoRole is the default role of any address on an allow list.
	NoRole = Role(common.BigToHash(common.Big0))
	// EnabledRole may use the gated functionality of the contract the list
	// belongs to, but may not modify the list itself.
	EnabledRole = Role(common.BigToHash(common.Big1))
	// AdminRole governs membership: it may grant and revoke both EnabledRole
	// and AdminRole, in addition to everything EnabledRole may do.
	AdminRole = Role(common.BigToHash(common.Big2))

	ErrInvalidRole = errors.New("invalid role")
)

// Role is stored as a full storage slot value so that the role space can be
// extended without repacking existing slots.
type Role common.Hash

// IsNoRole returns true if [r] indicates no specific role.
func (r Role) IsNoRole() bool {
	return r == NoRole
}

// IsAdmin returns true if [r] indicates the admin role.
func (r Role) IsAdmin() bool {
	return r == AdminRole
}

// IsEnabled returns true if [r] is a role that may use gated functionality.
func (r Role) IsEnabled() bool {
	return r == AdminRole || r == EnabledRole
}

// Bytes returns the 32 byte representation of the role.
func (r Role) Bytes() []byte {
	hash := common.Hash(r)
	return hash.Bytes()
}

// Big returns the role as a big integer, which is how the role is exposed
// through readAllowList.
func (r Role) Big() *big.Int {
	hash := common.Hash(r)
	return hash.Big()
}

// Hash returns the role as a storage slot value.
func (r Role) Hash() common.Hash {
	return common.Hash(r)
}

func (r Role) String() string {
	switch r {
	case NoRole:
		return "NoRole"
	case EnabledRole:
		return "EnabledRole"
	case AdminRole:
		return "AdminRole"
	default:
		return "UnknownRole"
	}
}
