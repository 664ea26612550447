// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

// NewUint64 returns a pointer to a uint64
func NewUint64(val uint64) *uint64 { return &val }

// Uint64PtrEqual returns true if x and y pointers are equivalent ie. both nil or both
// contain the same value.
func Uint64PtrEqual(x, y *uint64) bool {
	if x == nil || y == nil {
		return x == y
	}
	return *x == *y
}
