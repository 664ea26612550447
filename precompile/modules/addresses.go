// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// AddressRange represents a continuous range of addresses
type AddressRange struct {
	Start common.Address
	End   common.Address
}

// Contains returns true iff [addr] is contained within the (inclusive) range.
func (a *AddressRange) Contains(addr common.Address) bool {
	addrBytes := addr.Bytes()
	return bytes.Compare(addrBytes, a.Start[:]) >= 0 && bytes.Compare(addrBytes, a.End[:]) <= 0
}

// reservedRanges contains the ranges of addresses reserved for governance
// precompiles. Addresses in these ranges can never hold deployed code.
var reservedRanges = []AddressRange{
	{
		common.HexToAddress("0x0100000000000000000000000000000000000000"),
		common.HexToAddress("0x01000000000000000000000000000000000000ff"),
	},
	{
		common.HexToAddress("0x0200000000000000000000000000000000000000"),
		common.HexToAddress("0x02000000000000000000000000000000000000ff"),
	},
	{
		common.HexToAddress("0x0300000000000000000000000000000000000000"),
		common.HexToAddress("0x03000000000000000000000000000000000000ff"),
	},
}

// ReservedAddress returns true if [addr] is in a reserved range for custom precompiles
func ReservedAddress(addr common.Address) bool {
	for _, reservedRange := range reservedRanges {
		if reservedRange.Contains(addr) {
			return true
		}
	}
	return false
}
