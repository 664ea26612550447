// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package constants

import "github.com/ethereum/go-ethereum/common"

var (
	// BlackholeAddr is the address where burned funds are sent. Nothing can
	// ever spend from this address.
	BlackholeAddr = common.Address{
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}

	// SentinelAddr anchors and terminates every linked address set. It can
	// never be a member of a set and its slot position is part of the
	// persisted layout read by the execution layer.
	SentinelAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")
)
