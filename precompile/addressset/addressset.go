// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package addressset implements an iterable address set over contract storage
// slots. Members form a single linked cycle rooted at the sentinel address;
// membership of an address is equivalent to its next-pointer being non-zero.
//
// The slot layout is part of the public contract of every set instance: the
// execution layer reads next-pointers by computed key, so neither the key
// derivation nor the sentinel value may change across versions.
package addressset

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/deployguard/deployguard/constants"
	"github.com/deployguard/deployguard/precompile/contract"
)

var (
	ErrZeroAddress      = errors.New("zero address cannot be a set member")
	ErrSentinelAddress  = errors.New("sentinel address cannot be a set member")
	ErrSelfAddress      = errors.New("the containing contract cannot be a set member")
	ErrAddressExists    = errors.New("address already in set")
	ErrAddressNotExists = errors.New("address not in set")
	ErrWrongPredecessor = errors.New("predecessor does not precede address")
)

// elementKey derives the storage slot holding the next-pointer of [addr] for
// the set identified by [setID] within its container contract.
func elementKey(setID byte, addr common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte{setID}, addr.Bytes())
}

func getNext(state contract.StateReader, container common.Address, setID byte, addr common.Address) common.Address {
	return common.BytesToAddress(state.GetState(container, elementKey(setID, addr)).Bytes())
}

func setNext(state contract.StateDB, container common.Address, setID byte, addr common.Address, next common.Address) {
	state.SetState(container, elementKey(setID, addr), common.BytesToHash(next.Bytes()))
}

// head returns the first member of the set. The sentinel's self-loop is
// materialized lazily: a zero anchor slot reads as the sentinel itself.
func head(state contract.StateReader, container common.Address, setID byte) common.Address {
	next := getNext(state, container, setID, constants.SentinelAddr)
	if next == (common.Address{}) {
		return constants.SentinelAddr
	}
	return next
}

// Contains returns true iff [addr] is a member of the set.
func Contains(state contract.StateReader, container common.Address, setID byte, addr common.Address) bool {
	return getNext(state, container, setID, addr) != (common.Address{})
}

// Add links [addr] as the new first member of the set, so iteration yields
// members in reverse insertion order. It rejects the zero address, the
// sentinel, the container's own address and duplicates, touching no state on
// failure.
func Add(state contract.StateDB, container common.Address, setID byte, addr common.Address) error {
	switch {
	case addr == (common.Address{}):
		return ErrZeroAddress
	case addr == constants.SentinelAddr:
		return ErrSentinelAddress
	case addr == container:
		return ErrSelfAddress
	case Contains(state, container, setID, addr):
		return ErrAddressExists
	}

	setNext(state, container, setID, addr, head(state, container, setID))
	setNext(state, container, setID, constants.SentinelAddr, addr)
	return nil
}

// Remove unlinks [addr] from the set. [knownPrev] names the member (or
// sentinel) whose next-pointer is [addr]; passing the zero address makes
// Remove scan from the sentinel, at a cost linear in the set size. It rejects
// the zero address, the sentinel, non-members and a wrong predecessor,
// touching no state on failure.
func Remove(state contract.StateDB, container common.Address, setID byte, addr common.Address, knownPrev common.Address) error {
	switch {
	case addr == (common.Address{}):
		return ErrZeroAddress
	case addr == constants.SentinelAddr:
		return ErrSentinelAddress
	case !Contains(state, container, setID, addr):
		return ErrAddressNotExists
	}

	if knownPrev == (common.Address{}) {
		knownPrev = constants.SentinelAddr
		for getNext(state, container, setID, knownPrev) != addr {
			knownPrev = getNext(state, container, setID, knownPrev)
		}
	} else if getNext(state, container, setID, knownPrev) != addr {
		return ErrWrongPredecessor
	}

	setNext(state, container, setID, knownPrev, getNext(state, container, setID, addr))
	setNext(state, container, setID, addr, common.Address{})
	return nil
}

// Paginate returns exactly [howMany] members starting after [cursor], with
// unfilled trailing slots left as the zero address. A zero cursor starts at
// the sentinel. Its cost depends only on [howMany], never on the set size,
// which makes it the safe read for externally consumed large sets.
func Paginate(state contract.StateReader, container common.Address, setID byte, cursor common.Address, howMany uint64) []common.Address {
	page := make([]common.Address, howMany)
	if cursor == (common.Address{}) {
		cursor = constants.SentinelAddr
	}

	for i := uint64(0); i < howMany; i++ {
		next := getNext(state, container, setID, cursor)
		if next == (common.Address{}) || next == constants.SentinelAddr {
			break
		}
		page[i] = next
		cursor = next
	}
	return page
}

// Len walks the whole set and returns the number of members. Reads scale with
// the set size; on-chain consumers should prefer Paginate.
func Len(state contract.StateReader, container common.Address, setID byte) uint64 {
	count := uint64(0)
	for cur := head(state, container, setID); cur != constants.SentinelAddr && cur != (common.Address{}); cur = getNext(state, container, setID, cur) {
		count++
	}
	return count
}
