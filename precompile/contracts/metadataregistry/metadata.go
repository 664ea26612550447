// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package metadataregistry

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/deployguard/deployguard/precompile/contract"
)

// Metadata is the provenance record of one created contract. Records are
// written exactly once and never mutated or deleted.
type Metadata struct {
	Created common.Address
	Creator common.Address
	Tag     string
}

const (
	// maxChainDepth bounds predecessor chain reads. A registry chained deeper
	// than this fails loudly instead of recursing without bound.
	maxChainDepth = 8

	// MaxTagLen bounds the stored tag.
	MaxTagLen = 1024

	tagChunkSize = common.HashLength
)

// Storage slot prefixes of the registry layout. The layout is read by
// computed key from successor registries and from the deployment factory, so
// it is frozen across versions.
const (
	createdSlotPrefix byte = 0x10
	creatorSlotPrefix byte = 0x11
	tagLenSlotPrefix  byte = 0x12
	tagDataSlotPrefix byte = 0x13
	indexSlotPrefix   byte = 0x14
)

var (
	countKey       = common.Hash{'m', 'r', 'c'}
	predecessorKey = common.Hash{'m', 'r', 'p'}

	ErrAlreadyRegistered = errors.New("address already registered")
	ErrNotFound          = errors.New("no metadata registered for address")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrTagTooLong        = errors.New("tag exceeds maximum length")
	ErrChainTooDeep      = errors.New("predecessor chain exceeds maximum depth")
)

func indexHash(i uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(i))
}

func entryKey(prefix byte, i uint64) common.Hash {
	return crypto.Keccak256Hash([]byte{prefix}, indexHash(i).Bytes())
}

func tagChunkKey(i uint64, chunk uint64) common.Hash {
	return crypto.Keccak256Hash([]byte{tagDataSlotPrefix}, indexHash(i).Bytes(), indexHash(chunk).Bytes())
}

func addressIndexKey(addr common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte{indexSlotPrefix}, addr.Bytes())
}

// GetLocalCount returns the number of records held by [registry] itself,
// excluding any predecessor.
func GetLocalCount(state contract.StateReader, registry common.Address) uint64 {
	return state.GetState(registry, countKey).Big().Uint64()
}

func setLocalCount(state contract.StateDB, registry common.Address, count uint64) {
	state.SetState(registry, countKey, indexHash(count))
}

// GetPredecessor returns the predecessor registry of [registry], or the zero
// address if it has none.
func GetPredecessor(state contract.StateReader, registry common.Address) common.Address {
	return common.BytesToAddress(state.GetState(registry, predecessorKey).Bytes())
}

// StorePredecessor fixes the predecessor reference of [registry]. Set once at
// configuration time.
func StorePredecessor(state contract.StateDB, registry common.Address, predecessor common.Address) {
	state.SetState(registry, predecessorKey, common.BytesToHash(predecessor.Bytes()))
}

// getLocalIndex returns the local record index of [created], if present.
// Indexes are stored shifted by one so that the zero slot value means absent.
func getLocalIndex(state contract.StateReader, registry common.Address, created common.Address) (uint64, bool) {
	stored := state.GetState(registry, addressIndexKey(created)).Big().Uint64()
	if stored == 0 {
		return 0, false
	}
	return stored - 1, true
}

func readTag(state contract.StateReader, registry common.Address, i uint64) string {
	length := state.GetState(registry, entryKey(tagLenSlotPrefix, i)).Big().Uint64()
	if length == 0 {
		return ""
	}
	tag := make([]byte, 0, length)
	for chunk := uint64(0); chunk*tagChunkSize < length; chunk++ {
		data := state.GetState(registry, tagChunkKey(i, chunk)).Bytes()
		remaining := length - chunk*tagChunkSize
		if remaining < tagChunkSize {
			data = data[:remaining]
		}
		tag = append(tag, data...)
	}
	return string(tag)
}

func writeTag(state contract.StateDB, registry common.Address, i uint64, tag string) {
	state.SetState(registry, entryKey(tagLenSlotPrefix, i), indexHash(uint64(len(tag))))
	raw := []byte(tag)
	for chunk := uint64(0); chunk*tagChunkSize < uint64(len(raw)); chunk++ {
		var slot [tagChunkSize]byte
		copy(slot[:], raw[chunk*tagChunkSize:])
		state.SetState(registry, tagChunkKey(i, chunk), common.BytesToHash(slot[:]))
	}
}

// readLocalEntry returns the record at local index [i] of [registry].
// Assumes i < GetLocalCount.
func readLocalEntry(state contract.StateReader, registry common.Address, i uint64) Metadata {
	return Metadata{
		Created: common.BytesToAddress(state.GetState(registry, entryKey(createdSlotPrefix, i)).Bytes()),
		Creator: common.BytesToAddress(state.GetState(registry, entryKey(creatorSlotPrefix, i)).Bytes()),
		Tag:     readTag(state, registry, i),
	}
}

// registryChain returns the generations of [registry] ordered oldest first.
func registryChain(state contract.StateReader, registry common.Address) ([]common.Address, error) {
	chain := make([]common.Address, 0, 1)
	for current := registry; current != (common.Address{}); current = GetPredecessor(state, current) {
		if uint64(len(chain)) >= maxChainDepth {
			return nil, ErrChainTooDeep
		}
		chain = append(chain, current)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// LookupMetadata finds the record of [created] in [registry] or its
// predecessor chain.
func LookupMetadata(state contract.StateReader, registry common.Address, created common.Address) (Metadata, error) {
	depth := 0
	for current := registry; current != (common.Address{}); current = GetPredecessor(state, current) {
		if depth >= maxChainDepth {
			return Metadata{}, ErrChainTooDeep
		}
		depth++
		if i, ok := getLocalIndex(state, current, created); ok {
			return readLocalEntry(state, current, i), nil
		}
	}
	return Metadata{}, ErrNotFound
}

// TotalCountIncludingHistory returns the record count of [registry] plus all
// of its predecessors.
func TotalCountIncludingHistory(state contract.StateReader, registry common.Address) (uint64, error) {
	chain, err := registryChain(state, registry)
	if err != nil {
		return 0, err
	}
	total := uint64(0)
	for _, generation := range chain {
		total += GetLocalCount(state, generation)
	}
	return total, nil
}

// GetByMergedIndex resolves [index] over the merged index space: predecessor
// records come first (oldest generation at index zero), local records last.
func GetByMergedIndex(state contract.StateReader, registry common.Address, index uint64) (Metadata, error) {
	chain, err := registryChain(state, registry)
	if err != nil {
		return Metadata{}, err
	}
	for _, generation := range chain {
		count := GetLocalCount(state, generation)
		if index < count {
			return readLocalEntry(state, generation, index), nil
		}
		index -= count
	}
	return Metadata{}, ErrIndexOutOfRange
}

// RegisterMetadata appends a record for [created] to [registry]. It fails if
// [created] is already recorded anywhere in the predecessor chain; on failure
// nothing is written.
func RegisterMetadata(state contract.StateDB, registry common.Address, created common.Address, creator common.Address, tag string) error {
	if len(tag) > MaxTagLen {
		return ErrTagTooLong
	}
	switch _, err := LookupMetadata(state, registry, created); {
	case err == nil:
		return ErrAlreadyRegistered
	case !errors.Is(err, ErrNotFound):
		return err
	}

	i := GetLocalCount(state, registry)
	state.SetState(registry, entryKey(createdSlotPrefix, i), common.BytesToHash(created.Bytes()))
	state.SetState(registry, entryKey(creatorSlotPrefix, i), common.BytesToHash(creator.Bytes()))
	writeTag(state, registry, i, tag)
	state.SetState(registry, addressIndexKey(created), indexHash(i+1))
	setLocalCount(state, registry, i+1)
	return nil
}
