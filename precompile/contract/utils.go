// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/deployguard/deployguard/vmerrs"
)

// Gas costs for stateful precompiles
const (
	WriteGasCostPerSlot = 20_000
	ReadGasCostPerSlot  = 5_000

	// Gas costs for emitting logs from stateful precompiles
	LogGas      uint64 = 375
	LogTopicGas uint64 = 375
	LogDataGas  uint64 = 8
)

// DeductGas checks if [suppliedGas] is sufficient against [requiredGas] and deducts [requiredGas] from [suppliedGas].
func DeductGas(suppliedGas uint64, requiredGas uint64) (uint64, error) {
	if suppliedGas < requiredGas {
		return 0, vmerrs.ErrOutOfGas
	}
	return suppliedGas - requiredGas, nil
}

// PackOrderedHashes packs the ordered list of [hashes] into the [dst] byte buffer.
func PackOrderedHashes(dst []byte, hashes []common.Hash) error {
	if len(dst) != len(hashes)*common.HashLength {
		return fmt.Errorf("destination byte buffer has insufficient length (%d) for %d hashes", len(dst), len(hashes))
	}

	var (
		start = 0
		end   = common.HashLength
	)
	for _, hash := range hashes {
		copy(dst[start:end], hash.Bytes())
		start += common.HashLength
		end += common.HashLength
	}
	return nil
}

// PackedHash returns packed the byte slice with common.HashLength from [packed]
// at the given [index].
// Assumes that [packed] is composed entirely of packed 32 byte segments.
func PackedHash(packed []byte, index int) []byte {
	start := common.HashLength * index
	end := start + common.HashLength
	return packed[start:end]
}

// ParseABI parses the given ABI string and returns the parsed ABI.
// If the ABI is invalid, it panics.
func ParseABI(rawABI string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		panic(err)
	}

	return parsed
}

// UnpackInput unpacks [input] as the arguments of method [name].
// Assumes that [input] does not include the selector (omits first 4 func signature bytes).
func UnpackInput(parsedABI abi.ABI, name string, input []byte) ([]interface{}, error) {
	method, ok := parsedABI.Methods[name]
	if !ok {
		return nil, fmt.Errorf("method %q does not exist in the ABI", name)
	}
	return method.Inputs.Unpack(input)
}

// PackOutput packs [args] as the return values of method [name] to conform the ABI outputs.
func PackOutput(parsedABI abi.ABI, name string, args ...interface{}) ([]byte, error) {
	method, ok := parsedABI.Methods[name]
	if !ok {
		return nil, fmt.Errorf("method %q does not exist in the ABI", name)
	}
	return method.Outputs.Pack(args...)
}

// NewLog assembles a log record for an event emitted by a precompile.
func NewLog(address common.Address, topics []common.Hash, data []byte, blockNumber uint64) *types.Log {
	return &types.Log{
		Address:     address,
		Topics:      topics,
		Data:        data,
		BlockNumber: blockNumber,
	}
}

// PackEvent returns the topics (event ID first, then [indexed]) and the
// ABI-packed non-indexed [data] of event [name].
func PackEvent(parsedABI abi.ABI, name string, indexed []common.Hash, data ...interface{}) ([]common.Hash, []byte, error) {
	event, ok := parsedABI.Events[name]
	if !ok {
		return nil, nil, fmt.Errorf("event %q does not exist in the ABI", name)
	}
	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, nil, err
	}
	topics := make([]common.Hash, 0, len(indexed)+1)
	topics = append(topics, event.ID)
	topics = append(topics, indexed...)
	return topics, packed, nil
}
