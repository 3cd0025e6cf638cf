package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseHash parses a 32-byte digest in 0x-prefixed hex form. Unlike
// common.HexToHash it rejects malformed or truncated input instead of
// silently zero-padding it.
func ParseHash(s string) (common.Hash, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid digest %q: want %d bytes, got %d", s, common.HashLength, len(raw))
	}
	return common.BytesToHash(raw), nil
}

// ParseAddress parses a 20-byte account address in 0x-prefixed hex form.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// NormalizeHex lower-cases a 0x-prefixed hex string so database keys compare
// consistently regardless of caller casing.
func NormalizeHex(s string) string {
	return strings.ToLower(s)
}
