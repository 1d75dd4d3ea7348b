package utils

import (
	"fmt"
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
)

// HexStringToAddress converts a hex string (with or without the "0x" prefix) to a common.Address. The string must
// encode exactly 20 bytes. Returns the parsed address, or an error if one occurs during conversion.
func HexStringToAddress(s string) (common.Address, error) {
	b, err := HexStringToBytes(s)
	if err != nil {
		return common.Address{}, err
	}
	if len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("address %q has %d bytes, expected %d", s, len(b), common.AddressLength)
	}
	return common.BytesToAddress(b), nil
}

// HexStringToBytes decodes a hex string with or without the "0x" prefix. Surrounding whitespace is ignored.
func HexStringToBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", s, err)
	}
	return b, nil
}
