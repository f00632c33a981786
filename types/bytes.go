package types

import (
	"encoding/hex"
	"fmt"
)

// HexBytes is a []byte which encodes as a 0x prefixed hex string in JSON.
type HexBytes []byte

func (b HexBytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+4)
	enc[0] = '"'
	enc[1] = '0'
	enc[2] = 'x'
	hex.Encode(enc[3:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	data = data[1 : len(data)-1]
	return b.FromString(string(data))
}

// FromString decodes a hex string, with or without the 0x prefix.
func (b *HexBytes) FromString(str string) error {
	if len(str) >= 2 && str[0] == '0' && (str[1] == 'x' || str[1] == 'X') {
		str = str[2:]
	}
	decoded, err := hex.DecodeString(str)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// HexStringToHexBytes converts a hex string to HexBytes.
// It strips a leading '0x' or '0X' if it exists, and panics on a malformed
// string. Meant to be used in tests and constant initializers.
func HexStringToHexBytes(hexString string) HexBytes {
	var b HexBytes
	if err := b.FromString(hexString); err != nil {
		panic(err)
	}
	return b
}
