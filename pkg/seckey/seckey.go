// Package seckey implements the seed/key transforms used by the
// security-access handshake. The constants are empirically derived
// from captured handshakes and must not be "simplified": the ECU
// accepts exactly one key per seed.
package seckey

import "fmt"

const (
	// mitsucan multiply-add constants
	canKeyMul = 0x9C35
	canKeyAdd = 0x5A17

	// MUT serial nibble transform
	mutLowXor = 0x05
)

// mutHighNibble is the fixed substitution applied to the high nibble
// of every seed byte on the MUT serial path.
var mutHighNibble = [16]byte{
	0x0D, 0x07, 0x02, 0x0A, 0x05, 0x0F, 0x00, 0x08,
	0x03, 0x0C, 0x06, 0x01, 0x0E, 0x04, 0x0B, 0x09,
}

// SeedLengthError reports a seed that is not exactly two bytes.
type SeedLengthError struct {
	Length int
}

func (e *SeedLengthError) Error() string {
	return fmt.Sprintf("seed must be exactly 2 bytes, got %d", e.Length)
}

// MitsuCANKey computes the CAN security key: the seed is taken as a
// 16-bit big-endian integer, multiplied by a fixed odd constant, the
// addend applied, truncated to 16 bits and split back big-endian.
func MitsuCANKey(seed []byte) ([]byte, error) {
	if len(seed) != 2 {
		return nil, &SeedLengthError{Length: len(seed)}
	}
	s := uint32(seed[0])<<8 | uint32(seed[1])
	k := uint16(s*canKeyMul + canKeyAdd)
	return []byte{byte(k >> 8), byte(k)}, nil
}

// MUTKey computes the serial-path key byte by byte: the high nibble is
// substituted through the fixed table, the low nibble is XORed with a
// fixed constant, and the nibbles are recombined.
func MUTKey(seed []byte) ([]byte, error) {
	if len(seed) != 2 {
		return nil, &SeedLengthError{Length: len(seed)}
	}
	key := make([]byte, 2)
	for i, b := range seed {
		hi := mutHighNibble[b>>4]
		lo := (b & 0x0F) ^ mutLowXor
		key[i] = hi<<4 | lo
	}
	return key, nil
}
