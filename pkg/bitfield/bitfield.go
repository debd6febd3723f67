// Package bitfield extracts arbitrary-width bit fields from byte buffers.
//
// Bit numbering is MSB-first: bit 0 is the most significant bit of the
// first byte. Fields are 1-32 bits wide and may cross byte boundaries,
// which is how RAX/SST telemetry blocks pack their parameters.
package bitfield

import "fmt"

// InvalidBitLengthError reports a field width outside 1-32 bits.
type InvalidBitLengthError struct {
	Length int
}

func (e *InvalidBitLengthError) Error() string {
	return fmt.Sprintf("invalid bit length %d, must be 1-32", e.Length)
}

// BoundsError reports a bit range that falls outside the buffer.
type BoundsError struct {
	BitOffset int
	BitLength int
	Bits      int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("bit range [%d,%d) outside buffer of %d bits", e.BitOffset, e.BitOffset+e.BitLength, e.Bits)
}

// ExtractBits returns bitLen bits starting at bitOff as an unsigned value.
func ExtractBits(buf []byte, bitOff, bitLen int) (uint32, error) {
	if bitLen < 1 || bitLen > 32 {
		return 0, &InvalidBitLengthError{Length: bitLen}
	}
	if bitOff < 0 || bitOff+bitLen > len(buf)*8 {
		return 0, &BoundsError{BitOffset: bitOff, BitLength: bitLen, Bits: len(buf) * 8}
	}
	var v uint64
	for i := 0; i < bitLen; i++ {
		pos := bitOff + i
		bit := (buf[pos/8] >> (7 - pos%8)) & 1
		v = v<<1 | uint64(bit)
	}
	return uint32(v), nil
}

// ExtractSignedBits returns bitLen bits starting at bitOff as a
// two's-complement signed value. The top extracted bit is the sign,
// so the minimum width is 2.
func ExtractSignedBits(buf []byte, bitOff, bitLen int) (int32, error) {
	if bitLen < 2 || bitLen > 32 {
		return 0, &InvalidBitLengthError{Length: bitLen}
	}
	raw, err := ExtractBits(buf, bitOff, bitLen)
	if err != nil {
		return 0, err
	}
	if raw&(1<<(bitLen-1)) != 0 && bitLen < 32 {
		return int32(raw) - (1 << bitLen), nil
	}
	return int32(raw), nil
}

// ExtractBitFlag returns the single bit at bitPos as a boolean.
func ExtractBitFlag(buf []byte, bitPos int) (bool, error) {
	v, err := ExtractBits(buf, bitPos, 1)
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// ExtractBitsAt is the byte-addressed form: bitInByte is the bit offset
// within the byte at byteOff and must be in [0,7].
func ExtractBitsAt(buf []byte, byteOff, bitInByte, bitLen int) (uint32, error) {
	if bitInByte < 0 || bitInByte > 7 {
		return 0, fmt.Errorf("bit offset within byte must be 0-7, got %d", bitInByte)
	}
	return ExtractBits(buf, byteOff*8+bitInByte, bitLen)
}
