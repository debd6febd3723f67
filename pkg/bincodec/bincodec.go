// Package bincodec reads and writes fixed-width scalars in calibration
// ROM images. Values on the wire are raw integers or IEEE-754 singles;
// the physical value is raw*scale+offset per the table definition.
package bincodec

import (
	"encoding/binary"
	"math"
)

type ScalarType uint8

const (
	U8 ScalarType = iota
	I8
	U16
	I16
	U32
	I32
	F32
)

func (t ScalarType) String() string {
	switch t {
	case U8:
		return "uint8"
	case I8:
		return "int8"
	case U16:
		return "uint16"
	case I16:
		return "int16"
	case U32:
		return "uint32"
	case I32:
		return "int32"
	case F32:
		return "float32"
	}
	return "unknown"
}

// Width returns the encoded size in bytes, or 0 for an unknown type.
func (t ScalarType) Width() int {
	switch t {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32, F32:
		return 4
	}
	return 0
}

type Endianness uint8

const (
	Little Endianness = iota
	Big
)

func (e Endianness) String() string {
	if e == Big {
		return "big"
	}
	return "little"
}

func (e Endianness) order() binary.ByteOrder {
	if e == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DecodeScalar reads one raw scalar at the given byte offset. Integer
// types use two's-complement semantics, F32 is an IEEE-754 single.
func DecodeScalar(buf []byte, off int, typ ScalarType, end Endianness) (float64, error) {
	width := typ.Width()
	if width == 0 {
		return 0, &UnknownTypeError{Type: typ}
	}
	if off < 0 || off+width > len(buf) {
		return 0, &BoundsError{Offset: off, Width: width, Size: len(buf)}
	}
	ord := end.order()
	switch typ {
	case U8:
		return float64(buf[off]), nil
	case I8:
		return float64(int8(buf[off])), nil
	case U16:
		return float64(ord.Uint16(buf[off : off+2])), nil
	case I16:
		return float64(int16(ord.Uint16(buf[off : off+2]))), nil
	case U32:
		return float64(ord.Uint32(buf[off : off+4])), nil
	case I32:
		return float64(int32(ord.Uint32(buf[off : off+4]))), nil
	case F32:
		return float64(math.Float32frombits(ord.Uint32(buf[off : off+4]))), nil
	}
	return 0, &UnknownTypeError{Type: typ}
}

// EncodeScalar converts a physical value back to its raw representation
// and writes it in place. raw = round((physical-offset)/scale), clamped
// to the representable range of the type so a calibration edit can never
// wrap around into an adjacent field. F32 is written unclamped.
func EncodeScalar(buf []byte, off int, typ ScalarType, end Endianness, physical, scale, offset float64) error {
	width := typ.Width()
	if width == 0 {
		return &UnknownTypeError{Type: typ}
	}
	if off < 0 || off+width > len(buf) {
		return &BoundsError{Offset: off, Width: width, Size: len(buf)}
	}
	if scale == 0 {
		scale = 1
	}
	ord := end.order()

	if typ == F32 {
		raw := (physical - offset) / scale
		ord.PutUint32(buf[off:off+4], math.Float32bits(float32(raw)))
		return nil
	}

	raw := math.Round((physical - offset) / scale)
	lo, hi := typ.rawRange()
	if raw < lo {
		raw = lo
	}
	if raw > hi {
		raw = hi
	}

	switch typ {
	case U8:
		buf[off] = byte(uint8(raw))
	case I8:
		buf[off] = byte(int8(raw))
	case U16:
		ord.PutUint16(buf[off:off+2], uint16(raw))
	case I16:
		ord.PutUint16(buf[off:off+2], uint16(int16(raw)))
	case U32:
		ord.PutUint32(buf[off:off+4], uint32(raw))
	case I32:
		ord.PutUint32(buf[off:off+4], uint32(int32(raw)))
	}
	return nil
}

func (t ScalarType) rawRange() (lo, hi float64) {
	switch t {
	case U8:
		return 0, math.MaxUint8
	case I8:
		return math.MinInt8, math.MaxInt8
	case U16:
		return 0, math.MaxUint16
	case I16:
		return math.MinInt16, math.MaxInt16
	case U32:
		return 0, math.MaxUint32
	case I32:
		return math.MinInt32, math.MaxInt32
	}
	return 0, 0
}
