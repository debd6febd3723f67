package bincodec

import "fmt"

// BoundsError reports a read or write that would fall outside the buffer.
type BoundsError struct {
	Offset int
	Width  int
	Size   int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("offset %d width %d outside buffer of %d bytes", e.Offset, e.Width, e.Size)
}

// UnknownTypeError reports an unrecognized scalar type.
type UnknownTypeError struct {
	Type ScalarType
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown scalar type %d", uint8(e.Type))
}
