// Package kline implements the ISO14230/KWP2000 half-duplex serial
// transport: frame encode/decode with additive checksums, the
// clear-to-send flow-control state machine, and retrying transactions
// over an unreliable link.
package kline

import "fmt"

const (
	// CTS is the single clear-to-send byte the ECU emits when it is
	// ready to accept the next frame's response window.
	CTS = 0x00

	// MaxPayload is the largest payload a single frame can carry.
	MaxPayload = 7
)

// Frame is one decoded K-line frame. It is created on decode, never
// mutated, and discarded after the transaction that read it.
type Frame struct {
	Raw     []byte
	Payload []byte
	Valid   bool
}

// Checksum is the additive mod-256 sum over PCI byte and payload.
func Checksum(pci byte, payload []byte) byte {
	sum := pci
	for _, b := range payload {
		sum += b
	}
	return sum
}

// EncodeFrame wraps a payload as [PCI][payload...][checksum].
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) < 1 || len(payload) > MaxPayload {
		return nil, fmt.Errorf("payload must be 1-%d bytes, got %d", MaxPayload, len(payload))
	}
	raw := make([]byte, 0, len(payload)+2)
	raw = append(raw, byte(len(payload)))
	raw = append(raw, payload...)
	raw = append(raw, Checksum(byte(len(payload)), payload))
	return raw, nil
}

// DecodeFrame parses raw bytes into a Frame. A checksum mismatch is
// reported via Valid, not an error: the decoder never discards frames,
// retry policy belongs to the connection layer.
func DecodeFrame(raw []byte) (*Frame, error) {
	if len(raw) < 3 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(raw))
	}
	pci := raw[0]
	n := int(pci)
	if n < 1 || n > MaxPayload {
		return nil, fmt.Errorf("invalid PCI length %d", n)
	}
	if len(raw) != n+2 {
		return nil, fmt.Errorf("frame length %d does not match PCI length %d", len(raw), n)
	}
	payload := raw[1 : 1+n]
	return &Frame{
		Raw:     raw,
		Payload: payload,
		Valid:   Checksum(pci, payload) == raw[len(raw)-1],
	}, nil
}
