// Package rax decodes the proprietary RAX/SST telemetry blocks: fixed
// size byte blocks read out of ECU RAM that pack several live
// parameters as bit fields. Block definitions are static and never
// mutated after process start.
package rax

import (
	"fmt"

	"github.com/hirotools/mutlog/pkg/bitfield"
)

// Param is one named bit field inside a block. Min/Max document the
// expected physical range; the decoder reports what the hardware sent
// even when it falls outside.
type Param struct {
	Name      string
	BitOffset int
	BitLength int
	Signed    bool
	Scale     float64
	Offset    float64
	Unit      string
	Min       float64
	Max       float64
}

// Block is one fixed-size telemetry block. RequestAddress is the RAM
// address loaded into the ECU's read pointer before the block is
// streamed out.
type Block struct {
	ID             int
	Name           string
	RequestAddress uint32
	Size           int
	Params         []Param
}

// Sample is one decoded parameter value.
type Sample struct {
	PID   int
	Name  string
	Value float64
	Unit  string
}

// BlockSizeError reports a buffer smaller than the block's declared size.
type BlockSizeError struct {
	Block string
	Want  int
	Got   int
}

func (e *BlockSizeError) Error() string {
	return fmt.Sprintf("block %s: buffer %d bytes, need %d", e.Block, e.Got, e.Want)
}

// DecodeBlock decodes every parameter of a block in one pass.
func DecodeBlock(def *Block, buf []byte) ([]Sample, error) {
	if len(buf) < def.Size {
		return nil, &BlockSizeError{Block: def.Name, Want: def.Size, Got: len(buf)}
	}
	samples := make([]Sample, 0, len(def.Params))
	for i, p := range def.Params {
		var raw float64
		if p.Signed {
			v, err := bitfield.ExtractSignedBits(buf, p.BitOffset, p.BitLength)
			if err != nil {
				return nil, fmt.Errorf("block %s param %s: %w", def.Name, p.Name, err)
			}
			raw = float64(v)
		} else {
			v, err := bitfield.ExtractBits(buf, p.BitOffset, p.BitLength)
			if err != nil {
				return nil, fmt.Errorf("block %s param %s: %w", def.Name, p.Name, err)
			}
			raw = float64(v)
		}
		scale := p.Scale
		if scale == 0 {
			scale = 1
		}
		samples = append(samples, Sample{
			PID:   SyntheticPID(def.ID, i),
			Name:  p.Name,
			Value: raw*scale + p.Offset,
			Unit:  p.Unit,
		})
	}
	return samples, nil
}

// DecodeBlockSet decodes a batch of block buffers keyed by block ID.
func DecodeBlockSet(bufs map[int][]byte) (map[int][]Sample, error) {
	out := make(map[int][]Sample, len(bufs))
	for id, buf := range bufs {
		def := BlockByID(id)
		if def == nil {
			return nil, fmt.Errorf("unknown block id %d", id)
		}
		samples, err := DecodeBlock(def, buf)
		if err != nil {
			return nil, err
		}
		out[id] = samples
	}
	return out, nil
}
