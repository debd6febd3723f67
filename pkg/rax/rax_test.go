package rax_test

import (
	"errors"
	"testing"

	"github.com/hirotools/mutlog/pkg/rax"
)

func raxBuffer() []byte {
	buf := make([]byte, 16)
	// RPM = 3000
	buf[0], buf[1] = 0x0B, 0xB8
	// Load raw = 320 -> 100%
	buf[2], buf[3] = 0x01, 0x40
	// TimingAdv = -5
	buf[4] = 0xFB
	// KnockSum = 3
	buf[5] = 3
	// AFRMap raw 72 -> 7.2 + 7.5 = 14.7
	buf[6] = 72
	// CoolantTemp raw 130 -> 90 C
	buf[7] = 130
	// Boost raw -150 -> -1.5 psi
	buf[8], buf[9] = 0xFF, 0x6A
	// WGDC raw 90 -> 45%
	buf[10] = 90
	// bit 88 = ClosedLoop flag set; bits 89..100 = MAFHz raw 0x400 = 1024
	// byte 11 = 1(flag) 0100000(0x400>>5), byte 12 top 5 bits = 00000
	buf[11] = 0xA0 // 1010 0000: flag=1, then 010 0000
	buf[12] = 0x00
	// IAT raw 65 -> 25 C
	buf[13] = 65
	// BattVolt raw 191 -> ~14.0 V
	buf[14] = 191
	return buf
}

func TestDecodeBlockRAX(t *testing.T) {
	samples, err := rax.DecodeBlock(rax.Blocks[0], raxBuffer())
	if err != nil {
		t.Fatalf("DecodeBlock() failed: %v", err)
	}
	byName := make(map[string]rax.Sample, len(samples))
	for _, s := range samples {
		byName[s.Name] = s
	}

	tests := []struct {
		name string
		want float64
	}{
		{name: "RPM", want: 3000},
		{name: "Load", want: 100},
		{name: "TimingAdv", want: -5},
		{name: "KnockSum", want: 3},
		{name: "AFRMap", want: 14.7},
		{name: "CoolantTemp", want: 90},
		{name: "Boost", want: -1.5},
		{name: "WGDC", want: 45},
		{name: "ClosedLoop", want: 1},
		{name: "MAFHz", want: 1600},
		{name: "IAT", want: 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, found := byName[tt.name]
			if !found {
				t.Fatalf("parameter %s missing from decoded set", tt.name)
			}
			if diff := s.Value - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("%s = %v, want %v", tt.name, s.Value, tt.want)
			}
		})
	}
}

func TestDecodeBlockShortBuffer(t *testing.T) {
	_, err := rax.DecodeBlock(rax.Blocks[0], make([]byte, 4))
	var se *rax.BlockSizeError
	if !errors.As(err, &se) {
		t.Fatalf("DecodeBlock() error = %v, want BlockSizeError", err)
	}
}

func TestDecodeBlockReportsOutOfRangeRaw(t *testing.T) {
	buf := make([]byte, 16)
	buf[0], buf[1] = 0xFF, 0xFF // RPM raw 65535, above declared max
	samples, err := rax.DecodeBlock(rax.Blocks[0], buf)
	if err != nil {
		t.Fatalf("DecodeBlock() failed: %v", err)
	}
	if samples[0].Value != 65535 {
		t.Errorf("RPM = %v, want the raw 65535 reported as sent", samples[0].Value)
	}
}

func TestDecodeBlockSet(t *testing.T) {
	bufs := map[int][]byte{
		0: raxBuffer(),
		1: make([]byte, 12),
	}
	out, err := rax.DecodeBlockSet(bufs)
	if err != nil {
		t.Fatalf("DecodeBlockSet() failed: %v", err)
	}
	if len(out[0]) != len(rax.Blocks[0].Params) {
		t.Errorf("block 0 decoded %d params, want %d", len(out[0]), len(rax.Blocks[0].Params))
	}
	if len(out[1]) != len(rax.Blocks[1].Params) {
		t.Errorf("block 1 decoded %d params, want %d", len(out[1]), len(rax.Blocks[1].Params))
	}

	if _, err := rax.DecodeBlockSet(map[int][]byte{99: {}}); err == nil {
		t.Error("DecodeBlockSet() with unknown id succeeded unexpectedly")
	}
}

func TestSyntheticPIDRoundTrip(t *testing.T) {
	for bi, b := range rax.Blocks {
		for pi := range b.Params {
			pid := rax.SyntheticPID(bi, pi)
			gotBlock, gotParam, ok := rax.SplitPID(pid)
			if !ok {
				t.Fatalf("SplitPID(%d) not ok", pid)
			}
			if gotBlock != bi || gotParam != pi {
				t.Errorf("SplitPID(%d) = (%d,%d), want (%d,%d)", pid, gotBlock, gotParam, bi, pi)
			}
		}
	}
}

func TestSplitPIDInvalid(t *testing.T) {
	tests := []struct {
		name string
		pid  int
	}{
		{name: "below base", pid: rax.PIDBase - 1},
		{name: "standard obd pid", pid: 0x0C},
		{name: "block out of range", pid: rax.PIDBase + 100*len(rax.Blocks)},
		{name: "param out of range", pid: rax.SyntheticPID(0, len(rax.Blocks[0].Params))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, ok := rax.SplitPID(tt.pid); ok {
				t.Errorf("SplitPID(%d) ok, want invalid", tt.pid)
			}
		})
	}
}

func TestBlocksForPIDs(t *testing.T) {
	blocks, unknown := rax.BlocksForPIDs([]int{
		rax.SyntheticPID(0, 0),
		rax.SyntheticPID(0, 3),
		rax.SyntheticPID(1, 2),
		12345,
	})
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].ID != 0 || blocks[1].ID != 1 {
		t.Errorf("blocks = %d,%d, want registry order 0,1", blocks[0].ID, blocks[1].ID)
	}
	if len(unknown) != 1 || unknown[0] != 12345 {
		t.Errorf("unknown = %v, want [12345]", unknown)
	}

	blocks, _ = rax.BlocksForPIDs([]int{rax.SyntheticPID(1, 0)})
	if len(blocks) != 1 || blocks[0].ID != 1 {
		t.Errorf("single-block request returned %d blocks", len(blocks))
	}
}
