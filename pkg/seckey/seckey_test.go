package seckey_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/hirotools/mutlog/pkg/seckey"
)

func TestMitsuCANKey(t *testing.T) {
	tests := []struct {
		name string
		seed []byte
		want []byte
	}{
		// regression pin: known vector captured with the seed-0x1234 harness
		{name: "known vector", seed: []byte{0x12, 0x34}, want: []byte{0xCE, 0xDB}},
		{name: "zero seed", seed: []byte{0x00, 0x00}, want: []byte{0x5A, 0x17}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := seckey.MitsuCANKey(tt.seed)
			if err != nil {
				t.Fatalf("MitsuCANKey() failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("MitsuCANKey() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestMitsuCANKeyDeterministic(t *testing.T) {
	a, err := seckey.MitsuCANKey([]byte{0xBE, 0xEF})
	if err != nil {
		t.Fatalf("MitsuCANKey() failed: %v", err)
	}
	b, err := seckey.MitsuCANKey([]byte{0xBE, 0xEF})
	if err != nil {
		t.Fatalf("MitsuCANKey() failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("same seed produced different keys: % X vs % X", a, b)
	}
}

func TestMUTKey(t *testing.T) {
	got, err := seckey.MUTKey([]byte{0x12, 0x34})
	if err != nil {
		t.Fatalf("MUTKey() failed: %v", err)
	}
	// 0x12: high 0x1 -> 0x7, low 0x2^0x5 = 0x7; 0x34: high 0x3 -> 0xA, low 0x4^0x5 = 0x1
	want := []byte{0x77, 0xA1}
	if !bytes.Equal(got, want) {
		t.Errorf("MUTKey() = % X, want % X", got, want)
	}
}

func TestSeedLength(t *testing.T) {
	for _, seed := range [][]byte{nil, {0x01}, {0x01, 0x02, 0x03}} {
		var se *seckey.SeedLengthError
		if _, err := seckey.MitsuCANKey(seed); !errors.As(err, &se) {
			t.Errorf("MitsuCANKey(%v) error = %v, want SeedLengthError", seed, err)
		}
		if _, err := seckey.MUTKey(seed); !errors.As(err, &se) {
			t.Errorf("MUTKey(%v) error = %v, want SeedLengthError", seed, err)
		}
	}
}
