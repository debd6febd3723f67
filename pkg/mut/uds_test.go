package mut

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roffe/gocan"
)

// fakeECU answers UDS requests like a calibrated-unlock ECU would: it
// accepts only the key derived from the seed it hands out.
type fakeECU struct {
	seed       []byte
	expectKey  []byte
	memReads   int
	denyKey    bool
	badSession bool
}

func (f *fakeECU) SendAndWait(ctx context.Context, frame gocan.CANFrame, timeout time.Duration, ids ...uint32) (gocan.CANFrame, error) {
	req := frame.Data()
	reply := func(data []byte) (gocan.CANFrame, error) {
		return gocan.NewFrame(ECUID, data, gocan.ResponseRequired), nil
	}

	switch req[0] {
	case sidSessionControl:
		if f.badSession {
			return reply([]byte{sidSessionControl | positiveResponse, 0x01})
		}
		return reply([]byte{sidSessionControl | positiveResponse, req[1]})
	case sidSecurityAccess:
		switch req[1] {
		case subRequestSeed:
			return reply(append([]byte{sidSecurityAccess | positiveResponse, subRequestSeed}, f.seed...))
		case subSendKey:
			if f.denyKey || !bytes.Equal(req[2:4], f.expectKey) {
				return reply([]byte{negativeResponse, sidSecurityAccess, 0x35})
			}
			return reply([]byte{sidSecurityAccess | positiveResponse, subSendKey})
		}
	case sidReadMemory:
		f.memReads++
		addr := uint32(req[2])<<16 | uint32(req[3])<<8 | uint32(req[4])
		length := int(req[5])
		data := make([]byte, length)
		for i := range data {
			data[i] = byte(addr + uint32(i))
		}
		return reply(append([]byte{sidReadMemory | positiveResponse}, data...))
	}
	return reply([]byte{negativeResponse, req[0], 0x11})
}

func TestReadROM(t *testing.T) {
	ecu := &fakeECU{
		seed:      []byte{0x12, 0x34},
		expectKey: []byte{0xCE, 0xDB},
	}
	client := NewUDSClient(ecu, UDSConfig{ROMSize: 64, BlockSize: 16})

	var reports []Progress
	rom, err := client.ReadROM(context.Background(), func(p Progress) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rom) != 64 {
		t.Fatalf("rom size = %d, want 64", len(rom))
	}
	for i, b := range rom {
		if b != byte(i) {
			t.Fatalf("rom[%d] = 0x%02X, want 0x%02X", i, b, byte(i))
		}
	}
	if len(reports) != 4 {
		t.Fatalf("got %d progress reports, want 4", len(reports))
	}
	for i := 1; i < len(reports); i++ {
		if reports[i].BytesProcessed <= reports[i-1].BytesProcessed {
			t.Errorf("progress not monotonic at report %d", i)
		}
	}
	last := reports[len(reports)-1]
	if last.BytesProcessed != 64 || last.TotalBytes != 64 || last.PercentComplete != 100 {
		t.Errorf("final progress = %+v", last)
	}
}

func TestReadROMSecurityDenied(t *testing.T) {
	ecu := &fakeECU{
		seed:      []byte{0x12, 0x34},
		expectKey: []byte{0xCE, 0xDB},
		denyKey:   true,
	}
	client := NewUDSClient(ecu, UDSConfig{ROMSize: 64, BlockSize: 16})

	_, err := client.ReadROM(context.Background(), nil)
	if !errors.Is(err, ErrSecurityAccessDenied) {
		t.Fatalf("err = %v, want ErrSecurityAccessDenied", err)
	}
	if ecu.memReads != 0 {
		t.Errorf("memory was read %d times after denied access", ecu.memReads)
	}
}

func TestReadROMBadSessionResponse(t *testing.T) {
	ecu := &fakeECU{badSession: true}
	client := NewUDSClient(ecu, UDSConfig{ROMSize: 16, BlockSize: 16})

	if _, err := client.ReadROM(context.Background(), nil); err == nil {
		t.Fatal("expected error on mismatched session response")
	}
}

func TestUDSCapabilityProbe(t *testing.T) {
	client := NewUDSClient(&fakeECU{}, UDSConfig{})
	if !client.CanUse(TransportCAN) {
		t.Error("UDS client should accept the CAN transport")
	}
	if client.CanUse(TransportKLine) {
		t.Error("UDS client should reject the K-line transport")
	}
	if err := client.StreamLiveData(context.Background(), nil, nil, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}
