package mut

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roffe/gocan"

	"github.com/hirotools/mutlog/pkg/seckey"
)

// UDS service IDs and constants for the CAN diagnostic path.
const (
	TesterID uint32 = 0x7E0
	ECUID    uint32 = 0x7E8

	sidSessionControl byte = 0x10
	sidSecurityAccess byte = 0x27
	sidReadMemory     byte = 0x23
	extendedSession   byte = 0x03
	subRequestSeed    byte = 0x01
	subSendKey        byte = 0x02
	alfidLen1Addr3    byte = 0x14 // 1-byte length, 3-byte address
	positiveResponse  byte = 0x40
	negativeResponse  byte = 0x7F
)

// NegativeResponseError is a UDS 0x7F reply.
type NegativeResponseError struct {
	SID  byte
	Code byte
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("negative response to SID 0x%02X, NRC 0x%02X", e.SID, e.Code)
}

// CANClient is the slice of *gocan.Client the UDS driver needs;
// narrowed so tests can drive the driver with a scripted fake.
type CANClient interface {
	SendAndWait(ctx context.Context, frame gocan.CANFrame, timeout time.Duration, identifiers ...uint32) (gocan.CANFrame, error)
}

// UDSConfig tunes the ROM readback.
type UDSConfig struct {
	ROMStart  uint32 // default 0x000000
	ROMSize   int    // default 1 MiB
	BlockSize int    // bytes per SID 0x23 request, default 128, max 255
	Timeout   time.Duration
	OnMessage func(string)
}

// UDSClient reads calibration ROM over UDS on CAN. Request/response
// only, one frame in flight; the adapter handles segmentation.
type UDSClient struct {
	c   CANClient
	cfg UDSConfig
}

func NewUDSClient(c CANClient, cfg UDSConfig) *UDSClient {
	if cfg.ROMSize <= 0 {
		cfg.ROMSize = 0x100000
	}
	if cfg.BlockSize <= 0 || cfg.BlockSize > 0xFF {
		cfg.BlockSize = 128
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(string) {}
	}
	return &UDSClient{c: c, cfg: cfg}
}

func (u *UDSClient) Name() string { return "MitsuCAN" }

func (u *UDSClient) Transports() []string { return []string{TransportCAN} }

func (u *UDSClient) CanUse(transport string) bool { return transport == TransportCAN }

func (u *UDSClient) StreamLiveData(ctx context.Context, pids []int, out chan<- LiveDataFrame, health chan<- Health) error {
	return fmt.Errorf("%s live data: %w", u.Name(), ErrUnsupported)
}

// ReadROM dumps the full calibration range: extended session, seed/key
// security access, then block reads over the whole address range with
// a progress report after every block.
func (u *UDSClient) ReadROM(ctx context.Context, progress func(Progress)) ([]byte, error) {
	if progress == nil {
		progress = func(Progress) {}
	}

	if err := u.startExtendedSession(ctx); err != nil {
		return nil, err
	}
	u.cfg.OnMessage("Extended diagnostic session established")

	if err := u.securityAccess(ctx); err != nil {
		return nil, err
	}
	u.cfg.OnMessage("Security access granted")

	rom := make([]byte, 0, u.cfg.ROMSize)
	total := u.cfg.ROMSize
	addr := u.cfg.ROMStart
	for done := 0; done < total; {
		n := u.cfg.BlockSize
		if left := total - done; left < n {
			n = left
		}
		block, err := u.readMemoryByAddress(ctx, addr, n)
		if err != nil {
			return nil, fmt.Errorf("read 0x%06X: %w", addr, err)
		}
		rom = append(rom, block...)
		done += len(block)
		addr += uint32(len(block))
		progress(Progress{
			BytesProcessed:  done,
			TotalBytes:      total,
			PercentComplete: float64(done) / float64(total) * 100,
		})
	}
	return rom, nil
}

func (u *UDSClient) startExtendedSession(ctx context.Context) error {
	resp, err := u.request(ctx, []byte{sidSessionControl, extendedSession})
	if err != nil {
		return fmt.Errorf("session control: %w", err)
	}
	if len(resp) < 2 || resp[0] != sidSessionControl|positiveResponse || resp[1] != extendedSession {
		return fmt.Errorf("session control: unexpected response % X", resp)
	}
	return nil
}

// securityAccess runs the seed/key exchange. An echoed SID/subfunction
// mismatch on either step is fatal for this readback.
func (u *UDSClient) securityAccess(ctx context.Context) error {
	resp, err := u.request(ctx, []byte{sidSecurityAccess, subRequestSeed})
	if err != nil {
		var nre *NegativeResponseError
		if errors.As(err, &nre) {
			return fmt.Errorf("request seed (%v): %w", nre, ErrSecurityAccessDenied)
		}
		return fmt.Errorf("request seed: %w", err)
	}
	if len(resp) < 4 || resp[0] != sidSecurityAccess|positiveResponse || resp[1] != subRequestSeed {
		return fmt.Errorf("request seed (% X): %w", resp, ErrSecurityAccessDenied)
	}
	seed := resp[2:4]

	key, err := seckey.MitsuCANKey(seed)
	if err != nil {
		return err
	}

	resp, err = u.request(ctx, []byte{sidSecurityAccess, subSendKey, key[0], key[1]})
	if err != nil {
		var nre *NegativeResponseError
		if errors.As(err, &nre) {
			return fmt.Errorf("send key (%v): %w", nre, ErrSecurityAccessDenied)
		}
		return fmt.Errorf("send key: %w", err)
	}
	if len(resp) < 2 || resp[0] != sidSecurityAccess|positiveResponse || resp[1] != subSendKey {
		return fmt.Errorf("send key (% X): %w", resp, ErrSecurityAccessDenied)
	}
	return nil
}

func (u *UDSClient) readMemoryByAddress(ctx context.Context, addr uint32, length int) ([]byte, error) {
	resp, err := u.request(ctx, []byte{
		sidReadMemory,
		alfidLen1Addr3,
		byte(addr >> 16), byte(addr >> 8), byte(addr),
		byte(length),
	})
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 || resp[0] != sidReadMemory|positiveResponse {
		return nil, fmt.Errorf("unexpected response % X", resp)
	}
	data := resp[1:]
	if len(data) != length {
		return nil, fmt.Errorf("asked for %d bytes, got %d", length, len(data))
	}
	return data, nil
}

func (u *UDSClient) request(ctx context.Context, payload []byte) ([]byte, error) {
	frame := gocan.NewFrame(TesterID, payload, gocan.ResponseRequired)
	resp, err := u.c.SendAndWait(ctx, frame, u.cfg.Timeout, ECUID)
	if err != nil {
		return nil, err
	}
	data := resp.Data()
	if len(data) >= 3 && data[0] == negativeResponse {
		return nil, &NegativeResponseError{SID: data[1], Code: data[2]}
	}
	return data, nil
}
