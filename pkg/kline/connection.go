package kline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/avast/retry-go/v4"
)

var (
	// ErrCTSTimeout: the ECU never raised clear-to-send.
	ErrCTSTimeout = errors.New("timeout waiting for clear-to-send")
	// ErrResponseTimeout: CTS was seen but the response frame never
	// arrived in time.
	ErrResponseTimeout = errors.New("timeout waiting for response frame")
	// ErrChecksum: the response frame arrived but its checksum is bad.
	ErrChecksum = errors.New("response checksum mismatch")
)

// Port is the serial endpoint a connection drives. go.bug.st/serial
// ports satisfy it directly; tests use an in-memory fake. A Read that
// returns (0, nil) means the configured read timeout elapsed.
type Port interface {
	io.ReadWriter
	SetReadTimeout(time.Duration) error
}

// Config tunes one connection's timing and retry policy.
type Config struct {
	CTSTimeout      time.Duration // default 100ms
	ResponseTimeout time.Duration // default 500ms
	MaxRetries      int           // attempts beyond the first, default 2
	OnMessage       func(string)
}

// Health holds per-connection failure counters. Counters only ever
// grow; they are read by the owner between transactions.
type Health struct {
	Transactions     uint64
	CTSTimeouts      uint64
	ResponseTimeouts uint64
	ChecksumErrors   uint64
}

// Connection drives request/response transactions over one K-line
// port. Exactly one transaction may be in flight at a time, enforced
// by the flow-control state machine; callers must not share a
// connection across goroutines.
type Connection struct {
	port   Port
	fc     *FlowControlManager
	cfg    Config
	health Health
}

func NewConnection(port Port, cfg Config) *Connection {
	if cfg.CTSTimeout <= 0 {
		cfg.CTSTimeout = 100 * time.Millisecond
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(string) {}
	}
	return &Connection{
		port: port,
		fc:   NewFlowControlManager(),
		cfg:  cfg,
	}
}

func (c *Connection) Health() Health { return c.health }

func (c *Connection) FlowState() State { return c.fc.State() }

// Transact sends one payload and returns the response payload. A CTS
// timeout, response timeout or checksum failure is counted, the frame
// resent, and the whole exchange retried up to MaxRetries extra
// attempts before the typed error surfaces.
func (c *Connection) Transact(ctx context.Context, payload []byte) ([]byte, error) {
	raw, err := EncodeFrame(payload)
	if err != nil {
		return nil, err
	}

	var resp []byte
	err = retry.Do(
		func() error {
			var attemptErr error
			resp, attemptErr = c.exchange(ctx, raw)
			return attemptErr
		},
		retry.Attempts(uint(c.cfg.MaxRetries)+1),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.cfg.OnMessage(fmt.Sprintf("retry %d: %v", n, err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("transaction failed after %d attempts: %w", c.cfg.MaxRetries+1, err)
	}
	c.health.Transactions++
	return resp, nil
}

// exchange runs a single send/CTS/response cycle.
func (c *Connection) exchange(ctx context.Context, raw []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, retry.Unrecoverable(err)
	}
	if err := c.fc.FrameSent(); err != nil {
		return nil, retry.Unrecoverable(err)
	}

	fail := func(err error) ([]byte, error) {
		c.fc.Fail()
		c.fc.Reset()
		return nil, err
	}

	if _, err := c.port.Write(raw); err != nil {
		return fail(retry.Unrecoverable(fmt.Errorf("write frame: %w", err)))
	}

	// single-byte clear-to-send window
	if err := c.port.SetReadTimeout(c.cfg.CTSTimeout); err != nil {
		return fail(retry.Unrecoverable(err))
	}
	cts := make([]byte, 1)
	n, err := c.port.Read(cts)
	if err != nil {
		return fail(retry.Unrecoverable(fmt.Errorf("read cts: %w", err)))
	}
	if n == 0 {
		c.health.CTSTimeouts++
		return fail(ErrCTSTimeout)
	}
	if cts[0] != CTS {
		c.health.CTSTimeouts++
		return fail(fmt.Errorf("%w: got 0x%02X instead of CTS", ErrCTSTimeout, cts[0]))
	}
	if err := c.fc.CTSReceived(); err != nil {
		return fail(retry.Unrecoverable(err))
	}

	frame, err := c.readFrame()
	if err != nil {
		if errors.Is(err, ErrResponseTimeout) {
			c.health.ResponseTimeouts++
			return fail(err)
		}
		return fail(retry.Unrecoverable(err))
	}
	if !frame.Valid {
		c.health.ChecksumErrors++
		return fail(ErrChecksum)
	}

	if err := c.fc.ResponseConsumed(); err != nil {
		return fail(retry.Unrecoverable(err))
	}
	return frame.Payload, nil
}

// readFrame reads [PCI][payload][checksum] within the response timeout.
func (c *Connection) readFrame() (*Frame, error) {
	if err := c.port.SetReadTimeout(c.cfg.ResponseTimeout); err != nil {
		return nil, err
	}

	hdr := make([]byte, 1)
	n, err := c.port.Read(hdr)
	if err != nil {
		return nil, fmt.Errorf("read PCI: %w", err)
	}
	if n == 0 {
		return nil, ErrResponseTimeout
	}
	plen := int(hdr[0])
	if plen < 1 || plen > MaxPayload {
		return nil, fmt.Errorf("invalid PCI length %d", plen)
	}

	rest := make([]byte, plen+1)
	got := 0
	for got < len(rest) {
		n, err := c.port.Read(rest[got:])
		if err != nil {
			return nil, fmt.Errorf("read frame body: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: got %d of %d body bytes", ErrResponseTimeout, got, len(rest))
		}
		got += n
	}

	raw := append(hdr, rest...)
	return DecodeFrame(raw)
}
