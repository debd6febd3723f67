package mut

import (
	"context"
	"fmt"
	"time"

	"github.com/hirotools/mutlog/pkg/debug"
	"github.com/hirotools/mutlog/pkg/rax"
)

// MUT serial commands. The ECU keeps a read pointer; 0xE5 reads two
// bytes and advances it, 0xE1 reads one byte without a pointer in the
// request.
const (
	cmdSetPointer byte = 0xE0
	cmdReadWord   byte = 0xE5
	cmdReadByte   byte = 0xE1
)

// Transactor is one request/response exchange over the half-duplex
// link. *kline.Connection satisfies it.
type Transactor interface {
	Transact(ctx context.Context, payload []byte) ([]byte, error)
}

// SerialConfig tunes the live polling loop.
type SerialConfig struct {
	PollInterval   time.Duration // default 100ms
	HealthInterval time.Duration // default 1s
	OnMessage      func(string)
}

// MUTClient polls telemetry blocks over the MUT serial link.
type MUTClient struct {
	tr  Transactor
	cfg SerialConfig
}

func NewMUTClient(tr Transactor, cfg SerialConfig) *MUTClient {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = time.Second
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(string) {}
	}
	return &MUTClient{tr: tr, cfg: cfg}
}

func (m *MUTClient) Name() string { return "MUT" }

func (m *MUTClient) Transports() []string { return []string{TransportKLine} }

func (m *MUTClient) CanUse(transport string) bool { return transport == TransportKLine }

func (m *MUTClient) ReadROM(ctx context.Context, progress func(Progress)) ([]byte, error) {
	return nil, fmt.Errorf("%s ROM readback: %w", m.Name(), ErrUnsupported)
}

// StreamLiveData polls the minimal block set covering the requested
// PIDs until ctx is cancelled. Cancellation is cooperative: the flag
// is checked once per block per cycle, so an in-flight block read
// drains within its transport timeouts instead of being cut off.
// Per-block read errors are counted as dropped frames and logged; the
// loop only aborts on cancellation.
func (m *MUTClient) StreamLiveData(ctx context.Context, pids []int, out chan<- LiveDataFrame, health chan<- Health) error {
	blocks, unknown := rax.BlocksForPIDs(pids)
	for _, pid := range unknown {
		m.cfg.OnMessage(fmt.Sprintf("ignoring unknown PID %d", pid))
	}
	if len(blocks) == 0 {
		return fmt.Errorf("no telemetry blocks cover the requested PIDs")
	}

	// per-block set of requested PIDs, so only asked-for channels
	// are emitted even when a block carries more
	wanted := make(map[int]map[int]bool, len(blocks))
	for _, pid := range pids {
		blockIdx, _, ok := rax.SplitPID(pid)
		if !ok {
			continue
		}
		if wanted[blockIdx] == nil {
			wanted[blockIdx] = make(map[int]bool)
		}
		wanted[blockIdx][pid] = true
	}

	var (
		windowStart   = time.Now()
		windowSamples int
		windowDropped int
		windowLatency time.Duration
		windowReads   int
	)

	for {
		cycleStart := time.Now()

		for _, block := range blocks {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			readStart := time.Now()
			buf, err := m.readBlock(ctx, block)
			windowLatency += time.Since(readStart)
			windowReads++
			if err != nil {
				windowDropped++
				debug.Log(fmt.Sprintf("block %s read failed: %v", block.Name, err))
				continue
			}

			samples, err := rax.DecodeBlock(block, buf)
			if err != nil {
				windowDropped++
				debug.Log(fmt.Sprintf("block %s decode failed: %v", block.Name, err))
				continue
			}

			now := time.Now()
			for _, s := range samples {
				if !wanted[block.ID][s.PID] {
					continue
				}
				select {
				case out <- LiveDataFrame{
					Timestamp: now,
					PID:       s.PID,
					Name:      s.Name,
					Value:     s.Value,
					Unit:      s.Unit,
				}:
					windowSamples++
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		if elapsed := time.Since(windowStart); elapsed >= m.cfg.HealthInterval {
			report := Health{
				SamplesPerSecond: float64(windowSamples) / elapsed.Seconds(),
				DroppedFrames:    windowDropped,
			}
			if windowReads > 0 {
				report.LatencyMs = float64(windowLatency.Milliseconds()) / float64(windowReads)
			}
			report.Status = classify(report.SamplesPerSecond)
			if health != nil {
				select {
				case health <- report:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			windowStart = time.Now()
			windowSamples, windowDropped, windowReads = 0, 0, 0
			windowLatency = 0
		}

		// clamp the rate instead of letting it drift
		if sleep := m.cfg.PollInterval - time.Since(cycleStart); sleep > 0 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// readBlock sets the ECU's read pointer and streams the block out in
// two-byte auto-incrementing reads, one trailing single-byte read when
// the size is odd.
func (m *MUTClient) readBlock(ctx context.Context, block *rax.Block) ([]byte, error) {
	addr := block.RequestAddress
	resp, err := m.tr.Transact(ctx, []byte{
		cmdSetPointer,
		byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr),
	})
	if err != nil {
		return nil, fmt.Errorf("set pointer: %w", err)
	}
	if len(resp) < 1 || resp[0] != cmdSetPointer {
		return nil, fmt.Errorf("set pointer: unexpected response % X", resp)
	}

	buf := make([]byte, 0, block.Size)
	for len(buf)+1 < block.Size {
		resp, err := m.tr.Transact(ctx, []byte{cmdReadWord})
		if err != nil {
			return nil, fmt.Errorf("read word at +%d: %w", len(buf), err)
		}
		if len(resp) != 2 {
			return nil, fmt.Errorf("read word at +%d: got %d bytes", len(buf), len(resp))
		}
		buf = append(buf, resp...)
	}
	if len(buf) < block.Size {
		resp, err := m.tr.Transact(ctx, []byte{cmdReadByte})
		if err != nil {
			return nil, fmt.Errorf("read trailing byte: %w", err)
		}
		if len(resp) != 1 {
			return nil, fmt.Errorf("read trailing byte: got %d bytes", len(resp))
		}
		buf = append(buf, resp[0])
	}
	return buf, nil
}
