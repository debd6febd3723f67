// Package datalogger supervises a live logging session: it owns the
// protocol driver, restarts it on transport failure, fans samples out
// to a log writer and keeps capture/error counters.
package datalogger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/hirotools/mutlog/pkg/mut"
)

// LogWriter receives one row per completed poll cycle.
type LogWriter interface {
	WriteRow(ts time.Time, values map[int]float64) error
	Close() error
}

type Config struct {
	Protocol       mut.Protocol
	PIDs           []int
	OnMessage      func(string)
	CaptureCounter func(int)
	ErrorCounter   func(int)
}

type Client struct {
	lw LogWriter

	quitChan  chan struct{}
	closeOnce sync.Once

	captureCount int
	errCount     int

	Config
}

func New(cfg Config, lw LogWriter) *Client {
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(string) {}
	}
	if cfg.CaptureCounter == nil {
		cfg.CaptureCounter = func(int) {}
	}
	if cfg.ErrorCounter == nil {
		cfg.ErrorCounter = func(int) {}
	}
	return &Client{
		lw:       lw,
		quitChan: make(chan struct{}),
		Config:   cfg,
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.quitChan)
		time.Sleep(150 * time.Millisecond)
	})
}

func (c *Client) quitRequested() bool {
	select {
	case <-c.quitChan:
		return true
	default:
		return false
	}
}

// Start runs the session until Close or an unrecoverable failure. A
// transport failure tears the session down and retries it from
// scratch a few times before giving up.
func (c *Client) Start(ctx context.Context) error {
	err := retry.Do(
		func() error {
			return c.run(ctx)
		},
		retry.Attempts(4),
		retry.Delay(1500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.OnMessage(fmt.Sprintf("Retry %d: %v", n, err))
		}),
	)
	if err != nil {
		return fmt.Errorf("logging session: %w", err)
	}
	return nil
}

func (c *Client) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan mut.LiveDataFrame, 64)
	health := make(chan mut.Health, 4)

	c.OnMessage(fmt.Sprintf("Live logging via %s", c.Protocol.Name()))

	errg, gctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		err := c.Protocol.StreamLiveData(gctx, c.PIDs, out, health)
		if errors.Is(err, context.Canceled) && c.quitRequested() {
			return nil
		}
		return err
	})

	errg.Go(func() error {
		row := make(map[int]float64, len(c.PIDs))
		var rowTime time.Time
		for {
			select {
			case <-c.quitChan:
				c.OnMessage("Stop logging...")
				cancel()
				return nil
			case <-gctx.Done():
				return nil
			case frame := <-out:
				// a repeated PID marks the next poll cycle
				if _, seen := row[frame.PID]; seen {
					if err := c.lw.WriteRow(rowTime, row); err != nil {
						return fmt.Errorf("write log row: %w", err)
					}
					row = make(map[int]float64, len(c.PIDs))
				}
				if len(row) == 0 {
					rowTime = frame.Timestamp
				}
				row[frame.PID] = frame.Value
				c.captureCount++
				if c.captureCount%10 == 0 {
					c.CaptureCounter(c.captureCount)
				}
			case h := <-health:
				if h.DroppedFrames > 0 {
					c.errCount += h.DroppedFrames
					c.ErrorCounter(c.errCount)
				}
				if h.Status != mut.StatusHealthy {
					c.OnMessage(fmt.Sprintf("Link %s: %.1f samples/s, %d dropped, %.1fms/block",
						h.Status, h.SamplesPerSecond, h.DroppedFrames, h.LatencyMs))
				}
			}
		}
	})

	return errg.Wait()
}
