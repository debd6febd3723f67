// Package mut implements the Mitsubishi diagnostic protocols: full ROM
// readback over UDS on CAN and live telemetry polling over the MUT
// serial link. Implementations are selected by probing which transport
// names they can operate over.
package mut

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Transport names used by the capability probe.
const (
	TransportCAN   = "can"
	TransportKLine = "kline"
)

var (
	// ErrSecurityAccessDenied: the ECU's security-access response did
	// not echo the expected SID/subfunction pair. Never retried, a
	// stale seed is useless.
	ErrSecurityAccessDenied = errors.New("security access denied")
	// ErrUnsupported: the protocol cannot perform the requested
	// operation on any of its transports.
	ErrUnsupported = errors.New("operation not supported by this protocol")
)

// Progress reports ROM readback advancement after every block.
type Progress struct {
	BytesProcessed  int
	TotalBytes      int
	PercentComplete float64
}

// LiveDataFrame is one decoded sample for one requested PID.
type LiveDataFrame struct {
	Timestamp time.Time
	PID       int
	Name      string
	Value     float64
	Unit      string
}

// Status classifies a polling window.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusStalled  Status = "stalled"
)

// Health is one ~1 second polling window report. Counters reset after
// every report.
type Health struct {
	SamplesPerSecond float64
	DroppedFrames    int
	LatencyMs        float64
	Status           Status
}

func classify(samplesPerSecond float64) Status {
	switch {
	case samplesPerSecond == 0:
		return StatusStalled
	case samplesPerSecond < 5:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Protocol is one diagnostic protocol implementation. The set is
// closed; callers pick one with Select based on the transport at hand.
type Protocol interface {
	Name() string
	Transports() []string
	CanUse(transport string) bool
	ReadROM(ctx context.Context, progress func(Progress)) ([]byte, error)
	StreamLiveData(ctx context.Context, pids []int, out chan<- LiveDataFrame, health chan<- Health) error
}

// Select returns the first protocol that declares support for the
// given transport.
func Select(protocols []Protocol, transport string) (Protocol, error) {
	for _, p := range protocols {
		if p.CanUse(transport) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no protocol supports transport %q", transport)
}
