package datalogger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hirotools/mutlog/pkg/mut"
	"github.com/hirotools/mutlog/pkg/rax"
)

type fakeProtocol struct {
	cycles    [][]mut.LiveDataFrame
	health    []mut.Health
	failFirst bool
	calls     int
}

func (f *fakeProtocol) Name() string                 { return "fake" }
func (f *fakeProtocol) Transports() []string         { return []string{mut.TransportKLine} }
func (f *fakeProtocol) CanUse(transport string) bool { return transport == mut.TransportKLine }

func (f *fakeProtocol) ReadROM(ctx context.Context, progress func(mut.Progress)) ([]byte, error) {
	return nil, mut.ErrUnsupported
}

func (f *fakeProtocol) StreamLiveData(ctx context.Context, pids []int, out chan<- mut.LiveDataFrame, health chan<- mut.Health) error {
	f.calls++
	if f.failFirst && f.calls == 1 {
		return errors.New("transport down")
	}
	for _, h := range f.health {
		select {
		case health <- h:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, cycle := range f.cycles {
		for _, frame := range cycle {
			select {
			case out <- frame:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeWriter struct {
	mu   sync.Mutex
	rows []map[int]float64
}

func (w *fakeWriter) WriteRow(ts time.Time, values map[int]float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	row := make(map[int]float64, len(values))
	for k, v := range values {
		row[k] = v
	}
	w.rows = append(w.rows, row)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) rowCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

func cycle(vals map[int]float64) []mut.LiveDataFrame {
	frames := make([]mut.LiveDataFrame, 0, len(vals))
	for pid, v := range vals {
		frames = append(frames, mut.LiveDataFrame{Timestamp: time.Now(), PID: pid, Value: v})
	}
	return frames
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestClientWritesRowPerCycle(t *testing.T) {
	proto := &fakeProtocol{
		cycles: [][]mut.LiveDataFrame{
			cycle(map[int]float64{1: 10, 2: 20}),
			cycle(map[int]float64{1: 30, 2: 40}),
			cycle(map[int]float64{1: 50, 2: 60}),
		},
	}
	lw := &fakeWriter{}
	client := New(Config{Protocol: proto, PIDs: []int{1, 2}}, lw)

	errCh := make(chan error, 1)
	go func() { errCh <- client.Start(context.Background()) }()

	waitFor(t, func() bool { return lw.rowCount() >= 2 })
	client.Close()
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}

	if lw.rows[0][1] != 10 || lw.rows[0][2] != 20 {
		t.Errorf("row 0 = %v", lw.rows[0])
	}
	if lw.rows[1][1] != 30 || lw.rows[1][2] != 40 {
		t.Errorf("row 1 = %v", lw.rows[1])
	}
}

func TestClientRetriesTransportFailure(t *testing.T) {
	proto := &fakeProtocol{
		failFirst: true,
		cycles: [][]mut.LiveDataFrame{
			cycle(map[int]float64{1: 1}),
			cycle(map[int]float64{1: 2}),
		},
	}
	lw := &fakeWriter{}
	var msgs []string
	var mu sync.Mutex
	client := New(Config{
		Protocol: proto,
		PIDs:     []int{1},
		OnMessage: func(s string) {
			mu.Lock()
			msgs = append(msgs, s)
			mu.Unlock()
		},
	}, lw)

	errCh := make(chan error, 1)
	go func() { errCh <- client.Start(context.Background()) }()

	waitFor(t, func() bool { return lw.rowCount() >= 1 })
	client.Close()
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if proto.calls != 2 {
		t.Errorf("stream started %d times, want 2", proto.calls)
	}
	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, m := range msgs {
		if strings.Contains(m, "Retry") {
			found = true
		}
	}
	if !found {
		t.Error("no retry message emitted")
	}
}

func TestClientCountsDroppedFrames(t *testing.T) {
	proto := &fakeProtocol{
		health: []mut.Health{{DroppedFrames: 3, Status: mut.StatusDegraded, SamplesPerSecond: 2}},
		cycles: [][]mut.LiveDataFrame{cycle(map[int]float64{1: 1})},
	}
	var errCount int
	var mu sync.Mutex
	client := New(Config{
		Protocol: proto,
		PIDs:     []int{1},
		ErrorCounter: func(n int) {
			mu.Lock()
			errCount = n
			mu.Unlock()
		},
	}, &fakeWriter{})

	errCh := make(chan error, 1)
	go func() { errCh <- client.Start(context.Background()) }()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return errCount == 3
	})
	client.Close()
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
}

func TestCSVWriter(t *testing.T) {
	rpm := rax.SyntheticPID(0, 0)
	boost := rax.SyntheticPID(0, 6)
	pids := []int{rpm, boost, 99}

	var buf bytes.Buffer
	w := NewCSVWriter(&buf, pids)

	ts := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	if err := w.WriteRow(ts, map[int]float64{rpm: 3000, boost: 2.5}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Time,RPM,Boost,PID99" {
		t.Errorf("header = %q", lines[0])
	}
	wantRow := ts.Format(timeFormat) + ",3000,2.50,"
	if lines[1] != wantRow {
		t.Errorf("row = %q, want %q", lines[1], wantRow)
	}
}
