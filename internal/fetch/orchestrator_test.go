package fetch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/logging"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

// mockAdapter returns a fixed outcome from CloseInterval.
type mockAdapter struct {
	m       meter.Meter
	reading *meter.IntervalReading
	err     error
	delay   time.Duration
	panics  bool

	inFlight *atomic.Int32
	maxSeen  *atomic.Int32
}

func (a *mockAdapter) Meter() meter.Meter                           { return a.m }
func (a *mockAdapter) SetAddress(string) error                      { return nil }
func (a *mockAdapter) SetMeterID(id int64)                          { a.m.ID = id }
func (a *mockAdapter) AttemptStartInterval(context.Context) error   { return nil }
func (a *mockAdapter) Status(context.Context) (meter.Status, error) { return meter.Status{}, nil }

func (a *mockAdapter) CloseInterval(ctx context.Context) (*meter.IntervalReading, error) {
	if a.inFlight != nil {
		n := a.inFlight.Add(1)
		defer a.inFlight.Add(-1)
		for {
			seen := a.maxSeen.Load()
			if n <= seen || a.maxSeen.CompareAndSwap(seen, n) {
				break
			}
		}
	}
	if a.panics {
		panic("boom")
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.reading, a.err
}

// mockSink records what a cycle stores.
type mockSink struct {
	mu        sync.Mutex
	inserts   [][]meter.Reading
	marked    []int64
	insertErr error
	markErr   map[int64]error
}

func (s *mockSink) InsertReadings(_ context.Context, readings []meter.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts = append(s.inserts, append([]meter.Reading(nil), readings...))
	return s.insertErr
}

func (s *mockSink) MarkFetched(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.markErr[id]; err != nil {
		return err
	}
	s.marked = append(s.marked, id)
	return nil
}

// mockPublisher records published cycles.
type mockPublisher struct {
	cycles []CycleResult
	err    error
}

func (p *mockPublisher) Name() string { return "mock" }

func (p *mockPublisher) PublishCycle(_ context.Context, res CycleResult) error {
	p.cycles = append(p.cycles, res)
	return p.err
}

var berlin = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
	return loc
}()

func newTestOrchestrator(sink Sink, buf *bytes.Buffer, pubs ...Publisher) *Orchestrator {
	return NewOrchestrator(Options{
		Sink:          sink,
		Location:      berlin,
		DeviceTimeout: time.Second,
		Publishers:    pubs,
		Logger:        logging.NewWithWriter(buf, config.LoggingConfig{Level: "debug", Format: "json"}, "test"),
	})
}

func adapters(as ...*mockAdapter) []meter.Adapter {
	out := make([]meter.Adapter, len(as))
	for i, a := range as {
		out[i] = a
	}
	return out
}

func TestRunCycle_SuccessAndAbsent(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := &mockAdapter{
		m:       meter.Meter{ID: 1, Name: "A"},
		reading: &meter.IntervalReading{Timestamp: start.Unix(), Duration: 900, Consumption: 123.456},
	}
	b := &mockAdapter{m: meter.Meter{ID: 2, Name: "B"}, err: meter.ErrDeviceUnavailable}

	sink := &mockSink{}
	pub := &mockPublisher{}
	var buf bytes.Buffer
	res := newTestOrchestrator(sink, &buf, pub).RunCycle(context.Background(), adapters(a, b))

	if len(sink.inserts) != 1 || len(sink.inserts[0]) != 1 {
		t.Fatalf("inserts = %v, want one batch with one reading", sink.inserts)
	}
	got := sink.inserts[0][0]
	if got.MeterID != 1 || got.IntervalStart != "2026-03-01 10:00:00" || got.IntervalLength != 900 || got.ConsumptionWh != 123.456 {
		t.Errorf("reading = %+v", got)
	}
	if !got.Start.Equal(start) {
		t.Errorf("reading start = %v, want %v", got.Start, start)
	}
	if len(sink.marked) != 1 || sink.marked[0] != 1 {
		t.Errorf("marked = %v, want [1]", sink.marked)
	}

	if res.Summary != "A=123.46Wh;" {
		t.Errorf("Summary = %q", res.Summary)
	}
	if len(res.Absent) != 1 || res.Absent[0].MeterName != "B" {
		t.Errorf("Absent = %+v", res.Absent)
	}
	if !res.Stored || res.Devices != 2 || res.ID == "" {
		t.Errorf("result = %+v", res)
	}
	if len(pub.cycles) != 1 || pub.cycles[0].ID != res.ID {
		t.Errorf("publisher got %d cycles", len(pub.cycles))
	}

	logs := buf.String()
	for _, want := range []string{"closing intervals", "meter absent from cycle", `"meter":"B"`, "A=123.46Wh;", res.ID} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %q:\n%s", want, logs)
		}
	}
}

func TestRunCycle_NilReadingIsAbsent(t *testing.T) {
	a := &mockAdapter{m: meter.Meter{ID: 1, Name: "A"}}
	sink := &mockSink{}
	pub := &mockPublisher{}
	var buf bytes.Buffer

	res := newTestOrchestrator(sink, &buf, pub).RunCycle(context.Background(), adapters(a))

	if len(sink.inserts) != 0 || len(sink.marked) != 0 {
		t.Errorf("sink touched: inserts=%v marked=%v", sink.inserts, sink.marked)
	}
	if res.Summary != "" || len(res.Absent) != 1 || res.Absent[0].Reason != "no reading" {
		t.Errorf("result = %+v", res)
	}
	if len(pub.cycles) != 0 {
		t.Error("publisher called for a cycle without readings")
	}
	if strings.Contains(buf.String(), "cycle summary") {
		t.Error("summary logged for a cycle without readings")
	}
}

func TestRunCycle_ZeroDevices(t *testing.T) {
	sink := &mockSink{}
	var buf bytes.Buffer

	res := newTestOrchestrator(sink, &buf).RunCycle(context.Background(), nil)

	if res.Devices != 0 || len(res.Readings) != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(sink.inserts) != 0 || len(sink.marked) != 0 {
		t.Error("sink touched for zero devices")
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "closing intervals") {
		t.Errorf("logs = %q, want only the closing intervals notice", buf.String())
	}
}

func TestRunCycle_StorageFailures(t *testing.T) {
	mk := func(id int64, name string) *mockAdapter {
		return &mockAdapter{
			m:       meter.Meter{ID: id, Name: name},
			reading: &meter.IntervalReading{Timestamp: 1772355600, Duration: 900, Consumption: 1},
		}
	}

	t.Run("insert fails", func(t *testing.T) {
		sink := &mockSink{insertErr: errors.New("database is locked")}
		pub := &mockPublisher{}
		var buf bytes.Buffer

		res := newTestOrchestrator(sink, &buf, pub).RunCycle(context.Background(), adapters(mk(1, "A"), mk(2, "B")))

		if res.Stored {
			t.Error("Stored = true after insert failure")
		}
		if len(sink.inserts) != 1 {
			t.Errorf("insert attempted %d times, want 1 (no retry)", len(sink.inserts))
		}
		if len(sink.marked) != 2 {
			t.Errorf("marked = %v, want both meters", sink.marked)
		}
		if !strings.Contains(buf.String(), "storing readings failed") {
			t.Errorf("insert failure not logged:\n%s", buf.String())
		}
		if len(pub.cycles) != 1 {
			t.Error("mirrors must still receive the cycle")
		}
	})

	t.Run("mark fails for one meter", func(t *testing.T) {
		sink := &mockSink{markErr: map[int64]error{1: meter.ErrMeterNotFound}}
		var buf bytes.Buffer

		newTestOrchestrator(sink, &buf).RunCycle(context.Background(), adapters(mk(1, "A"), mk(2, "B")))

		if len(sink.marked) != 1 || sink.marked[0] != 2 {
			t.Errorf("marked = %v, want [2]", sink.marked)
		}
		if !strings.Contains(buf.String(), "marking meter fetched failed") {
			t.Errorf("mark failure not logged:\n%s", buf.String())
		}
	})

	t.Run("publisher fails", func(t *testing.T) {
		sink := &mockSink{}
		pub := &mockPublisher{err: errors.New("broker down")}
		var buf bytes.Buffer

		res := newTestOrchestrator(sink, &buf, pub).RunCycle(context.Background(), adapters(mk(1, "A")))

		if !res.Stored || len(sink.marked) != 1 {
			t.Errorf("mirror failure affected persistence: %+v", res)
		}
		if !strings.Contains(buf.String(), "mirror publish failed") {
			t.Errorf("mirror failure not logged:\n%s", buf.String())
		}
	})
}

func TestRunCycle_PositionalOutcomes(t *testing.T) {
	var as []*mockAdapter
	for i := 0; i < 8; i++ {
		as = append(as, &mockAdapter{
			m:       meter.Meter{ID: int64(i + 1), Name: string(rune('a' + i))},
			reading: &meter.IntervalReading{Timestamp: 1772355600, Duration: 900, Consumption: float64(i)},
			// Later adapters finish first.
			delay: time.Duration(8-i) * 5 * time.Millisecond,
		})
	}
	sink := &mockSink{}
	var buf bytes.Buffer

	res := newTestOrchestrator(sink, &buf).RunCycle(context.Background(), adapters(as...))

	if len(res.Readings) != 8 {
		t.Fatalf("readings = %d, want 8", len(res.Readings))
	}
	for i, r := range res.Readings {
		if r.MeterID != int64(i+1) || r.ConsumptionWh != float64(i) {
			t.Errorf("reading %d = %+v, outcome not matched to its adapter", i, r)
		}
	}
	if res.Summary != "a=0.00Wh;b=1.00Wh;c=2.00Wh;d=3.00Wh;e=4.00Wh;f=5.00Wh;g=6.00Wh;h=7.00Wh;" {
		t.Errorf("Summary = %q", res.Summary)
	}
}

func TestRunCycle_TimeoutAndPanic(t *testing.T) {
	slow := &mockAdapter{m: meter.Meter{ID: 1, Name: "slow"}, delay: time.Minute,
		reading: &meter.IntervalReading{Duration: 900}}
	broken := &mockAdapter{m: meter.Meter{ID: 2, Name: "broken"}, panics: true}
	ok := &mockAdapter{m: meter.Meter{ID: 3, Name: "ok"}, reading: &meter.IntervalReading{Duration: 900, Consumption: 5}}

	sink := &mockSink{}
	var buf bytes.Buffer
	o := NewOrchestrator(Options{
		Sink:          sink,
		DeviceTimeout: 20 * time.Millisecond,
		Logger:        logging.NewWithWriter(&buf, config.LoggingConfig{Level: "info"}, "test"),
	})

	res := o.RunCycle(context.Background(), adapters(slow, broken, ok))

	if len(res.Readings) != 1 || res.Readings[0].MeterName != "ok" {
		t.Fatalf("readings = %+v", res.Readings)
	}
	if len(res.Absent) != 2 {
		t.Fatalf("absent = %+v", res.Absent)
	}
	if !strings.Contains(res.Absent[0].Reason, context.DeadlineExceeded.Error()) {
		t.Errorf("slow reason = %q", res.Absent[0].Reason)
	}
	if !strings.Contains(res.Absent[1].Reason, "panicked") {
		t.Errorf("broken reason = %q", res.Absent[1].Reason)
	}
}

func TestRunCycle_ConcurrencyLimit(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	var as []*mockAdapter
	for i := 0; i < 6; i++ {
		as = append(as, &mockAdapter{
			m:        meter.Meter{ID: int64(i + 1), Name: string(rune('a' + i))},
			reading:  &meter.IntervalReading{Duration: 900},
			delay:    10 * time.Millisecond,
			inFlight: &inFlight,
			maxSeen:  &maxSeen,
		})
	}

	var buf bytes.Buffer
	o := NewOrchestrator(Options{
		Sink:           &mockSink{},
		MaxConcurrency: 2,
		Logger:         logging.NewWithWriter(&buf, config.LoggingConfig{}, "test"),
	})
	res := o.RunCycle(context.Background(), adapters(as...))

	if len(res.Readings) != 6 {
		t.Fatalf("readings = %d, want 6", len(res.Readings))
	}
	if got := maxSeen.Load(); got > 2 {
		t.Errorf("max concurrent CloseInterval = %d, want <= 2", got)
	}
}

// stallingPublisher blocks until its context ends, like a mirror whose
// broker is down and keeps retrying.
type stallingPublisher struct {
	ctxErr error
}

func (p *stallingPublisher) Name() string { return "stalling" }

func (p *stallingPublisher) PublishCycle(ctx context.Context, _ CycleResult) error {
	<-ctx.Done()
	p.ctxErr = ctx.Err()
	return ctx.Err()
}

func TestRunCycle_MirrorTimeoutBoundsCycle(t *testing.T) {
	a := &mockAdapter{
		m:       meter.Meter{ID: 1, Name: "A"},
		reading: &meter.IntervalReading{Timestamp: 1772355600, Duration: 900, Consumption: 1},
	}
	stalling := &stallingPublisher{}
	healthy := &mockPublisher{}
	var buf bytes.Buffer

	o := NewOrchestrator(Options{
		Sink:          &mockSink{},
		MirrorTimeout: 50 * time.Millisecond,
		Publishers:    []Publisher{stalling, healthy},
		Logger:        logging.NewWithWriter(&buf, config.LoggingConfig{Level: "debug", Format: "json"}, "test"),
	})

	began := time.Now()
	res := o.RunCycle(context.Background(), adapters(a))
	elapsed := time.Since(began)

	if elapsed > 2*time.Second {
		t.Fatalf("RunCycle took %v with a stalled mirror, want about MirrorTimeout", elapsed)
	}
	if !errors.Is(stalling.ctxErr, context.DeadlineExceeded) {
		t.Errorf("stalled mirror ctx error = %v, want DeadlineExceeded", stalling.ctxErr)
	}
	if len(healthy.cycles) != 1 || !res.Stored {
		t.Errorf("healthy mirror cycles = %d, stored = %v", len(healthy.cycles), res.Stored)
	}
	if !strings.Contains(buf.String(), "mirror publish failed") {
		t.Errorf("timeout not logged:\n%s", buf.String())
	}
}
