package meter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockAdapter is a test implementation of Adapter.
type MockAdapter struct {
	mu         sync.Mutex
	meter      Meter
	family     string
	starts     int
	closed     bool
	setAddrErr error
}

func (a *MockAdapter) Meter() Meter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.meter
}

func (a *MockAdapter) SetAddress(address string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if familyOf(address) != a.family {
		return ErrUnsupportedAddress
	}
	if a.setAddrErr != nil {
		return a.setAddrErr
	}
	a.meter.Address = address
	return nil
}

func (a *MockAdapter) SetMeterID(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.meter.ID = id
}

func (a *MockAdapter) AttemptStartInterval(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts++
	return nil
}

func (a *MockAdapter) CloseInterval(context.Context) (*IntervalReading, error) {
	return nil, ErrNoActiveInterval
}

func (a *MockAdapter) Status(context.Context) (Status, error) {
	return Status{Name: a.Meter().Name}, nil
}

func (a *MockAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *MockAdapter) startCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts
}

func familyOf(address string) string {
	switch {
	case strings.HasPrefix(address, "mqtt://"):
		return "mqtt"
	case strings.HasPrefix(address, "bad://"):
		return ""
	default:
		return "http"
	}
}

// mockFactory builds MockAdapters and counts constructions.
type mockFactory struct {
	mu      sync.Mutex
	created int

	// entered and release, when set, hold build until the test lets it go.
	entered chan struct{}
	release chan struct{}
}

func (f *mockFactory) build(m Meter) (Adapter, error) {
	fam := familyOf(m.Address)
	if fam == "" {
		return nil, ErrUnsupportedAddress
	}
	if f.release != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	f.created++
	f.mu.Unlock()
	return &MockAdapter{meter: m, family: fam}, nil
}

// MockSource is a test implementation of Source.
type MockSource struct {
	meters []Meter
	err    error
}

func (s *MockSource) ListActive(context.Context) ([]Meter, error) {
	return s.meters, s.err
}

func TestRegistry_UpsertIsIdempotent(t *testing.T) {
	f := &mockFactory{}
	r := NewRegistry(f.build)
	ctx := context.Background()
	m := Meter{ID: 1, Name: "kitchen", Address: "10.0.0.1", Active: true}

	first, err := r.Upsert(ctx, m)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	second, err := r.Upsert(ctx, m)
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	if first != second {
		t.Error("repeated Upsert returned a different adapter")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if f.created != 1 {
		t.Errorf("factory called %d times, want 1", f.created)
	}
	if got := first.(*MockAdapter).startCount(); got != 1 {
		t.Errorf("AttemptStartInterval called %d times, want 1", got)
	}
}

func TestRegistry_UpsertUpdatesAddress(t *testing.T) {
	f := &mockFactory{}
	r := NewRegistry(f.build)
	ctx := context.Background()

	a, _ := r.Upsert(ctx, Meter{ID: 1, Name: "kitchen", Address: "10.0.0.1"})
	b, err := r.Upsert(ctx, Meter{ID: 1, Name: "kitchen", Address: "10.0.0.2"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if a != b {
		t.Error("address update created a new adapter")
	}
	if got := b.Meter().Address; got != "10.0.0.2" {
		t.Errorf("Address = %q, want 10.0.0.2", got)
	}
	if got := b.(*MockAdapter).startCount(); got != 2 {
		t.Errorf("AttemptStartInterval called %d times, want 2", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_UpsertFamilyChangeReplacesInPlace(t *testing.T) {
	f := &mockFactory{}
	r := NewRegistry(f.build)
	ctx := context.Background()

	r.Upsert(ctx, Meter{ID: 1, Name: "a", Address: "10.0.0.1"})          //nolint:errcheck
	old, _ := r.Upsert(ctx, Meter{ID: 2, Name: "b", Address: "10.0.0.2"}) //nolint:errcheck
	r.Upsert(ctx, Meter{ID: 3, Name: "c", Address: "10.0.0.3"})          //nolint:errcheck

	replaced, err := r.Upsert(ctx, Meter{ID: 2, Name: "b", Address: "mqtt://shellies/b"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if replaced == old {
		t.Fatal("family change should build a new adapter")
	}
	if !old.(*MockAdapter).closed {
		t.Error("old adapter was not closed")
	}

	all := r.All()
	names := []string{all[0].Meter().Name, all[1].Meter().Name, all[2].Meter().Name}
	if strings.Join(names, ",") != "a,b,c" {
		t.Errorf("order = %v, want a,b,c", names)
	}
	if all[1] != replaced {
		t.Error("replacement not stored in the original slot")
	}
	if replaced.Meter().ID != 2 {
		t.Errorf("replacement ID = %d, want 2", replaced.Meter().ID)
	}
}

func TestRegistry_UpsertErrors(t *testing.T) {
	f := &mockFactory{}
	r := NewRegistry(f.build)
	ctx := context.Background()

	if _, err := r.Upsert(ctx, Meter{Name: "", Address: "x"}); !errors.Is(err, ErrInvalidMeter) {
		t.Errorf("empty name: error = %v, want ErrInvalidMeter", err)
	}
	if _, err := r.Upsert(ctx, Meter{Name: "x", Address: "bad://x"}); !errors.Is(err, ErrUnsupportedAddress) {
		t.Errorf("bad scheme: error = %v, want ErrUnsupportedAddress", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_AllIsSnapshot(t *testing.T) {
	f := &mockFactory{}
	r := NewRegistry(f.build)
	ctx := context.Background()

	r.Upsert(ctx, Meter{Name: "a", Address: "10.0.0.1"}) //nolint:errcheck
	snap := r.All()
	r.Upsert(ctx, Meter{Name: "b", Address: "10.0.0.2"}) //nolint:errcheck

	if len(snap) != 1 {
		t.Errorf("snapshot changed after Upsert: len = %d", len(snap))
	}
	if len(r.All()) != 2 {
		t.Errorf("All() len = %d, want 2", len(r.All()))
	}
}

func TestRegistry_Refresh(t *testing.T) {
	f := &mockFactory{}
	r := NewRegistry(f.build)
	ctx := context.Background()

	src := &MockSource{meters: []Meter{
		{ID: 1, Name: "a", Address: "10.0.0.1"},
		{ID: 2, Name: "broken", Address: "bad://nope"},
		{ID: 3, Name: "c", Address: "mqtt://shellies/c"},
	}}

	if err := r.Refresh(ctx, src); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (unsupported meter skipped)", r.Len())
	}
	if _, err := r.Get("broken"); !errors.Is(err, ErrMeterNotFound) {
		t.Errorf("Get(broken) error = %v, want ErrMeterNotFound", err)
	}

	// Second identical refresh is a lookup only.
	if err := r.Refresh(ctx, src); err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if f.created != 2 {
		t.Errorf("factory called %d times, want 2", f.created)
	}
	a, _ := r.Get("a")
	if got := a.(*MockAdapter).startCount(); got != 1 {
		t.Errorf("AttemptStartInterval called %d times, want 1", got)
	}
}

func TestRegistry_RefreshSourceFailureLeavesRegistry(t *testing.T) {
	f := &mockFactory{}
	r := NewRegistry(f.build)
	ctx := context.Background()

	r.Upsert(ctx, Meter{Name: "a", Address: "10.0.0.1"}) //nolint:errcheck

	srcErr := errors.New("database locked")
	err := r.Refresh(ctx, &MockSource{err: srcErr})
	if !errors.Is(err, srcErr) {
		t.Fatalf("Refresh() error = %v, want wrapped source error", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (unchanged)", r.Len())
	}
}

func TestRegistry_ConcurrentUpsertAndAll(t *testing.T) {
	f := &mockFactory{}
	r := NewRegistry(f.build)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Upsert(ctx, Meter{Name: "shared", Address: "10.0.0.1"}) //nolint:errcheck
		}()
		go func() {
			defer wg.Done()
			_ = r.All()
		}()
	}
	wg.Wait()

	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_SlowFactoryDoesNotBlockAll(t *testing.T) {
	f := &mockFactory{entered: make(chan struct{}), release: make(chan struct{})}
	r := NewRegistry(f.build)
	ctx := context.Background()

	refreshed := make(chan error, 1)
	go func() {
		refreshed <- r.Refresh(ctx, &MockSource{meters: []Meter{{ID: 1, Name: "slow", Address: "mqtt://shellies/slow"}}})
	}()
	<-f.entered

	got := make(chan int, 1)
	go func() { got <- len(r.All()) }()

	select {
	case n := <-got:
		if n != 0 {
			t.Errorf("All() during build = %d adapters, want 0", n)
		}
	case <-time.After(time.Second):
		t.Fatal("All() blocked while the factory was running")
	}

	close(f.release)
	if err := <-refreshed; err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_UpsertRefreshesMeterID(t *testing.T) {
	f := &mockFactory{}
	r := NewRegistry(f.build)
	ctx := context.Background()

	a, _ := r.Upsert(ctx, Meter{ID: 1, Name: "kitchen", Address: "10.0.0.1"})

	tests := []struct {
		name   string
		meter  Meter
		wantID int64
	}{
		{name: "row re-created", meter: Meter{ID: 7, Name: "kitchen", Address: "10.0.0.1"}, wantID: 7},
		{name: "zero id keeps current", meter: Meter{Name: "kitchen", Address: "10.0.0.1"}, wantID: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := r.Upsert(ctx, tt.meter)
			if err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}
			if b != a {
				t.Error("ID change built a new adapter")
			}
			if got := b.Meter().ID; got != tt.wantID {
				t.Errorf("Meter().ID = %d, want %d", got, tt.wantID)
			}
		})
	}

	if got := a.(*MockAdapter).startCount(); got != 1 {
		t.Errorf("AttemptStartInterval called %d times, want 1 (ID change must not restart the interval)", got)
	}
	if f.created != 1 {
		t.Errorf("factory called %d times, want 1", f.created)
	}
}

func TestRegistry_Close(t *testing.T) {
	f := &mockFactory{}
	r := NewRegistry(f.build)
	a, _ := r.Upsert(context.Background(), Meter{Name: "a", Address: "10.0.0.1"})

	r.Close()

	if !a.(*MockAdapter).closed {
		t.Error("Close() did not close adapter")
	}
}
