package tsdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/tsdb"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

// fakeVM emulates the VictoriaMetrics /health and /write endpoints.
type fakeVM struct {
	*httptest.Server
	mu         sync.Mutex
	bodies     []string
	writeCode  int
	healthCode int
}

func newFakeVM(t *testing.T) *fakeVM {
	t.Helper()
	f := &fakeVM{writeCode: http.StatusNoContent, healthCode: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(f.healthCode)
		case "/write":
			body, _ := io.ReadAll(r.Body)
			f.bodies = append(f.bodies, string(body))
			w.WriteHeader(f.writeCode)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeVM) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func (f *fakeVM) setWriteCode(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCode = code
}

func testConfig(url string) config.TSDBConfig {
	return config.TSDBConfig{Enabled: true, URL: url}
}

func kitchenReading() meter.Reading {
	return meter.Reading{
		MeterID:        7,
		MeterName:      "kitchen",
		IntervalLength: 900,
		ConsumptionWh:  25,
		Start:          time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		healthCode int
		wantErr    error
	}{
		{name: "disabled", enabled: false, healthCode: http.StatusOK, wantErr: tsdb.ErrDisabled},
		{name: "unhealthy", enabled: true, healthCode: http.StatusServiceUnavailable, wantErr: tsdb.ErrUnreachable},
		{name: "healthy", enabled: true, healthCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeVM(t)
			srv.healthCode = tt.healthCode
			cfg := testConfig(srv.URL + "/")
			cfg.Enabled = tt.enabled

			client, err := tsdb.Connect(context.Background(), cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Connect() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Error("Connect() returned a client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			client.Close()
		})
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := tsdb.Connect(ctx, testConfig("http://127.0.0.1:1"))
	if !errors.Is(err, tsdb.ErrUnreachable) {
		t.Errorf("Connect() error = %v, want ErrUnreachable", err)
	}
}

func TestWriteCycle_OnePostPerCycle(t *testing.T) {
	srv := newFakeVM(t)
	client, err := tsdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	garage := kitchenReading()
	garage.MeterID, garage.MeterName, garage.ConsumptionWh = 8, "garage", 0
	at := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)

	if err := client.WriteCycle(context.Background(), "cyc-1", at, []meter.Reading{kitchenReading(), garage}, 1); err != nil {
		t.Fatalf("WriteCycle() error = %v", err)
	}

	got := srv.written()
	if len(got) != 1 {
		t.Fatalf("writes = %d, want 1 POST", len(got))
	}
	lines := strings.Split(got[0], "\n")
	want := []string{
		"energy_interval,meter=kitchen,meter_id=7 avg_power_watts=100,consumption_wh=25,length_seconds=900i 1772355600000000000",
		"energy_interval,meter=garage,meter_id=8 avg_power_watts=0,consumption_wh=0,length_seconds=900i 1772355600000000000",
		`fetch_cycle absent=1i,cycle_id="cyc-1",ok=2i,total_wh=25 1772356500000000000`,
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %d, want %d:\n%s", len(lines), len(want), got[0])
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q\nwant     %q", i, lines[i], want[i])
		}
	}
}

func TestWriteCycle_NoReadingsStillWritesCycle(t *testing.T) {
	srv := newFakeVM(t)
	client, err := tsdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.WriteCycle(context.Background(), "cyc-2", time.Unix(0, 0), nil, 3); err != nil {
		t.Fatalf("WriteCycle() error = %v", err)
	}
	got := srv.written()
	if len(got) != 1 || !strings.HasPrefix(got[0], "fetch_cycle absent=3i") {
		t.Errorf("writes = %q", got)
	}
}

func TestWriteCycle_Rejected(t *testing.T) {
	srv := newFakeVM(t)
	client, err := tsdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	srv.setWriteCode(http.StatusBadRequest)
	err = client.WriteCycle(context.Background(), "cyc-3", time.Now(), []meter.Reading{kitchenReading()}, 0)
	if !errors.Is(err, tsdb.ErrReadingsRejected) {
		t.Errorf("WriteCycle() error = %v, want ErrReadingsRejected", err)
	}
	if err != nil && !strings.Contains(err.Error(), "cyc-3") {
		t.Errorf("error %q does not name the cycle", err)
	}
}

func TestWriteCycle_ServerGone(t *testing.T) {
	srv := newFakeVM(t)
	client, err := tsdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	srv.Close()
	err = client.WriteCycle(context.Background(), "cyc-4", time.Now(), []meter.Reading{kitchenReading()}, 0)
	if !errors.Is(err, tsdb.ErrUnreachable) {
		t.Errorf("WriteCycle() error = %v, want ErrUnreachable", err)
	}
}

func TestClose_NilClient(t *testing.T) {
	var c *tsdb.Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}
