package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Nussi649/ShellyManager/internal/fetch"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/database"
	"github.com/Nussi649/ShellyManager/internal/meter"
	_ "github.com/Nussi649/ShellyManager/migrations"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func cycleAt(id string, start time.Time, absent ...fetch.Absence) fetch.CycleResult {
	return fetch.CycleResult{
		ID:         id,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Devices:    2,
		Readings: []meter.Reading{
			{MeterID: 1, MeterName: "garage", ConsumptionWh: 12.5},
		},
		Absent:  absent,
		Summary: "garage=12.50Wh;",
		TotalWh: 12.5,
		Stored:  true,
	}
}

func TestRecordCycle_RoundTrip(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	start := time.Date(2026, 10, 18, 9, 15, 0, 0, time.UTC)

	absence := fetch.Absence{MeterID: 2, MeterName: "heatpump", Reason: "device unavailable"}
	if err := repo.RecordCycle(ctx, cycleAt("c1", start, absence)); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Cycles) != 1 {
		t.Fatalf("List() = %+v, want one cycle", res)
	}

	got := res.Cycles[0]
	if got.ID != "c1" || got.Devices != 2 || got.Readings != 1 || !got.Stored {
		t.Errorf("record = %+v", got)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
	}
	if got.FinishedAt.Sub(got.StartedAt) != 1500*time.Millisecond {
		t.Errorf("FinishedAt = %v, want start+1.5s", got.FinishedAt)
	}
	if len(got.Absent) != 1 || got.Absent[0] != absence {
		t.Errorf("Absent = %+v, want [%+v]", got.Absent, absence)
	}
	if got.Summary != "garage=12.50Wh;" || got.TotalWh != 12.5 {
		t.Errorf("Summary/TotalWh = %q/%v", got.Summary, got.TotalWh)
	}
}

func TestRecord_GeneratesID(t *testing.T) {
	repo := setupTestRepo(t)
	rec := RecordFromResult(cycleAt("", time.Now()))

	if err := repo.Record(context.Background(), &rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !strings.HasPrefix(rec.ID, "cyc-") {
		t.Errorf("ID = %q, want cyc- prefix", rec.ID)
	}
}

func TestList_Filters(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"c1", "c2", "c3", "c4"} {
		var absent []fetch.Absence
		if i%2 == 1 {
			absent = []fetch.Absence{{MeterID: 9, MeterName: "offline", Reason: "timeout"}}
		}
		if err := repo.RecordCycle(ctx, cycleAt(id, base.Add(time.Duration(i)*15*time.Minute), absent...)); err != nil {
			t.Fatalf("RecordCycle(%s) error = %v", id, err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantIDs   []string
		wantTotal int
	}{
		{"all newest first", Filter{}, []string{"c4", "c3", "c2", "c1"}, 4},
		{"with absence", Filter{WithAbsence: true}, []string{"c4", "c2"}, 2},
		{"since", Filter{Since: base.Add(30 * time.Minute)}, []string{"c4", "c3"}, 2},
		{"paginated", Filter{Limit: 2, Offset: 1}, []string{"c3", "c2"}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			var ids []string
			for _, c := range res.Cycles {
				ids = append(ids, c.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("IDs = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := setupTestRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("Limit/Offset = %d/%d, want %d/0", res.Limit, res.Offset, maxLimit)
	}
	if res.Cycles == nil {
		t.Error("Cycles should be an empty slice, not nil")
	}
}
