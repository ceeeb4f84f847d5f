package meter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/database"
	_ "github.com/Nussi649/ShellyManager/migrations"
)

// setupTestRepo opens a migrated SQLite database in a temp directory.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "meters.db"),
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

func TestSQLiteRepository_UpsertMeter(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	m, err := repo.UpsertMeter(ctx, "kitchen", "10.0.0.1", true)
	if err != nil {
		t.Fatalf("UpsertMeter() error = %v", err)
	}
	if m.ID == 0 || m.Name != "kitchen" || !m.Active {
		t.Errorf("UpsertMeter() = %+v", m)
	}
	if m.CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}

	updated, err := repo.UpsertMeter(ctx, "kitchen", "10.0.0.9", false)
	if err != nil {
		t.Fatalf("second UpsertMeter() error = %v", err)
	}
	if updated.ID != m.ID {
		t.Errorf("ID changed on upsert: %d -> %d", m.ID, updated.ID)
	}
	if updated.Address != "10.0.0.9" || updated.Active {
		t.Errorf("UpsertMeter() did not update: %+v", updated)
	}

	if _, err := repo.UpsertMeter(ctx, "", "x", true); !errors.Is(err, ErrInvalidMeter) {
		t.Errorf("empty name: error = %v, want ErrInvalidMeter", err)
	}
}

func TestSQLiteRepository_ListActive(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	repo.UpsertMeter(ctx, "b", "10.0.0.2", true)  //nolint:errcheck
	repo.UpsertMeter(ctx, "a", "10.0.0.1", false) //nolint:errcheck
	repo.UpsertMeter(ctx, "c", "10.0.0.3", true)  //nolint:errcheck

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 2 || active[0].Name != "b" || active[1].Name != "c" {
		t.Errorf("ListActive() = %+v, want [b c] in insertion order", active)
	}

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 3 || all[0].Name != "a" {
		t.Errorf("ListAll() = %+v, want 3 sorted by name", all)
	}
}

func TestSQLiteRepository_GetByNameNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	if _, err := repo.GetByName(context.Background(), "ghost"); !errors.Is(err, ErrMeterNotFound) {
		t.Errorf("GetByName() error = %v, want ErrMeterNotFound", err)
	}
}

func TestSQLiteRepository_InsertReadings(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	a, _ := repo.UpsertMeter(ctx, "a", "10.0.0.1", true)
	b, _ := repo.UpsertMeter(ctx, "b", "10.0.0.2", true)

	err := repo.InsertReadings(ctx, []Reading{
		{MeterID: a.ID, IntervalStart: "2026-03-01 10:00:00", IntervalLength: 900, ConsumptionWh: 12.5},
		{MeterID: b.ID, IntervalStart: "2026-03-01 10:00:00", IntervalLength: 900, ConsumptionWh: 3},
		{MeterID: a.ID, IntervalStart: "2026-03-01 10:15:00", IntervalLength: 900, ConsumptionWh: 7.25},
	})
	if err != nil {
		t.Fatalf("InsertReadings() error = %v", err)
	}

	got, err := repo.ReadingsSince(ctx, a.ID, "2026-03-01 00:00:00")
	if err != nil {
		t.Fatalf("ReadingsSince() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadingsSince() len = %d, want 2", len(got))
	}
	if got[0].MeterName != "a" || got[0].ConsumptionWh != 12.5 || got[1].IntervalStart != "2026-03-01 10:15:00" {
		t.Errorf("ReadingsSince() = %+v", got)
	}

	if err := repo.InsertReadings(ctx, nil); err != nil {
		t.Errorf("InsertReadings(nil) error = %v", err)
	}
}

func TestSQLiteRepository_InsertReadingsChunks(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	m, _ := repo.UpsertMeter(ctx, "bulk", "10.0.0.1", true)

	readings := make([]Reading, maxReadingsPerInsert*2+7)
	for i := range readings {
		readings[i] = Reading{
			MeterID:        m.ID,
			IntervalStart:  fmt.Sprintf("2026-01-01 00:%02d:%02d", i/60%60, i%60),
			IntervalLength: 900,
			ConsumptionWh:  1,
		}
	}
	if err := repo.InsertReadings(ctx, readings); err != nil {
		t.Fatalf("InsertReadings() error = %v", err)
	}

	got, err := repo.ReadingsSince(ctx, m.ID, "")
	if err != nil {
		t.Fatalf("ReadingsSince() error = %v", err)
	}
	if len(got) != len(readings) {
		t.Errorf("stored %d readings, want %d", len(got), len(readings))
	}
}

func TestSQLiteRepository_InsertReadingsUnknownMeter(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.InsertReadings(context.Background(), []Reading{
		{MeterID: 999, IntervalStart: "2026-03-01 10:00:00", IntervalLength: 900, ConsumptionWh: 1},
	})
	if err == nil {
		t.Error("InsertReadings() expected foreign key error")
	}
}

func TestSQLiteRepository_MarkFetched(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	m, _ := repo.UpsertMeter(ctx, "a", "10.0.0.1", true)

	if m.LastFetchedAt != nil {
		t.Fatal("LastFetchedAt should start nil")
	}
	if err := repo.MarkFetched(ctx, m.ID); err != nil {
		t.Fatalf("MarkFetched() error = %v", err)
	}

	got, err := repo.GetByName(ctx, "a")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if got.LastFetchedAt == nil || got.LastFetchedAt.IsZero() {
		t.Errorf("LastFetchedAt = %v, want set", got.LastFetchedAt)
	}

	if err := repo.MarkFetched(ctx, 12345); !errors.Is(err, ErrMeterNotFound) {
		t.Errorf("MarkFetched(unknown) error = %v, want ErrMeterNotFound", err)
	}
}
