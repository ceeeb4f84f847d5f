package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Nussi649/ShellyManager/internal/fetch"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CycleRecord is one recorded fetch cycle.
type CycleRecord struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Devices    int             `json:"devices"`
	Readings   int             `json:"readings"`
	Absent     []fetch.Absence `json:"absent,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	TotalWh    float64         `json:"total_wh"`
	Stored     bool            `json:"stored"`
}

// RecordFromResult condenses a cycle result into its history record.
func RecordFromResult(res fetch.CycleResult) CycleRecord {
	return CycleRecord{
		ID:         res.ID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Devices:    res.Devices,
		Readings:   len(res.Readings),
		Absent:     res.Absent,
		Summary:    res.Summary,
		TotalWh:    res.TotalWh,
		Stored:     res.Stored,
	}
}

// Filter controls which cycles List returns.
type Filter struct {
	Since       time.Time // optional: only cycles started at or after Since
	WithAbsence bool      // optional: only cycles where at least one meter was absent
	Limit       int       // default 50, max 200
	Offset      int       // pagination offset
}

// ListResult contains the paginated cycle history.
type ListResult struct {
	Cycles []CycleRecord `json:"cycles"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// SQLiteRepository reads and writes the cycle history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new cycle history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a cycle. An empty ID is generated.
func (r *SQLiteRepository) Record(ctx context.Context, rec *CycleRecord) error {
	if rec.ID == "" {
		rec.ID = "cyc-" + uuid.NewString()[:8]
	}

	var absentJSON *string
	if len(rec.Absent) > 0 {
		b, err := json.Marshal(rec.Absent)
		if err != nil {
			return fmt.Errorf("marshalling absences: %w", err)
		}
		s := string(b)
		absentJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fetch_cycles (id, started_at, finished_at, devices, readings, absent, summary, total_wh, stored)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StartedAt.UTC().Format(timeLayout),
		rec.FinishedAt.UTC().Format(timeLayout),
		rec.Devices, rec.Readings, absentJSON,
		rec.Summary, rec.TotalWh, boolToInt(rec.Stored),
	)
	if err != nil {
		return fmt.Errorf("inserting fetch cycle: %w", err)
	}
	return nil
}

// RecordCycle stores the history record of a cycle result.
func (r *SQLiteRepository) RecordCycle(ctx context.Context, res fetch.CycleResult) error {
	rec := RecordFromResult(res)
	return r.Record(ctx, &rec)
}

// List returns cycles matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if !filter.Since.IsZero() {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	if filter.WithAbsence {
		conditions = append(conditions, "absent IS NOT NULL")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM fetch_cycles %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting fetch cycles: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, started_at, finished_at, devices, readings, absent, summary, total_wh, stored
		 FROM fetch_cycles %s ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying fetch cycles: %w", err)
	}
	defer rows.Close()

	cycles := []CycleRecord{}
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fetch cycles: %w", err)
	}

	return &ListResult{
		Cycles: cycles,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanCycle(rows *sql.Rows) (*CycleRecord, error) {
	var rec CycleRecord
	var startedAt, finishedAt string
	var absentJSON sql.NullString
	var stored int

	if err := rows.Scan(&rec.ID, &startedAt, &finishedAt, &rec.Devices, &rec.Readings,
		&absentJSON, &rec.Summary, &rec.TotalWh, &stored); err != nil {
		return nil, fmt.Errorf("scanning fetch cycle: %w", err)
	}

	var err error
	if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
	}
	if rec.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
		return nil, fmt.Errorf("parsing finished_at %q: %w", finishedAt, err)
	}
	if absentJSON.Valid && absentJSON.String != "" {
		if err := json.Unmarshal([]byte(absentJSON.String), &rec.Absent); err != nil {
			return nil, fmt.Errorf("decoding absences of cycle %s: %w", rec.ID, err)
		}
	}
	rec.Stored = stored != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
