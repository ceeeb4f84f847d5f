package meter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines meter and reading persistence.
// It is both the registry's Source and the fetch cycle's sink.
type Repository interface {
	Source

	// ListAll returns every meter, active or not, ordered by name.
	ListAll(ctx context.Context) ([]Meter, error)

	// GetByName returns ErrMeterNotFound when no meter has that name.
	GetByName(ctx context.Context, name string) (*Meter, error)

	// UpsertMeter inserts a meter or updates address/active by name.
	UpsertMeter(ctx context.Context, name, address string, active bool) (*Meter, error)

	// InsertReadings stores the readings in one multi-row statement.
	InsertReadings(ctx context.Context, readings []Reading) error

	// MarkFetched sets last_fetched_at to the database's current time.
	MarkFetched(ctx context.Context, meterID int64) error
}

// sqliteTimeLayout is the format produced by SQLite's datetime('now').
const sqliteTimeLayout = "2006-01-02 15:04:05"

// maxReadingsPerInsert keeps one statement under SQLite's bound-parameter limit.
const maxReadingsPerInsert = 200

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const meterColumns = `id, name, address, active, last_fetched_at, created_at, updated_at`

// ListActive returns active meters in insertion (id) order.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]Meter, error) {
	return r.queryMeters(ctx, `SELECT `+meterColumns+` FROM meters WHERE active = 1 ORDER BY id`)
}

// ListAll returns every meter ordered by name.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]Meter, error) {
	return r.queryMeters(ctx, `SELECT `+meterColumns+` FROM meters ORDER BY name`)
}

// GetByName retrieves a meter by its unique name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Meter, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+meterColumns+` FROM meters WHERE name = ?`, name)
	m, err := scanMeter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMeterNotFound
		}
		return nil, fmt.Errorf("querying meter %q: %w", name, err)
	}
	return m, nil
}

// UpsertMeter inserts the meter or, when the name exists, updates its
// address and active flag.
func (r *SQLiteRepository) UpsertMeter(ctx context.Context, name, address string, active bool) (*Meter, error) {
	if err := (Meter{Name: name, Address: address}).Validate(); err != nil {
		return nil, err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO meters (name, address, active)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			address    = excluded.address,
			active     = excluded.active,
			updated_at = CASE
				WHEN meters.address != excluded.address OR meters.active != excluded.active
				THEN datetime('now') ELSE meters.updated_at END`,
		name, address, boolToInt(active),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting meter %q: %w", name, err)
	}
	return r.GetByName(ctx, name)
}

// InsertReadings stores readings with multi-row INSERT statements.
// An empty slice is a no-op.
func (r *SQLiteRepository) InsertReadings(ctx context.Context, readings []Reading) error {
	for start := 0; start < len(readings); start += maxReadingsPerInsert {
		end := min(start+maxReadingsPerInsert, len(readings))
		if err := r.insertChunk(ctx, readings[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) insertChunk(ctx context.Context, readings []Reading) error {
	var b strings.Builder
	b.WriteString(`INSERT INTO readings (meter_id, interval_start, interval_length, consumption_wh) VALUES `)

	args := make([]any, 0, len(readings)*4)
	for i, rd := range readings {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?)")
		args = append(args, rd.MeterID, rd.IntervalStart, rd.IntervalLength, rd.ConsumptionWh)
	}

	if _, err := r.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("inserting %d readings: %w", len(readings), err)
	}
	return nil
}

// MarkFetched sets last_fetched_at to now for the meter.
// Returns ErrMeterNotFound if no row was updated.
func (r *SQLiteRepository) MarkFetched(ctx context.Context, meterID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE meters SET last_fetched_at = datetime('now') WHERE id = ?`, meterID)
	if err != nil {
		return fmt.Errorf("marking meter %d fetched: %w", meterID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking meter %d fetched: %w", meterID, err)
	}
	if n == 0 {
		return ErrMeterNotFound
	}
	return nil
}

// ReadingsSince returns stored readings of one meter whose interval starts
// at or after since (a localised "YYYY-MM-DD HH:MM:SS" string), oldest first.
func (r *SQLiteRepository) ReadingsSince(ctx context.Context, meterID int64, since string) ([]Reading, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.meter_id, m.name, r.interval_start, r.interval_length, r.consumption_wh
		FROM readings r JOIN meters m ON m.id = r.meter_id
		WHERE r.meter_id = ? AND r.interval_start >= ?
		ORDER BY r.interval_start, r.id`, meterID, since)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var rd Reading
		if err := rows.Scan(&rd.MeterID, &rd.MeterName, &rd.IntervalStart, &rd.IntervalLength, &rd.ConsumptionWh); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) queryMeters(ctx context.Context, query string, args ...any) ([]Meter, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying meters: %w", err)
	}
	defer rows.Close()

	var meters []Meter
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning meter: %w", err)
		}
		meters = append(meters, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating meters: %w", err)
	}
	return meters, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeter(row rowScanner) (*Meter, error) {
	var (
		m                    Meter
		active               int
		lastFetched          sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Address, &active, &lastFetched, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.Active = active != 0
	m.CreatedAt = parseSQLiteTime(createdAt)
	m.UpdatedAt = parseSQLiteTime(updatedAt)
	if lastFetched.Valid {
		t := parseSQLiteTime(lastFetched.String)
		m.LastFetchedAt = &t
	}
	return &m, nil
}

// parseSQLiteTime parses datetime('now') output (UTC). Unparseable values yield the zero time.
func parseSQLiteTime(s string) time.Time {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
