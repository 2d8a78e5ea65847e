package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fleet_watch/internal/metrics"
	"fleet_watch/internal/occupancy"
)

// HistoryDB is the SQLite-backed History store. Timestamps are stored
// as RFC 3339 UTC text so range predicates compare lexicographically.
type HistoryDB struct {
	db *sql.DB
}

// Open opens or creates the history database at the given path. An
// empty path or ":memory:" opens an in-memory database.
func Open(path string) (*HistoryDB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := createHistorySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &HistoryDB{db: db}, nil
}

// Close closes the database connection.
func (d *HistoryDB) Close() error {
	return d.db.Close()
}

func createHistorySchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS occupancy_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		poi TEXT NOT NULL,
		vehicle TEXT NOT NULL,
		kind TEXT NOT NULL,
		ts TEXT NOT NULL,
		present TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_poi_ts ON occupancy_events(poi, ts);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON occupancy_events(kind);

	CREATE TABLE IF NOT EXISTS hourly_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		poi TEXT NOT NULL,
		hour TEXT NOT NULL,
		start_count INTEGER NOT NULL,
		end_count INTEGER NOT NULL,
		max_count INTEGER NOT NULL,
		min_count INTEGER NOT NULL,
		present TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_samples_poi_hour ON hourly_samples(poi, hour);

	CREATE TABLE IF NOT EXISTS daily_summary (
		unit TEXT NOT NULL,
		date TEXT NOT NULL,
		mean_dwell_hours REAL NOT NULL,
		maintenance_hours REAL NOT NULL,
		total_vehicles INTEGER NOT NULL,
		updated_at TEXT DEFAULT (datetime('now')),
		PRIMARY KEY (unit, date)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// ReplaceMonth replaces the stored events and samples for the exact
// (POI, year, month) inside one transaction, so overlapping
// reprocessing windows never accumulate duplicates.
func (d *HistoryDB) ReplaceMonth(ctx context.Context, poi string, year int, month time.Month, events []occupancy.Event, samples []occupancy.HourlySample) error {
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	from, to := monthStart.Format(time.RFC3339), monthEnd.Format(time.RFC3339)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM occupancy_events WHERE poi = ? AND ts >= ? AND ts < ?`, poi, from, to); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM hourly_samples WHERE poi = ? AND hour >= ? AND hour < ?`, poi, from, to); err != nil {
		return fmt.Errorf("clear samples: %w", err)
	}

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO occupancy_events (poi, vehicle, kind, ts, present) VALUES (?, ?, ?, ?, ?)`,
			poi, ev.Vehicle, string(ev.Kind), ev.Timestamp.UTC().Format(time.RFC3339),
			strings.Join(ev.Present, ";")); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	for _, s := range samples {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hourly_samples (poi, hour, start_count, end_count, max_count, min_count, present)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			poi, s.Hour.UTC().Format(time.RFC3339), s.StartCount, s.EndCount, s.MaxCount, s.MinCount,
			strings.Join(s.Present, ";")); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// SamplesInRange returns hourly samples for the given POIs with hour
// in [from, to), ascending by hour.
func (d *HistoryDB) SamplesInRange(ctx context.Context, pois []string, from, to time.Time) ([]occupancy.HourlySample, error) {
	if len(pois) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT poi, hour, start_count, end_count, max_count, min_count, present
		FROM hourly_samples
		WHERE poi IN (%s) AND hour >= ? AND hour < ?
		ORDER BY hour, poi`, placeholders(len(pois)))

	args := make([]interface{}, 0, len(pois)+2)
	for _, p := range pois {
		args = append(args, p)
	}
	args = append(args, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []occupancy.HourlySample
	for rows.Next() {
		var s occupancy.HourlySample
		var hour, present string
		if err := rows.Scan(&s.POI, &hour, &s.StartCount, &s.EndCount, &s.MaxCount, &s.MinCount, &present); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.Hour, err = time.Parse(time.RFC3339, hour)
		if err != nil {
			return nil, fmt.Errorf("parse sample hour: %w", err)
		}
		s.Present = splitVehicles(present)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Arrivals returns the full arrival history for the given POIs,
// ascending by timestamp.
func (d *HistoryDB) Arrivals(ctx context.Context, pois []string) ([]occupancy.Event, error) {
	if len(pois) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT poi, vehicle, ts
		FROM occupancy_events
		WHERE kind = 'arrival' AND poi IN (%s)
		ORDER BY ts`, placeholders(len(pois)))

	args := make([]interface{}, 0, len(pois))
	for _, p := range pois {
		args = append(args, p)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query arrivals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []occupancy.Event
	for rows.Next() {
		ev := occupancy.Event{Kind: occupancy.Arrival}
		var ts string
		if err := rows.Scan(&ev.POI, &ev.Vehicle, &ts); err != nil {
			return nil, fmt.Errorf("scan arrival: %w", err)
		}
		ev.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse arrival time: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// UpsertDailySummary inserts or overwrites the summary row for
// (unit, date).
func (d *HistoryDB) UpsertDailySummary(ctx context.Context, s metrics.DailySummary) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO daily_summary (unit, date, mean_dwell_hours, maintenance_hours, total_vehicles, updated_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(unit, date) DO UPDATE SET
			mean_dwell_hours = excluded.mean_dwell_hours,
			maintenance_hours = excluded.maintenance_hours,
			total_vehicles = excluded.total_vehicles,
			updated_at = datetime('now')`,
		s.Unit, s.Date.UTC().Format("2006-01-02"), s.MeanDwellHours, s.MaintenanceHours, s.TotalVehicles)
	if err != nil {
		return fmt.Errorf("upsert daily summary: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func splitVehicles(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ";")
}
