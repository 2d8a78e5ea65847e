package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet_watch/internal/deviation"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// LedgerDB is the PostgreSQL-backed delivered-alerts ledger.
type LedgerDB struct {
	pool *pgxpool.Pool
}

// OpenLedger opens a connection pool to PostgreSQL.
func OpenLedger(ctx context.Context, cfg PostgresConfig) (*LedgerDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &LedgerDB{pool: pool}, nil
}

// Close closes the connection pool.
func (d *LedgerDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the ledger tables.
func (d *LedgerDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS delivered_titles (
			title        TEXT PRIMARY KEY,
			delivered_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id          BIGSERIAL PRIMARY KEY,
			title       TEXT NOT NULL REFERENCES delivered_titles(title),
			vehicle     TEXT NOT NULL,
			group_name  TEXT NOT NULL,
			breakdown   TEXT,
			breach_time TIMESTAMPTZ NOT NULL,
			entry_time  TIMESTAMPTZ,
			dwell_hours DOUBLE PRECISION,
			level       INT NOT NULL,
			level_label TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_title ON alerts(title)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_vehicle ON alerts(vehicle)`,
	}
	for _, q := range queries {
		if _, err := d.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("create ledger schema: %w", err)
		}
	}
	return nil
}

// Delivered reports whether a batch with this title was already
// delivered.
func (d *LedgerDB) Delivered(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM delivered_titles WHERE title = $1)`, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check delivered title: %w", err)
	}
	return exists, nil
}

// DeliverBatch stores the batch and marks the title delivered in one
// transaction. The title's primary key is what enforces at-most-one
// delivered batch per title.
func (d *LedgerDB) DeliverBatch(ctx context.Context, title string, alerts []deviation.Alert) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin deliver: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO delivered_titles (title) VALUES ($1) ON CONFLICT (title) DO NOTHING`, title)
	if err != nil {
		return fmt.Errorf("mark title delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyDelivered
	}

	for _, a := range alerts {
		_, err := tx.Exec(ctx, `
			INSERT INTO alerts (title, vehicle, group_name, breakdown, breach_time, entry_time, dwell_hours, level, level_label)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			a.Title, a.Vehicle, a.Group, a.Breakdown, a.BreachTime, a.EntryTime, a.DwellHours, a.Level, a.LevelLabel)
		if err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit deliver: %w", err)
	}
	return nil
}
