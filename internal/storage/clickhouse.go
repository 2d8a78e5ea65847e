package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"fleet_watch/internal/occupancy"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// MirrorDB is the optional ClickHouse analytics mirror of the hourly
// occupancy series. Writes are append-only; the mirror is for ad-hoc
// analytics, not for the detector's reads.
type MirrorDB struct {
	conn driver.Conn
}

// OpenMirror opens a connection to ClickHouse.
func OpenMirror(ctx context.Context, cfg ClickHouseConfig) (*MirrorDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &MirrorDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *MirrorDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the mirror table.
func (d *MirrorDB) CreateSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS hourly_occupancy (
		poi          LowCardinality(String),
		hour         DateTime,
		start_count  UInt16,
		end_count    UInt16,
		max_count    UInt16,
		min_count    UInt16,
		present      String,
		inserted_at  DateTime DEFAULT now()
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(hour)
	ORDER BY (poi, hour)
	SETTINGS index_granularity = 8192`

	if err := d.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create mirror schema: %w", err)
	}
	return nil
}

// MirrorSamples appends a run's hourly samples to the mirror.
func (d *MirrorDB) MirrorSamples(ctx context.Context, samples []occupancy.HourlySample) error {
	if len(samples) == 0 {
		return nil
	}
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO hourly_occupancy (poi, hour, start_count, end_count, max_count, min_count, present)
	`)
	if err != nil {
		return fmt.Errorf("prepare mirror batch: %w", err)
	}
	for _, s := range samples {
		err := batch.Append(s.POI, s.Hour,
			uint16(s.StartCount), uint16(s.EndCount), uint16(s.MaxCount), uint16(s.MinCount),
			strings.Join(s.Present, ";"))
		if err != nil {
			return fmt.Errorf("append mirror row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send mirror batch: %w", err)
	}
	return nil
}
