// Package main provides the monitor-api trigger server.
//
// This is the long-running shell around the batch engine: an external
// scheduler POSTs to it and it runs the pipeline over the freshest
// report drop for each active unit. The engine itself stays a pure
// batch transform; this binary only adds HTTP plumbing and run
// serialization.
//
// Usage:
//
//	monitor-api [options]
//
// Options:
//
//	-config FILE        Monitoring config JSON (default: built-in units, env: FLEET_CONFIG)
//	-reports-dir DIR    Directory of per-unit report drops <unit>.jsonl (env: FLEET_REPORTS_DIR)
//	-db FILE            History database path (default: fleet_history.db, env: FLEET_DB)
//	-pg-host HOST       Ledger PostgreSQL host (empty: delivery disabled, env: POSTGRES_HOST)
//	-nats-url URL       Notification NATS server (empty: log only, env: NATS_URL)
//	-ch-host HOST       ClickHouse mirror host (empty: mirror disabled, env: CLICKHOUSE_HOST)
//	-port N             HTTP port (default: 8080)
//	-run-timeout D      Per-run deadline (default: 10m)
//
// API Endpoints:
//
//	GET  /health     Health check.
//	GET  /status     Busy flag and last run summary.
//	POST /trigger    Full run: occupancy, metrics, deviation, delivery.
//	POST /refresh    Light run: occupancy samples only.
//
// Overlapping triggers are rejected with 409; the history store cannot
// take concurrent writers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"fleet_watch/internal/api"
	"fleet_watch/internal/config"
	"fleet_watch/internal/notify"
	"fleet_watch/internal/pipeline"
	"fleet_watch/internal/storage"
	"fleet_watch/internal/visits"
)

func main() {
	cfgPath := flag.String("config", envOrDefault("FLEET_CONFIG", ""), "Monitoring config JSON")
	reportsDir := flag.String("reports-dir", envOrDefault("FLEET_REPORTS_DIR", "reports"), "Directory of per-unit report drops")
	dbPath := flag.String("db", envOrDefault("FLEET_DB", "fleet_history.db"), "History database path")
	pause := flag.Duration("pause", 30*time.Second, "Pause between units")

	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", ""), "Ledger PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "Ledger PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "fleet"), "Ledger PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "fleet"), "Ledger PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "fleet_ledger"), "Ledger PostgreSQL database")

	natsURL := flag.String("nats-url", envOrDefault("NATS_URL", ""), "Notification NATS server URL")

	chHost := flag.String("ch-host", envOrDefault("CLICKHOUSE_HOST", ""), "ClickHouse mirror host")
	chPort := flag.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse mirror port")
	chUser := flag.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse mirror user")
	chPassword := flag.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse mirror password")
	chDB := flag.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "fleet"), "ClickHouse mirror database")

	port := flag.Int("port", 8080, "HTTP port for trigger server")
	runTimeout := flag.Duration("run-timeout", 10*time.Minute, "Per-run deadline")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()

	history, err := storage.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = history.Close() }()

	runner := &pipeline.Runner{
		Config:  cfg,
		History: history,
		Pause:   *pause,
	}

	if *pgHost != "" {
		ledger, err := storage.OpenLedger(ctx, storage.PostgresConfig{
			Host: *pgHost, Port: *pgPort, User: *pgUser, Password: *pgPassword, Database: *pgDB,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
			os.Exit(1)
		}
		defer ledger.Close()
		if err := ledger.CreateSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to prepare ledger schema: %v\n", err)
			os.Exit(1)
		}
		runner.Ledger = ledger
	}

	if *chHost != "" {
		mirror, err := storage.OpenMirror(ctx, storage.ClickHouseConfig{
			Host: *chHost, Port: *chPort, User: *chUser, Password: *chPassword, Database: *chDB,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open mirror: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = mirror.Close() }()
		if err := mirror.CreateSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to prepare mirror schema: %v\n", err)
			os.Exit(1)
		}
		runner.Mirror = mirror
	}

	if *natsURL != "" {
		sink, err := notify.ConnectNATS(*natsURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect notification sink: %v\n", err)
			os.Exit(1)
		}
		defer sink.Close()
		runner.Sink = sink
	}

	server := api.NewServer(runner, dirSource(cfg, *reportsDir), api.Config{
		Port:    *port,
		Timeout: *runTimeout,
	})

	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// dirSource reads the latest report drop for each active unit from
// <dir>/<unit>.jsonl. A unit with no drop is skipped, not failed: the
// portal exporter runs on its own schedule and may lag a trigger.
func dirSource(cfg *config.Config, dir string) api.ReportSource {
	return func(ctx context.Context) (map[string][]visits.RawVisit, error) {
		reports := make(map[string][]visits.RawVisit)
		for _, unit := range cfg.ActiveUnits() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(dir, unit.Name+".jsonl")
			f, err := os.Open(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("open report %s: %w", path, err)
			}
			rows, err := visits.ReadJSONL(f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("read report %s: %w", path, err)
			}
			reports[unit.Name] = rows
		}
		return reports, nil
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
