// Command-line entry point for the fleet POI analytics engine.
//
// The engine is a batch transform: a materialized raw visit report
// (JSONL, one visit per line) goes in, and out come the treated stay
// table's occupancy series plus, on a full run, deviation alerts.
// Report acquisition, the shared store, and alert delivery are all
// external collaborators wired in via flags.
//
// Two run modes exist, matching the two external schedules:
//
//	run      - full pipeline: occupancy refresh, daily metrics,
//	           deviation detection, escalation and delivery
//	refresh  - light pipeline: occupancy samples only
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"fleet_watch/internal/config"
	"fleet_watch/internal/notify"
	"fleet_watch/internal/pipeline"
	"fleet_watch/internal/storage"
	"fleet_watch/internal/visits"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "fleet_watch - POI occupancy analytics and deviation alerting")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fleet_watch run     -unit RRP -input report.jsonl [options]")
	fmt.Fprintln(w, "  fleet_watch refresh -unit RRP -input report.jsonl [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -config FILE        Monitoring config JSON (default: built-in units)")
	fmt.Fprintln(w, "  -unit NAME          Logistics unit the report belongs to (required)")
	fmt.Fprintln(w, "  -input FILE         Raw visit report JSONL (default: stdin)")
	fmt.Fprintln(w, "  -db FILE            History database path (default: fleet_history.db)")
	fmt.Fprintln(w, "  -pg-host HOST       Ledger PostgreSQL host (empty: delivery disabled)")
	fmt.Fprintln(w, "  -nats-url URL       Notification NATS server (empty: log only)")
	fmt.Fprintln(w, "  -ch-host HOST       ClickHouse mirror host (empty: mirror disabled)")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "run":
		runPipeline(os.Args[2:], true)
	case "refresh":
		runPipeline(os.Args[2:], false)
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runPipeline(args []string, full bool) {
	name := "refresh"
	if full {
		name = "run"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgPath := fs.String("config", envOrDefault("FLEET_CONFIG", ""), "Monitoring config JSON")
	unitName := fs.String("unit", envOrDefault("FLEET_UNIT", ""), "Logistics unit")
	inPath := fs.String("input", "", "Raw visit report JSONL (default: stdin)")
	dbPath := fs.String("db", envOrDefault("FLEET_DB", "fleet_history.db"), "History database path")
	pause := fs.Duration("pause", 30*time.Second, "Pause between units")

	pgHost := fs.String("pg-host", envOrDefault("POSTGRES_HOST", ""), "Ledger PostgreSQL host")
	pgPort := fs.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "Ledger PostgreSQL port")
	pgUser := fs.String("pg-user", envOrDefault("POSTGRES_USER", "fleet"), "Ledger PostgreSQL user")
	pgPassword := fs.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "fleet"), "Ledger PostgreSQL password")
	pgDB := fs.String("pg-database", envOrDefault("POSTGRES_DATABASE", "fleet_ledger"), "Ledger PostgreSQL database")

	natsURL := fs.String("nats-url", envOrDefault("NATS_URL", ""), "Notification NATS server URL")

	chHost := fs.String("ch-host", envOrDefault("CLICKHOUSE_HOST", ""), "ClickHouse mirror host")
	chPort := fs.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse mirror port")
	chUser := fs.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse mirror user")
	chPassword := fs.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse mirror password")
	chDB := fs.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "fleet"), "ClickHouse mirror database")
	_ = fs.Parse(args)

	if *unitName == "" {
		fmt.Fprintln(os.Stderr, "-unit is required")
		os.Exit(2)
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if _, ok := cfg.Unit(*unitName); !ok {
		fmt.Fprintf(os.Stderr, "Unknown unit: %s\n", *unitName)
		os.Exit(1)
	}

	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}
	rows, err := visits.ReadJSONL(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read report: %v\n", err)
		os.Exit(1)
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

	if full && *pgHost != "" {
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

	reports := map[string][]visits.RawVisit{*unitName: rows}
	var summary *pipeline.RunSummary
	if full {
		summary = runner.Run(ctx, reports)
	} else {
		summary = runner.Refresh(ctx, reports)
	}

	if summary.Failed() {
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
