package storage

import (
	"context"
	"testing"
	"time"

	"fleet_watch/internal/metrics"
	"fleet_watch/internal/occupancy"
)

func openTestHistory(t *testing.T) *HistoryDB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ts(d, h int) time.Time {
	return time.Date(2026, 8, d, h, 0, 0, 0, time.UTC)
}

func TestReplaceMonth(t *testing.T) {
	db := openTestHistory(t)
	ctx := context.Background()

	first := []occupancy.Event{
		{Vehicle: "A", POI: "P", Kind: occupancy.Arrival, Timestamp: ts(11, 8), Present: []string{"A"}},
		{Vehicle: "A", POI: "P", Kind: occupancy.Departure, Timestamp: ts(11, 10), Present: nil},
	}
	firstSamples := []occupancy.HourlySample{
		{POI: "P", Hour: ts(11, 9), StartCount: 0, EndCount: 1, MaxCount: 1, MinCount: 0, Present: []string{"A"}},
	}
	if err := db.ReplaceMonth(ctx, "P", 2026, time.August, first, firstSamples); err != nil {
		t.Fatalf("first ReplaceMonth returned error: %v", err)
	}

	// Reprocessing the same month must replace, not accumulate.
	second := []occupancy.Event{
		{Vehicle: "B", POI: "P", Kind: occupancy.Arrival, Timestamp: ts(12, 8), Present: []string{"B"}},
	}
	secondSamples := []occupancy.HourlySample{
		{POI: "P", Hour: ts(12, 9), StartCount: 0, EndCount: 1, MaxCount: 1, MinCount: 0, Present: []string{"B"}},
		{POI: "P", Hour: ts(12, 10), StartCount: 1, EndCount: 1, MaxCount: 1, MinCount: 1, Present: []string{"B"}},
	}
	if err := db.ReplaceMonth(ctx, "P", 2026, time.August, second, secondSamples); err != nil {
		t.Fatalf("second ReplaceMonth returned error: %v", err)
	}

	samples, err := db.SamplesInRange(ctx, []string{"P"}, ts(1, 0), ts(31, 0))
	if err != nil {
		t.Fatalf("SamplesInRange returned error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2 (first write fully replaced)", len(samples))
	}
	if samples[0].Present[0] != "B" {
		t.Errorf("Present = %v, want [B]", samples[0].Present)
	}

	arrivals, err := db.Arrivals(ctx, []string{"P"})
	if err != nil {
		t.Fatalf("Arrivals returned error: %v", err)
	}
	if len(arrivals) != 1 || arrivals[0].Vehicle != "B" {
		t.Errorf("arrivals = %v, want the single replaced arrival of B", arrivals)
	}
}

func TestReplaceMonth_OtherMonthsUntouched(t *testing.T) {
	db := openTestHistory(t)
	ctx := context.Background()

	july := []occupancy.HourlySample{{POI: "P", Hour: time.Date(2026, 7, 20, 9, 0, 0, 0, time.UTC), EndCount: 2}}
	if err := db.ReplaceMonth(ctx, "P", 2026, time.July, nil, july); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceMonth(ctx, "P", 2026, time.August, nil, nil); err != nil {
		t.Fatal(err)
	}

	samples, err := db.SamplesInRange(ctx, []string{"P"},
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 {
		t.Errorf("len(samples) = %d, want 1 (July row survives an August replace)", len(samples))
	}
}

func TestSamplesInRange(t *testing.T) {
	db := openTestHistory(t)
	ctx := context.Background()

	samples := []occupancy.HourlySample{
		{POI: "P", Hour: ts(10, 9), EndCount: 1},
		{POI: "P", Hour: ts(11, 9), EndCount: 2},
		{POI: "P", Hour: ts(12, 9), EndCount: 3},
	}
	if err := db.ReplaceMonth(ctx, "P", 2026, time.August, nil, samples); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceMonth(ctx, "Q", 2026, time.August, nil, []occupancy.HourlySample{
		{POI: "Q", Hour: ts(11, 9), EndCount: 9},
	}); err != nil {
		t.Fatal(err)
	}

	t.Run("hour range is half open", func(t *testing.T) {
		got, err := db.SamplesInRange(ctx, []string{"P"}, ts(11, 9), ts(12, 9))
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].EndCount != 2 {
			t.Errorf("got %v, want the single 11th-of-August sample", got)
		}
	})

	t.Run("filters by poi", func(t *testing.T) {
		got, err := db.SamplesInRange(ctx, []string{"Q"}, ts(1, 0), ts(31, 0))
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].POI != "Q" {
			t.Errorf("got %v, want only Q samples", got)
		}
	})

	t.Run("no pois", func(t *testing.T) {
		got, err := db.SamplesInRange(ctx, nil, ts(1, 0), ts(31, 0))
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Errorf("got %v, want nil for empty POI list", got)
		}
	})
}

func TestUpsertDailySummary(t *testing.T) {
	db := openTestHistory(t)
	ctx := context.Background()

	s := metrics.DailySummary{Unit: "RRP", Date: ts(11, 0), MeanDwellHours: 1.5, MaintenanceHours: 2.0, TotalVehicles: 91}
	if err := db.UpsertDailySummary(ctx, s); err != nil {
		t.Fatalf("first upsert returned error: %v", err)
	}

	s.MeanDwellHours = 2.5
	if err := db.UpsertDailySummary(ctx, s); err != nil {
		t.Fatalf("second upsert returned error: %v", err)
	}

	var mean float64
	var count int
	row := db.db.QueryRow(`SELECT mean_dwell_hours, (SELECT COUNT(*) FROM daily_summary) FROM daily_summary WHERE unit = 'RRP'`)
	if err := row.Scan(&mean, &count); err != nil {
		t.Fatalf("scan summary: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1 (upsert, not insert)", count)
	}
	if mean != 2.5 {
		t.Errorf("mean_dwell_hours = %v, want 2.5", mean)
	}
}
