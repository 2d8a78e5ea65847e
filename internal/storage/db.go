// Package storage persists the occupancy history and the
// delivered-alerts ledger behind narrow interfaces, so the pipeline
// never talks to a concrete backend directly.
package storage

import (
	"context"
	"errors"
	"time"

	"fleet_watch/internal/deviation"
	"fleet_watch/internal/metrics"
	"fleet_watch/internal/occupancy"
)

// ErrAlreadyDelivered is returned by Ledger.DeliverBatch when the
// title has already been delivered; the ledger guarantees at most one
// delivered batch per title.
var ErrAlreadyDelivered = errors.New("alert title already delivered")

// History is the read/write contract for the occupancy time series.
// An empty read result means "no history", never an error.
type History interface {
	// ReplaceMonth atomically replaces all events and samples stored
	// for the exact (POI, year, month) with the given rows. Either the
	// whole replacement becomes visible or none of it does.
	ReplaceMonth(ctx context.Context, poi string, year int, month time.Month, events []occupancy.Event, samples []occupancy.HourlySample) error

	// SamplesInRange returns the hourly samples of the given POIs with
	// hour in [from, to).
	SamplesInRange(ctx context.Context, pois []string, from, to time.Time) ([]occupancy.HourlySample, error)

	// Arrivals returns the full arrival-event history for the given
	// POIs, without membership snapshots.
	Arrivals(ctx context.Context, pois []string) ([]occupancy.Event, error)

	// UpsertDailySummary inserts or overwrites the daily operational
	// summary for (unit, date).
	UpsertDailySummary(ctx context.Context, s metrics.DailySummary) error

	Close() error
}

// Ledger records which alert titles have been delivered and stores the
// delivered alert rows.
type Ledger interface {
	// Delivered reports whether a batch with this title was already
	// delivered.
	Delivered(ctx context.Context, title string) (bool, error)

	// DeliverBatch stores the batch and marks the title delivered.
	// Returns ErrAlreadyDelivered without storing anything when the
	// title is already marked.
	DeliverBatch(ctx context.Context, title string, alerts []deviation.Alert) error
}
