// Package notify delivers rendered alert batches and failure reports
// to an out-of-band sink. Delivery failures never roll back persisted
// computation; the pipeline logs them and moves on.
package notify

import (
	"context"
	"log"
	"time"

	"fleet_watch/internal/deviation"
)

// Sink accepts alert batches and failure reports for out-of-band
// delivery.
type Sink interface {
	PublishAlerts(ctx context.Context, unit, title string, alerts []deviation.Alert) error
	PublishFailure(ctx context.Context, unit, stage string, cause error) error
	Close()
}

// AlertBatch is the wire form of a delivered batch.
type AlertBatch struct {
	Unit      string            `json:"unit"`
	Title     string            `json:"title"`
	Generated time.Time         `json:"generated"`
	Alerts    []deviation.Alert `json:"alerts"`
}

// FailureReport is the wire form of a pipeline failure notice.
type FailureReport struct {
	Unit     string    `json:"unit"`
	Stage    string    `json:"stage"`
	Error    string    `json:"error"`
	Occurred time.Time `json:"occurred"`
}

// LogSink logs notifications instead of delivering them. Used when no
// broker is configured; it never fails.
type LogSink struct{}

func (LogSink) PublishAlerts(_ context.Context, unit, title string, alerts []deviation.Alert) error {
	log.Printf("[notify] unit=%s title=%s alerts=%d (log only)", unit, title, len(alerts))
	return nil
}

func (LogSink) PublishFailure(_ context.Context, unit, stage string, cause error) error {
	log.Printf("[notify] unit=%s stage=%s failure: %v (log only)", unit, stage, cause)
	return nil
}

func (LogSink) Close() {}
