package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"fleet_watch/internal/deviation"
)

// NATSSink publishes alert batches and failure reports as JSON to
// per-unit subjects.
type NATSSink struct {
	nc *nats.Conn
}

// ConnectNATS connects to the given NATS server URL.
func ConnectNATS(url string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("fleet_watch"),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSink{nc: nc}, nil
}

// Close drains and closes the connection.
func (s *NATSSink) Close() {
	_ = s.nc.Drain()
}

// PublishAlerts publishes the batch to fleet.alerts.<unit>.
func (s *NATSSink) PublishAlerts(_ context.Context, unit, title string, alerts []deviation.Alert) error {
	payload, err := json.Marshal(AlertBatch{
		Unit:      unit,
		Title:     title,
		Generated: time.Now().UTC(),
		Alerts:    alerts,
	})
	if err != nil {
		return fmt.Errorf("marshal alert batch: %w", err)
	}
	if err := s.nc.Publish("fleet.alerts."+unit, payload); err != nil {
		return fmt.Errorf("publish alert batch: %w", err)
	}
	return nil
}

// PublishFailure publishes the report to fleet.failures.<unit>.
func (s *NATSSink) PublishFailure(_ context.Context, unit, stage string, cause error) error {
	payload, err := json.Marshal(FailureReport{
		Unit:     unit,
		Stage:    stage,
		Error:    cause.Error(),
		Occurred: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal failure report: %w", err)
	}
	if err := s.nc.Publish("fleet.failures."+unit, payload); err != nil {
		return fmt.Errorf("publish failure report: %w", err)
	}
	return nil
}
