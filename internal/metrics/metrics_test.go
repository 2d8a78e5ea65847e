package metrics

import (
	"testing"
	"time"

	"fleet_watch/internal/stays"
)

func day(d, h, m int) time.Time {
	return time.Date(2026, 8, d, h, m, 0, 0, time.UTC)
}

func TestMeanDwell(t *testing.T) {
	st := []stays.Stay{
		{POI: "PA Agua Clara", EntryTime: day(11, 8, 0), DurationHours: 2.0},
		{POI: "PA Agua Clara", EntryTime: day(11, 14, 0), DurationHours: 3.0},
		{POI: "PA Agua Clara", EntryTime: day(12, 8, 0), DurationHours: 9.0}, // wrong day
		{POI: "Oficina JSL", EntryTime: day(11, 8, 0), DurationHours: 9.0},   // wrong POI
	}

	got := MeanDwell(st, "PA Agua Clara", day(11, 0, 0))
	if got != 2.5 {
		t.Errorf("MeanDwell = %v, want 2.5", got)
	}

	if got := MeanDwell(nil, "PA Agua Clara", day(11, 0, 0)); got != 0 {
		t.Errorf("MeanDwell with no stays = %v, want 0", got)
	}
}

func TestMaintenanceHours(t *testing.T) {
	st := []stays.Stay{
		{Group: stays.GroupMaintenance, EntryTime: day(11, 8, 0), ExitTime: day(11, 10, 0), DurationHours: 2.0},
		{Group: stays.GroupMaintenance, EntryTime: day(11, 9, 0), ExitTime: day(11, 9, 30), DurationHours: 0.5},
		// Spans midnight: excluded, both ends must land on the day.
		{Group: stays.GroupMaintenance, EntryTime: day(11, 22, 0), ExitTime: day(12, 2, 0), DurationHours: 4.0},
		{Group: stays.GroupLoading, EntryTime: day(11, 8, 0), ExitTime: day(11, 10, 0), DurationHours: 2.0},
	}

	got := MaintenanceHours(st, day(11, 0, 0))
	if got != 2.5 {
		t.Errorf("MaintenanceHours = %v, want 2.5", got)
	}
}

func TestBuildDailySummary(t *testing.T) {
	st := []stays.Stay{
		{POI: "PA Agua Clara", EntryTime: day(11, 8, 0), DurationHours: 1.0},
		{Group: stays.GroupMaintenance, EntryTime: day(11, 9, 0), ExitTime: day(11, 11, 0), DurationHours: 2.0},
	}
	s := BuildDailySummary("RRP", day(11, 15, 30), st, "PA Agua Clara", 91)

	if s.Unit != "RRP" {
		t.Errorf("Unit = %q, want RRP", s.Unit)
	}
	if s.Date.Hour() != 0 || s.Date.Day() != 11 {
		t.Errorf("Date = %v, want midnight of the reference day", s.Date)
	}
	if s.MeanDwellHours != 1.0 {
		t.Errorf("MeanDwellHours = %v, want 1.0", s.MeanDwellHours)
	}
	if s.MaintenanceHours != 2.0 {
		t.Errorf("MaintenanceHours = %v, want 2.0", s.MaintenanceHours)
	}
	if s.TotalVehicles != 91 {
		t.Errorf("TotalVehicles = %d, want 91", s.TotalVehicles)
	}
}
