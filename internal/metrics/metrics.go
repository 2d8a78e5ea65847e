// Package metrics computes the daily operational summary derived from
// the treated stay table: mean dwell time at the unit's focus POI and
// total maintenance hours for a reference date.
package metrics

import (
	"math"
	"time"

	"fleet_watch/internal/stays"
)

// DailySummary is the per-unit, per-date operational rollup persisted
// alongside the occupancy series.
type DailySummary struct {
	Unit             string
	Date             time.Time // midnight of the reference day
	MeanDwellHours   float64
	MaintenanceHours float64
	TotalVehicles    int
}

// BuildDailySummary rolls one unit's stay table up for a reference
// date.
func BuildDailySummary(unit string, date time.Time, st []stays.Stay, focusPOI string, totalVehicles int) DailySummary {
	return DailySummary{
		Unit:             unit,
		Date:             date.Truncate(24 * time.Hour),
		MeanDwellHours:   MeanDwell(st, focusPOI, date),
		MaintenanceHours: MaintenanceHours(st, date),
		TotalVehicles:    totalVehicles,
	}
}

// MeanDwell returns the average stay duration at a POI for stays
// entered on the given date, 2-decimal rounding. No stays means zero.
func MeanDwell(st []stays.Stay, poi string, day time.Time) float64 {
	var sum float64
	n := 0
	for _, s := range st {
		if s.POI == poi && sameDay(s.EntryTime, day) {
			sum += s.DurationHours
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round2(sum / float64(n))
}

// MaintenanceHours sums the durations of maintenance stays that both
// begin and end on the given date.
func MaintenanceHours(st []stays.Stay, day time.Time) float64 {
	var sum float64
	for _, s := range st {
		if s.Group == stays.GroupMaintenance && sameDay(s.EntryTime, day) && sameDay(s.ExitTime, day) {
			sum += s.DurationHours
		}
	}
	return round2(sum)
}

func sameDay(t, day time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
