package deviation

import (
	"math"
	"time"

	"fleet_watch/internal/occupancy"
)

// Enrich fills each alert's originating entry time and elapsed dwell
// from the full arrival-event history of the alert's group. The most
// recent arrival of the vehicle at or before the breach hour wins;
// dwell is (now - entry) in hours with 2-decimal rounding. Alerts with
// no matching arrival keep nil entry and dwell. History is read only.
func Enrich(alerts []Alert, arrivals []occupancy.Event, now time.Time) {
	for i := range alerts {
		a := &alerts[i]
		var best time.Time
		for _, ev := range arrivals {
			if ev.Kind != occupancy.Arrival || ev.Vehicle != a.Vehicle {
				continue
			}
			if ev.Timestamp.After(a.BreachTime) {
				continue
			}
			if ev.Timestamp.After(best) {
				best = ev.Timestamp
			}
		}
		if best.IsZero() {
			continue
		}
		entry := best
		dwell := math.Round(now.Sub(entry).Hours()*100) / 100
		a.EntryTime = &entry
		a.DwellHours = &dwell
	}
}
