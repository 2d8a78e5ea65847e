package occupancy

import (
	"time"
)

// HourlySample summarizes one POI's occupancy over one calendar hour.
// Hour is the bucket's END timestamp; StartCount is the occupant count
// entering the bucket and EndCount the count leaving it. Max and Min
// are the extremes observed while replaying the bucket's events,
// seeded at the pre-bucket count so an eventless bucket reports a flat
// line.
type HourlySample struct {
	POI        string
	Hour       time.Time
	StartCount int
	EndCount   int
	MaxCount   int
	MinCount   int
	Present    []string // membership at bucket end, sorted
}

// AggregateHourly replays a POI's event stream into hour-aligned
// samples, from the floor-to-hour of the first event to the
// ceil-to-hour of the last. Events must be chronological, as Project
// produces them. Empty input yields no samples.
func AggregateHourly(events []Event) []HourlySample {
	if len(events) == 0 {
		return nil
	}
	poi := events[0].POI
	start := events[0].Timestamp.Truncate(time.Hour)
	end := ceilHour(events[len(events)-1].Timestamp)

	present := make(map[string]bool)
	var samples []HourlySample
	idx := 0
	prevEnd := 0

	for bs := start; bs.Before(end); bs = bs.Add(time.Hour) {
		be := bs.Add(time.Hour)
		cur := len(present)
		maxCount, minCount := cur, cur

		for idx < len(events) && events[idx].Timestamp.Before(be) {
			ev := events[idx]
			idx++
			if ev.Timestamp.Before(bs) {
				continue
			}
			switch ev.Kind {
			case Arrival:
				present[ev.Vehicle] = true
			case Departure:
				delete(present, ev.Vehicle)
			}
			cur = len(present)
			if cur > maxCount {
				maxCount = cur
			}
			if cur < minCount {
				minCount = cur
			}
		}

		samples = append(samples, HourlySample{
			POI:        poi,
			Hour:       be,
			StartCount: prevEnd,
			EndCount:   cur,
			MaxCount:   maxCount,
			MinCount:   minCount,
			Present:    sortedVehicles(present),
		})
		prevEnd = cur
	}
	return samples
}

// ceilHour rounds t up to the next hour boundary; an exact boundary is
// returned unchanged.
func ceilHour(t time.Time) time.Time {
	floored := t.Truncate(time.Hour)
	if floored.Equal(t) {
		return t
	}
	return floored.Add(time.Hour)
}
