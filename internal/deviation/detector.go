// Package deviation spots vehicle accumulation across a POI group's
// occupancy series and turns it into escalating, idempotent alerts.
package deviation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"fleet_watch/internal/occupancy"
)

// LookbackDays is the detection window: the most recent four calendar
// days, inclusive of today.
const LookbackDays = 4

// LookbackStart returns the start of the detection window for a run
// happening at now: midnight of the oldest day still in range.
func LookbackStart(now time.Time) time.Time {
	day := now.Truncate(24 * time.Hour)
	return day.AddDate(0, 0, -(LookbackDays - 1))
}

// GroupSample is the per-hour consolidation of a group's POIs: the
// union of vehicles present across the group at that hour, with a
// per-POI contribution breakdown.
type GroupSample struct {
	Group     string
	Hour      time.Time
	Vehicles  []string // union across POIs, sorted
	Breakdown string   // e.g. "PA Agua Clara(2) + Oficina JSL(1)"
	POICount  int      // POIs contributing at this hour
}

// Consolidate merges the hourly samples of a group's POIs into one
// GroupSample per hour, ascending by hour. Samples from the same hour
// union their membership; a POI contributes to the breakdown only when
// it holds at least one vehicle.
func Consolidate(group string, samples []occupancy.HourlySample) []GroupSample {
	byHour := make(map[time.Time][]occupancy.HourlySample)
	for _, s := range samples {
		byHour[s.Hour] = append(byHour[s.Hour], s)
	}

	out := make([]GroupSample, 0, len(byHour))
	for hour, hs := range byHour {
		sort.Slice(hs, func(i, j int) bool { return hs[i].POI < hs[j].POI })

		union := make(map[string]bool)
		var parts []string
		for _, s := range hs {
			if len(s.Present) > 0 {
				parts = append(parts, fmt.Sprintf("%s(%d)", s.POI, len(s.Present)))
			}
			for _, v := range s.Present {
				union[v] = true
			}
		}

		vehicles := make([]string, 0, len(union))
		for v := range union {
			vehicles = append(vehicles, v)
		}
		sort.Strings(vehicles)

		out = append(out, GroupSample{
			Group:     group,
			Hour:      hour,
			Vehicles:  vehicles,
			Breakdown: strings.Join(parts, " + "),
			POICount:  len(hs),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out
}

// FlagHours keeps the hours whose consolidated vehicle count reaches
// the group's threshold, ascending by hour. An empty result is the
// expected common case, not an error.
func FlagHours(samples []GroupSample, threshold int) []GroupSample {
	var out []GroupSample
	for _, s := range samples {
		if len(s.Vehicles) >= threshold {
			out = append(out, s)
		}
	}
	return out
}
