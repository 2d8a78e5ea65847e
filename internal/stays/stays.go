// Package stays reconstructs continuous stays from raw visit records
// and computes transit service-level metrics between complementary
// POI groups.
package stays

import (
	"math"
	"time"

	"fleet_watch/internal/visits"
)

// Group is the logical category a POI belongs to.
type Group string

const (
	GroupLoading         Group = "Loading"
	GroupFactoryLoading  Group = "FactoryLoading"
	GroupUnloading       Group = "Unloading"
	GroupTerminal        Group = "Terminal"
	GroupMaintenance     Group = "Maintenance"
	GroupOperationalStop Group = "OperationalStop"
	GroupOther           Group = "Other"
)

// ParseGroup maps a configured group name onto a Group. Unknown names
// degrade to GroupOther rather than failing the run.
func ParseGroup(s string) Group {
	switch Group(s) {
	case GroupLoading, GroupFactoryLoading, GroupUnloading, GroupTerminal,
		GroupMaintenance, GroupOperationalStop:
		return Group(s)
	}
	return GroupOther
}

// loading groups open a loaded transit; unloading groups close it.
// The factory and terminal variants are treated as equivalent to the
// primary loading and unloading groups.
func (g Group) isLoading() bool   { return g == GroupLoading || g == GroupFactoryLoading }
func (g Group) isUnloading() bool { return g == GroupUnloading || g == GroupTerminal }

// Stay is one continuous interval a vehicle spends at a POI after
// merging consecutive raw visits.
type Stay struct {
	Vehicle       string
	POI           string
	Group         Group
	EntryTime     time.Time
	ExitTime      time.Time
	DurationHours float64 // (exit - entry) in hours, 5-decimal rounding

	// Transit metrics filled by ComputeTransits.
	LoadedTransitHours float64
	EmptyTransitHours  float64
	Annotation         string

	// Observation carries the free text of the first merged visit.
	Observation string
}

// Aggregate merges consecutive raw visits of the same vehicle at the
// same POI into single stays. Rows must already be filtered to
// monitored POIs and sorted by (vehicle, entry time); Aggregate is a
// pure scan over that order.
//
// groups maps POI names to configured group names; unmapped POIs
// classify as Other.
func Aggregate(rows []visits.RawVisit, groups map[string]string) []Stay {
	var out []Stay
	i := 0
	for i < len(rows) {
		cur := rows[i]
		exit := cur.ExitTime.Time

		j := i + 1
		for j < len(rows) && rows[j].Vehicle == cur.Vehicle && rows[j].POI == cur.POI {
			exit = rows[j].ExitTime.Time
			j++
		}

		out = append(out, Stay{
			Vehicle:       cur.Vehicle,
			POI:           cur.POI,
			Group:         ParseGroup(groups[cur.POI]),
			EntryTime:     cur.EntryTime.Time,
			ExitTime:      exit,
			DurationHours: RoundHours(exit.Sub(cur.EntryTime.Time)),
			Observation:   cur.Observation,
		})
		i = j
	}
	return out
}

// RoundHours converts a duration to hours with 5-decimal rounding, the
// fixed precision of the stay table.
func RoundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*1e5) / 1e5
}
