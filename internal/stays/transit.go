package stays

import (
	"fmt"
	"strings"
)

// SLABounds carries the per-unit transit service levels with the
// tolerance buffer already applied.
type SLABounds struct {
	LoadedHours float64
	EmptyHours  float64
}

// ComputeTransits fills the loaded/empty transit metrics on each stay.
//
// For a stay in a loading group, the calculator scans forward through
// subsequent stays of the same vehicle until the first stay in an
// unloading group; the scan stops at the first stay of a different
// vehicle, and only that first match is used. If the match's entry is
// at or after the loading stay's exit, the gap is the loaded transit.
// A transit above the SLA bound gets an annotation naming the excess,
// itemizing any intervening maintenance or operational-stop hours as
// justification. The empty transit is the symmetric unloading-to-
// loading case.
//
// Stays must be in aggregation order (vehicle, entry time). The slice
// is annotated in place.
func ComputeTransits(st []Stay, bounds SLABounds) {
	for i := range st {
		switch {
		case st[i].Group.isLoading():
			computeOne(st, i, bounds.LoadedHours, "Loaded", func(g Group) bool { return g.isUnloading() },
				func(s *Stay, h float64) { s.LoadedTransitHours = h })
		case st[i].Group.isUnloading():
			computeOne(st, i, bounds.EmptyHours, "Empty", func(g Group) bool { return g.isLoading() },
				func(s *Stay, h float64) { s.EmptyTransitHours = h })
		}
	}
	for i := range st {
		st[i].Annotation = strings.TrimSpace(st[i].Annotation)
	}
}

// computeOne scans forward from st[i] for the first complementary stay
// of the same vehicle and records the transit if its entry does not
// precede st[i]'s exit. The scan always ends at the first
// complementary stay, matched or not.
func computeOne(st []Stay, i int, bound float64, label string, complement func(Group) bool, set func(*Stay, float64)) {
	cur := &st[i]
	for j := i + 1; j < len(st); j++ {
		if st[j].Vehicle != cur.Vehicle {
			return
		}
		if !complement(st[j].Group) {
			continue
		}
		if !st[j].EntryTime.Before(cur.ExitTime) {
			transit := RoundHours(st[j].EntryTime.Sub(cur.ExitTime))
			set(cur, transit)
			if transit > bound {
				maint, oper := justificationHours(st, i, j)
				if maint+oper > 0 {
					cur.Annotation += fmt.Sprintf(
						"%s transit long (%.2fh > %.2fh): %.2fh in maintenance, %.2fh in operational stop. ",
						label, transit, bound, maint, oper)
				} else {
					cur.Annotation += fmt.Sprintf(
						"%s transit long (%.2fh > %.2fh), no justification found. ",
						label, transit, bound)
				}
			}
		}
		return
	}
}

// justificationHours sums the durations of stays strictly between the
// two boundary positions that count as justification for a long
// transit: maintenance and operational stops.
func justificationHours(st []Stay, start, end int) (maintenance, operational float64) {
	for k := start + 1; k < end; k++ {
		switch st[k].Group {
		case GroupMaintenance:
			maintenance += st[k].DurationHours
		case GroupOperationalStop:
			operational += st[k].DurationHours
		}
	}
	return maintenance, operational
}
