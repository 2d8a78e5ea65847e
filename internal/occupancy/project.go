// Package occupancy reconstructs per-POI occupancy over time: a stay
// table becomes a chronological arrival/departure event stream, and
// the stream becomes hour-aligned occupancy samples.
package occupancy

import (
	"sort"
	"strings"
	"time"

	"fleet_watch/internal/stays"
)

// EventKind distinguishes arrivals from departures.
type EventKind string

const (
	Departure EventKind = "departure"
	Arrival   EventKind = "arrival"
)

// Event is one occupancy event at a POI. Present is the set of
// vehicles inside the geofence immediately after the event, sorted.
type Event struct {
	Vehicle   string
	POI       string
	Kind      EventKind
	Timestamp time.Time
	Present   []string
}

// stillPresentPhrases mark visits whose exit is an artifact of the
// reporting-window cutoff, not a real departure. The phrases are
// matched case-insensitively against the observation text and carry
// the report's source language verbatim.
var stillPresentPhrases = []string{
	"permaneceu no poi após o fim do período pesquisado",
	"permaneceu no poi após o fim do período",
	"ainda permanece no local",
	"continua no ponto de interesse",
	"período pesquisado finalizado",
	"veículo permaneceu no poi",
}

// StillPresent reports whether the observation says the vehicle was
// still inside the POI when the report window closed.
func StillPresent(observation string) bool {
	obs := strings.ToLower(strings.TrimSpace(observation))
	if obs == "" {
		return false
	}
	for _, phrase := range stillPresentPhrases {
		if strings.Contains(obs, phrase) {
			return true
		}
	}
	return false
}

// Project converts one POI's stays into its chronological occupancy
// event stream. Every stay yields an arrival at its entry; it yields a
// departure at its exit unless the observation marks the vehicle as
// still present, in which case the departure is dropped entirely.
// Events with a zero timestamp are discarded.
//
// Ordering at equal timestamps: departures before arrivals, then by
// vehicle. Freeing a slot before filling one keeps the momentary count
// from overstating occupancy when a swap happens in the same instant.
//
// A departure for a vehicle not currently present has no effect on the
// membership set. Empty input yields an empty stream, not an error.
func Project(poi string, st []stays.Stay) []Event {
	var events []Event
	for _, s := range st {
		if s.POI != poi {
			continue
		}
		if !s.EntryTime.IsZero() {
			events = append(events, Event{Vehicle: s.Vehicle, POI: poi, Kind: Arrival, Timestamp: s.EntryTime})
		}
		if s.ExitTime.IsZero() || StillPresent(s.Observation) {
			continue
		}
		events = append(events, Event{Vehicle: s.Vehicle, POI: poi, Kind: Departure, Timestamp: s.ExitTime})
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Kind != b.Kind {
			return a.Kind == Departure
		}
		return a.Vehicle < b.Vehicle
	})

	present := make(map[string]bool)
	for i := range events {
		switch events[i].Kind {
		case Arrival:
			present[events[i].Vehicle] = true
		case Departure:
			delete(present, events[i].Vehicle)
		}
		events[i].Present = sortedVehicles(present)
	}
	return events
}

func sortedVehicles(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
