// Package visits models the raw vehicle-visit records reported for
// geofenced points of interest. A raw report is the input to every
// analytics run; its rows are immutable once read.
package visits

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// RawVisit is one row of the raw visit report: a vehicle seen inside a
// POI geofence between entry and exit. The observation text is free
// form and carried through untouched.
type RawVisit struct {
	Vehicle     string     `json:"vehicle"`
	POI         string     `json:"poi"`
	EntryTime   ReportTime `json:"entry_time"`
	ExitTime    ReportTime `json:"exit_time"`
	Observation string     `json:"observation,omitempty"`
}

// ReportTime parses the timestamp formats seen in raw reports:
// RFC 3339 and the day-first "02/01/2006 15:04:05" layout the
// reporting portal exports.
type ReportTime struct {
	time.Time
}

const portalLayout = "02/01/2006 15:04:05"

// UnmarshalJSON accepts RFC 3339 or the portal's day-first layout.
// An empty string decodes to the zero time; validation decides whether
// that is acceptable.
func (t *ReportTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("parse report time: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = ts
		return nil
	}
	ts, err := time.Parse(portalLayout, s)
	if err != nil {
		return fmt.Errorf("parse report time %q: %w", s, err)
	}
	t.Time = ts
	return nil
}

// MarshalJSON emits RFC 3339, or an empty string for the zero time.
func (t ReportTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Format(time.RFC3339) + `"`), nil
}

// SchemaError reports a required field missing or malformed in a raw
// report. It fails the whole unit: no partial stay table is produced
// from a report that cannot be trusted.
type SchemaError struct {
	Unit  string
	Row   int
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("raw report for unit %s: row %d: missing or invalid %s", e.Unit, e.Row, e.Field)
}

// Validate checks that every row carries the fields the stay
// aggregator depends on. The first defect fails the whole unit.
func Validate(unit string, rows []RawVisit) error {
	for i, r := range rows {
		switch {
		case strings.TrimSpace(r.Vehicle) == "":
			return &SchemaError{Unit: unit, Row: i, Field: "vehicle"}
		case strings.TrimSpace(r.POI) == "":
			return &SchemaError{Unit: unit, Row: i, Field: "poi"}
		case r.EntryTime.IsZero():
			return &SchemaError{Unit: unit, Row: i, Field: "entry_time"}
		case r.ExitTime.IsZero():
			return &SchemaError{Unit: unit, Row: i, Field: "exit_time"}
		case r.ExitTime.Before(r.EntryTime.Time):
			return &SchemaError{Unit: unit, Row: i, Field: "exit_time"}
		}
	}
	return nil
}

var accentFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n',
	'Á': 'A', 'À': 'A', 'Â': 'A', 'Ã': 'A', 'Ä': 'A',
	'É': 'E', 'È': 'E', 'Ê': 'E', 'Ë': 'E',
	'Í': 'I', 'Ì': 'I', 'Î': 'I', 'Ï': 'I',
	'Ó': 'O', 'Ò': 'O', 'Ô': 'O', 'Õ': 'O', 'Ö': 'O',
	'Ú': 'U', 'Ù': 'U', 'Û': 'U', 'Ü': 'U',
	'Ç': 'C', 'Ñ': 'N',
}

// FoldAccents replaces accented runes with their ASCII base.
func FoldAccents(s string) string {
	return strings.Map(func(r rune) rune {
		if f, ok := accentFold[r]; ok {
			return f
		}
		return r
	}, s)
}

// CanonicalPOI normalizes POI text as the portal exports it: outer
// whitespace trimmed and accents folded. Exports carry both kinds of
// noise, so every POI comparison goes through this form.
func CanonicalPOI(s string) string {
	return FoldAccents(strings.TrimSpace(s))
}

// CanonicalVehicle strips the fleet prefix from a reported vehicle id:
// "JSL-ABC1234" and "ABC1234" are the same plate.
func CanonicalVehicle(s string) string {
	if i := strings.LastIndex(s, "-"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// FilterMonitored keeps only rows for POIs under active monitoring,
// matching canonically. Kept rows are rewritten in place of the raw
// text: the POI becomes the configured name and the vehicle loses its
// fleet prefix, so every later stage sees one spelling per POI and one
// id per plate.
func FilterMonitored(rows []RawVisit, monitored map[string]bool) []RawVisit {
	byCanonical := make(map[string]string, len(monitored))
	for name := range monitored {
		byCanonical[CanonicalPOI(name)] = name
	}

	out := make([]RawVisit, 0, len(rows))
	for _, r := range rows {
		name, ok := byCanonical[CanonicalPOI(r.POI)]
		if !ok {
			continue
		}
		r.POI = name
		r.Vehicle = CanonicalVehicle(r.Vehicle)
		out = append(out, r)
	}
	return out
}

// SortForAggregation orders rows by (vehicle, entry time), the order
// the stay aggregator and trajectory calculator require.
func SortForAggregation(rows []RawVisit) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Vehicle != rows[j].Vehicle {
			return rows[i].Vehicle < rows[j].Vehicle
		}
		return rows[i].EntryTime.Before(rows[j].EntryTime.Time)
	})
}
