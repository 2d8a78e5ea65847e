package deviation

import (
	"fmt"
	"strings"
	"time"

	"fleet_watch/internal/visits"
)

// MaxLevel caps the escalation ladder.
const MaxLevel = 4

// Alert is one vehicle's deviation alert. Alerts generated for the
// same flagged hour share a Title, which doubles as the batch's
// idempotency key against the delivered-alerts ledger.
type Alert struct {
	Title      string
	Vehicle    string
	Group      string
	Breakdown  string
	BreachTime time.Time
	EntryTime  *time.Time // filled by Enrich; nil when no arrival found
	DwellHours *float64
	Level      int
	LevelLabel string
}

// Escalate walks the flagged hours in order and assigns escalation
// levels: a fresh breach (no prior flagged hour, or a gap of more than
// one hour since the last) starts at level 1; consecutive flagged
// hours climb one level per hour, capped at MaxLevel. Every vehicle in
// the hour's union gets one alert carrying the shared title.
//
// The computation is stateless across runs: the lookback window itself
// is what carries recency between invocations.
func Escalate(unit string, flagged []GroupSample) []Alert {
	var alerts []Alert
	var lastFlagged time.Time
	level := 0

	for _, s := range flagged {
		if lastFlagged.IsZero() || s.Hour.Sub(lastFlagged) > time.Hour {
			level = 1
		} else if level < MaxLevel {
			level++
		}
		lastFlagged = s.Hour

		title := Title(unit, s.Group, s.Hour, level)
		for _, v := range s.Vehicles {
			alerts = append(alerts, Alert{
				Title:      title,
				Vehicle:    v,
				Group:      s.Group,
				Breakdown:  s.Breakdown,
				BreachTime: s.Hour,
				Level:      level,
				LevelLabel: fmt.Sprintf("Tratativa N%d", level),
			})
		}
	}
	return alerts
}

// Title builds the alert batch's idempotency key:
// <unit>_<group>_N<level>_<DDMMYYYY>_<HHMMSS>, with the group name
// stripped of spaces and transliterated to plain ASCII.
func Title(unit, group string, hour time.Time, level int) string {
	return fmt.Sprintf("%s_%s_N%d_%s_%s",
		unit, asciiFold(group), level, hour.Format("02012006"), hour.Format("150405"))
}

// asciiFold strips spaces and hyphens and folds accented characters so
// the title survives systems that mangle non-ASCII identifiers.
func asciiFold(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, visits.FoldAccents(s))
}
