// Package pipeline orchestrates one analytics run: raw visits become
// stays, stays become occupancy series, and occupancy series become
// deviation alerts. Units are processed strictly one at a time because
// the shared historical store is not safe for concurrent writers.
package pipeline

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"fleet_watch/internal/config"
	"fleet_watch/internal/deviation"
	"fleet_watch/internal/metrics"
	"fleet_watch/internal/notify"
	"fleet_watch/internal/occupancy"
	"fleet_watch/internal/stays"
	"fleet_watch/internal/storage"
	"fleet_watch/internal/visits"
)

// SampleMirror is the optional analytics mirror for hourly samples.
type SampleMirror interface {
	MirrorSamples(ctx context.Context, samples []occupancy.HourlySample) error
}

// Runner wires the engine's collaborators together. Ledger and Mirror
// may be nil: without a ledger no alerts are delivered, and without a
// mirror the series is only kept in the history store.
type Runner struct {
	Config  *config.Config
	History storage.History
	Ledger  storage.Ledger
	Mirror  SampleMirror
	Sink    notify.Sink

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	// Pause is the delay inserted between units, protecting the shared
	// store from back-to-back write bursts.
	Pause time.Duration
}

// UnitReport summarizes one unit's outcome within a run.
type UnitReport struct {
	Unit            string
	Stays           int
	POIsRefreshed   int
	POIsFailed      int
	GroupsChecked   int
	AlertsDelivered int
	Err             error // unit-fatal failure; nil when the unit ran
}

// RunSummary is the per-run report of successes and failures.
type RunSummary struct {
	Mode     string
	Started  time.Time
	Finished time.Time
	Units    []UnitReport
}

// Failed reports whether any unit failed outright.
func (s *RunSummary) Failed() bool {
	for _, u := range s.Units {
		if u.Err != nil {
			return true
		}
	}
	return false
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Runner) sink() notify.Sink {
	if r.Sink != nil {
		return r.Sink
	}
	return notify.LogSink{}
}

// Run executes a full run: occupancy refresh, daily metrics, and
// deviation detection with alert delivery, for every active unit with
// a report present.
func (r *Runner) Run(ctx context.Context, reports map[string][]visits.RawVisit) *RunSummary {
	return r.run(ctx, reports, true)
}

// Refresh executes a light run: occupancy samples only. It is safe to
// schedule frequently between full runs.
func (r *Runner) Refresh(ctx context.Context, reports map[string][]visits.RawVisit) *RunSummary {
	return r.run(ctx, reports, false)
}

func (r *Runner) run(ctx context.Context, reports map[string][]visits.RawVisit, full bool) *RunSummary {
	mode := "refresh"
	if full {
		mode = "full"
	}
	summary := &RunSummary{Mode: mode, Started: r.now()}

	units := r.Config.ActiveUnits()
	for i, unit := range units {
		rows, ok := reports[unit.Name]
		if !ok {
			log.Printf("[pipeline] unit=%s: no report supplied, skipping", unit.Name)
			continue
		}
		summary.Units = append(summary.Units, r.processUnit(ctx, unit, rows, full))

		// Serialize units; the shared store has a single writer.
		if i < len(units)-1 && r.Pause > 0 {
			select {
			case <-time.After(r.Pause):
			case <-ctx.Done():
				summary.Finished = r.now()
				return summary
			}
		}
	}

	summary.Finished = r.now()
	for _, u := range summary.Units {
		if u.Err != nil {
			log.Printf("[pipeline] unit=%s FAILED: %v", u.Unit, u.Err)
			continue
		}
		log.Printf("[pipeline] unit=%s stays=%d pois=%d/%d groups=%d alerts=%d",
			u.Unit, u.Stays, u.POIsRefreshed, u.POIsRefreshed+u.POIsFailed, u.GroupsChecked, u.AlertsDelivered)
	}
	return summary
}

// processUnit runs the sequential per-unit pipeline. A failure here is
// isolated: it never aborts another unit's run.
func (r *Runner) processUnit(ctx context.Context, unit config.Unit, rows []visits.RawVisit, full bool) UnitReport {
	report := UnitReport{Unit: unit.Name}
	now := r.now()

	rows = visits.FilterMonitored(rows, unit.MonitoredPOIs())
	if err := visits.Validate(unit.Name, rows); err != nil {
		report.Err = err
		_ = r.sink().PublishFailure(ctx, unit.Name, "schema", err)
		return report
	}
	visits.SortForAggregation(rows)

	st := stays.Aggregate(rows, unit.GroupMap())
	stays.ComputeTransits(st, stays.SLABounds{
		LoadedHours: unit.LoadedTransitBound(),
		EmptyHours:  unit.EmptyTransitBound(),
	})
	report.Stays = len(st)

	// Refresh the occupancy series for every monitored POI. A POI's
	// persistence failure skips that POI only.
	var allSamples []occupancy.HourlySample
	for _, poi := range sortedKeys(unit.MonitoredPOIs()) {
		events := occupancy.Project(poi, st)
		if len(events) == 0 {
			continue
		}
		samples := occupancy.AggregateHourly(events)
		if err := r.persistSeries(ctx, poi, events, samples); err != nil {
			log.Printf("[pipeline] unit=%s poi=%s: persist failed, skipping: %v", unit.Name, poi, err)
			report.POIsFailed++
			continue
		}
		report.POIsRefreshed++
		allSamples = append(allSamples, samples...)
	}

	if r.Mirror != nil && len(allSamples) > 0 {
		if err := r.Mirror.MirrorSamples(ctx, allSamples); err != nil {
			log.Printf("[pipeline] unit=%s: mirror write failed: %v", unit.Name, err)
		}
	}

	if !full {
		return report
	}

	// Daily operational summary for the previous day.
	yesterday := now.AddDate(0, 0, -1)
	summary := metrics.BuildDailySummary(unit.Name, yesterday, st, unit.FocusPOI, unit.TotalVehicles)
	if err := r.History.UpsertDailySummary(ctx, summary); err != nil {
		log.Printf("[pipeline] unit=%s: daily summary write failed: %v", unit.Name, err)
	}

	// Deviation detection per alerting group.
	groups := unit.AlertGroups()
	for _, group := range sortedKeys(boolKeys(groups)) {
		report.GroupsChecked++
		delivered, err := r.processGroup(ctx, unit, group, groups[group], now)
		if err != nil {
			log.Printf("[pipeline] unit=%s group=%s: %v", unit.Name, group, err)
			continue
		}
		report.AlertsDelivered += delivered
	}
	return report
}

// persistSeries replaces each (POI, month, year) range touched by the
// new series. Events and samples from the same run can straddle a
// month boundary; each affected month is replaced separately and
// atomically.
func (r *Runner) persistSeries(ctx context.Context, poi string, events []occupancy.Event, samples []occupancy.HourlySample) error {
	type yearMonth struct {
		year  int
		month time.Month
	}
	evByMonth := make(map[yearMonth][]occupancy.Event)
	saByMonth := make(map[yearMonth][]occupancy.HourlySample)

	for _, ev := range events {
		k := yearMonth{ev.Timestamp.Year(), ev.Timestamp.Month()}
		evByMonth[k] = append(evByMonth[k], ev)
	}
	for _, s := range samples {
		k := yearMonth{s.Hour.Year(), s.Hour.Month()}
		saByMonth[k] = append(saByMonth[k], s)
	}

	months := make(map[yearMonth]bool)
	for k := range evByMonth {
		months[k] = true
	}
	for k := range saByMonth {
		months[k] = true
	}

	ordered := make([]yearMonth, 0, len(months))
	for k := range months {
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].year != ordered[j].year {
			return ordered[i].year < ordered[j].year
		}
		return ordered[i].month < ordered[j].month
	})

	for _, k := range ordered {
		if err := r.History.ReplaceMonth(ctx, poi, k.year, k.month, evByMonth[k], saByMonth[k]); err != nil {
			return err
		}
	}
	return nil
}

// processGroup runs detection, escalation, enrichment and delivery for
// one group. Returns the number of alerts delivered.
func (r *Runner) processGroup(ctx context.Context, unit config.Unit, group string, threshold int, now time.Time) (int, error) {
	from := deviation.LookbackStart(now)
	to := from.AddDate(0, 0, deviation.LookbackDays)

	samples, err := r.History.SamplesInRange(ctx, unit.GroupPOIs(group), from, to)
	if err != nil {
		// No history is "no deviation", but a read failure is worth
		// surfacing; skip the group either way.
		return 0, err
	}
	if len(samples) == 0 {
		return 0, nil
	}

	flagged := deviation.FlagHours(deviation.Consolidate(group, samples), threshold)
	if len(flagged) == 0 {
		return 0, nil
	}

	alerts := deviation.Escalate(unit.Name, flagged)

	arrivals, err := r.History.Arrivals(ctx, unit.AllGroupPOIs(group))
	if err != nil {
		log.Printf("[pipeline] unit=%s group=%s: arrival history unavailable, alerts left unenriched: %v",
			unit.Name, group, err)
	}
	deviation.Enrich(alerts, arrivals, now)

	// Delivery gate: only the most recent title's batch goes out, and
	// only once, ever.
	title := alerts[len(alerts)-1].Title
	var batch []deviation.Alert
	for _, a := range alerts {
		if a.Title == title {
			batch = append(batch, a)
		}
	}

	if r.Ledger == nil {
		log.Printf("[pipeline] unit=%s group=%s: no ledger configured, %d alerts not delivered",
			unit.Name, group, len(batch))
		return 0, nil
	}

	already, err := r.Ledger.Delivered(ctx, title)
	if err != nil {
		return 0, err
	}
	if already {
		log.Printf("[pipeline] unit=%s group=%s: title %s already delivered", unit.Name, group, title)
		return 0, nil
	}

	if err := r.Ledger.DeliverBatch(ctx, title, batch); err != nil {
		if errors.Is(err, storage.ErrAlreadyDelivered) {
			log.Printf("[pipeline] unit=%s group=%s: title %s raced an earlier delivery", unit.Name, group, title)
			return 0, nil
		}
		return 0, err
	}

	if err := r.sink().PublishAlerts(ctx, unit.Name, title, batch); err != nil {
		// Notification is best effort; the ledger already holds the batch.
		log.Printf("[pipeline] unit=%s group=%s: notification failed: %v", unit.Name, group, err)
	}
	return len(batch), nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func boolKeys(m map[string]int) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
