// Package sched implements the production capacity scheduler: a business-hour
// clock over a configurable plant calendar, a per-line backlog snapshot, and
// the composition that turns a new order's line items into production start,
// ready, and earliest-dispatch instants.
package sched

import (
	"strconv"
	"strings"
	"time"

	"feedmill/internal/model"
)

// Dispatch is never proposed after 16:30 local, regardless of the workday end.
const baseCutoffMin = 16*60 + 30

// DayConfig is the resolved working window, throughput, and dispatch cutoff
// for one calendar date, after applying any Saturday override. All times are
// minutes from local midnight. Downstream code consumes only this record,
// never the raw config plus a weekday check.
type DayConfig struct {
	StartMin     int
	EndMin       int
	PelletBPH    float64
	NonPelletBPH float64
	CutoffMin    int
}

var weekdayNames = map[string]time.Weekday{
	"Sun": time.Sunday, "Mon": time.Monday, "Tue": time.Tuesday,
	"Wed": time.Wednesday, "Thu": time.Thursday, "Fri": time.Friday,
	"Sat": time.Saturday,
}

// workdaySet parses the comma-separated workdays list. Unknown tokens are
// ignored; an empty result means the calendar has no working days at all,
// which the clock reports as ErrNoWorkingTime.
func workdaySet(csv string) map[time.Weekday]bool {
	set := map[time.Weekday]bool{}
	for _, tok := range strings.Split(csv, ",") {
		if wd, ok := weekdayNames[strings.TrimSpace(tok)]; ok {
			set[wd] = true
		}
	}
	return set
}

// parseHHMM converts "HH:MM" to minutes from midnight, falling back to def on
// any malformed value so a structurally incomplete config degrades instead of
// failing the call.
func parseHHMM(s string, def int) int {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return def
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return def
	}
	return hh*60 + mm
}

const (
	defaultStartMin = 8 * 60
	defaultEndMin   = 17 * 60
)

// effectiveDay resolves the day config for the calendar date of t (which must
// already be in the configured zone). Saturday fields apply only when the date
// is a Saturday and the field is non-empty/non-zero; otherwise defaults apply.
func effectiveDay(t time.Time, cfg model.CapacityConfig) DayConfig {
	d := DayConfig{
		StartMin:     parseHHMM(cfg.WorkdayStart, defaultStartMin),
		EndMin:       parseHHMM(cfg.WorkdayEnd, defaultEndMin),
		PelletBPH:    clampBPH(cfg.PelletBPH),
		NonPelletBPH: clampBPH(cfg.NonPelletBPH),
		CutoffMin:    baseCutoffMin,
	}
	if t.Weekday() == time.Saturday {
		if cfg.SatWorkdayStart != "" {
			d.StartMin = parseHHMM(cfg.SatWorkdayStart, d.StartMin)
		}
		if cfg.SatWorkdayEnd != "" {
			d.EndMin = parseHHMM(cfg.SatWorkdayEnd, d.EndMin)
		}
		if cfg.SatPelletBPH > 0 {
			d.PelletBPH = cfg.SatPelletBPH
		}
		if cfg.SatNonPelletBPH > 0 {
			d.NonPelletBPH = cfg.SatNonPelletBPH
		}
		if cfg.SatDispatchCutoff != "" {
			if c := parseHHMM(cfg.SatDispatchCutoff, d.CutoffMin); c < d.CutoffMin {
				d.CutoffMin = c
			}
		}
	}
	return d
}

// clampBPH floors throughput at 1 bag/hour so a zero or missing value can
// never divide by zero.
func clampBPH(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

// atMinutes returns the instant on t's calendar date at min minutes from
// local midnight.
func atMinutes(t time.Time, min int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), min/60, min%60, 0, 0, t.Location())
}
