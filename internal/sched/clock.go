package sched

import (
	"errors"
	"math"
	"time"

	"feedmill/internal/model"
)

// ErrNoWorkingTime is returned when the calendar yields no working minutes
// within the lookahead horizon, e.g. an empty workdays set. Without the bound
// the day-walking loops would never terminate.
var ErrNoWorkingTime = errors.New("sched: no working time within lookahead horizon")

// maxLookaheadDays bounds every day-advancing loop in this package.
const maxLookaheadDays = 400

// nextWorkdayStart moves to the opening of the first working day strictly
// after t's date.
func nextWorkdayStart(t time.Time, days map[time.Weekday]bool, cfg model.CapacityConfig) (time.Time, error) {
	d := atMinutes(t, 0)
	for i := 0; i < maxLookaheadDays; i++ {
		d = d.AddDate(0, 0, 1)
		if days[d.Weekday()] {
			return atMinutes(d, effectiveDay(d, cfg).StartMin), nil
		}
	}
	return time.Time{}, ErrNoWorkingTime
}

// NextOpen snaps t forward to the nearest instant inside a working window:
// t itself when already inside, the same day's opening when before it, and
// the next working day's opening when the day is closed or already over.
func NextOpen(t time.Time, cfg model.CapacityConfig) (time.Time, error) {
	t = t.In(cfg.Location())
	days := workdaySet(cfg.Workdays)
	day := effectiveDay(t, cfg)
	if !days[t.Weekday()] || !t.Before(atMinutes(t, day.EndMin)) {
		return nextWorkdayStart(t, days, cfg)
	}
	if start := atMinutes(t, day.StartMin); t.Before(start) {
		return start, nil
	}
	return t, nil
}

// Advance walks start forward by hoursNeeded of working time, consuming only
// minutes that fall inside working windows on working days. This is a
// simulation of wall-clock time passing during open hours rather than a
// closed-form calculation: the window can differ per day (Saturday), so no
// single formula holds across a multi-day span. Work is converted to whole
// minutes up front to avoid floating accumulation drift.
func Advance(start time.Time, hoursNeeded float64, cfg model.CapacityConfig) (time.Time, error) {
	if hoursNeeded <= 0 {
		return start, nil
	}
	remaining := int(math.Round(hoursNeeded * 60))
	if remaining <= 0 {
		return start, nil
	}

	t := start.In(cfg.Location())
	days := workdaySet(cfg.Workdays)
	for i := 0; i < maxLookaheadDays && remaining > 0; i++ {
		day := effectiveDay(t, cfg)
		end := atMinutes(t, day.EndMin)
		if !days[t.Weekday()] || !t.Before(end) {
			next, err := nextWorkdayStart(t, days, cfg)
			if err != nil {
				return time.Time{}, err
			}
			t = next
			continue
		}
		if open := atMinutes(t, day.StartMin); t.Before(open) {
			t = open
		}

		avail := int(end.Sub(t).Minutes())
		if avail <= 0 {
			// Exact boundary: treat like a closed day.
			next, err := nextWorkdayStart(t, days, cfg)
			if err != nil {
				return time.Time{}, err
			}
			t = next
			continue
		}
		if remaining <= avail {
			return t.Add(time.Duration(remaining) * time.Minute), nil
		}
		remaining -= avail
		next, err := nextWorkdayStart(t, days, cfg)
		if err != nil {
			return time.Time{}, err
		}
		t = next
	}
	if remaining > 0 {
		return time.Time{}, ErrNoWorkingTime
	}
	return t, nil
}
