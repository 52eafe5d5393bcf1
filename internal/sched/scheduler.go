package sched

import (
	"math"
	"time"

	"feedmill/internal/model"
)

// LineItem is the scheduler's view of one order line: a bag quantity already
// expanded from bulk units, routed to one of the two production lines.
type LineItem struct {
	QtyBags    int
	Pelletized bool
}

// Schedule computes the three instants for a new order given a point-in-time
// backlog snapshot. It is a pure function of (items, now, backlog, cfg): no
// I/O, no retained state, deterministic for identical inputs.
//
// Each line is walked twice with the business-hour clock: once past the
// existing backlog (notionally drained from now), once past the order's own
// bags. The two lines run in parallel: production starts as soon as either
// line's backlog drains, and the order is ready when the last line it puts
// bags on finishes. A line the order puts no bags on never delays readiness.
// Dispatch is the ready instant plus the configured buffer, clamped to the
// daily cutoff.
func Schedule(items []LineItem, now time.Time, backlog Backlog, cfg model.CapacityConfig) (model.ScheduleResult, error) {
	loc := cfg.Location()
	now = now.In(loc)

	var bagsPellet, bagsNon int
	for _, it := range items {
		if it.QtyBags <= 0 {
			continue
		}
		if it.Pelletized {
			bagsPellet += it.QtyBags
		} else {
			bagsNon += it.QtyBags
		}
	}

	open, err := NextOpen(now, cfg)
	if err != nil {
		return model.ScheduleResult{}, err
	}

	startPellet, err := advanceLine(open, float64(backlog.PelletBags), true, cfg)
	if err != nil {
		return model.ScheduleResult{}, err
	}
	startNon, err := advanceLine(open, float64(backlog.NonPelletBags), false, cfg)
	if err != nil {
		return model.ScheduleResult{}, err
	}
	finishPellet, err := advanceLine(startPellet, float64(bagsPellet), true, cfg)
	if err != nil {
		return model.ScheduleResult{}, err
	}
	finishNon, err := advanceLine(startNon, float64(bagsNon), false, cfg)
	if err != nil {
		return model.ScheduleResult{}, err
	}

	scheduled := startPellet
	if startNon.Before(scheduled) {
		scheduled = startNon
	}
	ready := open
	switch {
	case bagsPellet > 0 && bagsNon > 0:
		ready = finishPellet
		if finishNon.After(ready) {
			ready = finishNon
		}
	case bagsPellet > 0:
		ready = finishPellet
	case bagsNon > 0:
		ready = finishNon
	}

	buffer := cfg.DispatchBufferMin
	if buffer <= 0 {
		buffer = model.DefaultCapacityConfig().DispatchBufferMin
	}
	delivery, err := ClampDispatch(ready.Add(time.Duration(buffer)*time.Minute), cfg)
	if err != nil {
		return model.ScheduleResult{}, err
	}

	return model.ScheduleResult{
		ScheduledAt: scheduled,
		ReadyAt:     ready,
		DeliveryAt:  delivery,
	}, nil
}

// advanceLine walks t past bags of work on one production line. Throughput
// can differ per day (Saturday), so bags are converted to hours one day
// segment at a time, at that day's effective rate, before the clock consumes
// the segment.
func advanceLine(t time.Time, bags float64, pelletized bool, cfg model.CapacityConfig) (time.Time, error) {
	for i := 0; i < maxLookaheadDays; i++ {
		if bags <= 0 {
			return t, nil
		}
		open, err := NextOpen(t, cfg)
		if err != nil {
			return time.Time{}, err
		}
		t = open

		day := effectiveDay(t, cfg)
		bph := day.PelletBPH
		if !pelletized {
			bph = day.NonPelletBPH
		}

		availMin := int(atMinutes(t, day.EndMin).Sub(t).Minutes())
		needMin := int(math.Round(bags / bph * 60))
		if needMin <= 0 {
			return t, nil
		}
		if needMin <= availMin {
			return Advance(t, float64(needMin)/60, cfg)
		}
		bags -= float64(availMin) * bph / 60
		t = atMinutes(t, day.EndMin)
	}
	return time.Time{}, ErrNoWorkingTime
}

// ClampDispatch enforces the dispatch cutoff rule: a proposal after the day's
// last allowed instant (the earlier of the working-window end and the hard
// 16:30 cutoff, further tightened on Saturdays when configured) rolls to the
// next working day's opening. A day can never roll past its own cutoff no
// matter how the proposal arrived there, hence the re-evaluation loop.
func ClampDispatch(proposed time.Time, cfg model.CapacityConfig) (time.Time, error) {
	t := proposed.In(cfg.Location())
	days := workdaySet(cfg.Workdays)
	for i := 0; i < maxLookaheadDays; i++ {
		day := effectiveDay(t, cfg)
		last := day.EndMin
		if day.CutoffMin < last {
			last = day.CutoffMin
		}
		if !days[t.Weekday()] || t.After(atMinutes(t, last)) {
			next, err := nextWorkdayStart(t, days, cfg)
			if err != nil {
				return time.Time{}, err
			}
			t = next
			continue
		}
		if open := atMinutes(t, day.StartMin); t.Before(open) {
			return open, nil
		}
		return t, nil
	}
	return time.Time{}, ErrNoWorkingTime
}
