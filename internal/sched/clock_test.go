package sched

import (
	"testing"
	"time"

	"feedmill/internal/model"
)

func testConfig() model.CapacityConfig {
	return model.CapacityConfig{
		Timezone:          "America/Bogota",
		Workdays:          "Mon,Tue,Wed,Thu,Fri,Sat",
		WorkdayStart:      "08:00",
		WorkdayEnd:        "17:00",
		PelletBPH:         200,
		NonPelletBPH:      300,
		DispatchBufferMin: 60,
	}
}

func at(t *testing.T, cfg model.CapacityConfig, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	return time.Date(y, m, d, hh, mm, 0, 0, cfg.Location())
}

// 2025-06-02 is a Monday; 2025-06-07 a Saturday; 2025-06-08 a Sunday.

func TestAdvanceWithinDay(t *testing.T) {
	cfg := testConfig()
	start := at(t, cfg, 2025, time.June, 2, 8, 0)
	got, err := Advance(start, 5, cfg)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if want := at(t, cfg, 2025, time.June, 2, 13, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAdvanceZeroHoursUnchanged(t *testing.T) {
	cfg := testConfig()
	start := at(t, cfg, 2025, time.June, 2, 3, 30) // outside the window on purpose
	got, err := Advance(start, 0, cfg)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !got.Equal(start) {
		t.Fatalf("zero work must not move the instant: got %v", got)
	}
}

func TestAdvanceSnapsToOpening(t *testing.T) {
	cfg := testConfig()
	start := at(t, cfg, 2025, time.June, 2, 5, 0)
	got, err := Advance(start, 2, cfg)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if want := at(t, cfg, 2025, time.June, 2, 10, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAdvanceRollsOverDays(t *testing.T) {
	cfg := testConfig()
	// 9h window per day; 20h starting Monday 08:00 -> Mon 9h, Tue 9h, Wed 2h.
	start := at(t, cfg, 2025, time.June, 2, 8, 0)
	got, err := Advance(start, 20, cfg)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if want := at(t, cfg, 2025, time.June, 4, 10, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAdvanceSkipsSunday(t *testing.T) {
	cfg := testConfig()
	// Saturday 16:00 with 2h of work: 1h Saturday, Sunday closed, 1h Monday.
	start := at(t, cfg, 2025, time.June, 7, 16, 0)
	got, err := Advance(start, 2, cfg)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if want := at(t, cfg, 2025, time.June, 9, 9, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAdvanceUsesSaturdayWindow(t *testing.T) {
	cfg := testConfig()
	cfg.SatWorkdayStart = "08:00"
	cfg.SatWorkdayEnd = "12:00"
	// Friday 16:00 + 6h: 1h Friday, 4h Saturday (short window), 1h Monday.
	start := at(t, cfg, 2025, time.June, 6, 16, 0)
	got, err := Advance(start, 6, cfg)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if want := at(t, cfg, 2025, time.June, 9, 9, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAdvanceAtExactClose(t *testing.T) {
	cfg := testConfig()
	start := at(t, cfg, 2025, time.June, 2, 17, 0)
	got, err := Advance(start, 1, cfg)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if want := at(t, cfg, 2025, time.June, 3, 9, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAdvanceEmptyCalendar(t *testing.T) {
	cfg := testConfig()
	cfg.Workdays = ""
	if _, err := Advance(at(t, cfg, 2025, time.June, 2, 8, 0), 1, cfg); err != ErrNoWorkingTime {
		t.Fatalf("want ErrNoWorkingTime, got %v", err)
	}
}

func TestNextOpen(t *testing.T) {
	cfg := testConfig()
	inside := at(t, cfg, 2025, time.June, 2, 10, 30)
	got, err := NextOpen(inside, cfg)
	if err != nil || !got.Equal(inside) {
		t.Fatalf("inside window should be unchanged: got %v err %v", got, err)
	}
	early := at(t, cfg, 2025, time.June, 2, 6, 0)
	got, err = NextOpen(early, cfg)
	if err != nil {
		t.Fatalf("NextOpen: %v", err)
	}
	if want := at(t, cfg, 2025, time.June, 2, 8, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	sunday := at(t, cfg, 2025, time.June, 8, 12, 0)
	got, err = NextOpen(sunday, cfg)
	if err != nil {
		t.Fatalf("NextOpen: %v", err)
	}
	if want := at(t, cfg, 2025, time.June, 9, 8, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseHHMMFallback(t *testing.T) {
	if got := parseHHMM("garbage", 480); got != 480 {
		t.Fatalf("want fallback 480, got %d", got)
	}
	if got := parseHHMM("16:30", 0); got != 990 {
		t.Fatalf("want 990, got %d", got)
	}
	if got := parseHHMM("25:00", 480); got != 480 {
		t.Fatalf("out-of-range hour should fall back, got %d", got)
	}
}

func TestEffectiveDaySaturdayOverride(t *testing.T) {
	cfg := testConfig()
	cfg.SatWorkdayEnd = "12:00"
	cfg.SatPelletBPH = 120
	cfg.SatDispatchCutoff = "11:00"
	sat := at(t, cfg, 2025, time.June, 7, 9, 0)
	d := effectiveDay(sat, cfg)
	if d.EndMin != 12*60 || d.PelletBPH != 120 || d.CutoffMin != 11*60 {
		t.Fatalf("saturday override not applied: %+v", d)
	}
	// Non-pellet throughput has no override set and keeps the default.
	if d.NonPelletBPH != 300 {
		t.Fatalf("unexpected non-pellet bph %v", d.NonPelletBPH)
	}
	mon := at(t, cfg, 2025, time.June, 9, 9, 0)
	if d := effectiveDay(mon, cfg); d.EndMin != 17*60 || d.PelletBPH != 200 || d.CutoffMin != baseCutoffMin {
		t.Fatalf("weekday must use defaults: %+v", d)
	}
}

func TestClampBPHFloorsAtOne(t *testing.T) {
	if clampBPH(0) != 1 || clampBPH(-5) != 1 || clampBPH(250) != 250 {
		t.Fatal("clampBPH must floor at 1")
	}
}
