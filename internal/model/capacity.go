package model

import "time"

// CapacityConfig is the singleton production-capacity record edited by staff.
// It is read fresh at the start of every scheduling call; the scheduler treats
// it as immutable only within a single call. Saturday fields, when non-empty,
// replace the defaults for Saturdays only. Throughput at or below zero is
// clamped to 1 bag/hour by the clock, never rejected.
type CapacityConfig struct {
	Timezone        string  `json:"timezone"`
	Workdays        string  `json:"workdays"` // comma-separated: "Mon,Tue,Wed,Thu,Fri,Sat"
	WorkdayStart    string  `json:"workdayStart"`
	WorkdayEnd      string  `json:"workdayEnd"`
	PelletBPH       float64 `json:"pelletBph"`
	NonPelletBPH    float64 `json:"nonPelletBph"`
	SatWorkdayStart string  `json:"satWorkdayStart,omitempty"`
	SatWorkdayEnd   string  `json:"satWorkdayEnd,omitempty"`
	SatPelletBPH    float64 `json:"satPelletBph,omitempty"`
	SatNonPelletBPH float64 `json:"satNonPelletBph,omitempty"`

	// SatDispatchCutoff, when set (e.g. "11:00"), tightens the hard 16:30
	// dispatch cutoff on Saturdays. Left to the plant owner to fix.
	SatDispatchCutoff string `json:"satDispatchCutoff,omitempty"`

	DispatchBufferMin int `json:"dispatchBufferMin"`
}

// DefaultCapacityConfig returns the plant's stock configuration, used to seed
// fresh databases and as the fallback when the record has never been saved.
func DefaultCapacityConfig() CapacityConfig {
	return CapacityConfig{
		Timezone:          "America/Bogota",
		Workdays:          "Mon,Tue,Wed,Thu,Fri,Sat",
		WorkdayStart:      "08:00",
		WorkdayEnd:        "17:00",
		PelletBPH:         200,
		NonPelletBPH:      300,
		DispatchBufferMin: 60,
	}
}

// Location resolves the configured time zone, falling back to the default
// zone and finally UTC so a bad config can never fail a scheduling call.
func (c CapacityConfig) Location() *time.Location {
	name := c.Timezone
	if name == "" {
		name = DefaultCapacityConfig().Timezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
