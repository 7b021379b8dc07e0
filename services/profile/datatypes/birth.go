// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data model for the profile service:
// birth context, ruling periods, persisted artifacts, generation status,
// and the request/response shapes of the external calculation service.
package datatypes

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// BirthDateLayout is the wire format for birth dates.
	BirthDateLayout = "2006-01-02"

	// BirthTimeLayout is the wire format for birth times.
	BirthTimeLayout = "15:04"

	// DefaultUTCOffsetHours is used when the IANA timezone of a client
	// cannot be resolved. Most of the historical client base is in IST.
	DefaultUTCOffsetHours = 5.5
)

var birthValidate = validator.New()

// BirthContext is the immutable input for every calculation concerning one
// client. It is assembled from the client data provider and never mutated.
type BirthContext struct {
	BirthDate string  `json:"birth_date" validate:"required,datetime=2006-01-02"`
	BirthTime string  `json:"birth_time" validate:"required,datetime=15:04"`
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Timezone  string  `json:"timezone" validate:"required"`
	System    string  `json:"system" validate:"required,lowercase"`
}

// Validate checks that the context is complete enough to send to the
// calculation service. Incomplete birth data is fatal to the call and is
// never retried, so the error wraps ErrIncompleteBirthData.
func (b BirthContext) Validate() error {
	if err := birthValidate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompleteBirthData, err)
	}
	return nil
}

// BirthInstant returns the birth moment in the client's resolved location.
// The timezone falls back to a fixed offset when IANA resolution fails.
func (b BirthContext) BirthInstant() (time.Time, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		loc = time.FixedZone("fallback", int(DefaultUTCOffsetHours*3600))
		slog.Debug("timezone resolution failed, using fixed offset",
			"timezone", b.Timezone, "offset_hours", DefaultUTCOffsetHours)
	}
	t, err := time.ParseInLocation(BirthDateLayout+" "+BirthTimeLayout,
		b.BirthDate+" "+b.BirthTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrIncompleteBirthData, err)
	}
	return t, nil
}

// UTCOffsetHours derives the numeric offset the calculation service expects.
// IANA resolution is evaluated at the birth instant so historical DST rules
// apply; unresolvable zones fall back to DefaultUTCOffsetHours.
func (b BirthContext) UTCOffsetHours() float64 {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return DefaultUTCOffsetHours
	}
	ref, err := time.ParseInLocation(BirthDateLayout, b.BirthDate, loc)
	if err != nil {
		ref = time.Now().In(loc)
	}
	_, offsetSeconds := ref.Zone()
	return float64(offsetSeconds) / 3600.0
}
