// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dasha implements the Vimshottari ruling-period algorithms:
// proportional recursive subdivision of a parent period into nine child
// periods, and path-aware lazy deepening of a period tree.
package dasha

import (
	"math"
	"strings"
	"time"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
)

// Sequence is the fixed cyclic order of the nine period lords.
var Sequence = [9]string{
	"Ketu", "Venus", "Sun", "Moon", "Mars", "Rahu", "Jupiter", "Saturn", "Mercury",
}

// Years holds each lord's share of the full cycle, indexed like Sequence.
// The shares sum to TotalCycleYears.
var Years = [9]float64{7, 20, 6, 10, 7, 18, 16, 19, 17}

const (
	// TotalCycleYears is the length of one full Vimshottari cycle.
	TotalCycleYears = 120

	// DaysPerYear is the year convention used for all period arithmetic.
	// Some traditions use a 360-day year for subdivision; this engine
	// uniformly keeps the solar 365.25-day convention.
	DaysPerYear = 365.25
)

// LordIndex resolves a lord name to its position in Sequence. The match is
// exact (case-insensitive) first, then a substring match against canonical
// names for inputs like "Rahu Mahadasha". Substring matching needs at least
// three characters so fragments like "u" cannot resolve to a lord.
func LordIndex(lord string) (int, bool) {
	needle := strings.ToLower(strings.TrimSpace(lord))
	if needle == "" {
		return 0, false
	}
	for i, name := range Sequence {
		if strings.ToLower(name) == needle {
			return i, true
		}
	}
	if len(needle) < 3 {
		return 0, false
	}
	for i, name := range Sequence {
		lower := strings.ToLower(name)
		if strings.Contains(needle, lower) || strings.Contains(lower, needle) {
			return i, true
		}
	}
	return 0, false
}

// YearsDuration converts fractional years to a time.Duration using the
// 365.25-day convention.
func YearsDuration(years float64) time.Duration {
	return time.Duration(years * DaysPerYear * 24 * float64(time.Hour))
}

// DurationInYears converts a span between two instants to fractional years.
func DurationInYears(start, end time.Time) float64 {
	return end.Sub(start).Hours() / (DaysPerYear * 24)
}

// Subdivide derives the nine child periods of a parent ruled by lord,
// starting at start. The duration is taken from durationYears when it is a
// positive finite number, otherwise derived from end − start.
//
// The walk starts at the parent's lord and follows the cyclic sequence,
// so the first child is the parent's own return-to-self sub-period. Each
// child gets duration * share / 120 years; children are laid out
// contiguously with a running cursor and no renormalization, so cumulative
// floating-point rounding is accepted.
//
// Invalid input (zero start, unresolvable lord, unresolvable or
// non-positive duration) returns an empty slice. Subdivide never panics
// and never returns a partial result.
func Subdivide(lord string, start time.Time, durationYears float64, end time.Time) []*datatypes.Period {
	if start.IsZero() {
		return nil
	}
	startIdx, ok := LordIndex(lord)
	if !ok {
		return nil
	}

	years := durationYears
	if math.IsNaN(years) || math.IsInf(years, 0) || years <= 0 {
		if end.IsZero() {
			return nil
		}
		years = DurationInYears(start, end)
	}
	if years <= 0 {
		return nil
	}

	children := make([]*datatypes.Period, 0, len(Sequence))
	cursor := start
	for i := 0; i < len(Sequence); i++ {
		idx := (startIdx + i) % len(Sequence)
		childYears := years * Years[idx] / TotalCycleYears
		childEnd := cursor.Add(YearsDuration(childYears))
		children = append(children, &datatypes.Period{
			Lord:          Sequence[idx],
			Start:         cursor,
			End:           childEnd,
			DurationYears: childYears,
		})
		cursor = childEnd
	}
	return children
}
