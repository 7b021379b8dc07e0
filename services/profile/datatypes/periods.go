// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"log/slog"
	"time"
)

// Period is one ruling interval in a dasha tree. Children holds the next
// subdivision level and is the single canonical nesting field; SubPeriods
// and Antardashas are legacy aliases still emitted by older calculation
// service deployments and are folded into Children on read.
type Period struct {
	Lord          string    `json:"lord"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	DurationYears float64   `json:"duration_years"`
	Children      []*Period `json:"children,omitempty"`

	// Legacy nested-children aliases. Do not write these.
	SubPeriods  []*Period `json:"sub_periods,omitempty"`
	Antardashas []*Period `json:"antardashas,omitempty"`
}

// PeriodTree is the ordered list of top-level periods for one
// (client, system) pair.
type PeriodTree []*Period

// PathNode is one level of the chronologically active ancestor chain,
// used for lightweight "where are we now" summaries.
type PathNode struct {
	Level int       `json:"level"`
	Lord  string    `json:"lord"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Active reports whether the instant falls inside [Start, End).
func (p *Period) Active(at time.Time) bool {
	return !at.Before(p.Start) && at.Before(p.End)
}

// NestedChildren checks the enumerated set of known nesting fields and
// returns the first populated one. The check order is fixed: canonical
// field first, then legacy aliases. An observed alias is logged at debug
// level so upstream format drift stays visible.
func (p *Period) NestedChildren() []*Period {
	if len(p.Children) > 0 {
		return p.Children
	}
	if len(p.SubPeriods) > 0 {
		slog.Debug("period carries legacy sub_periods alias", "lord", p.Lord)
		return p.SubPeriods
	}
	if len(p.Antardashas) > 0 {
		slog.Debug("period carries legacy antardashas alias", "lord", p.Lord)
		return p.Antardashas
	}
	return nil
}

// Canonicalize aliases whatever nesting field is populated onto Children
// and clears the legacy fields, so downstream code only ever reads one
// field. Returns the canonical children for convenience.
func (p *Period) Canonicalize() []*Period {
	p.Children = p.NestedChildren()
	p.SubPeriods = nil
	p.Antardashas = nil
	return p.Children
}

// ActiveChild returns the child whose interval contains the instant, or nil.
func (p *Period) ActiveChild(at time.Time) *Period {
	for _, c := range p.NestedChildren() {
		if c.Active(at) {
			return c
		}
	}
	return nil
}
