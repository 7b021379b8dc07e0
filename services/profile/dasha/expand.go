// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dasha

import (
	"log/slog"
	"strings"
	"time"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
)

const (
	// MaxDepth is the absolute recursion bound for any tree walk.
	MaxDepth = 6

	// DefaultMinDepth is how deep a branch is expanded when nothing makes
	// it interesting.
	DefaultMinDepth = 3

	// PriorityMinDepth is how deep the chronologically active branch and
	// branches on the requested drill-down path are expanded.
	PriorityMinDepth = 5

	// ActivePathDepth is the maximum length of the active ancestor chain.
	ActivePathDepth = 5
)

// Expander lazily deepens a period tree. Branches are only subdivided when
// the existing tree is shallower than the policy requires, so repeated
// balancing of an already-deep tree is a no-op.
//
// Thread Safety: Expander itself is stateless apart from the clock and is
// safe for concurrent use, but Balance mutates the tree it is given; do not
// balance the same tree from two goroutines.
type Expander struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewExpander returns an Expander using the real clock.
func NewExpander(logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{now: time.Now, logger: logger}
}

// NewExpanderAt returns an Expander with an injected clock, for tests and
// for historical "as of" queries.
func NewExpanderAt(now func() time.Time, logger *slog.Logger) *Expander {
	e := NewExpander(logger)
	if now != nil {
		e.now = now
	}
	return e
}

// Balance deepens tree until every branch satisfies its effective minimum
// depth, subdividing gaps with Subdivide. minDepth zero or negative means
// DefaultMinDepth. targetPath names the lords of a drill-down path, one per
// level; the branch following the path (and any chronologically active
// branch) is deepened to PriorityMinDepth instead.
//
// Returns true when any subdivision was computed, i.e. the caller holds a
// tree that differs from what it loaded and may want to persist it.
func (e *Expander) Balance(tree []*datatypes.Period, minDepth int, targetPath []string) bool {
	if minDepth <= 0 {
		minDepth = DefaultMinDepth
	}
	now := e.now()
	dirty := false
	for _, p := range tree {
		if e.balanceNode(p, 1, minDepth, targetPath, now) {
			dirty = true
		}
	}
	return dirty
}

// balanceNode deepens one node at the given 1-based level.
func (e *Expander) balanceNode(p *datatypes.Period, level, minDepth int, targetPath []string, now time.Time) bool {
	if p == nil || level >= MaxDepth {
		return false
	}

	onPath := level-1 < len(targetPath) && LordMatches(p.Lord, targetPath[level-1])
	effective := minDepth
	if onPath || p.Active(now) {
		effective = PriorityMinDepth
	}

	if level >= effective {
		// Deep enough; still fold legacy aliases so downstream readers
		// only ever see the canonical field.
		p.Canonicalize()
		return false
	}

	dirty := false
	children := p.Canonicalize()
	if len(children) == 0 {
		children = Subdivide(p.Lord, p.Start, p.DurationYears, p.End)
		if len(children) == 0 {
			e.logger.Warn("cannot subdivide period, leaving branch shallow",
				"lord", p.Lord, "level", level)
			return false
		}
		p.Children = children
		dirty = true
	}

	// The path continues only down the matching branch; siblings fall back
	// to the default policy.
	var childPath []string
	if onPath {
		childPath = targetPath
	}
	for _, c := range children {
		if e.balanceNode(c, level+1, minDepth, childPath, now) {
			dirty = true
		}
	}
	return dirty
}

// ExtractActivePath walks only the chronologically active child at each
// level and returns the flat ancestor chain, at most ActivePathDepth nodes.
// Missing levels are filled by subdivision on the fly without mutating the
// input tree beyond caching the computed children.
func (e *Expander) ExtractActivePath(tree []*datatypes.Period) []datatypes.PathNode {
	now := e.now()
	var active *datatypes.Period
	for _, p := range tree {
		if p.Active(now) {
			active = p
			break
		}
	}

	var chain []datatypes.PathNode
	for level := 1; active != nil && level <= ActivePathDepth; level++ {
		chain = append(chain, datatypes.PathNode{
			Level: level,
			Lord:  active.Lord,
			Start: active.Start,
			End:   active.End,
		})
		next := active.ActiveChild(now)
		if next == nil && level < ActivePathDepth {
			children := Subdivide(active.Lord, active.Start, active.DurationYears, active.End)
			if len(children) == 0 {
				break
			}
			active.Children = children
			next = active.ActiveChild(now)
		}
		active = next
	}
	return chain
}

// LordMatches reports whether a period lord matches a path element. The
// comparison tolerates case and the same loose naming Subdivide accepts.
func LordMatches(lord, pathElement string) bool {
	if strings.EqualFold(strings.TrimSpace(lord), strings.TrimSpace(pathElement)) {
		return true
	}
	li, ok1 := LordIndex(lord)
	pi, ok2 := LordIndex(pathElement)
	return ok1 && ok2 && li == pi
}
