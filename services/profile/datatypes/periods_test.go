// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"testing"
	"time"
)

func span(startYear, endYear int) (time.Time, time.Time) {
	return time.Date(startYear, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(endYear, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestPeriodActive(t *testing.T) {
	start, end := span(1980, 1987)
	p := &Period{Lord: "Ketu", Start: start, End: end}

	if !p.Active(start) {
		t.Error("start instant is inside the half-open interval")
	}
	if p.Active(end) {
		t.Error("end instant is outside the half-open interval")
	}
	if !p.Active(time.Date(1983, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("midpoint must be active")
	}
	if p.Active(start.Add(-time.Second)) {
		t.Error("instant before start must not be active")
	}
}

func TestNestedChildrenAliasProbe(t *testing.T) {
	child := &Period{Lord: "Venus"}

	t.Run("canonical field wins", func(t *testing.T) {
		p := &Period{Children: []*Period{child}, SubPeriods: []*Period{{Lord: "Sun"}}}
		got := p.NestedChildren()
		if len(got) != 1 || got[0].Lord != "Venus" {
			t.Errorf("NestedChildren() = %v", got)
		}
	})

	t.Run("sub_periods alias", func(t *testing.T) {
		p := &Period{SubPeriods: []*Period{child}}
		if got := p.NestedChildren(); len(got) != 1 || got[0] != child {
			t.Errorf("NestedChildren() = %v", got)
		}
	})

	t.Run("antardashas alias", func(t *testing.T) {
		p := &Period{Antardashas: []*Period{child}}
		if got := p.NestedChildren(); len(got) != 1 || got[0] != child {
			t.Errorf("NestedChildren() = %v", got)
		}
	})

	t.Run("leaf", func(t *testing.T) {
		if got := (&Period{}).NestedChildren(); got != nil {
			t.Errorf("NestedChildren() = %v, want nil", got)
		}
	})
}

func TestCanonicalize(t *testing.T) {
	child := &Period{Lord: "Venus"}
	p := &Period{Lord: "Ketu", Antardashas: []*Period{child}}

	got := p.Canonicalize()
	if len(got) != 1 || got[0] != child {
		t.Fatalf("Canonicalize() = %v", got)
	}
	if len(p.Children) != 1 || p.SubPeriods != nil || p.Antardashas != nil {
		t.Errorf("legacy fields not folded: %+v", p)
	}

	// Canonical form does not leak the alias fields back onto the wire.
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["sub_periods"]; ok {
		t.Error("sub_periods serialized after canonicalization")
	}
	if _, ok := decoded["children"]; !ok {
		t.Error("children missing from serialized form")
	}
}

func TestActiveChild(t *testing.T) {
	s1, e1 := span(1980, 1982)
	s2, e2 := span(1982, 1987)
	p := &Period{
		Lord: "Ketu",
		SubPeriods: []*Period{
			{Lord: "Ketu", Start: s1, End: e1},
			{Lord: "Venus", Start: s2, End: e2},
		},
	}

	got := p.ActiveChild(time.Date(1983, 6, 1, 0, 0, 0, 0, time.UTC))
	if got == nil || got.Lord != "Venus" {
		t.Errorf("ActiveChild() = %v, want Venus (found through the alias)", got)
	}
	if p.ActiveChild(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)) != nil {
		t.Error("instant outside every child must return nil")
	}
}
