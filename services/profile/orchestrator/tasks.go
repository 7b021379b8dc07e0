// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
	"github.com/JyotishAI/JyotishCore/services/profile/resolver"
)

// task is one missing-artifact generation unit inside a run.
type task struct {
	system       string
	artifactType string
	run          func(ctx context.Context) error
}

// buildTask routes a missing artifact type to the sub-generator that can
// produce it. Routing is by type prefix: charts and presence analyses go
// straight to the calculation service, dasha trees go through the resolver
// so they are balanced before being persisted.
func (o *Orchestrator) buildTask(record *datatypes.ClientRecord, system, artifactType string) (task, error) {
	t := task{system: system, artifactType: artifactType}
	birth := record.BirthContextFor(system)

	switch {
	case strings.HasPrefix(artifactType, datatypes.TypePrefixDasha):
		level := strings.TrimPrefix(artifactType, datatypes.TypePrefixDasha)
		t.run = func(ctx context.Context) error {
			_, err := o.resolver.Resolve(ctx, resolver.Request{
				Tenant:   record.TenantID,
				ClientID: record.ClientID,
				Birth:    birth,
				Level:    level,
			})
			return err
		}
	case strings.HasPrefix(artifactType, datatypes.TypePrefixChart):
		// e.g. chart_d9 → task "chart" with the divisional number.
		division := strings.TrimPrefix(artifactType, datatypes.TypePrefixChart)
		t.run = o.calculateAndPersist(record, birth, artifactType, "chart",
			map[string]any{"division": division})
	case strings.HasPrefix(artifactType, datatypes.TypePrefixPresence):
		analysis := strings.TrimPrefix(artifactType, datatypes.TypePrefixPresence)
		t.run = o.calculateAndPersist(record, birth, artifactType, "presence",
			map[string]any{"analysis": analysis})
	case artifactType == datatypes.TypeAshtakavarga:
		t.run = o.calculateAndPersist(record, birth, artifactType, "ashtakavarga", nil)
	default:
		return task{}, fmt.Errorf("no generator for artifact type %q", artifactType)
	}
	return t, nil
}

// calculateAndPersist returns a task body that fetches one artifact from
// the calculation service and upserts it.
func (o *Orchestrator) calculateAndPersist(record *datatypes.ClientRecord, birth datatypes.BirthContext, artifactType, calcTask string, params map[string]any) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := birth.Validate(); err != nil {
			return err
		}
		resp, err := o.calc.Calculate(ctx, calcTask, datatypes.CalculationRequestFor(birth, params))
		if err != nil {
			return err
		}
		return o.cache.Upsert(ctx, &datatypes.Artifact{
			TenantID:  record.TenantID,
			ClientID:  record.ClientID,
			Type:      artifactType,
			System:    birth.System,
			Payload:   resp.Data,
			UpdatedAt: time.Now().UTC(),
		})
	}
}
