// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolver reconciles a dasha drill-down request against three
// sources in priority order: the artifact cache, the external calculation
// service, and local subdivision. Given identical birth data, the period
// boundaries it returns are identical regardless of which source served
// them, because local subdivision and the calculation service share the
// same proportional cycle.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/JyotishAI/JyotishCore/services/profile/client"
	"github.com/JyotishAI/JyotishCore/services/profile/dasha"
	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
	"github.com/JyotishAI/JyotishCore/services/profile/observability"
)

// MaxPathDepth is the deepest supported drill-down path: four ancestor
// levels below the top-level tree.
const MaxPathDepth = 4

// Serving sources reported in Result.
const (
	SourceCache      = "cache"
	SourceExternal   = "external"
	SourceCalculated = "calculated"
)

// Cache is the slice of the ChartCache the resolver needs.
type Cache interface {
	FindOne(ctx context.Context, tenant, clientID, system, typ string) (*datatypes.Artifact, error)
	Upsert(ctx context.Context, a *datatypes.Artifact) error
}

// Request identifies one resolution: which client, which system, which
// period-system level, and an optional drill-down path of ancestor lords.
type Request struct {
	Tenant   string
	ClientID string
	Birth    datatypes.BirthContext
	Level    string   // "tree" (default) or "yogini"
	Path     []string // up to MaxPathDepth ancestor lords
}

// Result carries the resolved period list and which source produced it.
// Periods is the top-level tree for an empty path, otherwise the children
// of the last ancestor on the path.
type Result struct {
	Periods []*datatypes.Period `json:"periods"`
	Source  string              `json:"source"`
}

// Resolver is safe for concurrent use.
type Resolver struct {
	cache    Cache
	calc     client.CalculationClient
	expander *dasha.Expander
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New builds a Resolver.
func New(cache Cache, calc client.CalculationClient, expander *dasha.Expander, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if expander == nil {
		expander = dasha.NewExpander(logger)
	}
	return &Resolver{
		cache:    cache,
		calc:     calc,
		expander: expander,
		logger:   logger,
		tracer:   otel.Tracer("profile/resolver"),
	}
}

// levelArtifactType maps the requested level to the persisted artifact
// type. Only the Vimshottari tree supports local subdivision fallback;
// Yogini trees come from the calculation service as-is.
func levelArtifactType(level string) (typ string, subdividable bool, err error) {
	switch level {
	case "", "tree", "vimshottari":
		return datatypes.TypeDashaVimshottari, true, nil
	case "yogini":
		return datatypes.TypeDashaYogini, false, nil
	default:
		return "", false, fmt.Errorf("unknown dasha level %q", level)
	}
}

// Resolve works through the source priority order described in the package
// comment. Top-level trees (and cache rows that Balance deepened) are
// persisted as a single upsert of the same artifact row; path fill-ins
// computed locally are never persisted on their own.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.Resolve",
		trace.WithAttributes(
			attribute.String("client_id", req.ClientID),
			attribute.String("system", req.Birth.System),
			attribute.Int("path_depth", len(req.Path)),
		))
	defer span.End()

	if len(req.Path) > MaxPathDepth {
		return nil, datatypes.ErrPathTooDeep
	}
	artifactType, subdividable, err := levelArtifactType(req.Level)
	if err != nil {
		return nil, err
	}

	// 1. Cache.
	cached, err := r.cache.FindOne(ctx, req.Tenant, req.ClientID, req.Birth.System, artifactType)
	switch {
	case err == nil:
		return r.resolveFromTree(ctx, req, artifactType, cached.Payload, SourceCache, subdividable)
	case errors.Is(err, datatypes.ErrArtifactNotFound):
		// Fall through to the external fetch.
	default:
		return nil, fmt.Errorf("cache lookup: %w", err)
	}

	// 2. External calculation. Birth data must be complete before any
	// network call is attempted.
	if err := req.Birth.Validate(); err != nil {
		return nil, err
	}
	resp, err := r.calc.Calculate(ctx, artifactType,
		datatypes.CalculationRequestFor(req.Birth, nil))
	if err != nil {
		return nil, err
	}
	return r.resolveFromTree(ctx, req, artifactType, resp.Data, SourceExternal, subdividable)
}

// resolveFromTree balances a loaded tree, persists it when that changed
// anything (or when it was freshly fetched), and descends the drill-down
// path.
func (r *Resolver) resolveFromTree(ctx context.Context, req Request, artifactType string, payload json.RawMessage, source string, subdividable bool) (*Result, error) {
	tree, err := decodeTree(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s tree: %w", artifactType, err)
	}

	dirty := false
	if subdividable {
		dirty = r.expander.Balance(tree, 0, req.Path)
	}
	if dirty || source == SourceExternal {
		if err := r.persistTree(ctx, req, artifactType, tree); err != nil {
			// Persistence is a side effect; the resolution itself
			// already succeeded.
			r.logger.Error("persist balanced tree failed",
				"client_id", req.ClientID, "system", req.Birth.System, "error", err)
		}
	}

	periods, calculated, err := descendPath(tree, req.Path, subdividable)
	if err != nil {
		return nil, err
	}
	if calculated {
		source = SourceCalculated
	}
	observability.ResolverRequests.WithLabelValues(source).Inc()
	return &Result{Periods: periods, Source: source}, nil
}

func (r *Resolver) persistTree(ctx context.Context, req Request, artifactType string, tree []*datatypes.Period) error {
	payload, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	return r.cache.Upsert(ctx, &datatypes.Artifact{
		TenantID:  req.Tenant,
		ClientID:  req.ClientID,
		Type:      artifactType,
		System:    req.Birth.System,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	})
}

// ActivePath resolves the top-level tree and extracts the chronologically
// active ancestor chain from it.
func (r *Resolver) ActivePath(ctx context.Context, req Request) ([]datatypes.PathNode, error) {
	req.Path = nil
	res, err := r.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.expander.ExtractActivePath(res.Periods), nil
}

// decodeTree accepts either a bare period array or an object wrapping one
// under "periods" (the calculation service's envelope).
func decodeTree(payload json.RawMessage) ([]*datatypes.Period, error) {
	var tree []*datatypes.Period
	if err := json.Unmarshal(payload, &tree); err == nil {
		return tree, nil
	}
	var wrapped struct {
		Periods []*datatypes.Period `json:"periods"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Periods == nil {
		return nil, fmt.Errorf("payload holds no period array")
	}
	return wrapped.Periods, nil
}

// descendPath walks the drill-down path one level at a time through
// whatever children the tree supplies. The moment the data stops supplying
// children while path elements remain, it switches to local subdivision
// from the last matched ancestor. Returns the children of the final
// ancestor and whether any level had to be calculated locally.
func descendPath(tree []*datatypes.Period, path []string, subdividable bool) ([]*datatypes.Period, bool, error) {
	if len(path) == 0 {
		return tree, false, nil
	}

	calculated := false
	candidates := tree
	var ancestor *datatypes.Period
	for i, lord := range path {
		next := findByLord(candidates, lord)
		if next == nil {
			if !subdividable || ancestor == nil {
				return nil, false, fmt.Errorf("path lord %q not present at level %d", lord, i+1)
			}
			candidates = dasha.Subdivide(ancestor.Lord, ancestor.Start, ancestor.DurationYears, ancestor.End)
			calculated = true
			next = findByLord(candidates, lord)
			if next == nil {
				return nil, false, fmt.Errorf("unknown lord %q in drill-down path", lord)
			}
		}
		ancestor = next

		children := ancestor.NestedChildren()
		if len(children) == 0 {
			if !subdividable {
				if i < len(path)-1 {
					return nil, false, fmt.Errorf("no data below level %d for this period system", i+1)
				}
				return nil, false, nil
			}
			children = dasha.Subdivide(ancestor.Lord, ancestor.Start, ancestor.DurationYears, ancestor.End)
			calculated = true
		}
		candidates = children
	}
	return candidates, calculated, nil
}

func findByLord(periods []*datatypes.Period, lord string) *datatypes.Period {
	for _, p := range periods {
		if dasha.LordMatches(p.Lord, lord) {
			return p
		}
	}
	return nil
}
