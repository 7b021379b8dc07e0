// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/JyotishAI/JyotishCore/services/profile/dasha"
	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
)

var (
	treeStart = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	fixedNow  = time.Date(1983, 6, 1, 0, 0, 0, 0, time.UTC)
)

type fakeCache struct {
	rows    map[string]*datatypes.Artifact
	upserts int
	lastPut *datatypes.Artifact
}

func newFakeCache() *fakeCache {
	return &fakeCache{rows: map[string]*datatypes.Artifact{}}
}

func (f *fakeCache) FindOne(ctx context.Context, tenant, clientID, system, typ string) (*datatypes.Artifact, error) {
	a, ok := f.rows[datatypes.ArtifactKey(tenant, clientID, system, typ)]
	if !ok {
		return nil, datatypes.ErrArtifactNotFound
	}
	return a, nil
}

func (f *fakeCache) Upsert(ctx context.Context, a *datatypes.Artifact) error {
	f.upserts++
	f.lastPut = a
	f.rows[a.Key()] = a
	return nil
}

type fakeCalc struct {
	payload json.RawMessage
	err     error
	calls   int
}

func (f *fakeCalc) Calculate(ctx context.Context, task string, req datatypes.CalculationRequest) (*datatypes.CalculationResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &datatypes.CalculationResponse{Data: f.payload, CalculatedAt: fixedNow}, nil
}

func validBirth() datatypes.BirthContext {
	return datatypes.BirthContext{
		BirthDate: "1980-01-01",
		BirthTime: "06:00",
		Latitude:  28.6139,
		Longitude: 77.2090,
		Timezone:  "Asia/Kolkata",
		System:    "lahiri",
	}
}

func baseRequest() Request {
	return Request{Tenant: "t", ClientID: "c", Birth: validBirth()}
}

// rawTree is a freshly subdivided, one-level tree: what the calculation
// service returns before any balancing.
func rawTree(t *testing.T) []*datatypes.Period {
	t.Helper()
	tree := dasha.Subdivide("Ketu", treeStart, 120, time.Time{})
	if len(tree) != 9 {
		t.Fatalf("test tree has %d periods", len(tree))
	}
	return tree
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestResolver(cache Cache, calc *fakeCalc) *Resolver {
	expander := dasha.NewExpanderAt(func() time.Time { return fixedNow }, slog.Default())
	return New(cache, calc, expander, slog.Default())
}

func cacheArtifact(payload json.RawMessage) *datatypes.Artifact {
	return &datatypes.Artifact{
		TenantID: "t", ClientID: "c", System: "lahiri",
		Type: datatypes.TypeDashaVimshottari, Payload: payload,
	}
}

func TestResolveServedFromCache(t *testing.T) {
	// A tree balanced before caching is not dirtied again by the same
	// clock and policy, so the cache remains the sole source.
	tree := rawTree(t)
	dasha.NewExpanderAt(func() time.Time { return fixedNow }, slog.Default()).Balance(tree, 0, nil)

	cache := newFakeCache()
	cache.rows[cacheArtifact(nil).Key()] = cacheArtifact(mustJSON(t, tree))
	calc := &fakeCalc{}
	r := newTestResolver(cache, calc)

	res, err := r.Resolve(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Source != SourceCache {
		t.Errorf("source = %s, want %s", res.Source, SourceCache)
	}
	if len(res.Periods) != 9 {
		t.Errorf("periods = %d, want 9", len(res.Periods))
	}
	if calc.calls != 0 {
		t.Error("cache hit must not call the calculation service")
	}
	if cache.upserts != 0 {
		t.Error("an already-balanced cached tree must not be re-persisted")
	}
}

func TestResolveCacheMissFetchesExternalAndPersists(t *testing.T) {
	cache := newFakeCache()
	calc := &fakeCalc{payload: mustJSON(t, rawTree(t))}
	r := newTestResolver(cache, calc)

	res, err := r.Resolve(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Source != SourceExternal {
		t.Errorf("source = %s, want %s", res.Source, SourceExternal)
	}
	if calc.calls != 1 {
		t.Errorf("calc calls = %d, want 1", calc.calls)
	}
	if cache.upserts != 1 {
		t.Fatalf("upserts = %d, want exactly one top-level persist", cache.upserts)
	}

	// The persisted row holds the balanced tree, not the raw fetch.
	var persisted []*datatypes.Period
	if err := json.Unmarshal(cache.lastPut.Payload, &persisted); err != nil {
		t.Fatal(err)
	}
	if len(persisted[0].Children) == 0 {
		t.Error("persisted tree should have been balanced before the upsert")
	}
	if cache.lastPut.Type != datatypes.TypeDashaVimshottari {
		t.Errorf("persisted type = %s", cache.lastPut.Type)
	}
}

func TestResolveWrappedEnvelope(t *testing.T) {
	cache := newFakeCache()
	wrapped := map[string]any{"periods": rawTree(t)}
	calc := &fakeCalc{payload: mustJSON(t, wrapped)}
	r := newTestResolver(cache, calc)

	res, err := r.Resolve(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Periods) != 9 {
		t.Errorf("periods = %d, want 9 from the wrapped envelope", len(res.Periods))
	}
}

func TestResolveIncompleteBirthDataSkipsNetwork(t *testing.T) {
	cache := newFakeCache()
	calc := &fakeCalc{payload: mustJSON(t, rawTree(t))}
	r := newTestResolver(cache, calc)

	req := baseRequest()
	req.Birth.BirthDate = ""
	_, err := r.Resolve(context.Background(), req)
	if !errors.Is(err, datatypes.ErrIncompleteBirthData) {
		t.Fatalf("error = %v, want ErrIncompleteBirthData", err)
	}
	if calc.calls != 0 {
		t.Error("incomplete birth data must fail before any network call")
	}
}

func TestResolvePathTooDeep(t *testing.T) {
	r := newTestResolver(newFakeCache(), &fakeCalc{})
	req := baseRequest()
	req.Path = []string{"Ketu", "Venus", "Sun", "Moon", "Mars"}
	_, err := r.Resolve(context.Background(), req)
	if !errors.Is(err, datatypes.ErrPathTooDeep) {
		t.Errorf("error = %v, want ErrPathTooDeep", err)
	}
}

func TestResolveUnknownLevel(t *testing.T) {
	r := newTestResolver(newFakeCache(), &fakeCalc{})
	req := baseRequest()
	req.Level = "ashtottari"
	if _, err := r.Resolve(context.Background(), req); err == nil {
		t.Error("unknown level must be rejected")
	}
}

func TestResolveDrillDownPath(t *testing.T) {
	cache := newFakeCache()
	cache.rows[cacheArtifact(nil).Key()] = cacheArtifact(mustJSON(t, rawTree(t)))
	r := newTestResolver(cache, &fakeCalc{})

	req := baseRequest()
	req.Path = []string{"Venus", "Sun"}
	res, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Periods) != 9 {
		t.Fatalf("periods = %d, want 9 children of Venus/Sun", len(res.Periods))
	}
	// Sub-periods below Venus/Sun start the cycle at Sun itself.
	if res.Periods[0].Lord != "Sun" {
		t.Errorf("first lord = %s, want Sun", res.Periods[0].Lord)
	}
	// The deepened cached tree is written back as one upsert.
	if cache.upserts != 1 {
		t.Errorf("upserts = %d, want 1", cache.upserts)
	}
}

func TestResolveDeterministicAcrossSources(t *testing.T) {
	payload := mustJSON(t, rawTree(t))
	req := baseRequest()
	req.Path = []string{"Venus", "Sun"}
	ctx := context.Background()

	fromCache := newFakeCache()
	fromCache.rows[cacheArtifact(nil).Key()] = cacheArtifact(payload)
	cacheRes, err := newTestResolver(fromCache, &fakeCalc{}).Resolve(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	extRes, err := newTestResolver(newFakeCache(), &fakeCalc{payload: payload}).Resolve(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	if len(cacheRes.Periods) != len(extRes.Periods) {
		t.Fatalf("period counts differ: %d vs %d", len(cacheRes.Periods), len(extRes.Periods))
	}
	for i := range cacheRes.Periods {
		a, b := cacheRes.Periods[i], extRes.Periods[i]
		if a.Lord != b.Lord || !a.Start.Equal(b.Start) || !a.End.Equal(b.End) {
			t.Errorf("period %d differs across sources: %s [%s, %s] vs %s [%s, %s]",
				i, a.Lord, a.Start, a.End, b.Lord, b.Start, b.End)
		}
	}
}

func TestResolveYoginiHasNoLocalFallback(t *testing.T) {
	// Yogini children one level deep, hand-built; the engine cannot
	// subdivide them locally.
	yogini := []*datatypes.Period{
		{Lord: "Mangala", Start: treeStart, End: treeStart.AddDate(1, 0, 0), DurationYears: 1},
		{Lord: "Pingala", Start: treeStart.AddDate(1, 0, 0), End: treeStart.AddDate(3, 0, 0), DurationYears: 2},
	}
	art := &datatypes.Artifact{
		TenantID: "t", ClientID: "c", System: "lahiri",
		Type: datatypes.TypeDashaYogini, Payload: mustJSON(t, yogini),
	}
	cache := newFakeCache()
	cache.rows[art.Key()] = art
	r := newTestResolver(cache, &fakeCalc{})

	req := baseRequest()
	req.Level = "yogini"

	t.Run("top level served as stored", func(t *testing.T) {
		res, err := r.Resolve(context.Background(), req)
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		if len(res.Periods) != 2 || res.Source != SourceCache {
			t.Errorf("periods = %d, source = %s", len(res.Periods), res.Source)
		}
		if cache.upserts != 0 {
			t.Error("yogini trees must never be rebalanced or re-persisted")
		}
	})

	t.Run("leaf path returns empty without error", func(t *testing.T) {
		leaf := req
		leaf.Path = []string{"Mangala"}
		res, err := r.Resolve(context.Background(), leaf)
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		if len(res.Periods) != 0 {
			t.Errorf("periods = %d, want none below a yogini leaf", len(res.Periods))
		}
	})

	t.Run("deeper path errors", func(t *testing.T) {
		deep := req
		deep.Path = []string{"Mangala", "Pingala"}
		if _, err := r.Resolve(context.Background(), deep); err == nil {
			t.Error("descending below stored yogini data must error")
		}
	})
}

func TestDescendPathLocalFillIn(t *testing.T) {
	tree := rawTree(t)

	periods, calculated, err := descendPath(tree, []string{"Rahu"}, true)
	if err != nil {
		t.Fatalf("descendPath() error: %v", err)
	}
	if !calculated {
		t.Error("missing children must be filled in by local subdivision")
	}
	if len(periods) != 9 || periods[0].Lord != "Rahu" {
		t.Errorf("periods[0] = %+v", periods[0])
	}

	t.Run("unknown lord", func(t *testing.T) {
		if _, _, err := descendPath(tree, []string{"Pluto"}, true); err == nil {
			t.Error("unknown path lord must error")
		}
	})

	t.Run("case and suffix tolerant", func(t *testing.T) {
		periods, _, err := descendPath(tree, []string{"rahu mahadasha"}, true)
		if err != nil {
			t.Fatalf("descendPath() error: %v", err)
		}
		if periods[0].Lord != "Rahu" {
			t.Errorf("first lord = %s", periods[0].Lord)
		}
	})
}

func TestResolveMarksCalculatedSource(t *testing.T) {
	// Once balancing has supplied the children along the path, descent
	// never recomputes them and the source stays the original one.
	cache := newFakeCache()
	cache.rows[cacheArtifact(nil).Key()] = cacheArtifact(mustJSON(t, rawTree(t)))
	r := newTestResolver(cache, &fakeCalc{})

	req := baseRequest()
	req.Path = []string{"Venus"}
	res, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source == SourceCalculated {
		t.Error("balanced branches are served from their source, not recomputed")
	}
}

func TestActivePath(t *testing.T) {
	cache := newFakeCache()
	cache.rows[cacheArtifact(nil).Key()] = cacheArtifact(mustJSON(t, rawTree(t)))
	r := newTestResolver(cache, &fakeCalc{})

	chain, err := r.ActivePath(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ActivePath() error: %v", err)
	}
	if len(chain) != 5 {
		t.Fatalf("chain length = %d, want 5", len(chain))
	}
	if chain[0].Lord != "Ketu" {
		t.Errorf("level 1 lord = %s, want Ketu (active in 1983)", chain[0].Lord)
	}
	for i, node := range chain {
		if node.Level != i+1 {
			t.Errorf("node %d level = %d", i, node.Level)
		}
		if fixedNow.Before(node.Start) || !fixedNow.Before(node.End) {
			t.Errorf("level %d [%s, %s) does not contain the clock", node.Level, node.Start, node.End)
		}
	}
}

func TestResolveExternalFailurePropagates(t *testing.T) {
	upstream := &datatypes.UpstreamError{Status: 503, Task: datatypes.TypeDashaVimshottari}
	r := newTestResolver(newFakeCache(), &fakeCalc{err: upstream})

	_, err := r.Resolve(context.Background(), baseRequest())
	var ue *datatypes.UpstreamError
	if !errors.As(err, &ue) {
		t.Errorf("error = %v, want the upstream error unmodified", err)
	}
}

type failingUpsertCache struct {
	*fakeCache
}

func (f *failingUpsertCache) Upsert(ctx context.Context, a *datatypes.Artifact) error {
	return errors.New("disk full")
}

func TestResolvePersistFailureDoesNotFailResolution(t *testing.T) {
	cache := &failingUpsertCache{newFakeCache()}
	calc := &fakeCalc{payload: mustJSON(t, rawTree(t))}
	r := newTestResolver(cache, calc)

	res, err := r.Resolve(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Resolve() error: %v, persistence is a side effect", err)
	}
	if len(res.Periods) != 9 {
		t.Errorf("periods = %d, want the resolved tree despite the failed persist", len(res.Periods))
	}
}
