// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Full-stack generation flow over a real embedded store: trigger a run
// through the HTTP surface, verify every catalog artifact lands in badger,
// and verify the second run is a pure no-op.

package integration

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JyotishAI/JyotishCore/services/profile/cache"
	"github.com/JyotishAI/JyotishCore/services/profile/catalog"
	"github.com/JyotishAI/JyotishCore/services/profile/dasha"
	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
	"github.com/JyotishAI/JyotishCore/services/profile/handlers"
	"github.com/JyotishAI/JyotishCore/services/profile/health"
	"github.com/JyotishAI/JyotishCore/services/profile/orchestrator"
	"github.com/JyotishAI/JyotishCore/services/profile/resolver"
	badgerstore "github.com/JyotishAI/JyotishCore/services/profile/storage/badger"
)

// calcStub stands in for the external calculation service and counts every
// upstream call the run makes.
type calcStub struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *calcStub) Calculate(ctx context.Context, task string, req datatypes.CalculationRequest) (*datatypes.CalculationResponse, error) {
	c.mu.Lock()
	c.calls[task]++
	c.mu.Unlock()
	if strings.HasPrefix(task, datatypes.TypePrefixDasha) {
		tree := dasha.Subdivide("Ketu", time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), 120, time.Time{})
		payload, _ := json.Marshal(tree)
		return &datatypes.CalculationResponse{Data: payload}, nil
	}
	return &datatypes.CalculationResponse{Data: []byte(`{"calculated":true}`)}, nil
}

func (c *calcStub) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

type providerStub struct {
	gets atomic.Int64
}

func (p *providerStub) GetClient(ctx context.Context, tenant, clientID string) (*datatypes.ClientRecord, error) {
	p.gets.Add(1)
	return &datatypes.ClientRecord{
		TenantID:  tenant,
		ClientID:  clientID,
		BirthDate: "1980-01-01",
		BirthTime: "06:00",
		Latitude:  28.6139,
		Longitude: 77.2090,
		Timezone:  "Asia/Kolkata",
	}, nil
}

func TestFullProfileGenerationFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := slog.Default()

	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	store := badgerstore.NewArtifactStore(db)
	charts := cache.New(store, cache.DefaultTTL)
	cat, err := catalog.Load()
	require.NoError(t, err)

	calc := &calcStub{calls: map[string]int{}}
	provider := &providerStub{}
	res := resolver.New(charts, calc, dasha.NewExpander(logger), logger)
	orch := orchestrator.New(orchestrator.NewCoordinator(0), cat, charts, calc, res,
		health.New(logger), provider,
		orchestrator.Options{Concurrency: 3, TaskInterval: time.Millisecond}, logger)

	router := gin.New()
	handlers.Register(router, orch, res, provider, logger)

	post := func(url string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, url, nil))
		return w
	}

	t.Run("first run fills every system", func(t *testing.T) {
		w := post("/v1/tenants/t1/clients/c1/profile/generate")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var report orchestrator.Report
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, datatypes.StateCompleted, report.Status)
		assert.Empty(t, report.Failed)

		for _, system := range cat.Systems() {
			expected := cat.Expected(system)
			assert.Equal(t, len(expected), report.Missing[system], system)

			types, err := store.ListTypes(ctx, "t1", "c1", system)
			require.NoError(t, err)
			assert.Len(t, types, len(expected), "persisted artifacts for %s", system)
			assert.Empty(t, cat.Missing(system, types), "nothing left missing for %s", system)
		}
	})

	t.Run("dasha artifact is a balanced tree", func(t *testing.T) {
		a, err := store.Get(ctx, "t1", "c1", "lahiri", datatypes.TypeDashaVimshottari)
		require.NoError(t, err)

		var tree []*datatypes.Period
		require.NoError(t, json.Unmarshal(a.Payload, &tree))
		require.Len(t, tree, 9)
		for _, p := range tree {
			assert.NotEmpty(t, p.Children, "top-level %s has no subdivision", p.Lord)
		}
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		before := calc.total()
		w := post("/v1/tenants/t1/clients/c1/profile/generate")
		require.Equal(t, http.StatusOK, w.Code)

		var report orchestrator.Report
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, datatypes.StateCompleted, report.Status)
		for system, count := range report.Missing {
			assert.Zero(t, count, system)
		}
		assert.Equal(t, before, calc.total(), "no upstream calls on a complete profile")
	})

	t.Run("drill-down served from persisted tree", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/tenants/t1/clients/c1/dasha/resolve",
			strings.NewReader(`{"system":"lahiri","path":["Venus","Sun","Moon"]}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result resolver.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		require.Len(t, result.Periods, 9)

		// Proportional subdivision holds at depth: children tile the
		// parent exactly and weights follow the cycle shares.
		for i := 1; i < len(result.Periods); i++ {
			assert.True(t, result.Periods[i].Start.Equal(result.Periods[i-1].End),
				"gap before %s", result.Periods[i].Lord)
		}
	})
}
