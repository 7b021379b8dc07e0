// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache implements the ChartCache: a cache-aside layer in front of
// the artifact repository with request coalescing, so concurrent identical
// misses trigger exactly one repository fetch.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
	"github.com/JyotishAI/JyotishCore/services/profile/observability"
)

// DefaultTTL is how long a cached artifact is served before the repository
// is consulted again.
const DefaultTTL = 5 * time.Minute

// Store is the repository behind the cache. Satisfied by
// storage/badger.ArtifactStore.
type Store interface {
	Get(ctx context.Context, tenant, client, system, typ string) (*datatypes.Artifact, error)
	Put(ctx context.Context, a *datatypes.Artifact) error
	ListTypes(ctx context.Context, tenant, client, system string) ([]string, error)
	ListByClient(ctx context.Context, tenant, client string) ([]*datatypes.Artifact, error)
}

type entry struct {
	artifact  *datatypes.Artifact
	fetchedAt time.Time
}

// ChartCache is safe for concurrent use. Every write invalidates all cached
// entries for the written client, so readers never see a stale row after an
// upsert in the same process.
type ChartCache struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	flight singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

// New returns a ChartCache over the given repository. ttl zero or negative
// means DefaultTTL.
func New(store Store, ttl time.Duration) *ChartCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ChartCache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// FindOne reads one artifact cache-aside. Concurrent identical misses are
// coalesced into a single repository fetch; every waiter receives the same
// result. A repository miss propagates datatypes.ErrArtifactNotFound and is
// not negatively cached.
func (c *ChartCache) FindOne(ctx context.Context, tenant, client, system, typ string) (*datatypes.Artifact, error) {
	key := datatypes.ArtifactKey(tenant, client, system, typ)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		observability.CacheReads.WithLabelValues("hit").Inc()
		return e.artifact, nil
	}

	observability.CacheReads.WithLabelValues("miss").Inc()
	result, err, shared := c.flight.Do(key, func() (interface{}, error) {
		a, err := c.store.Get(ctx, tenant, client, system, typ)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry{artifact: a, fetchedAt: c.now()}
		c.mu.Unlock()
		return a, nil
	})
	if shared {
		observability.CacheReads.WithLabelValues("coalesced").Inc()
	}
	if err != nil {
		return nil, err
	}
	return result.(*datatypes.Artifact), nil
}

// FindByClient lists every artifact for a client straight from the
// repository. The listing is used for missing-artifact diffs and must be
// fresh, so it bypasses the entry cache.
func (c *ChartCache) FindByClient(ctx context.Context, tenant, client string) ([]*datatypes.Artifact, error) {
	return c.store.ListByClient(ctx, tenant, client)
}

// ListTypes returns the persisted artifact types for a (client, system)
// pair, uncached for the same reason as FindByClient.
func (c *ChartCache) ListTypes(ctx context.Context, tenant, client, system string) ([]string, error) {
	return c.store.ListTypes(ctx, tenant, client, system)
}

// Upsert writes through to the repository and invalidates every cached
// entry for the client.
func (c *ChartCache) Upsert(ctx context.Context, a *datatypes.Artifact) error {
	if err := c.store.Put(ctx, a); err != nil {
		return err
	}
	c.InvalidateClient(a.TenantID, a.ClientID)
	return nil
}

// InvalidateClient drops all cached entries for one client.
func (c *ChartCache) InvalidateClient(tenant, client string) {
	prefix := tenant + "/" + client + "/"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}
