// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"sync"
	"time"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
)

// DefaultStaleAfter is how long a "processing" state or generation lock is
// honored before it is treated as abandoned. A process that dies mid-run
// cannot clean up after itself; without this TTL the client would be stuck
// in "processing" forever.
const DefaultStaleAfter = 15 * time.Minute

// Coordinator owns the per-client generation locks and status records.
//
// It is deliberately a separate injectable component rather than state
// inside the orchestrator, so a distributed lock backend can replace the
// in-memory maps without touching orchestration logic. The in-memory
// implementation is process-local: two replicas can still generate the
// same client concurrently, which is a known limitation of this backend.
//
// Thread Safety: safe for concurrent use.
type Coordinator struct {
	mu         sync.Mutex
	locks      map[string]time.Time
	status     map[string]datatypes.GenerationStatus
	staleAfter time.Duration
	now        func() time.Time
}

// NewCoordinator returns an in-memory Coordinator.
func NewCoordinator(staleAfter time.Duration) *Coordinator {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Coordinator{
		locks:      make(map[string]time.Time),
		status:     make(map[string]datatypes.GenerationStatus),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func clientKey(tenant, clientID string) string {
	return tenant + "/" + clientID
}

// TryAcquire takes the generation lock for a client. Returns false when a
// live run already holds it. A lock older than the staleness TTL is
// considered abandoned and is stolen.
func (c *Coordinator) TryAcquire(tenant, clientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := clientKey(tenant, clientID)
	if acquiredAt, held := c.locks[key]; held && c.now().Sub(acquiredAt) < c.staleAfter {
		return false
	}
	c.locks[key] = c.now()
	return true
}

// Release drops the lock. Safe to call when not held.
func (c *Coordinator) Release(tenant, clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, clientKey(tenant, clientID))
}

// Locked reports whether a live (non-stale) run holds the client's lock.
func (c *Coordinator) Locked(tenant, clientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	acquiredAt, held := c.locks[clientKey(tenant, clientID)]
	return held && c.now().Sub(acquiredAt) < c.staleAfter
}

// SetState records a new generation state for the client. Completing a run
// bumps the monotonically increasing version counter.
func (c *Coordinator) SetState(tenant, clientID string, state datatypes.GenerationState, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := clientKey(tenant, clientID)
	s := c.status[key]
	s.State = state
	s.RunID = runID
	s.UpdatedAt = c.now()
	if state == datatypes.StateCompleted {
		s.Version++
	}
	c.status[key] = s
}

// Status returns the client's generation record. A "processing" state older
// than the staleness TTL is reported as idle; the run that wrote it is
// assumed dead.
func (c *Coordinator) Status(tenant, clientID string) datatypes.GenerationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.status[clientKey(tenant, clientID)]
	if !ok {
		return datatypes.GenerationStatus{State: datatypes.StateIdle}
	}
	if s.State == datatypes.StateProcessing && c.now().Sub(s.UpdatedAt) >= c.staleAfter {
		s.State = datatypes.StateIdle
		s.RunID = ""
	}
	return s
}

// setClock injects a clock for tests.
func (c *Coordinator) setClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
