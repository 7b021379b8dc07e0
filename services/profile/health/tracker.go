// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package health tracks recently failed calculation endpoints per
// (system, artifact type) so bulk generation runs skip endpoints that just
// failed instead of hammering them on every run.
//
// The tracker is purely advisory: in-memory, process-local, never
// persisted. Losing its state only costs a few extra upstream calls.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
)

// DefaultCooldown is how long an endpoint stays on the skip list after a
// recorded failure.
const DefaultCooldown = 10 * time.Minute

// Tracker records last-failure timestamps per (system, artifact type).
//
// Thread Safety: safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	failures map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// New returns a Tracker with the default cooldown.
func New(logger *slog.Logger) *Tracker {
	return NewWithCooldown(DefaultCooldown, logger)
}

// NewWithCooldown returns a Tracker with a custom cooldown window.
func NewWithCooldown(cooldown time.Duration, logger *slog.Logger) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		failures: make(map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
		logger:   logger,
	}
}

func key(system, artifactType string) string {
	return system + "/" + datatypes.NormalizeType(artifactType)
}

// MarkFailed records a failure for the endpoint now.
func (t *Tracker) MarkFailed(system, artifactType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[key(system, artifactType)] = t.now()
	t.logger.Warn("endpoint marked failed",
		"system", system, "artifact_type", artifactType, "cooldown", t.cooldown)
}

// ShouldSkip reports whether a failure was recorded within the cooldown
// window. Expired records are removed on read.
func (t *Tracker) ShouldSkip(system, artifactType string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(system, artifactType)
	failedAt, ok := t.failures[k]
	if !ok {
		return false
	}
	if t.now().Sub(failedAt) >= t.cooldown {
		delete(t.failures, k)
		return false
	}
	return true
}

// Clear removes any failure record for the endpoint. Used for forced manual
// retries.
func (t *Tracker) Clear(system, artifactType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, key(system, artifactType))
}

// setClock injects a clock for tests.
func (t *Tracker) setClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}
