// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator drives idempotent full-profile generation: per-client
// locking, missing-artifact diffing against the capability catalog, and
// rate-limited dispatch of generation tasks with a cooldown skip for
// endpoints that just failed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/JyotishAI/JyotishCore/services/profile/catalog"
	"github.com/JyotishAI/JyotishCore/services/profile/client"
	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
	"github.com/JyotishAI/JyotishCore/services/profile/health"
	"github.com/JyotishAI/JyotishCore/services/profile/observability"
	"github.com/JyotishAI/JyotishCore/services/profile/resolver"
)

// DefaultTaskInterval paces task dispatch. The calculation service sits
// behind a small connection ceiling; one task per interval keeps bulk runs
// well under it.
const DefaultTaskInterval = 500 * time.Millisecond

// Cache is the slice of the ChartCache the orchestrator needs.
type Cache interface {
	ListTypes(ctx context.Context, tenant, clientID, system string) ([]string, error)
	Upsert(ctx context.Context, a *datatypes.Artifact) error
}

// Report summarizes one generation run.
type Report struct {
	Status   datatypes.GenerationState `json:"status"`
	RunID    string                    `json:"run_id"`
	Duration time.Duration             `json:"duration"`
	// Missing holds the per-system missing-artifact counts found at the
	// start of the run.
	Missing map[string]int `json:"missing"`
	// Failed holds artifact types whose generation failed this run; they
	// stay missing and a later run retries them.
	Failed []string `json:"failed,omitempty"`
}

// Options tune a generation run.
type Options struct {
	// Concurrency is the number of tasks in flight at once. Zero or one
	// fully serializes the batch (the default).
	Concurrency int
	// TaskInterval is the minimum spacing between task starts.
	TaskInterval time.Duration
}

// Orchestrator generates full client profiles. Safe for concurrent use;
// runs for the same client are serialized by the Coordinator, runs for
// different clients proceed independently.
type Orchestrator struct {
	coord    *Coordinator
	catalog  *catalog.Catalog
	cache    Cache
	calc     client.CalculationClient
	resolver *resolver.Resolver
	tracker  *health.Tracker
	clients  client.ClientProvider
	limiter  *rate.Limiter
	opts     Options
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New wires an Orchestrator.
func New(coord *Coordinator, cat *catalog.Catalog, cache Cache, calc client.CalculationClient, res *resolver.Resolver, tracker *health.Tracker, clients client.ClientProvider, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TaskInterval <= 0 {
		opts.TaskInterval = DefaultTaskInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		coord:    coord,
		catalog:  cat,
		cache:    cache,
		calc:     calc,
		resolver: res,
		tracker:  tracker,
		clients:  clients,
		limiter:  rate.NewLimiter(rate.Every(opts.TaskInterval), 1),
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("profile/orchestrator"),
	}
}

// EnsureProfile is the fire-and-forget trigger called opportunistically on
// client reads. While a run is active for the client it is a silent no-op;
// otherwise it starts a generation run in the background.
func (o *Orchestrator) EnsureProfile(ctx context.Context, tenant, clientID string) {
	if o.coord.Locked(tenant, clientID) {
		return
	}
	go func() {
		// Detached from the request context on purpose: the triggering
		// request should not cancel the run it kicked off.
		if _, err := o.GenerateProfile(context.WithoutCancel(ctx), tenant, clientID); err != nil {
			o.logger.Error("background profile generation failed",
				"tenant", tenant, "client_id", clientID, "error", err)
		}
	}()
}

// GenerateProfile runs one full generation pass for a client. It only ever
// attempts what is currently missing, so calling it repeatedly is safe and
// a previously failed run resumes from whatever is still absent. A run
// already in flight for the client returns immediately with no side
// effects.
func (o *Orchestrator) GenerateProfile(ctx context.Context, tenant, clientID string) (*Report, error) {
	if !o.coord.TryAcquire(tenant, clientID) {
		observability.GenerationRuns.WithLabelValues("skipped_locked").Inc()
		return &Report{
			Status:  o.coord.Status(tenant, clientID).State,
			Missing: map[string]int{},
		}, nil
	}
	defer o.coord.Release(tenant, clientID)

	runID := uuid.NewString()
	ctx, span := o.tracer.Start(ctx, "orchestrator.GenerateProfile",
		trace.WithAttributes(
			attribute.String("client_id", clientID),
			attribute.String("run_id", runID),
		))
	defer span.End()

	start := time.Now()
	o.coord.SetState(tenant, clientID, datatypes.StateProcessing, runID)
	o.logger.Info("profile generation started", "tenant", tenant, "client_id", clientID, "run_id", runID)

	report, err := o.generate(ctx, tenant, clientID, runID)
	duration := time.Since(start)
	observability.GenerationDuration.Observe(duration.Seconds())

	if err != nil {
		o.coord.SetState(tenant, clientID, datatypes.StateFailed, runID)
		observability.GenerationRuns.WithLabelValues("failed").Inc()
		o.logger.Error("profile generation failed",
			"tenant", tenant, "client_id", clientID, "run_id", runID, "error", err)
		return nil, err
	}

	o.coord.SetState(tenant, clientID, datatypes.StateCompleted, runID)
	observability.GenerationRuns.WithLabelValues("completed").Inc()
	report.Status = datatypes.StateCompleted
	report.RunID = runID
	report.Duration = duration
	o.logger.Info("profile generation completed",
		"tenant", tenant, "client_id", clientID, "run_id", runID,
		"duration", duration, "failed_tasks", len(report.Failed))
	return report, nil
}

// generate is the per-system control loop. An error returned from here is
// fatal to the run; individual task failures are caught inside dispatch
// and only excluded from the result set.
func (o *Orchestrator) generate(ctx context.Context, tenant, clientID, runID string) (*Report, error) {
	record, err := o.clients.GetClient(ctx, tenant, clientID)
	if err != nil {
		return nil, fmt.Errorf("load client record: %w", err)
	}

	report := &Report{Missing: make(map[string]int)}
	for _, system := range o.catalog.Systems() {
		existing, err := o.cache.ListTypes(ctx, tenant, clientID, system)
		if err != nil {
			return nil, fmt.Errorf("list artifacts for system %s: %w", system, err)
		}
		missing := o.catalog.Missing(system, existing)
		report.Missing[system] = len(missing)
		if len(missing) == 0 {
			continue
		}

		tasks := make([]task, 0, len(missing))
		for _, artifactType := range missing {
			if o.tracker.ShouldSkip(system, artifactType) {
				observability.GenerationTasks.WithLabelValues(system, "skipped_cooldown").Inc()
				o.logger.Info("skipping artifact on endpoint cooldown",
					"system", system, "artifact_type", artifactType, "run_id", runID)
				continue
			}
			t, err := o.buildTask(record, system, artifactType)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}

		failed := o.dispatch(ctx, tasks, runID)
		report.Failed = append(report.Failed, failed...)
	}
	return report, nil
}

// dispatch runs a batch of tasks with bounded concurrency and rate-paced
// starts. Each task's failure is caught individually; a failure never
// aborts the batch. Returns the artifact types that failed.
func (o *Orchestrator) dispatch(ctx context.Context, tasks []task, runID string) []string {
	sem := make(chan struct{}, o.opts.Concurrency)
	results := make(chan string, len(tasks))

	for _, t := range tasks {
		if err := o.limiter.Wait(ctx); err != nil {
			// Context gone; remaining tasks stay missing for the next run.
			results <- t.artifactType
			continue
		}
		sem <- struct{}{}
		go func(t task) {
			defer func() { <-sem }()
			if err := t.run(ctx); err != nil {
				o.recordTaskFailure(t, runID, err)
				results <- t.artifactType
				return
			}
			observability.GenerationTasks.WithLabelValues(t.system, "ok").Inc()
			results <- ""
		}(t)
	}

	var failed []string
	for range tasks {
		if typ := <-results; typ != "" {
			failed = append(failed, typ)
		}
	}
	return failed
}

func (o *Orchestrator) recordTaskFailure(t task, runID string, err error) {
	observability.GenerationTasks.WithLabelValues(t.system, "failed").Inc()
	o.logger.Warn("artifact generation failed",
		"system", t.system, "artifact_type", t.artifactType, "run_id", runID, "error", err)

	var upstream *datatypes.UpstreamError
	if errors.As(err, &upstream) && upstream.ShouldTrip() {
		o.tracker.MarkFailed(t.system, t.artifactType)
	}
}

// Status returns the client's generation record plus a side-effect-free
// missing-artifact diff per system.
func (o *Orchestrator) Status(ctx context.Context, tenant, clientID string) (datatypes.GenerationStatus, map[string]int, error) {
	status := o.coord.Status(tenant, clientID)
	missing := make(map[string]int)
	for _, system := range o.catalog.Systems() {
		existing, err := o.cache.ListTypes(ctx, tenant, clientID, system)
		if err != nil {
			return status, nil, fmt.Errorf("list artifacts for system %s: %w", system, err)
		}
		missing[system] = len(o.catalog.Missing(system, existing))
	}
	return status, missing, nil
}

// ForceRetry clears the endpoint cooldown for one (system, type) so the
// next run attempts it regardless of recent failures.
func (o *Orchestrator) ForceRetry(system, artifactType string) {
	o.tracker.Clear(system, artifactType)
}
