// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command profile starts the Jyotish profile generation service.
//
// The service maintains dasha period trees and orchestrates generation of
// full per-client computed profiles (charts, period trees, presence
// analyses) against the external calculation service.
//
// Usage:
//
//	go run ./services/profile
//
// Environment:
//
//	PROFILE_PORT          listen port (default 12310)
//	CALC_SERVICE_URL      calculation service base URL (required)
//	CLIENT_SERVICE_URL    client data service base URL (required)
//	PROFILE_DATA_DIR      BadgerDB directory (default ./data/profile)
//	PROFILE_CATALOG_FILE  capability catalog override (optional)
//	OTEL_EXPORTER_OTLP_ENDPOINT  OTLP collector (optional; tracing off when unset)
//
// Example requests:
//
//	curl http://localhost:12310/health
//	curl -X POST http://localhost:12310/v1/tenants/t1/clients/c1/profile/generate
//	curl http://localhost:12310/v1/tenants/t1/clients/c1/profile/status
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JyotishAI/JyotishCore/services/profile/cache"
	"github.com/JyotishAI/JyotishCore/services/profile/catalog"
	"github.com/JyotishAI/JyotishCore/services/profile/client"
	"github.com/JyotishAI/JyotishCore/services/profile/dasha"
	"github.com/JyotishAI/JyotishCore/services/profile/handlers"
	"github.com/JyotishAI/JyotishCore/services/profile/health"
	"github.com/JyotishAI/JyotishCore/services/profile/orchestrator"
	"github.com/JyotishAI/JyotishCore/services/profile/resolver"
	storage "github.com/JyotishAI/JyotishCore/services/profile/storage/badger"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("profile-service")))
	if err != nil {
		return nil, err
	}
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	calcURL := os.Getenv("CALC_SERVICE_URL")
	if calcURL == "" {
		slog.Error("CALC_SERVICE_URL environment variable is required")
		os.Exit(1)
	}
	clientURL := os.Getenv("CLIENT_SERVICE_URL")
	if clientURL == "" {
		slog.Error("CLIENT_SERVICE_URL environment variable is required")
		os.Exit(1)
	}
	dataDir := envOr("PROFILE_DATA_DIR", "./data/profile")
	port := envOr("PROFILE_PORT", "12310")

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	var cat *catalog.Catalog
	if path := os.Getenv("PROFILE_CATALOG_FILE"); path != "" {
		cat, err = catalog.LoadFile(path)
	} else {
		cat, err = catalog.Load()
	}
	if err != nil {
		log.Fatalf("FATAL: could not load the capability catalog: %v", err)
	}

	db, err := storage.Open(storage.DefaultConfig(dataDir))
	if err != nil {
		log.Fatalf("FATAL: could not open the artifact database: %v", err)
	}
	defer db.Close()

	chartCache := cache.New(storage.NewArtifactStore(db), 0)
	calcClient := client.NewCalculationClient(calcURL, logger)
	clientProvider := client.NewClientProvider(clientURL)
	tracker := health.New(logger)
	expander := dasha.NewExpander(logger)
	dashaResolver := resolver.New(chartCache, calcClient, expander, logger)
	orch := orchestrator.New(
		orchestrator.NewCoordinator(0),
		cat, chartCache, calcClient, dashaResolver, tracker, clientProvider,
		orchestrator.Options{}, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("profile-service"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "jyotish-profile"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.Register(router, orch, dashaResolver, clientProvider, logger)

	srv := &http.Server{Addr: ":" + port, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting profile service", "port", port, "data_dir", dataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down profile service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
