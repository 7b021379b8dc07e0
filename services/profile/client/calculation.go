// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package client holds the HTTP clients for the service's external
// collaborators: the astronomical calculation service and the client data
// provider.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
	"github.com/JyotishAI/JyotishCore/services/profile/observability"
)

// DefaultCallTimeout is the fixed per-call timeout for calculation
// requests. The orchestration run as a whole has no timeout.
const DefaultCallTimeout = 45 * time.Second

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CalculationClient is the boundary to the external calculation service.
// The service owns all astronomical math; this side only ships birth data
// and receives opaque artifact JSON.
type CalculationClient interface {
	Calculate(ctx context.Context, task string, req datatypes.CalculationRequest) (*datatypes.CalculationResponse, error)
}

// HTTPCalculationClient calls the calculation service over HTTP.
//
// Thread Safety: safe for concurrent use.
type HTTPCalculationClient struct {
	baseURL string
	httpc   HTTPClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewCalculationClient builds a client for the given base URL.
func NewCalculationClient(baseURL string, logger *slog.Logger) *HTTPCalculationClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPCalculationClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: DefaultCallTimeout},
		timeout: DefaultCallTimeout,
		logger:  logger,
	}
}

// WithHTTPClient swaps the underlying HTTP client, for tests.
func (c *HTTPCalculationClient) WithHTTPClient(httpc HTTPClient) *HTTPCalculationClient {
	c.httpc = httpc
	return c
}

// Calculate posts a calculation request for one task (e.g. "chart",
// "dasha_vimshottari", "presence_sadesati"). Non-2xx responses surface as
// *datatypes.UpstreamError so bulk runs can classify them; the error is
// otherwise propagated unmodified and retry is the caller's decision.
func (c *HTTPCalculationClient) Calculate(ctx context.Context, task string, req datatypes.CalculationRequest) (*datatypes.CalculationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode calculation request: %w", err)
	}

	url := c.baseURL + "/v1/calculate/" + task
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build calculation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		observability.UpstreamRequestDuration.
			WithLabelValues(task, "transport_error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("call calculation service: %w", err)
	}
	defer resp.Body.Close()
	observability.UpstreamRequestDuration.
		WithLabelValues(task, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Bound the body read; error bodies are only kept for logs.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn("calculation service error",
			"task", task, "status", resp.StatusCode, "body", string(snippet))
		return nil, &datatypes.UpstreamError{Status: resp.StatusCode, Task: task, Body: string(snippet)}
	}

	var out datatypes.CalculationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode calculation response for task %s: %w", task, err)
	}
	return &out, nil
}
