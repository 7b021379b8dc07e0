// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the profile service.
var (
	// ErrIncompleteBirthData indicates the client record is missing fields
	// required for any calculation. Fatal to the call, never retried.
	ErrIncompleteBirthData = errors.New("incomplete birth data")

	// ErrArtifactNotFound indicates no artifact row exists for the key.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrClientNotFound indicates the client data provider has no record.
	ErrClientNotFound = errors.New("client not found")

	// ErrPathTooDeep indicates a drill-down path longer than the supported
	// four ancestor levels.
	ErrPathTooDeep = errors.New("drill-down path exceeds four levels")
)

// UpstreamError reports a failed call to the calculation service. The caller
// decides whether to retry; bulk runs use ShouldTrip to mark the endpoint.
type UpstreamError struct {
	Status int
	Task   string
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("calculation service: task %s returned status %d", e.Task, e.Status)
}

// ShouldTrip reports whether this failure carries the not-found/server-error
// signature that puts the endpoint on cooldown during bulk generation.
func (e *UpstreamError) ShouldTrip() bool {
	return e.Status == http.StatusNotFound || e.Status >= http.StatusInternalServerError
}
