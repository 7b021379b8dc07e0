// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"time"
)

// CalculationRequest is the body sent to the external calculation service.
// Params carries task-specific parameters (e.g. the divisional chart number)
// and is merged into the body as-is on the service side.
type CalculationRequest struct {
	BirthDate           string         `json:"birth_date"`
	BirthTime           string         `json:"birth_time"`
	Latitude            float64        `json:"latitude"`
	Longitude           float64        `json:"longitude"`
	TimezoneOffsetHours float64        `json:"timezone_offset_hours"`
	System              string         `json:"system"`
	Params              map[string]any `json:"params,omitempty"`
}

// CalculationResponse is the envelope returned by the calculation service.
// Data is an opaque artifact payload; the astronomical math behind it is
// entirely the service's concern.
type CalculationResponse struct {
	Data         json.RawMessage `json:"data"`
	Cached       bool            `json:"cached"`
	CalculatedAt time.Time       `json:"calculated_at"`
}

// CalculationRequestFor builds a request from a birth context.
func CalculationRequestFor(b BirthContext, params map[string]any) CalculationRequest {
	return CalculationRequest{
		BirthDate:           b.BirthDate,
		BirthTime:           b.BirthTime,
		Latitude:            b.Latitude,
		Longitude:           b.Longitude,
		TimezoneOffsetHours: b.UTCOffsetHours(),
		System:              b.System,
		Params:              params,
	}
}

// ClientRecord is what the client data provider exposes for one client.
// Persistence of client records is outside this service.
type ClientRecord struct {
	TenantID  string  `json:"tenant_id"`
	ClientID  string  `json:"client_id"`
	BirthDate string  `json:"birth_date"`
	BirthTime string  `json:"birth_time"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// BirthContextFor derives the immutable calculation input for one system.
func (c ClientRecord) BirthContextFor(system string) BirthContext {
	return BirthContext{
		BirthDate: c.BirthDate,
		BirthTime: c.BirthTime,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		Timezone:  c.Timezone,
		System:    system,
	}
}
