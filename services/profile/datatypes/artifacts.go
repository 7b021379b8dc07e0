// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"strings"
	"time"
)

// Artifact type prefixes. The orchestrator routes generation tasks to
// sub-generators by prefix.
const (
	TypePrefixChart    = "chart_"
	TypePrefixDasha    = "dasha_"
	TypePrefixPresence = "presence_"
)

// Well-known artifact types.
const (
	TypeChartD1          = "chart_d1"
	TypeChartD9          = "chart_d9"
	TypeChartD10         = "chart_d10"
	TypeDashaVimshottari = "dasha_vimshottari"
	TypeDashaYogini      = "dasha_yogini"
	TypePresenceSadeSati = "presence_sadesati"
	TypePresenceMangal   = "presence_mangal"
	TypeAshtakavarga     = "ashtakavarga"
)

// Artifact is one persisted computed output. Identity key is
// (tenant, client, type, system); the repository guarantees at most one
// row per key via upsert semantics. Payload may be compressed opaquely
// by the storage layer.
type Artifact struct {
	TenantID  string          `json:"tenant_id"`
	ClientID  string          `json:"client_id"`
	Type      string          `json:"type"`
	System    string          `json:"system"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Key returns the canonical identity key for this artifact.
func (a *Artifact) Key() string {
	return ArtifactKey(a.TenantID, a.ClientID, a.System, a.Type)
}

// ArtifactKey builds the identity key for an artifact row.
func ArtifactKey(tenant, client, system, typ string) string {
	return tenant + "/" + client + "/" + strings.ToLower(system) + "/" + NormalizeType(typ)
}

// NormalizeType folds case and separator variants of an artifact type into
// one comparable form. "Chart_D9", "chart-d9" and "chartd9" all normalize
// to "chartd9"; the set difference against the capability catalog is
// computed over these normalized forms.
func NormalizeType(typ string) string {
	typ = strings.ToLower(strings.TrimSpace(typ))
	typ = strings.ReplaceAll(typ, "_", "")
	typ = strings.ReplaceAll(typ, "-", "")
	return typ
}

// GenerationState is the lifecycle of a client's profile generation run.
type GenerationState string

const (
	StateIdle       GenerationState = "idle"
	StateProcessing GenerationState = "processing"
	StateCompleted  GenerationState = "completed"
	StateFailed     GenerationState = "failed"
)

// GenerationStatus is the per-client generation record. Version increases
// monotonically, bumped each time a run completes.
type GenerationStatus struct {
	State     GenerationState `json:"state"`
	Version   int64           `json:"version"`
	RunID     string          `json:"run_id,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
