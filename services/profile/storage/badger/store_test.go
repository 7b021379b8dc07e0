// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
)

func newTestStore(t *testing.T) *ArtifactStore {
	t.Helper()
	db, err := Open(InMemoryConfig())
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewArtifactStore(db)
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"lagna":"Mesha"}`)
	err := store.Put(ctx, &datatypes.Artifact{
		TenantID: "tenant-a",
		ClientID: "client-1",
		System:   "lahiri",
		Type:     "chart_d1",
		Payload:  payload,
	})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := store.Get(ctx, "tenant-a", "client-1", "lahiri", "chart_d1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("payload = %s, want %s", got.Payload, payload)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be stamped on write")
	}
}

func TestPutUpsertsSingleRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, payload := range []string{`{"v":1}`, `{"v":2}`} {
		err := store.Put(ctx, &datatypes.Artifact{
			TenantID: "t", ClientID: "c", System: "lahiri",
			Type: "dasha_vimshottari", Payload: []byte(payload),
		})
		if err != nil {
			t.Fatalf("Put() error: %v", err)
		}
	}

	got, err := store.Get(ctx, "t", "c", "lahiri", "dasha_vimshottari")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got.Payload) != `{"v":2}` {
		t.Errorf("payload = %s, want the second write", got.Payload)
	}

	types, err := store.ListTypes(ctx, "t", "c", "lahiri")
	if err != nil {
		t.Fatalf("ListTypes() error: %v", err)
	}
	if len(types) != 1 {
		t.Errorf("ListTypes() = %v, want exactly one row per key", types)
	}
}

func TestKeyNormalizationAcrossVariants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Put(ctx, &datatypes.Artifact{
		TenantID: "t", ClientID: "c", System: "Lahiri",
		Type: "Chart_D9", Payload: []byte("{}"),
	})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	// Variant spellings of system and type hit the same row.
	if _, err := store.Get(ctx, "t", "c", "lahiri", "chart-d9"); err != nil {
		t.Errorf("Get() with variant spelling: %v", err)
	}

	types, err := store.ListTypes(ctx, "t", "c", "lahiri")
	if err != nil {
		t.Fatalf("ListTypes() error: %v", err)
	}
	if len(types) != 1 || types[0] != "chartd9" {
		t.Errorf("ListTypes() = %v, want the normalized type", types)
	}
}

func TestLargePayloadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Well above CompressionThreshold, and compressible.
	payload := bytes.Repeat([]byte(`{"lord":"Venus","years":20}`), 200)
	err := store.Put(ctx, &datatypes.Artifact{
		TenantID: "t", ClientID: "c", System: "raman",
		Type: "dasha_vimshottari", Payload: payload,
	})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := store.Get(ctx, "t", "c", "raman", "dasha_vimshottari")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Error("large payload did not round-trip intact")
	}

	all, err := store.ListByClient(ctx, "t", "c")
	if err != nil {
		t.Fatalf("ListByClient() error: %v", err)
	}
	if len(all) != 1 || !bytes.Equal(all[0].Payload, payload) {
		t.Error("ListByClient must decode compressed payloads")
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "t", "c", "kp", "chart_d1")
	if !errors.Is(err, datatypes.ErrArtifactNotFound) {
		t.Errorf("Get() error = %v, want ErrArtifactNotFound", err)
	}
}

func TestListTypesScopedToSystem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []struct{ system, typ string }{
		{"lahiri", "chart_d1"},
		{"lahiri", "presence_sadesati"},
		{"kp", "chart_d1"},
	}
	for _, r := range rows {
		err := store.Put(ctx, &datatypes.Artifact{
			TenantID: "t", ClientID: "c", System: r.system,
			Type: r.typ, Payload: []byte("{}"),
		})
		if err != nil {
			t.Fatalf("Put(%s/%s) error: %v", r.system, r.typ, err)
		}
	}

	types, err := store.ListTypes(ctx, "t", "c", "lahiri")
	if err != nil {
		t.Fatalf("ListTypes() error: %v", err)
	}
	if len(types) != 2 {
		t.Errorf("ListTypes(lahiri) = %v, want 2 entries", types)
	}

	all, err := store.ListByClient(ctx, "t", "c")
	if err != nil {
		t.Fatalf("ListByClient() error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListByClient() = %d artifacts, want 3", len(all))
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Put(ctx, &datatypes.Artifact{
		TenantID: "t", ClientID: "c", System: "lahiri",
		Type: "ashtakavarga", Payload: []byte("{}"),
	})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := store.Delete(ctx, "t", "c", "lahiri", "ashtakavarga"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Get(ctx, "t", "c", "lahiri", "ashtakavarga"); !errors.Is(err, datatypes.ErrArtifactNotFound) {
		t.Errorf("Get() after delete = %v, want ErrArtifactNotFound", err)
	}
	// Deleting again is a no-op, not an error.
	if err := store.Delete(ctx, "t", "c", "lahiri", "ashtakavarga"); err != nil {
		t.Errorf("second Delete() error: %v", err)
	}
}

func TestPutRejectsEmptyKeyFields(t *testing.T) {
	store := newTestStore(t)
	err := store.Put(context.Background(), &datatypes.Artifact{
		TenantID: "t", ClientID: "", System: "lahiri", Type: "chart_d1",
	})
	if err == nil {
		t.Error("Put() accepted an artifact with an empty client ID")
	}
}
