// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
)

// CompressionThreshold is the payload size above which values are gzipped
// before being written. Small payloads are stored raw; gzip headers would
// cost more than they save.
const CompressionThreshold = 1024

const keyPrefix = "artifact/"

// envelope is the stored representation of an artifact. Payload holds raw
// or gzipped bytes depending on Compressed.
type envelope struct {
	Type       string    `json:"type"`
	System     string    `json:"system"`
	UpdatedAt  time.Time `json:"updated_at"`
	Compressed bool      `json:"compressed"`
	Payload    []byte    `json:"payload"`
}

// ArtifactStore is the upsert repository for computed artifacts.
//
// Keys are "artifact/<tenant>/<client>/<system>/<normalized type>", so one
// prefix scan lists everything persisted for a client or a
// (client, system) pair.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions provide
// the isolation.
type ArtifactStore struct {
	db *badger.DB
}

// NewArtifactStore wraps an open database.
func NewArtifactStore(db *badger.DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

func storeKey(tenant, client, system, typ string) []byte {
	return []byte(keyPrefix + datatypes.ArtifactKey(tenant, client, system, typ))
}

func clientPrefix(tenant, client string) []byte {
	return []byte(keyPrefix + tenant + "/" + client + "/")
}

func systemPrefix(tenant, client, system string) []byte {
	return []byte(keyPrefix + tenant + "/" + client + "/" + strings.ToLower(system) + "/")
}

// Put upserts an artifact row. A second Put with the same identity key
// replaces the previous row; there is never more than one row per key.
func (s *ArtifactStore) Put(ctx context.Context, a *datatypes.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.TenantID == "" || a.ClientID == "" || a.Type == "" || a.System == "" {
		return fmt.Errorf("artifact key fields must be non-empty")
	}

	env := envelope{
		Type:      a.Type,
		System:    a.System,
		UpdatedAt: a.UpdatedAt,
		Payload:   a.Payload,
	}
	if env.UpdatedAt.IsZero() {
		env.UpdatedAt = time.Now().UTC()
	}
	if len(a.Payload) > CompressionThreshold {
		compressed, err := gzipBytes(a.Payload)
		if err != nil {
			return fmt.Errorf("compress artifact payload: %w", err)
		}
		env.Payload = compressed
		env.Compressed = true
	}

	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode artifact envelope: %w", err)
	}

	key := storeKey(a.TenantID, a.ClientID, a.System, a.Type)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", key, err)
	}
	return nil
}

// Get loads one artifact row, decompressing the payload when needed.
// Returns datatypes.ErrArtifactNotFound when no row exists for the key.
func (s *ArtifactStore) Get(ctx context.Context, tenant, client, system, typ string) (*datatypes.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var env envelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(tenant, client, system, typ))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &env)
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, datatypes.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}

	payload := env.Payload
	if env.Compressed {
		payload, err = gunzipBytes(env.Payload)
		if err != nil {
			return nil, fmt.Errorf("decompress artifact payload: %w", err)
		}
	}
	return &datatypes.Artifact{
		TenantID:  tenant,
		ClientID:  client,
		Type:      env.Type,
		System:    env.System,
		Payload:   payload,
		UpdatedAt: env.UpdatedAt,
	}, nil
}

// ListTypes returns the artifact types persisted for a (client, system)
// pair, in their normalized form. The scan is keys-only; payloads are not
// touched.
func (s *ArtifactStore) ListTypes(ctx context.Context, tenant, client, system string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var types []string
	prefix := systemPrefix(tenant, client, system)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			types = append(types, key[strings.LastIndexByte(key, '/')+1:])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifact types: %w", err)
	}
	return types, nil
}

// ListByClient returns every artifact persisted for a client across all
// systems, fully decoded.
func (s *ArtifactStore) ListByClient(ctx context.Context, tenant, client string) ([]*datatypes.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*datatypes.Artifact
	prefix := clientPrefix(tenant, client)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var env envelope
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &env)
			})
			if err != nil {
				return err
			}
			payload := env.Payload
			if env.Compressed {
				payload, err = gunzipBytes(env.Payload)
				if err != nil {
					return err
				}
			}
			out = append(out, &datatypes.Artifact{
				TenantID:  tenant,
				ClientID:  client,
				Type:      env.Type,
				System:    env.System,
				Payload:   payload,
				UpdatedAt: env.UpdatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts for client: %w", err)
	}
	return out, nil
}

// Delete removes one artifact row. Missing rows are not an error.
func (s *ArtifactStore) Delete(ctx context.Context, tenant, client, system, typ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(tenant, client, system, typ))
	})
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
