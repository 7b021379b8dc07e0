// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog loads the per-system capability catalog: which artifact
// types are applicable to a client under each calculation system, and the
// set difference against what is already persisted.
//
// The default catalog is embedded for deployment simplicity and can be
// overridden from a YAML file at startup.
//
// Thread Safety:
//
//	A Catalog is immutable after Load and safe for concurrent use.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
)

const (
	// MaxYAMLFileSize caps override files at 1MB to prevent memory issues
	// from a mistaken path.
	MaxYAMLFileSize = 1024 * 1024

	// MaxArtifactsPerSystem bounds a single system's catalog entry.
	MaxArtifactsPerSystem = 64
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// System is one calculation convention and its applicable artifact types.
type System struct {
	Name      string   `yaml:"name"`
	Artifacts []string `yaml:"artifacts"`
}

// Catalog is the full per-system capability table.
type Catalog struct {
	systems []System
	byName  map[string]System
}

type catalogFile struct {
	Systems []System `yaml:"systems"`
}

// Load parses the embedded default catalog.
func Load() (*Catalog, error) {
	return parse(defaultCatalogYAML)
}

// LoadFile parses a catalog override from disk.
func LoadFile(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("catalog file %s exceeds %d bytes", path, MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	if len(file.Systems) == 0 {
		return nil, fmt.Errorf("catalog lists no systems")
	}

	c := &Catalog{byName: make(map[string]System, len(file.Systems))}
	for _, s := range file.Systems {
		if s.Name == "" {
			return nil, fmt.Errorf("catalog system with empty name")
		}
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("catalog system %q listed twice", s.Name)
		}
		if len(s.Artifacts) == 0 || len(s.Artifacts) > MaxArtifactsPerSystem {
			return nil, fmt.Errorf("catalog system %q has %d artifacts, want 1..%d",
				s.Name, len(s.Artifacts), MaxArtifactsPerSystem)
		}
		c.systems = append(c.systems, s)
		c.byName[s.Name] = s
	}
	return c, nil
}

// Systems returns the ordered list of system names. Generation runs process
// systems in exactly this order.
func (c *Catalog) Systems() []string {
	names := make([]string, 0, len(c.systems))
	for _, s := range c.systems {
		names = append(names, s.Name)
	}
	return names
}

// Expected returns the artifact types applicable under a system, or nil for
// an unknown system.
func (c *Catalog) Expected(system string) []string {
	s, ok := c.byName[system]
	if !ok {
		return nil
	}
	out := make([]string, len(s.Artifacts))
	copy(out, s.Artifacts)
	return out
}

// Missing computes expected − existing for a system. Both sides are
// compared in normalized form, so case and separator variants of the same
// type count as present. The result keeps the catalog's spelling and order.
func (c *Catalog) Missing(system string, existing []string) []string {
	expected := c.Expected(system)
	if len(expected) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		have[datatypes.NormalizeType(t)] = struct{}{}
	}
	var missing []string
	for _, t := range expected {
		if _, ok := have[datatypes.NormalizeType(t)]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}
