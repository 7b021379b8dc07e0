// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for identifiers that end up
// in storage keys and upstream URLs. Validating at the edge prevents key
// injection (a client ID containing "/" would collide with another
// client's key space) and malformed upstream requests.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// idPattern matches tenant and client identifiers: UUIDs, ULIDs, or plain
// slugs. Max 64 characters, no separators that appear in storage keys.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,63}$`)

// systemPattern matches calculation system names ("lahiri", "kp", ...).
var systemPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// lordPattern matches period lord names supplied in drill-down paths.
// Spaces are allowed for loose inputs like "Rahu Mahadasha".
var lordPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z ]{0,31}$`)

// ValidateID validates a tenant or client identifier.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier %q (must be 1-64 alphanumeric, underscore, or hyphen chars)", id)
	}
	return nil
}

// ValidateSystem validates a calculation system name. Whether the system
// actually exists is the capability catalog's decision, not this one.
func ValidateSystem(system string) error {
	if system == "" {
		return fmt.Errorf("system cannot be empty")
	}
	if !systemPattern.MatchString(system) {
		return fmt.Errorf("invalid system name %q (must be lowercase alphanumeric)", system)
	}
	return nil
}

// SanitizePath normalizes and validates a drill-down path of lord names.
// Returns the trimmed path or an error naming the first bad element.
func SanitizePath(path []string) ([]string, error) {
	out := make([]string, 0, len(path))
	for i, lord := range path {
		trimmed := strings.TrimSpace(lord)
		if trimmed == "" {
			continue
		}
		if !lordPattern.MatchString(trimmed) {
			return nil, fmt.Errorf("invalid lord name at path position %d: %q", i, lord)
		}
		out = append(out, trimmed)
	}
	return out, nil
}
