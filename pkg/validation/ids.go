// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for security-sensitive values.
//
// Values validated here end up inside GraphQL queries or database key scans.
// Validating at the boundary prevents injection through crafted identifiers.
package validation

import (
	"fmt"
	"regexp"
)

// queryIDPattern matches the UUID format assigned to every query.
var queryIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// classNamePattern matches valid Weaviate class names: a capitalized
// identifier, letters and digits only.
var classNamePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]{0,63}$`)

// ValidateQueryID validates a query id before it is used in a record store
// key scan.
func ValidateQueryID(id string) error {
	if id == "" {
		return fmt.Errorf("query id cannot be empty")
	}
	if !queryIDPattern.MatchString(id) {
		return fmt.Errorf("invalid query id format: %q", id)
	}
	return nil
}

// ValidateClassName validates a Weaviate class name before it is
// interpolated into a GraphQL query.
func ValidateClassName(name string) error {
	if name == "" {
		return fmt.Errorf("class name cannot be empty")
	}
	if !classNamePattern.MatchString(name) {
		return fmt.Errorf("invalid class name: %q (must be a capitalized alphanumeric identifier)", name)
	}
	return nil
}
