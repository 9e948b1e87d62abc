// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package idguard validates session identifiers before they reach a
// multiplexer argv slot or a file-path join.
package idguard

import (
	"errors"
	"regexp"
)

// ErrInvalidID is returned for any string that does not parse as v4 UUID
// textual form. Handlers translate this to InvalidId/400.
var ErrInvalidID = errors.New("invalid session identifier")

// v4Pattern matches 8-4-4-4-12 lowercase hex with the version nibble fixed
// to 4 and the variant nibble restricted to 8/9/a/b, per RFC 4122 section 4.4.
var v4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// Check returns nil iff id is valid v4 UUID textual form. Every function in
// Session Registry, Stream Broker, and the metadata routes must call this
// before the value reaches any external process argument list or file path.
func Check(id string) error {
	if !v4Pattern.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

// Valid is a boolean convenience wrapper around Check.
func Valid(id string) bool {
	return Check(id) == nil
}
