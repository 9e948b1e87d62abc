// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package idguard

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCheckAcceptsGeneratedV4(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := uuid.New().String()
		assert.NoError(t, Check(id), "generated uuid %s should be valid", id)
	}
}

func TestCheckRejectsInjectionAttempts(t *testing.T) {
	cases := []string{
		"",
		"not-a-uuid",
		"abc;rm -rf /",
		"../../etc/passwd",
		"11111111-1111-1111-1111-111111111111", // version nibble is 1, not 4
		"11111111-1111-41g1-8111-111111111111", // non-hex char
		"11111111-1111-4111-c111-111111111111", // bad variant nibble
		" 11111111-1111-4111-8111-111111111111",
		"11111111-1111-4111-8111-111111111111 ",
		"11111111-1111-4111-8111-111111111111\n$(rm -rf /)",
	}
	for _, c := range cases {
		assert.ErrorIs(t, Check(c), ErrInvalidID, "input %q must be rejected", c)
		assert.False(t, Valid(c))
	}
}
