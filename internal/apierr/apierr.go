// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package apierr defines the error kinds shared across the control plane
// (section 7) and the single place that translates them to HTTP status.
package apierr

import (
	"errors"
	"net/http"
)

// Kind is one of the fixed error kinds the spec names. Handlers translate a
// Kind to an HTTP status in exactly one place (Status below).
type Kind string

const (
	InvalidId              Kind = "InvalidId"
	PathDenied             Kind = "PathDenied"
	PathNotFound           Kind = "PathNotFound"
	BadCredentials         Kind = "BadCredentials"
	BadRenewal             Kind = "BadRenewal"
	BadTokenType           Kind = "BadTokenType"
	CredentialExpired      Kind = "CredentialExpired"
	RateLimited            Kind = "RateLimited"
	NotMaster              Kind = "NotMaster"
	NotAttached            Kind = "NotAttached"
	PayloadTooLarge        Kind = "PayloadTooLarge"
	SessionNotFound        Kind = "SessionNotFound"
	MultiplexerUnavailable Kind = "MultiplexerUnavailable"
	SlowConsumer           Kind = "SlowConsumer"
	Internal               Kind = "Internal"
)

// Error wraps a Kind with a human-readable message and an optional cause,
// compatible with errors.Is/errors.As via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts the Kind from err, if any, defaulting to Internal.
func As(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Status maps a Kind to its HTTP status per section 7.
func Status(kind Kind) int {
	switch kind {
	case InvalidId, PathNotFound:
		return http.StatusBadRequest
	case BadCredentials, BadRenewal, BadTokenType, CredentialExpired:
		return http.StatusUnauthorized
	case PathDenied, NotMaster:
		return http.StatusForbidden
	case SessionNotFound:
		return http.StatusNotFound
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case RateLimited:
		return http.StatusTooManyRequests
	case MultiplexerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
