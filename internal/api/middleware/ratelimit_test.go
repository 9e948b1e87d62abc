// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsWithinBurst(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 5; i++ {
		ok, _ := l.Allow(BucketLogin, "1.2.3.4")
		require.True(t, ok)
	}
}

func TestLimiterBlocksAfterLoginBurstExhausted(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 5; i++ {
		l.Allow(BucketLogin, "5.6.7.8")
	}
	ok, retryAfter := l.Allow(BucketLogin, "5.6.7.8")
	require.False(t, ok)
	require.Greater(t, retryAfter, 0)

	// Still blocked even on an immediate retry within the lockout.
	ok, _ = l.Allow(BucketLogin, "5.6.7.8")
	require.False(t, ok)
}

func TestLimiterTracksBucketsIndependentlyPerAddress(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 5; i++ {
		l.Allow(BucketLogin, "9.9.9.9")
	}
	// A different address against the same bucket is unaffected.
	ok, _ := l.Allow(BucketLogin, "10.10.10.10")
	require.True(t, ok)
	// A different bucket for the same address is unaffected.
	ok, _ = l.Allow(BucketAPI, "9.9.9.9")
	require.True(t, ok)
}

func TestMiddlewareReturns429WithRetryAfter(t *testing.T) {
	l := NewLimiter()
	handler := l.Middleware(BucketTunnelStart)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/tunnel/start", nil)
	req.RemoteAddr = "203.0.113.1:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.NotEmpty(t, rec2.Header().Get("Retry-After"))
}

func TestClientAddrPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", clientAddr(req))
}
