// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/clauded/dashboard/internal/apierr"
)

// Bucket names one of the rate-limit regimes (section 4.10).
type Bucket string

const (
	BucketLogin         Bucket = "login"
	BucketAPI           Bucket = "api"
	BucketSessionCreate Bucket = "session-create"
	BucketFileWrite     Bucket = "file-write"
	BucketMetadata      Bucket = "metadata"
	BucketTokenRefresh  Bucket = "token-refresh"
	BucketTunnelStart   Bucket = "tunnel-start"
)

type regime struct {
	points int
	window time.Duration
	block  time.Duration // extra lockout once exceeded; zero means none
}

var regimes = map[Bucket]regime{
	BucketLogin:         {points: 5, window: 60 * time.Second, block: 300 * time.Second},
	BucketAPI:           {points: 60, window: 60 * time.Second},
	BucketSessionCreate: {points: 10, window: 60 * time.Second},
	BucketFileWrite:     {points: 30, window: 60 * time.Second},
	BucketMetadata:      {points: 120, window: 60 * time.Second},
	BucketTokenRefresh:  {points: 10, window: 60 * time.Second},
	BucketTunnelStart:   {points: 1, window: 3600 * time.Second},
}

// bucketLimit converts a regime's points-per-window into a token-bucket
// rate and burst, grounded on the sibling relay server's per-IP
// rate.Limiter usage (internal/relay/bandwidth.go's RateLimiter).
func (r regime) bucketLimit() (rate.Limit, int) {
	return rate.Every(r.window / time.Duration(r.points)), r.points
}

type clientEntry struct {
	lim          *rate.Limiter
	blockedUntil time.Time
	lastSeen     time.Time
}

// Limiter is a per-bucket, per-client-address token-bucket rate limiter.
type Limiter struct {
	mu      sync.Mutex
	buckets map[Bucket]map[string]*clientEntry
}

// NewLimiter builds a Limiter and starts its stale-entry eviction loop.
func NewLimiter() *Limiter {
	l := &Limiter{buckets: make(map[Bucket]map[string]*clientEntry)}
	go l.evictLoop()
	return l
}

func (l *Limiter) evictLoop() {
	for range time.Tick(5 * time.Minute) {
		l.mu.Lock()
		for _, clients := range l.buckets {
			for addr, e := range clients {
				if time.Since(e.lastSeen) > 10*time.Minute {
					delete(clients, addr)
				}
			}
		}
		l.mu.Unlock()
	}
}

func (l *Limiter) entry(bucket Bucket, addr string) *clientEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	clients, ok := l.buckets[bucket]
	if !ok {
		clients = make(map[string]*clientEntry)
		l.buckets[bucket] = clients
	}
	e, ok := clients[addr]
	if !ok {
		limit, burst := regimes[bucket].bucketLimit()
		e = &clientEntry{lim: rate.NewLimiter(limit, burst)}
		clients[addr] = e
	}
	e.lastSeen = time.Now()
	return e
}

// Allow reports whether a request from addr against bucket is admitted. On
// rejection it returns the number of seconds the caller should wait before
// retrying.
func (l *Limiter) Allow(bucket Bucket, addr string) (bool, int) {
	e := l.entry(bucket, addr)

	l.mu.Lock()
	blockedUntil := e.blockedUntil
	l.mu.Unlock()
	if now := time.Now(); now.Before(blockedUntil) {
		return false, int(blockedUntil.Sub(now).Seconds()) + 1
	}

	if e.lim.Allow() {
		return true, 0
	}

	reg := regimes[bucket]
	if reg.block > 0 {
		l.mu.Lock()
		e.blockedUntil = time.Now().Add(reg.block)
		l.mu.Unlock()
		return false, int(reg.block.Seconds())
	}
	return false, int(reg.window.Seconds())
}

// Middleware enforces bucket against the request's client address.
func (l *Limiter) Middleware(bucket Bucket) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := clientAddr(r)
			ok, retryAfter := l.Allow(bucket, addr)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeRateLimited(w, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierr.Status(apierr.RateLimited))
	w.Write([]byte(`{"error":{"code":"RateLimited","message":"too many requests","retryAfterSeconds":` +
		strconv.Itoa(retryAfter) + `}}`))
}

// clientAddr extracts the request's client address, preferring
// X-Forwarded-For's first hop (grounded on the sibling relay server's
// clientIP helper) and falling back to RemoteAddr.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
