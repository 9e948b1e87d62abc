// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/clauded/dashboard/internal/apierr"
	"github.com/clauded/dashboard/internal/creds"
)

type contextKey string

const claimsContextKey contextKey = "bearerClaims"

// Claims returns the verified bearer claims attached to the request by
// Auth, or nil if the request was never authenticated.
func Claims(r *http.Request) *creds.BearerClaims {
	claims, _ := r.Context().Value(claimsContextKey).(*creds.BearerClaims)
	return claims
}

// Auth verifies the Authorization: Bearer header on every protected route,
// grounded on the sibling relay server's JWT bearer-validation pattern
// (internal/relay/jwt.go), adapted to this package's typed Kind errors.
func Auth(svc *creds.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeAuthError(w, apierr.BadCredentials, "missing bearer credential")
				return
			}

			claims, err := svc.VerifyBearer(raw)
			if err != nil {
				kind := apierr.BadCredentials
				if err == creds.ErrBadTokenType {
					kind = apierr.BadTokenType
				}
				writeAuthError(w, kind, "invalid bearer credential")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects non-admin callers. Must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := Claims(r)
		if claims == nil || claims.Role != "admin" {
			writeAuthError(w, apierr.BadCredentials, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, kind apierr.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierr.Status(kind))
	w.Write([]byte(`{"error":{"code":"` + string(kind) + `","message":"` + message + `"}}`))
}
