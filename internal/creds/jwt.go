// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package creds

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenType distinguishes bearer credentials from renewal credentials at
// the claims layer, so a renewal-shaped value can never be type-confused
// into a bearer credential or vice versa (testable property 5). Renewal
// credentials themselves are opaque random tokens, not JWTs — only bearer
// credentials are signed claims.
const (
	typeBearer = "bearer"
)

// BearerClaims are the signed claims carried by a bearer credential.
// Grounded on the sibling relay server's ES256 claims shape (jwt.go),
// adapted to HS256 since configuration provides a single shared JWT_SECRET
// rather than a keypair.
type BearerClaims struct {
	jwt.RegisteredClaims
	SubjectName string `json:"name"`
	Role        string `json:"role"`
	Type        string `json:"type"`
}

// mintBearer signs a bearer credential valid for ttl.
func (s *Service) mintBearer(userID, username, role string, ttl time.Duration) (string, time.Time, error) {
	exp := time.Now().Add(ttl)
	claims := BearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		SubjectName: username,
		Role:        role,
		Type:        typeBearer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign bearer: %w", err)
	}
	return signed, exp, nil
}

// VerifyBearer validates signature, expiry, and that the claim type is
// "bearer". A renewal-type claim (which cannot occur here, since renewal
// credentials aren't JWTs at all, but a forged token could set type=renewal)
// is rejected with ErrBadTokenType, as is a raw renewal credential.
func (s *Service) VerifyBearer(raw string) (*BearerClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &BearerClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		// A renewal credential is two concatenated UUIDs (newOpaqueToken).
		if len(raw) == 72 {
			if _, e1 := uuid.Parse(raw[:36]); e1 == nil {
				if _, e2 := uuid.Parse(raw[36:]); e2 == nil {
					return nil, ErrBadTokenType
				}
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	claims, ok := token.Claims.(*BearerClaims)
	if !ok || !token.Valid {
		return nil, ErrBadCredentials
	}
	if claims.Type != typeBearer {
		return nil, ErrBadTokenType
	}
	return claims, nil
}
