// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package creds is the Credential Service (section 4.4): password hashing,
// bearer-credential minting and verification, and renewal-credential
// issuance/rotation/revocation.
package creds

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clauded/dashboard/internal/store"
)

var (
	// ErrBadCredentials is returned by Login for both unknown users and
	// wrong passwords, deliberately indistinguishable to the caller.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrBadRenewal is returned by Renew for an unknown, revoked, or
	// expired renewal credential, including a bearer credential presented
	// for renewal.
	ErrBadRenewal = errors.New("bad renewal credential")
	// ErrBadTokenType is returned by VerifyBearer when a renewal credential
	// (or a claim set whose type is not bearer) is presented where a bearer
	// credential is required.
	ErrBadTokenType = errors.New("bad token type")
)

// User is the subset of a store.User the rest of the system needs.
type User struct {
	ID       string
	Username string
	Role     string
}

// Service is the Credential Service.
type Service struct {
	store      *store.Store
	secret     []byte
	bearerTTL  time.Duration
	renewalTTL time.Duration
}

// New builds a Credential Service over st, signing bearer credentials with
// secret and minting bearer/renewal credentials with the given TTLs.
func New(st *store.Store, secret []byte, bearerTTL, renewalTTL time.Duration) *Service {
	return &Service{store: st, secret: secret, bearerTTL: bearerTTL, renewalTTL: renewalTTL}
}

// Login mints a bearer credential and a renewal credential for a valid
// username/password pair. Fails uniformly with ErrBadCredentials whether
// the user is unknown or the password is wrong.
func (s *Service) Login(username, password string) (bearer string, bearerExp time.Time, renewal string, user *User, err error) {
	row, err := s.store.GetUserByUsername(username)
	if err != nil {
		return "", time.Time{}, "", nil, fmt.Errorf("lookup user: %w", err)
	}
	if row == nil {
		// Hash against a dummy digest so the unknown-user path pays
		// roughly the same cost as the wrong-password path.
		VerifyPassword(password, dummyDigest)
		return "", time.Time{}, "", nil, ErrBadCredentials
	}
	if !VerifyPassword(password, row.PasswordHash) {
		return "", time.Time{}, "", nil, ErrBadCredentials
	}

	bearer, bearerExp, err = s.mintBearer(row.ID, row.Username, row.Role, s.bearerTTL)
	if err != nil {
		return "", time.Time{}, "", nil, err
	}

	renewal, err = s.issueRenewal(row.ID)
	if err != nil {
		return "", time.Time{}, "", nil, err
	}

	return bearer, bearerExp, renewal, &User{ID: row.ID, Username: row.Username, Role: row.Role}, nil
}

// Renew rotates a renewal credential atomically: the old record is marked
// revoked in the same transaction that inserts the new one (testable
// property 6). Returns a fresh bearer and renewal credential.
func (s *Service) Renew(rawRenewal string) (bearer string, bearerExp time.Time, renewal string, err error) {
	oldHash := s.digestRenewal(rawRenewal)
	row, err := s.store.GetRefreshTokenByHash(oldHash)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("lookup renewal: %w", err)
	}
	if row == nil || row.RevokedAt != nil || time.Now().After(row.ExpiresAt) {
		return "", time.Time{}, "", ErrBadRenewal
	}

	user, err := s.store.GetUserByID(row.UserID)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return "", time.Time{}, "", ErrBadRenewal
	}

	newRaw := newOpaqueToken()
	newHash := s.digestRenewal(newRaw)
	newExp := time.Now().Add(s.renewalTTL)
	if err := s.store.RotateRefreshToken(oldHash, uuid.New().String(), user.ID, newHash, newExp); err != nil {
		return "", time.Time{}, "", fmt.Errorf("rotate renewal: %w", err)
	}

	bearer, bearerExp, err = s.mintBearer(user.ID, user.Username, user.Role, s.bearerTTL)
	if err != nil {
		return "", time.Time{}, "", err
	}
	return bearer, bearerExp, newRaw, nil
}

// Revoke marks a single renewal credential revoked.
func (s *Service) Revoke(rawRenewal string) error {
	return s.store.RevokeRefreshToken(s.digestRenewal(rawRenewal))
}

// RevokeAll revokes every renewal credential owned by userID.
func (s *Service) RevokeAll(userID string) error {
	return s.store.RevokeAllForUser(userID)
}

// RenewalTTL reports the lifetime a freshly minted renewal credential is
// given, so callers can size the carrying cookie's MaxAge to match.
func (s *Service) RenewalTTL() time.Duration {
	return s.renewalTTL
}

func (s *Service) issueRenewal(userID string) (string, error) {
	raw := newOpaqueToken()
	expires := time.Now().Add(s.renewalTTL)
	if err := s.store.InsertRefreshToken(uuid.New().String(), userID, s.digestRenewal(raw), expires); err != nil {
		return "", fmt.Errorf("issue renewal: %w", err)
	}
	return raw, nil
}

// digestRenewal is the keyed, deterministic digest stored for a renewal
// token: one-way without the server secret, but still equality-indexable
// so lookup stays a single prepared-statement query.
func (s *Service) digestRenewal(raw string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func newOpaqueToken() string {
	return uuid.New().String() + uuid.New().String()
}

const dummyDigest = "argon2id$t=3,m=65536,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
