// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/clauded/dashboard/internal/apierr"
	"github.com/clauded/dashboard/internal/audit"
	"github.com/clauded/dashboard/internal/creds"
)

const renewalCookieName = "renewal_token"
const renewalCookiePath = "/api/auth"

// AuthHandler serves login/refresh/logout (section 6): bearer credentials
// travel in the response body, renewal credentials in an HttpOnly,
// SameSite=Strict cookie, guarded by a double-submit CSRF token.
type AuthHandler struct {
	creds *creds.Service
	audit *audit.Log
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(credsSvc *creds.Service, auditLog *audit.Log) *AuthHandler {
	return &AuthHandler{creds: credsSvc, audit: auditLog}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CSRFToken   string    `json:"csrfToken"`
	User        userView  `json:"user"`
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Login authenticates a username/password pair, mints a bearer + renewal
// credential pair, and seeds the CSRF cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "malformed request body")
		return
	}

	bearer, bearerExp, renewal, user, err := h.creds.Login(req.Username, req.Password)
	if err != nil {
		h.audit.Record(audit.Event{
			Action:       "login.failed",
			ResourceType: "user",
			ResourceID:   req.Username,
			IPAddress:    clientAddr(r),
			UserAgent:    r.UserAgent(),
		})
		WriteAPIError(w, apierr.Wrap(apierr.BadCredentials, err, "invalid username or password"))
		return
	}

	csrfToken, err := newCSRFToken()
	if err != nil {
		WriteAPIError(w, apierr.Wrap(apierr.Internal, err, "failed to mint csrf token"))
		return
	}

	setRenewalCookie(w, r, renewal, h.creds.RenewalTTL())
	setCSRFCookie(w, r, csrfToken)

	h.audit.Record(audit.Event{
		UserID:       user.ID,
		Action:       "login",
		ResourceType: "user",
		ResourceID:   user.ID,
		IPAddress:    clientAddr(r),
		UserAgent:    r.UserAgent(),
	})

	WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: bearer,
		ExpiresAt:   bearerExp,
		CSRFToken:   csrfToken,
		User:        userView{ID: user.ID, Username: user.Username, Role: user.Role},
	})
}

// Refresh rotates the renewal credential carried in the cookie and mints a
// fresh bearer credential. Cookie-only; requires a matching CSRF header.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !verifyCSRF(r) {
		WriteAPIError(w, apierr.New(apierr.BadCredentials, "missing or mismatched CSRF token"))
		return
	}
	cookie, err := r.Cookie(renewalCookieName)
	if err != nil || cookie.Value == "" {
		WriteAPIError(w, apierr.New(apierr.BadRenewal, "no renewal credential presented"))
		return
	}

	bearer, bearerExp, newRenewal, err := h.creds.Renew(cookie.Value)
	if err != nil {
		WriteAPIError(w, apierr.Wrap(apierr.BadRenewal, err, "renewal credential rejected"))
		return
	}

	setRenewalCookie(w, r, newRenewal, h.creds.RenewalTTL())
	WriteJSON(w, http.StatusOK, map[string]any{
		"accessToken": bearer,
		"expiresAt":   bearerExp,
	})
}

// Logout revokes the renewal credential carried in the cookie and clears
// both cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !verifyCSRF(r) {
		WriteAPIError(w, apierr.New(apierr.BadCredentials, "missing or mismatched CSRF token"))
		return
	}
	if cookie, err := r.Cookie(renewalCookieName); err == nil && cookie.Value != "" {
		_ = h.creds.Revoke(cookie.Value)
	}
	clearRenewalCookie(w, r)
	clearCSRFCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func setRenewalCookie(w http.ResponseWriter, r *http.Request, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     renewalCookieName,
		Value:    value,
		Path:     renewalCookiePath,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRenewalCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     renewalCookieName,
		Value:    "",
		Path:     renewalCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
}

func setCSRFCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
}

func clearCSRFCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
