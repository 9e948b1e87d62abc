// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/clauded/dashboard/internal/api/middleware"
	"github.com/clauded/dashboard/internal/apierr"
	"github.com/clauded/dashboard/internal/audit"
	"github.com/clauded/dashboard/internal/files"
)

// FilesHandler serves the whitelist-rooted file CRUD routes (section 6).
type FilesHandler struct {
	surface *files.Surface
	audit   *audit.Log
}

// NewFilesHandler builds a FilesHandler.
func NewFilesHandler(surface *files.Surface, auditLog *audit.Log) *FilesHandler {
	return &FilesHandler{surface: surface, audit: auditLog}
}

func queryPath(r *http.Request) string {
	return r.URL.Query().Get("path")
}

// List enumerates a directory's entries.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.surface.List(queryPath(r))
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}

// Read returns a file's raw bytes.
func (h *FilesHandler) Read(w http.ResponseWriter, r *http.Request) {
	data, err := h.surface.Read(queryPath(r))
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Save creates or overwrites a file with the request body.
func (h *FilesHandler) Save(w http.ResponseWriter, r *http.Request) {
	path := queryPath(r)
	data, err := io.ReadAll(io.LimitReader(r.Body, files.MaxFileBytes+1))
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "failed to read request body")
		return
	}
	if int64(len(data)) > files.MaxFileBytes {
		WriteAPIError(w, apierr.New(apierr.PayloadTooLarge, "write exceeds the 10MB cap"))
		return
	}
	if err := h.surface.Write(path, data); err != nil {
		WriteAPIError(w, err)
		return
	}

	claims := middleware.Claims(r)
	h.audit.Record(audit.Event{
		UserID:       claims.Subject,
		Action:       "file_write",
		ResourceType: "file",
		ResourceID:   path,
		IPAddress:    clientAddr(r),
		UserAgent:    r.UserAgent(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a file or, recursively, a directory.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	path := queryPath(r)
	if err := h.surface.Delete(path); err != nil {
		WriteAPIError(w, err)
		return
	}

	claims := middleware.Claims(r)
	h.audit.Record(audit.Event{
		UserID:       claims.Subject,
		Action:       "file_delete",
		ResourceType: "file",
		ResourceID:   path,
		IPAddress:    clientAddr(r),
		UserAgent:    r.UserAgent(),
	})
	w.WriteHeader(http.StatusNoContent)
}

type mkdirRequest struct {
	Path string `json:"path"`
}

// Mkdir creates a directory (and any missing parents).
func (h *FilesHandler) Mkdir(w http.ResponseWriter, r *http.Request) {
	var req mkdirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "malformed request body")
		return
	}
	if err := h.surface.Mkdir(req.Path); err != nil {
		WriteAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type renameRequest struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

// Rename moves a file or directory.
func (h *FilesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "malformed request body")
		return
	}
	if err := h.surface.Rename(req.OldPath, req.NewPath); err != nil {
		WriteAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type copyRequest struct {
	SrcPath string `json:"srcPath"`
	DstPath string `json:"dstPath"`
}

// Copy duplicates a file.
func (h *FilesHandler) Copy(w http.ResponseWriter, r *http.Request) {
	var req copyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "malformed request body")
		return
	}
	if err := h.surface.Copy(req.SrcPath, req.DstPath); err != nil {
		WriteAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Stat returns metadata for a file or directory.
func (h *FilesHandler) Stat(w http.ResponseWriter, r *http.Request) {
	info, err := h.surface.Stat(queryPath(r))
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, info)
}
