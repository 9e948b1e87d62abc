// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pathguard canonicalizes filesystem paths and enforces that they
// fall under one of a configured set of whitelisted roots.
package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrDenied is returned when a path does not resolve under any whitelisted
// root, or its basename is "." or "..". Handlers translate this to
// PathDenied/403.
var ErrDenied = errors.New("path denied")

// ErrNotFound is returned by Resolve when the path (and its parent, for
// create-style lookups) does not exist on disk.
var ErrNotFound = errors.New("path not found")

// Guard enforces a fixed allow-list of canonical roots.
type Guard struct {
	roots []string
}

// New canonicalizes each configured root once at construction time. A root
// that cannot be resolved at startup is a configuration error, not a
// runtime one, so callers are expected to fail fast on it.
func New(roots []string) (*Guard, error) {
	canon := make([]string, 0, len(roots))
	for _, r := range roots {
		c, err := canonicalizeExisting(r)
		if err != nil {
			return nil, err
		}
		canon = append(canon, c)
	}
	return &Guard{roots: canon}, nil
}

// Resolve canonicalizes p and checks it against the whitelist. existing
// controls whether p must already exist (read/list/delete) or only its
// parent directory must (create-style operations such as mkdir or a new
// session's project path).
func (g *Guard) Resolve(p string, existing bool) (string, error) {
	if p == "" {
		return "", ErrDenied
	}
	base := filepath.Base(p)
	if base == "." || base == ".." {
		return "", ErrDenied
	}

	var canon string
	var err error
	if existing {
		canon, err = canonicalizeExisting(p)
	} else {
		canon, err = canonicalizeForCreate(p)
	}
	if err != nil {
		return "", err
	}

	for _, root := range g.roots {
		if canon == root || strings.HasPrefix(canon, root+string(filepath.Separator)) {
			return canon, nil
		}
	}
	return "", ErrDenied
}

// Relative renders an absolute canonical path relative to whichever
// whitelisted root contains it, so outbound listings never leak host
// layout beyond the project tree.
func (g *Guard) Relative(canon string) string {
	for _, root := range g.roots {
		if canon == root {
			return "."
		}
		if strings.HasPrefix(canon, root+string(filepath.Separator)) {
			rel, err := filepath.Rel(root, canon)
			if err == nil {
				return rel
			}
		}
	}
	return canon
}

func canonicalizeExisting(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return filepath.Clean(resolved), nil
}

// canonicalizeForCreate resolves the parent directory (which must exist)
// and rejoins the basename, so a not-yet-created file or directory can
// still be checked against the whitelist.
func canonicalizeForCreate(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	parent := filepath.Dir(abs)
	resolvedParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(abs)), nil
}
