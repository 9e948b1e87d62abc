// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package files is the File Surface (section 4.9): whitelist-rooted file
// CRUD, every operation routed through the Path Guard before it touches the
// filesystem.
//
// Grounded on the interfaces.FileSystem abstraction found in the sibling
// relay server (ehrlich-b-wingthing/internal/interfaces/filesystem.go), a
// thin seam over os.* so tests can run against a real temp directory rather
// than a mock.
package files

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/clauded/dashboard/internal/apierr"
	"github.com/clauded/dashboard/internal/pathguard"
)

// MaxFileBytes bounds read and write at the admission layer, enforced before
// the file system is touched.
const MaxFileBytes = 10 * 1024 * 1024

// Entry is one listing row.
type Entry struct {
	Name      string
	Path      string // relative to the whitelisted root
	Kind      string // "file", "dir", or "other"
	IsSymlink bool
}

// Info is file metadata (section 4.9's "file info").
type Info struct {
	Path    string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
	Kind    string
}

// Surface is the File Surface.
type Surface struct {
	guard *pathguard.Guard
}

// New builds a File Surface rooted at guard.
func New(guard *pathguard.Guard) *Surface {
	return &Surface{guard: guard}
}

// List enumerates the entries of a directory.
func (s *Surface) List(path string) ([]Entry, error) {
	canon, err := s.guard.Resolve(path, true)
	if err != nil {
		return nil, translate(err)
	}
	dirEntries, err := os.ReadDir(canon)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	out := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		full := filepath.Join(canon, de.Name())
		lstat, err := os.Lstat(full)
		if err != nil {
			continue
		}
		kind := "other"
		if de.IsDir() {
			kind = "dir"
		} else if de.Type().IsRegular() {
			kind = "file"
		}
		out = append(out, Entry{
			Name:      de.Name(),
			Path:      s.guard.Relative(full),
			Kind:      kind,
			IsSymlink: lstat.Mode()&os.ModeSymlink != 0,
		})
	}
	return out, nil
}

// Read returns a file's contents, rejecting anything over MaxFileBytes
// before the read is attempted.
func (s *Surface) Read(path string) ([]byte, error) {
	canon, err := s.guard.Resolve(path, true)
	if err != nil {
		return nil, translate(err)
	}
	st, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if st.IsDir() {
		return nil, apierr.New(apierr.PathDenied, "path is a directory")
	}
	if st.Size() > MaxFileBytes {
		return nil, apierr.New(apierr.PayloadTooLarge, "file exceeds the 10MB read cap")
	}

	f, err := os.Open(canon)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if int64(len(data)) > MaxFileBytes {
		return nil, apierr.New(apierr.PayloadTooLarge, "file exceeds the 10MB read cap")
	}
	return data, nil
}

// Write creates or overwrites a file, rejecting payloads over MaxFileBytes
// before any bytes reach disk.
func (s *Surface) Write(path string, data []byte) error {
	if len(data) > MaxFileBytes {
		return apierr.New(apierr.PayloadTooLarge, "write exceeds the 10MB cap")
	}
	canon, err := s.guard.Resolve(path, false)
	if err != nil {
		return translate(err)
	}
	if err := os.WriteFile(canon, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Delete removes a file or, recursively, a directory.
func (s *Surface) Delete(path string) error {
	canon, err := s.guard.Resolve(path, true)
	if err != nil {
		return translate(err)
	}
	if err := os.RemoveAll(canon); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Mkdir creates a directory (and any missing parents within the whitelisted
// root).
func (s *Surface) Mkdir(path string) error {
	canon, err := s.guard.Resolve(path, false)
	if err != nil {
		return translate(err)
	}
	if err := os.MkdirAll(canon, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return nil
}

// Stat returns metadata for a file or directory.
func (s *Surface) Stat(path string) (Info, error) {
	canon, err := s.guard.Resolve(path, true)
	if err != nil {
		return Info{}, translate(err)
	}
	st, err := os.Stat(canon)
	if err != nil {
		return Info{}, fmt.Errorf("stat: %w", err)
	}
	kind := "file"
	if st.IsDir() {
		kind = "dir"
	}
	return Info{
		Path:    s.guard.Relative(canon),
		Size:    st.Size(),
		Mode:    st.Mode(),
		ModTime: st.ModTime(),
		Kind:    kind,
	}, nil
}

// Rename moves a file or directory from oldPath to newPath, both of which
// must resolve under a whitelisted root.
func (s *Surface) Rename(oldPath, newPath string) error {
	oldCanon, err := s.guard.Resolve(oldPath, true)
	if err != nil {
		return translate(err)
	}
	newCanon, err := s.guard.Resolve(newPath, false)
	if err != nil {
		return translate(err)
	}
	if err := os.Rename(oldCanon, newCanon); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Copy duplicates a file (not a directory) from srcPath to dstPath, subject
// to the same 10MB cap as Read/Write.
func (s *Surface) Copy(srcPath, dstPath string) error {
	data, err := s.Read(srcPath)
	if err != nil {
		return err
	}
	return s.Write(dstPath, data)
}

func translate(err error) error {
	switch err {
	case pathguard.ErrDenied:
		return apierr.Wrap(apierr.PathDenied, err, "path is outside the allowed roots")
	case pathguard.ErrNotFound:
		return apierr.Wrap(apierr.PathNotFound, err, "path not found")
	default:
		return err
	}
}
