// Package vfs implements engine.VFS against a local filesystem directory
// (localvfs.go) and against a SQL-backed template table (sqlvfs.go), both
// satisfying the 3-operation contract (load/timestamp/is_current) that
// original_source/src/unix-vfs.c's AJJ_DEFAULT_VFS hard-codes for POSIX.
package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local resolves template paths under a root directory without escaping
// it (the path is cleaned as if rooted at "/", so ".." components cannot
// climb above Root; "../a.html" resolves to Root/a.html), grounded on the
// teacher's internal/vm/module_loader.go's resolvePath (join onto a base
// dir, then os.Stat to confirm it exists) generalized to the engine.VFS
// three-call contract instead of a loader that reads+parses in one step.
type Local struct {
	Root string
}

// NewLocal returns a Local rooted at root.
func NewLocal(root string) *Local { return &Local{Root: root} }

func (l *Local) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(l.Root, clean)
	if !strings.HasPrefix(full, filepath.Clean(l.Root)+string(filepath.Separator)) && full != filepath.Clean(l.Root) {
		return "", fmt.Errorf("vfs: path %q escapes root %q", path, l.Root)
	}
	return full, nil
}

// Load reads path's contents and mtime, matching unix_vfs_load's
// stat-then-read order (stat first so a missing file fails before any
// read() is attempted).
func (l *Local) Load(path string) ([]byte, time.Time, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("vfs: stat %q: %w", path, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("vfs: read %q: %w", path, err)
	}
	return data, info.ModTime(), nil
}

// Timestamp returns path's current mtime, matching unix_vfs_timestamp.
func (l *Local) Timestamp(path string) (time.Time, error) {
	full, err := l.resolve(path)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return time.Time{}, fmt.Errorf("vfs: stat %q: %w", path, err)
	}
	return info.ModTime(), nil
}

// IsCurrent reports whether path's on-disk mtime still matches since,
// matching unix_vfs_timestamp_is_current's equality check (no "newer than"
// grace window: any mtime change invalidates the cache entry).
func (l *Local) IsCurrent(path string, since time.Time) (bool, error) {
	ts, err := l.Timestamp(path)
	if err != nil {
		return false, err
	}
	return ts.Equal(since), nil
}
