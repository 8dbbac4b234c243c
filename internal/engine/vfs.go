package engine

import "time"

// VFS is the virtual filesystem collaborator (§6): three operations,
// implemented against the real filesystem by internal/vfs.LocalVFS and
// against a database/sql table by internal/vfs.SQLVFS. The engine only
// depends on this interface, never on either concrete implementation, so
// a host picks its template storage independently of the render core.
type VFS interface {
	// Load returns path's contents and modification time. Ownership of
	// the bytes belongs to the caller; nothing here is reference-counted
	// the way the original C `ajj_io` buffer was.
	Load(path string) ([]byte, time.Time, error)
	// Timestamp returns path's modification time without reading its
	// contents, used by internal/devserver's change polling (the
	// template cache checks freshness through IsCurrent).
	Timestamp(path string) (time.Time, error)
	// IsCurrent reports whether since is still up to date with path's
	// on-disk modification time (a cache entry compiled at `since` does
	// not need recompiling).
	IsCurrent(path string, since time.Time) (bool, error)
}
