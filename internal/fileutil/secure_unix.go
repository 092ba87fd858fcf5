//go:build !windows

// Package fileutil provides cross-platform directory helpers.
// On Unix, SecureMkdirAll is a best-effort wrapper around os.MkdirAll and
// does not protect against symlink traversal or TOCTOU races.
// On Windows, owner-only modes (perm & 0077 == 0) additionally set
// a DACL restricting access to the current user.
package fileutil

import "os"

// SecureMkdirAll creates a directory path and all parents that do not yet exist.
// On Unix, this does not add symlink or race protections beyond os.MkdirAll.
// On Windows, owner-only modes get a restrictive DACL.
func SecureMkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
