// Package workspace manages the per-request host directory bind-mounted
// as /box inside the sandbox.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Error reports a workspace create/cleanup failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("workspace: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Workspace is the handle for one request's scratch directory. It is
// owned exclusively by the request that created it.
type Workspace struct {
	root   string
	closed bool
}

// New creates a collision-free subdirectory of base with owner-only
// permissions and returns a handle to it. base must already exist and be
// writable.
func New(base string) (*Workspace, error) {
	info, err := os.Stat(base)
	if err != nil {
		return nil, &Error{Op: "stat base", Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Op: "stat base", Err: fmt.Errorf("%s is not a directory", base)}
	}

	root := filepath.Join(base, uuid.NewString())
	if err := os.Mkdir(root, 0o700); err != nil {
		return nil, &Error{Op: "mkdir", Err: err}
	}

	return &Workspace{root: root}, nil
}

// Root returns the absolute host path of the workspace directory.
func (w *Workspace) Root() string { return w.root }

// ResolveLocal normalizes a workspace-relative name and rejects any path
// that would escape the workspace root, including absolute names and ".."
// traversal.
func (w *Workspace) ResolveLocal(name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("transfer: local path %q is absolute", name)
	}
	clean := filepath.Clean(filepath.Join(w.root, name))
	if clean != w.root && !isWithin(w.root, clean) {
		return "", fmt.Errorf("transfer: local path %q escapes workspace", name)
	}
	return clean, nil
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[:2] == ".." && (len(rel) == 2 || rel[2] == os.PathSeparator)
}

// Close recursively removes the workspace directory. Files left behind by
// a sandboxed child may be owned by a mapped uid with restrictive modes,
// so permissions are relaxed on the way down before the directory is
// unlinked.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		_ = os.Chmod(path, 0o700)
		return nil
	})

	if err := os.RemoveAll(w.root); err != nil {
		return &Error{Op: "remove", Err: err}
	}
	return nil
}
