// Package lockfile provides scoped, process-wide mutual exclusion anchored
// to a filesystem path, guarding the Cache document and per-target mirror
// layout for the duration of one run.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Handle owns an acquired lock. Release is idempotent and safe to call from
// a deferred statement on every exit path of the holder.
type Handle struct {
	flock *flock.Flock
	path  string
}

// TryAcquire attempts a non-blocking acquisition of the lock anchored at
// path. It returns (nil, nil) when another process already holds it. The
// underlying advisory file lock (not mere file existence) means a lock left
// behind by a crashed process is not mistaken for one still held.
func TryAcquire(path string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lockfile: create parent dir: %w", err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lockfile: try lock %s: %w", path, err)
	}
	if !locked {
		return nil, nil
	}
	return &Handle{flock: fl, path: path}, nil
}

// Release drops the lock and removes the sentinel file it created. Safe to
// call more than once.
func (h *Handle) Release() error {
	if h == nil || h.flock == nil {
		return nil
	}
	if err := h.flock.Unlock(); err != nil {
		return fmt.Errorf("lockfile: unlock %s: %w", h.path, err)
	}
	_ = os.Remove(h.path)
	return nil
}

// Path returns the filesystem path this handle is anchored to.
func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}
