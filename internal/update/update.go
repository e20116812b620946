// Package update defines the Update Checker contract: a thin interface the
// CLI calls through to decide its exit code. No network check is
// implemented here — the real checker is an out-of-core collaborator (see
// SPEC_FULL.md §6); this package only gives callers a documented stub that
// always reports no update, so the core and its tests never depend on
// network access.
package update

import (
	"context"
	"time"
)

// Info describes the outcome of an update check.
type Info struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	CheckedAt       time.Time
}

// Checker resolves whether a newer release exists.
type Checker interface {
	CheckForUpdate(ctx context.Context) (*Info, error)
}

// NoopChecker always reports that the current version is up to date. It
// satisfies Checker for hosts and tests that should never reach the
// network, and is the default wired into the CLI until a real out-of-core
// checker is supplied.
type NoopChecker struct {
	CurrentVersion string
	Now            func() time.Time
}

// CheckForUpdate always returns UpdateAvailable=false.
func (c NoopChecker) CheckForUpdate(_ context.Context) (*Info, error) {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return &Info{
		CurrentVersion:  c.CurrentVersion,
		LatestVersion:   c.CurrentVersion,
		UpdateAvailable: false,
		CheckedAt:       now(),
	}, nil
}
