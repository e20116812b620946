// Package errs implements the error taxonomy shared by every Sync Engine
// component: a closed set of Kinds plus a Classify function that maps both
// sentinel errors and raw HTTP status codes onto them.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is a coarse, actionable error category. Propagation rules differ per
// kind: see the table in SPEC_FULL.md §7.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindAuthentication Kind = "authentication"
	KindScope Kind = "scope"
	KindTransient Kind = "transient"
	KindDirty Kind = "working_tree_dirty"
	KindDivergence Kind = "divergence"
	KindMissingRemoteRef Kind = "missing_remote_ref"
	KindIO Kind = "io"
	KindPermission Kind = "permission"
	KindUnknown Kind = "unknown"
)

var (
	// ErrAuthentication marks 401/403 and missing-credential failures.
	ErrAuthentication = errors.New("authentication failed")
	// ErrScope marks 404 (org/project/group not found) failures.
	ErrScope = errors.New("scope not found")
	// ErrTransient marks 429/503 and connection-reset failures.
	ErrTransient = errors.New("transient provider error")
	// ErrDirty marks a non-empty working tree.
	ErrDirty = errors.New("working tree dirty")
	// ErrDivergence marks local and remote both having advanced.
	ErrDivergence = errors.New("branch diverged")
	// ErrMissingRemoteRef marks an absent remote-tracking ref.
	ErrMissingRemoteRef = errors.New("missing remote ref")
	// ErrConfiguration marks invalid or incomplete configuration.
	ErrConfiguration = errors.New("invalid configuration")
)

// Classify maps an error to a Kind, preferring sentinel matches and falling
// back to substring heuristics on the error text.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	switch {
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrScope):
		return KindScope
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrDirty):
		return KindDirty
	case errors.Is(err, ErrDivergence):
		return KindDivergence
	case errors.Is(err, ErrMissingRemoteRef):
		return KindMissingRemoteRef
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "permission denied", "authentication failed", "access denied", "credential", "401", "403", "unauthorized", "forbidden"):
		return KindAuthentication
	case containsAny(msg, "404", "not found", "could not find", "no such project", "no such org"):
		return KindScope
	case containsAny(msg, "429", "503", "rate limit", "connection reset", "temporarily unavailable", "timeout", "timed out"):
		return KindTransient
	default:
		return KindUnknown
	}
}

func containsAny(msg string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// ClassifyHTTPStatus maps a provider HTTP status code onto a Kind, per the
// stable status-to-category table every Provider Adapter shares.
func ClassifyHTTPStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusNotFound:
		return KindScope
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return KindTransient
	default:
		return KindUnknown
	}
}

// HTTPError wraps a provider HTTP failure with the status code that
// produced it, so Classify and ClassifyHTTPStatus agree on the same error.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider request to %s failed with status %d", e.URL, e.Status)
}

// Unwrap lets errors.Is match HTTPError against the Kind sentinels above.
func (e *HTTPError) Unwrap() error {
	switch ClassifyHTTPStatus(e.Status) {
	case KindAuthentication:
		return ErrAuthentication
	case KindScope:
		return ErrScope
	case KindTransient:
		return ErrTransient
	default:
		return nil
	}
}
