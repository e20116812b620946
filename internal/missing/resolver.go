// Package missing implements the Missing-Repo Resolver: compare the
// cached inventory for a target with a fresh provider listing and apply a
// policy (archive/remove/skip/prompt) to the difference.
package missing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skaphos/reposync/internal/audit"
	"github.com/skaphos/reposync/internal/cache"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/workitem"
)

// Decider resolves a Prompt policy interactively (CLI-only); the result
// selects one of Archive/Remove/Skip.
type Decider func(repoID string, entry cache.RepoEntry) model.MissingPolicy

// Counts is the per-category tally folded into the run summary.
type Counts struct {
	Archived int
	Removed  int
	Skipped  int
}

// Compute returns the repo ids present in the cache for this target but
// absent from the fresh listing. Cache entries carry no host, so the target
// is matched on provider and scope only.
func Compute(doc *cache.Document, target model.Target, currentIDs map[string]struct{}) []string {
	targetID := model.Target{Kind: target.Kind, Scope: target.Scope}.ID()
	var missing []string
	for repoID, entry := range doc.Repos {
		entryTarget := model.Target{Kind: model.ProviderKind(entry.Provider), Scope: entry.Scope}
		if entryTarget.ID() != targetID {
			continue
		}
		if _, ok := currentIDs[repoID]; ok {
			continue
		}
		missing = append(missing, repoID)
	}
	return missing
}

// Resolve applies policy to every missing repo id, mutating doc in place
// (removing cache entries per action) and emitting one audit record per
// action. now is injectable for deterministic tests.
func Resolve(doc *cache.Document, root string, missingIDs []string, policy model.MissingPolicy, decider Decider, logger *audit.Logger, now func() time.Time) (Counts, error) {
	if now == nil {
		now = time.Now
	}
	var counts Counts
	for _, repoID := range missingIDs {
		entry, ok := doc.Repos[repoID]
		if !ok {
			continue
		}

		effective := policy
		if effective == model.MissingPrompt {
			if decider == nil {
				effective = model.MissingSkip
			} else {
				effective = decider(repoID, entry)
			}
		}

		action, err := apply(effective, root, repoID, entry, now)
		if err != nil {
			return counts, fmt.Errorf("missing: resolve %s: %w", repoID, err)
		}

		switch action {
		case model.MissingArchive:
			counts.Archived++
			delete(doc.Repos, repoID)
		case model.MissingRemove:
			counts.Removed++
			delete(doc.Repos, repoID)
		case model.MissingSkip:
			counts.Skipped++
		}

		if logger != nil {
			_ = logger.Log(audit.Record{ //nolint:errcheck // audit failures must not abort resolution
				Event:    "missing_repo_" + string(action),
				Status:   audit.StatusOK,
				Provider: entry.Provider,
				Scope:    joinScope(entry.Scope),
				RepoID:   repoID,
				Path:     entry.LocalPath,
			})
		}
	}
	return counts, nil
}

// apply performs the filesystem side effect for one policy and returns the
// policy actually taken (Prompt never reaches here — it is resolved by the
// caller first).
func apply(policy model.MissingPolicy, root, repoID string, entry cache.RepoEntry, now func() time.Time) (model.MissingPolicy, error) {
	switch policy {
	case model.MissingSkip:
		return model.MissingSkip, nil
	case model.MissingRemove:
		if err := removeWithinRoot(root, entry.LocalPath); err != nil {
			return "", err
		}
		return model.MissingRemove, nil
	case model.MissingArchive:
		dest := workitem.ArchivePath(root, now().UTC().Format("20060102T150405Z"), model.ProviderKind(entry.Provider), entry.Scope, entry.Name)
		if err := archiveWithinRoot(root, entry.LocalPath, dest); err != nil {
			return "", err
		}
		return model.MissingArchive, nil
	default:
		return model.MissingSkip, nil
	}
}

// removeWithinRoot deletes a working directory, refusing to act outside
// the configured mirror root.
func removeWithinRoot(root, path string) error {
	if err := requireWithinRoot(root, path); err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(path)
}

// archiveWithinRoot moves a working directory to a collision-safe,
// timestamp-suffixed archive destination, refusing to act outside root.
func archiveWithinRoot(root, src, dest string) error {
	if err := requireWithinRoot(root, src); err != nil {
		return err
	}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create archive parent: %w", err)
	}
	return os.Rename(src, dest)
}

func requireWithinRoot(root, path string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to act outside mirror root: %s", path)
	}
	return nil
}

func joinScope(scope []string) string {
	out := ""
	for i, s := range scope {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}
