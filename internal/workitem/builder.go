// Package workitem builds the queue of {repo, local path} pairs the Sync
// Orchestrator fans out to Git Workers.
package workitem

import (
	"path/filepath"

	"github.com/skaphos/reposync/internal/model"
)

// Filter decides whether a repo should be skipped. The default filter
// (see DefaultFilter) excludes archived repos.
type Filter func(model.RemoteRepo) bool

// DefaultFilter excludes archived repos unless the caller opted in to
// IncludeArchived.
func DefaultFilter(includeArchived bool) Filter {
	return func(r model.RemoteRepo) bool {
		if r.Archived && !includeArchived {
			return false
		}
		return true
	}
}

// Options controls Build's behavior.
type Options struct {
	Root     string
	Filter   Filter
	// Select, when non-empty, restricts the queue to a single repo matched
	// by name or id.
	Select string
}

// Build turns a fresh repo listing and the mirror root into deterministic
// work items. Paths are <root>/<provider_dir>/<scope.../><repo.name>.
func Build(repos []model.RemoteRepo, opts Options) []model.WorkItem {
	filter := opts.Filter
	if filter == nil {
		filter = DefaultFilter(false)
	}

	items := make([]model.WorkItem, 0, len(repos))
	for _, r := range repos {
		if opts.Select != "" && r.Name != opts.Select && r.ID != opts.Select {
			continue
		}
		if !filter(r) {
			continue
		}
		items = append(items, model.WorkItem{
			Repo:      r,
			LocalPath: LocalPath(opts.Root, r),
		})
	}
	return items
}

// LocalPath computes the deterministic mirror path for a single repo.
func LocalPath(root string, r model.RemoteRepo) string {
	segments := append([]string{root, r.Kind.Dir()}, r.Scope...)
	segments = append(segments, r.Name)
	return filepath.Join(segments...)
}

// ArchivePath computes the destination of an archived repo's working
// directory: <root>/_archive/<ISO timestamp>/<provider_dir>/<scope.../><name>.
func ArchivePath(root, timestamp string, kind model.ProviderKind, scope model.ProviderScope, name string) string {
	segments := append([]string{root, "_archive", timestamp, kind.Dir()}, scope...)
	segments = append(segments, name)
	return filepath.Join(segments...)
}
