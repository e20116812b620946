package missing_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skaphos/reposync/internal/cache"
	"github.com/skaphos/reposync/internal/missing"
	"github.com/skaphos/reposync/internal/model"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestComputeFindsOnlyMissingForMatchingTarget(t *testing.T) {
	doc := &cache.Document{Repos: map[string]cache.RepoEntry{}}
	doc.Repos["repo-1"] = cache.RepoEntry{Provider: "github", Scope: []string{"acme"}}
	doc.Repos["repo-2"] = cache.RepoEntry{Provider: "github", Scope: []string{"acme"}}
	doc.Repos["repo-3"] = cache.RepoEntry{Provider: "gitlab", Scope: []string{"acme"}}

	target := model.Target{Kind: model.ProviderGitHub, Scope: model.ProviderScope{"acme"}}
	current := map[string]struct{}{"repo-1": {}}

	got := missing.Compute(doc, target, current)
	if len(got) != 1 || got[0] != "repo-2" {
		t.Fatalf("unexpected missing set: %v", got)
	}
}

func TestResolveSkipKeepsCacheEntry(t *testing.T) {
	doc := &cache.Document{Repos: map[string]cache.RepoEntry{
		"repo-1": {Name: "widgets", Provider: "github", Scope: []string{"acme"}, LocalPath: "/nonexistent"},
	}}
	counts, err := missing.Resolve(doc, "/root", []string{"repo-1"}, model.MissingSkip, nil, nil, fixedNow)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if counts.Skipped != 1 {
		t.Fatalf("expected 1 skip, got %+v", counts)
	}
	if _, ok := doc.Repos["repo-1"]; !ok {
		t.Fatal("expected skip to keep the cache entry")
	}
}

func TestResolveRemoveDeletesWorkingDirAndCacheEntry(t *testing.T) {
	root := t.TempDir()
	local := filepath.Join(root, "github", "acme", "widgets")
	if err := os.MkdirAll(local, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	doc := &cache.Document{Repos: map[string]cache.RepoEntry{
		"repo-1": {Name: "widgets", Provider: "github", Scope: []string{"acme"}, LocalPath: local},
	}}

	counts, err := missing.Resolve(doc, root, []string{"repo-1"}, model.MissingRemove, nil, nil, fixedNow)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if counts.Removed != 1 {
		t.Fatalf("expected 1 removal, got %+v", counts)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Fatal("expected working directory to be removed")
	}
	if _, ok := doc.Repos["repo-1"]; ok {
		t.Fatal("expected cache entry to be deleted")
	}
}

func TestResolveArchiveMovesWorkingDir(t *testing.T) {
	root := t.TempDir()
	local := filepath.Join(root, "github", "acme", "widgets")
	if err := os.MkdirAll(local, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	marker := filepath.Join(local, "marker.txt")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	doc := &cache.Document{Repos: map[string]cache.RepoEntry{
		"repo-1": {Name: "widgets", Provider: "github", Scope: []string{"acme"}, LocalPath: local},
	}}

	counts, err := missing.Resolve(doc, root, []string{"repo-1"}, model.MissingArchive, nil, nil, fixedNow)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if counts.Archived != 1 {
		t.Fatalf("expected 1 archive, got %+v", counts)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Fatal("expected original working directory to be gone")
	}
	archived := filepath.Join(root, "_archive", "20260301T120000Z", "github", "acme", "widgets", "marker.txt")
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("expected archived marker at %s: %v", archived, err)
	}
}

func TestResolvePromptWithoutDeciderDefaultsToSkip(t *testing.T) {
	doc := &cache.Document{Repos: map[string]cache.RepoEntry{
		"repo-1": {Name: "widgets", Provider: "github", Scope: []string{"acme"}, LocalPath: "/nonexistent"},
	}}
	counts, err := missing.Resolve(doc, "/root", []string{"repo-1"}, model.MissingPrompt, nil, nil, fixedNow)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if counts.Skipped != 1 {
		t.Fatalf("expected prompt-without-decider to skip, got %+v", counts)
	}
}

func TestResolvePromptUsesDecider(t *testing.T) {
	root := t.TempDir()
	local := filepath.Join(root, "github", "acme", "widgets")
	if err := os.MkdirAll(local, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	doc := &cache.Document{Repos: map[string]cache.RepoEntry{
		"repo-1": {Name: "widgets", Provider: "github", Scope: []string{"acme"}, LocalPath: local},
	}}
	decider := func(repoID string, entry cache.RepoEntry) model.MissingPolicy {
		return model.MissingRemove
	}
	counts, err := missing.Resolve(doc, root, []string{"repo-1"}, model.MissingPrompt, decider, nil, fixedNow)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if counts.Removed != 1 {
		t.Fatalf("expected decider's choice to be applied, got %+v", counts)
	}
}

func TestResolveRefusesToActOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	doc := &cache.Document{Repos: map[string]cache.RepoEntry{
		"repo-1": {Name: "widgets", Provider: "github", Scope: []string{"acme"}, LocalPath: outside},
	}}
	_, err := missing.Resolve(doc, root, []string{"repo-1"}, model.MissingRemove, nil, nil, fixedNow)
	if err == nil {
		t.Fatal("expected an error when the cached path escapes the mirror root")
	}
	if _, statErr := os.Stat(outside); statErr != nil {
		t.Fatal("expected the outside-root directory to remain untouched")
	}
}

func TestResolveIgnoresUnknownRepoIDs(t *testing.T) {
	doc := &cache.Document{Repos: map[string]cache.RepoEntry{}}
	counts, err := missing.Resolve(doc, "/root", []string{"ghost"}, model.MissingRemove, nil, nil, fixedNow)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if counts != (missing.Counts{}) {
		t.Fatalf("expected no-op for an unknown repo id, got %+v", counts)
	}
}
