// Package cache implements the Cache Store: a versioned, forward-migrating
// on-disk document holding repo inventory, last-sync timestamps, per-target
// sync status, per-target backoff, and token-check results.
//
// The document is exclusively owned by whichever process currently holds
// the Lockfile; readers may load a snapshot outside the lock for display
// purposes only.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skaphos/reposync/internal/model"
)

// CurrentVersion is the document schema version this package reads and
// writes. Older schemas are forward-migrated on Load; backward migration is
// not supported.
const CurrentVersion = 4

// RepoEntry is a cached repo-to-path mapping, keyed by repo id in
// Document.Repos.
type RepoEntry struct {
	Name      string   `json:"name"`
	Provider  string   `json:"provider"`
	Scope     []string `json:"scope"`
	LocalPath string   `json:"local_path"`
}

// RemoteRepoView is the subset of a RemoteRepo worth caching in an
// inventory entry (auth is deliberately excluded — it is never cached).
type RemoteRepoView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
	Archived      bool   `json:"archived"`
}

// InventoryEntry is the cached repo listing for one target, used to serve
// list-repos from cache within the freshness window.
type InventoryEntry struct {
	FetchedAt int64            `json:"fetched_at"`
	Repos     []RemoteRepoView `json:"repos"`
}

// RepoLocalStatus is the last-observed local git state for one repo.
type RepoLocalStatus struct {
	CheckedAt      int64   `json:"checked_at"`
	HeadBranch     *string `json:"head_branch,omitempty"`
	HeadCommitTime *int64  `json:"head_commit_time,omitempty"`
	UpstreamRef    *string `json:"upstream_ref,omitempty"`
	Ahead          *int    `json:"ahead,omitempty"`
	Behind         *int    `json:"behind,omitempty"`
}

// SyncStatus is the per-target sync status, keyed by target id in
// Document.TargetSyncStatus.
type SyncStatus struct {
	InProgress     bool          `json:"in_progress"`
	LastAction     string        `json:"last_action"`
	LastRepo       string        `json:"last_repo"`
	LastRepoID     string        `json:"last_repo_id"`
	LastUpdated    int64         `json:"last_updated"`
	TotalRepos     int           `json:"total_repos"`
	ProcessedRepos int           `json:"processed_repos"`
	Summary        model.Summary `json:"summary"`
}

// TokenCheckStatus is the closed set of token-check outcomes.
type TokenCheckStatus string

const (
	TokenOK            TokenCheckStatus = "ok"
	TokenInvalid       TokenCheckStatus = "invalid"
	TokenScopeNotFound TokenCheckStatus = "scope_not_found"
	TokenNetwork       TokenCheckStatus = "network"
	TokenError         TokenCheckStatus = "error"

	// TokenScopesUnsupported marks a scope discovery attempt on a provider
	// whose adapter does not implement TokenScoper. It is distinct from
	// TokenError: scopes were never checked, not checked and found wanting.
	TokenScopesUnsupported TokenCheckStatus = "scopes_unsupported"
)

// TokenCheckRecord is the last token validation result for one account key.
type TokenCheckRecord struct {
	LastChecked int64            `json:"last_checked"`
	Status      TokenCheckStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	Scopes      []string         `json:"scopes,omitempty"`
	ScopeStatus TokenCheckStatus `json:"scope_status,omitempty"`
}

// UpdateCheckState tracks the last self-update check (v3+). Populated by
// the out-of-core update checker collaborator; the core only persists it.
type UpdateCheckState struct {
	LastChecked     int64  `json:"last_checked,omitempty"`
	LatestVersion   string `json:"latest_version,omitempty"`
	UpdateAvailable bool   `json:"update_available,omitempty"`
}

// Document is the versioned envelope persisted at the cache path.
type Document struct {
	Version int `json:"version"`

	LastSync      map[string]string          `json:"last_sync"`
	Repos         map[string]RepoEntry       `json:"repos"`
	RepoInventory map[string]InventoryEntry  `json:"repo_inventory"`
	RepoStatus    map[string]RepoLocalStatus `json:"repo_status"`

	TargetLastSuccess     map[string]int64  `json:"target_last_success"`
	TargetBackoffUntil    map[string]int64  `json:"target_backoff_until"`
	TargetBackoffAttempts map[string]int    `json:"target_backoff_attempts"`
	TargetSyncStatus      map[string]SyncStatus `json:"target_sync_status"`

	UpdateCheck *UpdateCheckState           `json:"update_check,omitempty"`
	TokenChecks map[string]TokenCheckRecord `json:"token_checks,omitempty"`
}

// empty returns a zero-valued, fully-initialized v4 document.
func empty() *Document {
	return &Document{
		Version:               CurrentVersion,
		LastSync:              map[string]string{},
		Repos:                 map[string]RepoEntry{},
		RepoInventory:         map[string]InventoryEntry{},
		RepoStatus:            map[string]RepoLocalStatus{},
		TargetLastSuccess:     map[string]int64{},
		TargetBackoffUntil:    map[string]int64{},
		TargetBackoffAttempts: map[string]int{},
		TargetSyncStatus:      map[string]SyncStatus{},
		TokenChecks:           map[string]TokenCheckRecord{},
	}
}

// Load reads the document at path, detects its schema version, and
// forward-migrates it to v4. Missing fields default to empty collections.
// On I/O error it returns an empty v4 document — the caller decides
// whether to persist it.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return empty(), nil //nolint:nilerr // read failures never crash a run; caller re-saves or not
	}

	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return empty(), nil //nolint:nilerr // corrupt cache is treated as absent, not fatal
	}

	var doc *Document
	switch {
	case probe.Version == nil:
		doc, err = migrateLegacy(data)
	case *probe.Version <= 1:
		doc, err = migrateLegacy(data)
	case *probe.Version == 2:
		doc, err = migrateV2(data)
	case *probe.Version == 3:
		doc, err = migrateV3(data)
	default:
		doc = &Document{}
		err = json.Unmarshal(data, doc)
	}
	if err != nil {
		return empty(), nil //nolint:nilerr // corrupt cache is treated as absent, not fatal
	}
	fillDefaults(doc)
	doc.Version = CurrentVersion
	return doc, nil
}

// fillDefaults replaces any nil map with an empty one so callers never see
// a nil-map panic on write.
func fillDefaults(doc *Document) {
	if doc.LastSync == nil {
		doc.LastSync = map[string]string{}
	}
	if doc.Repos == nil {
		doc.Repos = map[string]RepoEntry{}
	}
	if doc.RepoInventory == nil {
		doc.RepoInventory = map[string]InventoryEntry{}
	}
	if doc.RepoStatus == nil {
		doc.RepoStatus = map[string]RepoLocalStatus{}
	}
	if doc.TargetLastSuccess == nil {
		doc.TargetLastSuccess = map[string]int64{}
	}
	if doc.TargetBackoffUntil == nil {
		doc.TargetBackoffUntil = map[string]int64{}
	}
	if doc.TargetBackoffAttempts == nil {
		doc.TargetBackoffAttempts = map[string]int{}
	}
	if doc.TargetSyncStatus == nil {
		doc.TargetSyncStatus = map[string]SyncStatus{}
	}
	if doc.TokenChecks == nil {
		doc.TokenChecks = map[string]TokenCheckRecord{}
	}
}

// v0/v1 carried only last_sync and repos, no version field.
type legacyDoc struct {
	LastSync map[string]string    `json:"last_sync"`
	Repos    map[string]RepoEntry `json:"repos"`
}

func migrateLegacy(data []byte) (*Document, error) {
	var legacy legacyDoc
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("cache: migrate legacy: %w", err)
	}
	doc := empty()
	doc.LastSync = legacy.LastSync
	doc.Repos = legacy.Repos
	return doc, nil
}

// v2 added inventory, per-repo status, and backoff fields.
type v2Doc struct {
	legacyDoc
	RepoInventory         map[string]InventoryEntry  `json:"repo_inventory"`
	RepoStatus            map[string]RepoLocalStatus `json:"repo_status"`
	TargetLastSuccess     map[string]int64           `json:"target_last_success"`
	TargetBackoffUntil    map[string]int64           `json:"target_backoff_until"`
	TargetBackoffAttempts map[string]int             `json:"target_backoff_attempts"`
	TargetSyncStatus      map[string]SyncStatus      `json:"target_sync_status"`
}

func migrateV2(data []byte) (*Document, error) {
	var v2 v2Doc
	if err := json.Unmarshal(data, &v2); err != nil {
		return nil, fmt.Errorf("cache: migrate v2: %w", err)
	}
	doc := empty()
	doc.LastSync = v2.LastSync
	doc.Repos = v2.Repos
	doc.RepoInventory = v2.RepoInventory
	doc.RepoStatus = v2.RepoStatus
	doc.TargetLastSuccess = v2.TargetLastSuccess
	doc.TargetBackoffUntil = v2.TargetBackoffUntil
	doc.TargetBackoffAttempts = v2.TargetBackoffAttempts
	doc.TargetSyncStatus = v2.TargetSyncStatus
	return doc, nil
}

// v3 added update-check fields on top of v2.
type v3Doc struct {
	v2Doc
	UpdateCheck *UpdateCheckState `json:"update_check,omitempty"`
}

func migrateV3(data []byte) (*Document, error) {
	var v3 v3Doc
	if err := json.Unmarshal(data, &v3); err != nil {
		return nil, fmt.Errorf("cache: migrate v3: %w", err)
	}
	doc, err := migrateV2(data)
	if err != nil {
		return nil, err
	}
	doc.UpdateCheck = v3.UpdateCheck
	return doc, nil
}

// Save atomically writes doc to path: write a sibling temp file, fsync it,
// then rename over the destination. Fails only if the directory is
// unwritable or the disk is full — write failures propagate since they risk
// losing state.
func Save(path string, doc *Document) error {
	doc.Version = CurrentVersion
	fillDefaults(doc)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: create parent dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup; rename below is what matters

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("cache: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("cache: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("cache: rename into place: %w", err)
	}
	return nil
}

// PruneForTargets removes repo cache entries whose provider/scope no longer
// belongs to any of the given targets. Returns the count removed. Entries
// carry no host, so targets are matched on provider and scope only.
func PruneForTargets(doc *Document, targets []model.Target) int {
	valid := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		valid[model.Target{Kind: t.Kind, Scope: t.Scope}.ID()] = struct{}{}
	}
	removed := 0
	for repoID, entry := range doc.Repos {
		tid := model.Target{Kind: model.ProviderKind(entry.Provider), Scope: entry.Scope}.ID()
		if _, ok := valid[tid]; !ok {
			delete(doc.Repos, repoID)
			delete(doc.LastSync, repoID)
			delete(doc.RepoStatus, repoID)
			removed++
		}
	}
	return removed
}

// RecordObservation upserts the cache entry for a repo that was just
// processed (clone URL/path/provider/scope), regardless of sync outcome —
// the point is remembering where it lives.
func RecordObservation(doc *Document, repoID string, entry RepoEntry) {
	fillDefaults(doc)
	doc.Repos[repoID] = entry
}

// RecordSuccess marks repo_id as successfully synced at "now" by storing
// now's Unix time in LastSync; RepoStatus is left untouched.
func RecordSuccess(doc *Document, repoID string, now time.Time) {
	fillDefaults(doc)
	doc.LastSync[repoID] = fmt.Sprintf("%d", now.Unix())
}

// RecordBackoff updates a target's backoff state: success resets it to no
// backoff; failure doubles the interval bounded by ceiling.
func RecordBackoff(doc *Document, targetID string, success bool, now time.Time, baseInterval, ceiling time.Duration) {
	fillDefaults(doc)
	if success {
		doc.TargetLastSuccess[targetID] = now.Unix()
		doc.TargetBackoffUntil[targetID] = 0
		doc.TargetBackoffAttempts[targetID] = 0
		return
	}
	attempts := doc.TargetBackoffAttempts[targetID] + 1
	doc.TargetBackoffAttempts[targetID] = attempts
	delay := backoffDelay(baseInterval, attempts, ceiling)
	doc.TargetBackoffUntil[targetID] = now.Add(delay).Unix()
}

func backoffDelay(base time.Duration, attempts int, ceiling time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		if delay >= ceiling/2 {
			return ceiling
		}
		delay *= 2
	}
	if delay > ceiling || delay <= 0 {
		return ceiling
	}
	return delay
}

// RecordTokenCheck stores the latest token validation result for an
// account key.
func RecordTokenCheck(doc *Document, accountKey string, rec TokenCheckRecord) {
	fillDefaults(doc)
	doc.TokenChecks[accountKey] = rec
}

// RecordSyncStatus stores the latest per-target sync status snapshot.
func RecordSyncStatus(doc *Document, targetID string, status SyncStatus) {
	fillDefaults(doc)
	doc.TargetSyncStatus[targetID] = status
}
