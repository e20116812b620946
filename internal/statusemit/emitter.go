// Package statusemit implements the Status Emitter: a live picture of one
// target's progress, written through to the Cache Store with rate-limiting
// so disk pressure stays bounded during fast runs.
package statusemit

import (
	"time"

	"github.com/skaphos/reposync/internal/cache"
	"github.com/skaphos/reposync/internal/model"
)

// FlushInterval is the default throttle: the Cache is flushed to disk at
// most this often, except at phase boundaries which always flush.
const FlushInterval = 500 * time.Millisecond

// terminal is the set of actions that count as one processed repo. Missing*
// actions are resolved before SetTotal and are not work items, so they must
// never increment processedRepos — doing so would push processed_repos past
// total_repos.
var terminal = map[model.StatusAction]bool{
	model.ActionCloned:        true,
	model.ActionFastForwarded: true,
	model.ActionUpToDate:      true,
	model.ActionDirty:         true,
	model.ActionDiverged:      true,
	model.ActionFailed:        true,
}

// phaseBoundary is the set of actions that always force an immediate flush
// regardless of the throttle, per the design note in SPEC_FULL.md §9.
var phaseBoundary = map[model.StatusAction]bool{
	model.ActionStarting:        true,
	model.ActionDone:            true,
	model.ActionMissingArchived: true,
	model.ActionMissingRemoved:  true,
	model.ActionMissingSkipped:  true,
}

// Emitter carries the live state for one target's run.
type Emitter struct {
	doc       *cache.Document
	cachePath string
	targetID  string

	totalRepos     int
	processedRepos int

	lastFlush time.Time
	dirty     bool

	reporter model.ProgressReporter
	now      func() time.Time
}

// New creates an Emitter for one target's run. reporter may be nil.
func New(doc *cache.Document, cachePath, targetID string, reporter model.ProgressReporter) *Emitter {
	return &Emitter{
		doc:       doc,
		cachePath: cachePath,
		targetID:  targetID,
		reporter:  reporter,
		now:       time.Now,
	}
}

// SetTotal records the total repo count for this run (set once, at the
// work-build phase boundary).
func (e *Emitter) SetTotal(n int) {
	e.totalRepos = n
}

// Emit updates the in-memory status, optionally notifies the progress
// reporter, and flushes the Cache to disk when the run ends, 500ms have
// elapsed since the last flush, or this is a phase-boundary action.
func (e *Emitter) Emit(action model.StatusAction, repoName, repoID string, inProgress bool, summary model.Summary) error {
	if terminal[action] {
		e.processedRepos++
	}

	now := e.now()
	status := cache.SyncStatus{
		InProgress:     inProgress,
		LastAction:     string(action),
		LastRepo:       repoName,
		LastRepoID:     repoID,
		LastUpdated:    now.Unix(),
		TotalRepos:     e.totalRepos,
		ProcessedRepos: e.processedRepos,
		Summary:        summary,
	}
	cache.RecordSyncStatus(e.doc, e.targetID, status)
	e.dirty = true

	if e.reporter != nil {
		e.reporter(model.ProgressSnapshot{
			TargetID:       e.targetID,
			TotalRepos:     e.totalRepos,
			ProcessedRepos: e.processedRepos,
			Action:         action,
			RepoName:       repoName,
			RepoID:         repoID,
			Summary:        summary,
			InProgress:     inProgress,
			At:             now,
		})
	}

	if !inProgress || phaseBoundary[action] || now.Sub(e.lastFlush) >= FlushInterval {
		return e.Flush()
	}
	return nil
}

// Flush writes the Cache document to disk unconditionally, clearing the
// dirty bit and resetting the throttle clock.
func (e *Emitter) Flush() error {
	if err := cache.Save(e.cachePath, e.doc); err != nil {
		return err
	}
	e.dirty = false
	e.lastFlush = e.now()
	return nil
}

// Dirty reports whether there are unflushed changes.
func (e *Emitter) Dirty() bool {
	return e.dirty
}
