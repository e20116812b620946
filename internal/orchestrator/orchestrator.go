// Package orchestrator implements the Sync Orchestrator: the seven-phase
// pipeline that turns one provider target into a mirrored, up-to-date set
// of local git working directories.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skaphos/reposync/internal/audit"
	"github.com/skaphos/reposync/internal/cache"
	"github.com/skaphos/reposync/internal/gitworker"
	"github.com/skaphos/reposync/internal/missing"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/provider"
	"github.com/skaphos/reposync/internal/sortutil"
	"github.com/skaphos/reposync/internal/statusemit"
	"github.com/skaphos/reposync/internal/workitem"
)

// inventoryTTL is how long a cached repo listing may be served without
// re-calling the provider.
const inventoryTTL = 15 * time.Minute

// Options configures one run of RunSyncFiltered.
type Options struct {
	MissingPolicy   model.MissingPolicy
	Decider         missing.Decider
	Filter          workitem.Filter
	Select          string
	Reporter        model.ProgressReporter
	Jobs            int
	DetectMissing   bool
	Refresh         bool
	Verify          bool // reserved for post-sync repository verification
}

// RunSyncFiltered composes the Preflight, Load state, Listing, Missing
// resolution, Work build, Fan-out, and Finalize phases against one target
// and returns the run's aggregate summary.
func RunSyncFiltered(ctx context.Context, reg *provider.Registry, logger *audit.Logger, target model.Target, root, cachePath string, opts Options) (model.Summary, error) {
	summary := model.Summary{}

	adapter, err := reg.For(target.Kind)
	if err != nil {
		return summary, fmt.Errorf("orchestrator: %w", err)
	}

	// Phase 1: Preflight.
	creds, err := adapter.AuthForTarget(ctx, target)
	if err != nil {
		return summary, fmt.Errorf("orchestrator: resolve credentials: %w", err)
	}
	if err := adapter.ValidateAuth(ctx, target, creds); err != nil {
		return summary, fmt.Errorf("orchestrator: validate auth: %w", err)
	}

	// Phase 2: Load state.
	doc, err := cache.Load(cachePath)
	if err != nil {
		return summary, fmt.Errorf("orchestrator: load cache: %w", err)
	}
	targetID := target.ID()
	emitter := statusemit.New(doc, cachePath, targetID, opts.Reporter)
	if err := emitter.Emit(model.ActionStarting, "", "", true, summary); err != nil {
		return summary, fmt.Errorf("orchestrator: emit starting: %w", err)
	}

	// Phase 3: Listing.
	repos, usedCache, err := list(ctx, adapter, target, creds, doc, targetID, opts.Refresh)
	if err != nil {
		return summary, fmt.Errorf("orchestrator: list repos: %w", err)
	}

	// Phase 4: Missing resolution.
	if opts.DetectMissing && !usedCache {
		if err := resolveMissing(doc, root, target, repos, opts, logger, emitter, &summary); err != nil {
			return summary, fmt.Errorf("orchestrator: resolve missing: %w", err)
		}
	}

	// Phase 5: Work build.
	items := workitem.Build(repos, workitem.Options{Root: root, Filter: opts.Filter, Select: opts.Select})
	sortutil.SortWorkItems(items)
	emitter.SetTotal(len(items))
	if err := emitter.Emit(model.ActionSyncing, "", "", true, summary); err != nil {
		return summary, fmt.Errorf("orchestrator: emit syncing: %w", err)
	}

	// Phase 6: Fan-out.
	if err := fanOut(ctx, items, target, creds, normalizeJobs(opts.Jobs, len(items)), doc, emitter, logger, &summary); err != nil {
		return summary, fmt.Errorf("orchestrator: fan out: %w", err)
	}

	// Phase 7: Finalize.
	if err := emitter.Emit(model.ActionDone, "", "", false, summary); err != nil {
		return summary, fmt.Errorf("orchestrator: emit done: %w", err)
	}
	return summary, nil
}

// list serves the cached inventory entry when fresh and refresh was not
// requested, otherwise calls the adapter and replaces the cached entry.
func list(ctx context.Context, adapter provider.Adapter, target model.Target, creds *model.Credentials, doc *cache.Document, targetID string, refresh bool) ([]model.RemoteRepo, bool, error) {
	if !refresh {
		if entry, ok := doc.RepoInventory[targetID]; ok {
			age := time.Since(time.Unix(entry.FetchedAt, 0))
			if age <= inventoryTTL {
				return inflateInventory(entry, target), true, nil
			}
		}
	}

	repos, err := adapter.ListRepos(ctx, target, creds)
	if err != nil {
		return nil, false, err
	}
	doc.RepoInventory[targetID] = cache.InventoryEntry{
		FetchedAt: time.Now().Unix(),
		Repos:     deflateInventory(repos),
	}
	return repos, false, nil
}

func inflateInventory(entry cache.InventoryEntry, target model.Target) []model.RemoteRepo {
	repos := make([]model.RemoteRepo, 0, len(entry.Repos))
	for _, v := range entry.Repos {
		repos = append(repos, model.RemoteRepo{
			ID:            v.ID,
			Name:          v.Name,
			CloneURL:      v.CloneURL,
			DefaultBranch: v.DefaultBranch,
			Archived:      v.Archived,
			Kind:          target.Kind,
			Scope:         target.Scope,
		})
	}
	return repos
}

func deflateInventory(repos []model.RemoteRepo) []cache.RemoteRepoView {
	views := make([]cache.RemoteRepoView, 0, len(repos))
	for _, r := range repos {
		views = append(views, cache.RemoteRepoView{
			ID:            r.ID,
			Name:          r.Name,
			CloneURL:      r.CloneURL,
			DefaultBranch: r.DefaultBranch,
			Archived:      r.Archived,
		})
	}
	return views
}

// resolveMissing diffs the cache against the fresh listing and applies the
// configured policy, emitting one status event per resolved repo.
func resolveMissing(doc *cache.Document, root string, target model.Target, repos []model.RemoteRepo, opts Options, logger *audit.Logger, emitter *statusemit.Emitter, summary *model.Summary) error {
	currentIDs := make(map[string]struct{}, len(repos))
	for _, r := range repos {
		currentIDs[r.ID] = struct{}{}
	}
	missingIDs := missing.Compute(doc, target, currentIDs)

	for _, repoID := range missingIDs {
		entry, ok := doc.Repos[repoID]
		if !ok {
			continue
		}
		counts, err := missing.Resolve(doc, root, []string{repoID}, opts.MissingPolicy, opts.Decider, logger, nil)
		if err != nil {
			return err
		}
		var action model.StatusAction
		switch {
		case counts.Archived > 0:
			summary.MissingArchived++
			action = model.ActionMissingArchived
		case counts.Removed > 0:
			summary.MissingRemoved++
			action = model.ActionMissingRemoved
		default:
			summary.MissingSkipped++
			action = model.ActionMissingSkipped
		}
		if err := emitter.Emit(action, entry.Name, repoID, true, *summary); err != nil {
			return err
		}
	}
	return nil
}

// normalizeJobs bounds the requested worker count to [1, len(items)].
func normalizeJobs(requested, total int) int {
	if total <= 0 {
		total = 1
	}
	if requested < 1 {
		requested = 1
	}
	if requested > total {
		requested = total
	}
	return requested
}

// stack is the mutex-guarded LIFO queue workers drain from, per §5.
type stack struct {
	mu    sync.Mutex
	items []model.WorkItem
}

func newStack(items []model.WorkItem) *stack {
	return &stack{items: append([]model.WorkItem(nil), items...)}
}

func (s *stack) pop() (model.WorkItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	if n == 0 {
		return model.WorkItem{}, false
	}
	item := s.items[n-1]
	s.items = s.items[:n-1]
	return item, true
}

// event is what a worker goroutine pushes back to the driver thread: either
// a Started marker or a Finished result, exactly the two event kinds in §5.
type event struct {
	started bool
	item    model.WorkItem
	outcome model.OutcomeKind
	err     error
}

// fanOut drains items across jobs worker goroutines and is the sole
// mutator of doc/emitter, run entirely on the calling (driver) goroutine.
func fanOut(ctx context.Context, items []model.WorkItem, target model.Target, targetCreds *model.Credentials, jobs int, doc *cache.Document, emitter *statusemit.Emitter, logger *audit.Logger, summary *model.Summary) error {
	if len(items) == 0 {
		return nil
	}
	q := newStack(items)
	events := make(chan event, len(items)*2)

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := q.pop()
				if !ok {
					return
				}
				events <- event{started: true, item: item}
				auth := item.Repo.Auth
				if auth == nil {
					auth = targetCreds
				}
				outcome, err := gitworker.Sync(ctx, gitworker.Input{
					LocalPath:     item.LocalPath,
					CloneURL:      item.Repo.CloneURL,
					DefaultBranch: item.Repo.DefaultBranch,
					Auth:          auth,
				})
				events <- event{started: false, item: item, outcome: outcome, err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(events)
	}()

	finishedEvents := make([]event, 0, len(items))
	finished := 0
	for finished < len(items) {
		evt, ok := <-events
		if !ok {
			break
		}
		if evt.started {
			if err := emitter.Emit(model.ActionSyncing, evt.item.Repo.Name, evt.item.Repo.ID, true, *summary); err != nil {
				return err
			}
			continue
		}
		finished++
		finishedEvents = append(finishedEvents, evt)
	}

	// Worker goroutines finish in whatever order the scheduler hands them
	// out; recording that raw arrival order into the cache and audit log
	// would make two runs over the same targets diff for no reason. Sort
	// into a deterministic RepoID/LocalPath order before recording.
	results := make([]model.SyncResult, len(finishedEvents))
	byRepoID := make(map[string]event, len(finishedEvents))
	for i, evt := range finishedEvents {
		results[i] = model.SyncResult{
			RepoID:    evt.item.Repo.ID,
			Name:      evt.item.Repo.Name,
			LocalPath: evt.item.LocalPath,
			Outcome:   evt.outcome,
			Err:       evt.err,
		}
		byRepoID[evt.item.Repo.ID] = evt
	}
	sortutil.SortSyncResults(results)

	for _, r := range results {
		if err := recordFinished(doc, target, byRepoID[r.RepoID], logger, emitter, summary); err != nil {
			return err
		}
	}
	return nil
}

// recordFinished applies one Finished event: it always records where the
// repo lives regardless of outcome, updates last_sync for non-failure,
// non-divergent, non-dirty outcomes, and emits the terminal status event.
func recordFinished(doc *cache.Document, target model.Target, evt event, logger *audit.Logger, emitter *statusemit.Emitter, summary *model.Summary) error {
	cache.RecordObservation(doc, evt.item.Repo.ID, cache.RepoEntry{
		Name:      evt.item.Repo.Name,
		Provider:  string(target.Kind),
		Scope:     evt.item.Repo.Scope,
		LocalPath: evt.item.LocalPath,
	})

	action := model.ActionFailed
	if evt.outcome == "" {
		summary.Failed++
	} else {
		summary.Record(evt.outcome)
		action = actionForOutcome(evt.outcome)
		if evt.outcome == model.OutcomeCloned || evt.outcome == model.OutcomeFastForwarded || evt.outcome == model.OutcomeUpToDate {
			cache.RecordSuccess(doc, evt.item.Repo.ID, time.Now())
		}
	}

	if evt.err != nil && logger != nil {
		_ = logger.Log(audit.Record{ //nolint:errcheck // audit failures must not abort the run
			Event:    "sync_repo",
			Status:   audit.StatusFailed,
			Provider: string(target.Kind),
			RepoID:   evt.item.Repo.ID,
			Path:     evt.item.LocalPath,
			Error:    evt.err.Error(),
		})
	}

	return emitter.Emit(action, evt.item.Repo.Name, evt.item.Repo.ID, true, *summary)
}

func actionForOutcome(outcome model.OutcomeKind) model.StatusAction {
	switch outcome {
	case model.OutcomeCloned:
		return model.ActionCloned
	case model.OutcomeFastForwarded:
		return model.ActionFastForwarded
	case model.OutcomeUpToDate:
		return model.ActionUpToDate
	case model.OutcomeDirty:
		return model.ActionDirty
	case model.OutcomeDiverged:
		return model.ActionDiverged
	default:
		return model.ActionFailed
	}
}
