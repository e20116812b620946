package sortutil

import (
	"sort"

	"github.com/skaphos/reposync/internal/model"
)

// LessRepoIDPath provides deterministic ordering by repository identity first,
// then by path for multi-checkout scenarios.
func LessRepoIDPath(repoIDI, pathI, repoIDJ, pathJ string) bool {
	if repoIDI == repoIDJ {
		return pathI < pathJ
	}
	return repoIDI < repoIDJ
}

// SortSyncResults orders a run's per-repo results by RepoID, then LocalPath,
// so CLI and log output is stable across runs regardless of fan-out order.
func SortSyncResults(results []model.SyncResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return LessRepoIDPath(results[i].RepoID, results[i].LocalPath, results[j].RepoID, results[j].LocalPath)
	})
}

// SortWorkItems orders work items by RepoID, then LocalPath, before they are
// handed to the fan-out pool so any sequential processing is deterministic.
func SortWorkItems(items []model.WorkItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return LessRepoIDPath(items[i].Repo.ID, items[i].LocalPath, items[j].Repo.ID, items[j].LocalPath)
	})
}
