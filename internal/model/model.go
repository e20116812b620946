// Package model defines the core data types shared by every Sync Engine
// component: provider targets, remote repositories, cache entries, and
// per-run summaries.
package model

import "time"

// ProviderKind identifies which hosting service a target belongs to.
type ProviderKind string

const (
	ProviderAzureDevOps ProviderKind = "azure-devops"
	ProviderGitHub      ProviderKind = "github"
	ProviderGitLab      ProviderKind = "gitlab"
)

// Dir returns the per-provider directory segment used under the mirror root.
func (k ProviderKind) Dir() string {
	switch k {
	case ProviderAzureDevOps:
		return "azure-devops"
	case ProviderGitHub:
		return "github"
	case ProviderGitLab:
		return "gitlab"
	default:
		return string(k)
	}
}

// Prefix returns the short tag used when computing a target id.
func (k ProviderKind) Prefix() string {
	switch k {
	case ProviderAzureDevOps:
		return "azdo"
	case ProviderGitHub:
		return "github"
	case ProviderGitLab:
		return "gitlab"
	default:
		return string(k)
	}
}

// ProviderScope is an ordered, non-empty sequence of path segments
// identifying a listing root on the provider (for example ["acme"] for a
// GitHub org, or ["acme", "platform"] for an Azure DevOps org/project).
type ProviderScope []string

// Target identifies one listing root to mirror: a provider kind, a scope
// within that provider, and an optional host override for self-hosted
// instances.
type Target struct {
	Kind ProviderKind  `json:"kind" yaml:"kind"`
	Scope ProviderScope `json:"scope" yaml:"scope"`
	// Host overrides the provider's default API host (self-hosted GitLab,
	// on-prem Azure DevOps collections). Empty means use the default host.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
}

// RemoteRepo is a repository as reported by a Provider Adapter's listing
// call. Auth, when present, is sensitive and must never be serialized.
type RemoteRepo struct {
	// ID is whatever the provider calls stable (never derived from the URL).
	ID string `json:"id"`
	Name string `json:"name"`
	CloneURL string `json:"clone_url"`
	// DefaultBranch is stored without any refs/heads/ prefix.
	DefaultBranch string `json:"default_branch"`
	Archived bool `json:"archived"`
	Kind ProviderKind `json:"-"`
	Scope ProviderScope `json:"-"`
	// Auth is the per-repo credential override, if the provider supplied one.
	// Never serialized.
	Auth *Credentials `json:"-"`
}

// Credentials is a plaintext HTTPS username/password pair used to clone and
// fetch a repository. If Username is empty callers should default it to the
// URL-embedded username or "pat".
type Credentials struct {
	Username string
	Password string
}

// OutcomeKind is the closed set of terminal results the Git Worker can
// produce for a single repository.
type OutcomeKind string

const (
	OutcomeCloned       OutcomeKind = "cloned"
	OutcomeFastForwarded OutcomeKind = "fast_forwarded"
	OutcomeUpToDate     OutcomeKind = "up_to_date"
	OutcomeDirty        OutcomeKind = "dirty"
	OutcomeDiverged     OutcomeKind = "diverged"
)

// WorkItem pairs a remote repo with the local path it mirrors to.
type WorkItem struct {
	Repo RemoteRepo
	LocalPath string
}

// SyncResult is the per-repo result produced by running the Git Worker
// against one WorkItem.
type SyncResult struct {
	RepoID string
	Name string
	LocalPath string
	Outcome OutcomeKind
	Err error
}

// Summary is the set of per-outcome counters accumulated over one run.
// Every terminal outcome increments exactly one counter exactly once.
type Summary struct {
	Cloned int `json:"cloned"`
	FastForwarded int `json:"fast_forwarded"`
	UpToDate int `json:"up_to_date"`
	Dirty int `json:"dirty"`
	Diverged int `json:"diverged"`
	Failed int `json:"failed"`
	MissingArchived int `json:"missing_archived"`
	MissingRemoved int `json:"missing_removed"`
	MissingSkipped int `json:"missing_skipped"`
}

// Total returns the number of processed work items the summary accounts
// for (missing-repo actions are not processed work items and are excluded).
func (s Summary) Total() int {
	return s.Cloned + s.FastForwarded + s.UpToDate + s.Dirty + s.Diverged + s.Failed
}

// Record increments the counter for a single processed work item's outcome.
func (s *Summary) Record(outcome OutcomeKind) {
	switch outcome {
	case OutcomeCloned:
		s.Cloned++
	case OutcomeFastForwarded:
		s.FastForwarded++
	case OutcomeUpToDate:
		s.UpToDate++
	case OutcomeDirty:
		s.Dirty++
	case OutcomeDiverged:
		s.Diverged++
	}
}

// MissingPolicy is the resolution strategy applied to a repo that is cached
// but absent from the latest provider listing.
type MissingPolicy string

const (
	MissingArchive MissingPolicy = "archive"
	MissingRemove  MissingPolicy = "remove"
	MissingSkip    MissingPolicy = "skip"
	MissingPrompt  MissingPolicy = "prompt"
)

// StatusAction is the closed vocabulary of status events the Status
// Emitter can report.
type StatusAction string

const (
	ActionStarting        StatusAction = "Starting"
	ActionSyncing         StatusAction = "Syncing"
	ActionCloned          StatusAction = "Cloned"
	ActionFastForwarded   StatusAction = "FastForwarded"
	ActionUpToDate        StatusAction = "UpToDate"
	ActionDirty           StatusAction = "Dirty"
	ActionDiverged        StatusAction = "Diverged"
	ActionFailed          StatusAction = "Failed"
	ActionMissingArchived StatusAction = "MissingArchived"
	ActionMissingRemoved  StatusAction = "MissingRemoved"
	ActionMissingSkipped  StatusAction = "MissingSkipped"
	ActionDone            StatusAction = "Done"
)

// ProgressSnapshot is what the Status Emitter hands to a caller-supplied
// progress reporter on every emit.
type ProgressSnapshot struct {
	TargetID string
	TotalRepos int
	ProcessedRepos int
	Action StatusAction
	RepoName string
	RepoID string
	Summary Summary
	InProgress bool
	At time.Time
}

// ProgressReporter observes ProgressSnapshots. The driver thread is the
// sole caller; implementations must not assume concurrent invocation.
type ProgressReporter func(ProgressSnapshot)
