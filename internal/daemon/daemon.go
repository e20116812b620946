// Package daemon implements the Daemon Driver: a long-running loop that
// acquires the run lock once, then repeatedly calls the Sync Orchestrator
// for every configured target on an interval, backing off per-target on
// failure and spreading load across the week via a day-bucket filter.
package daemon

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/skaphos/reposync/internal/audit"
	"github.com/skaphos/reposync/internal/cache"
	"github.com/skaphos/reposync/internal/lockfile"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/orchestrator"
	"github.com/skaphos/reposync/internal/provider"
	"github.com/skaphos/reposync/internal/workitem"
)

// Config controls one daemon run.
type Config struct {
	LockPath  string
	CachePath string
	Root      string
	Targets   []model.Target
	Interval  time.Duration
	Jobs      int
	Policy    model.MissingPolicy

	// Clock and Sleep are injectable for deterministic tests; both default
	// to the real wall clock when nil.
	Clock func() time.Time
	Sleep func(time.Duration)
}

// maxBackoff is the ceiling daemon_backoff_delay never exceeds.
const maxBackoff = time.Hour

// Run acquires the lockfile and loops until ctx is cancelled. If the
// lockfile is already held it returns nil immediately: another process is
// the active daemon and this one exits cleanly rather than erroring.
func Run(ctx context.Context, reg *provider.Registry, logger *audit.Logger, cfg Config) error {
	handle, err := lockfile.TryAcquire(cfg.LockPath)
	if err != nil {
		return err
	}
	if handle == nil {
		return nil
	}
	defer handle.Release() //nolint:errcheck // best-effort; process exit also drops the advisory lock

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		failures := tick(ctx, reg, logger, cfg, clock)
		sleep(backoffDelay(cfg.Interval, failures))

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// tick runs one iteration over every target and returns the number of
// targets that failed this iteration (the caller feeds it to backoffDelay to
// pace its own sleep; per-target backoff is tracked in the Cache).
func tick(ctx context.Context, reg *provider.Registry, logger *audit.Logger, cfg Config, clock func() time.Time) int {
	now := clock()
	bucket := int(now.Weekday())
	failures := 0

	for _, target := range cfg.Targets {
		targetID := target.ID()

		doc, err := cache.Load(cfg.CachePath)
		if err != nil {
			failures++
			continue
		}

		if until, ok := doc.TargetBackoffUntil[targetID]; ok && until > 0 && now.Unix() < until {
			_ = logger.Log(audit.Record{ //nolint:errcheck // audit failures must not abort the tick
				Event:    "daemon_skip_backoff",
				Status:   audit.StatusSkipped,
				Provider: string(target.Kind),
				Scope:    joinScope(target.Scope),
			})
			continue
		}

		dayFilter := workitem.Filter(func(r model.RemoteRepo) bool {
			return int(dayBucket(r.ID)) == bucket
		})

		_, err = orchestrator.RunSyncFiltered(ctx, reg, logger, target, cfg.Root, cfg.CachePath, orchestrator.Options{
			MissingPolicy: cfg.Policy,
			Filter:        dayFilter,
			Jobs:          cfg.Jobs,
			DetectMissing: true,
		})

		doc, loadErr := cache.Load(cfg.CachePath)
		if loadErr != nil {
			failures++
			continue
		}
		cache.RecordBackoff(doc, targetID, err == nil, now, cfg.Interval, maxBackoff)
		if saveErr := cache.Save(cfg.CachePath, doc); saveErr != nil {
			failures++
			continue
		}
		if err != nil {
			failures++
		}
	}
	return failures
}

// dayBucket hashes a repo id onto one of the 7 days of the week. Built on
// stdlib hash/fnv rather than a pack dependency: this is pure internal
// load-smoothing arithmetic with no wire format or interop requirement, so
// there is nothing a third-party hashing library would add.
func dayBucket(repoID string) time.Weekday {
	h := fnv.New32a()
	_, _ = h.Write([]byte(repoID)) //nolint:errcheck // hash.Hash.Write never errors
	return time.Weekday(h.Sum32() % 7)
}

// backoffDelay implements daemon_backoff_delay(interval, failures) =
// min(interval * 2^min(failures-1, 5), 1h). failures is the count of
// targets that failed this tick, used here only to pace the loop itself;
// per-target backoff is tracked independently in the Cache.
func backoffDelay(interval time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return interval
	}
	shift := failures - 1
	if shift > 5 {
		shift = 5
	}
	delay := interval << uint(shift) //nolint:gosec // shift bounded to [0,5] above
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}

func joinScope(scope model.ProviderScope) string {
	out := ""
	for i, s := range scope {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}
