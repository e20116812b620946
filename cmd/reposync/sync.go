package reposync

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/cache"
	"github.com/skaphos/reposync/internal/cliio"
	"github.com/skaphos/reposync/internal/keyring"
	"github.com/skaphos/reposync/internal/lockfile"
	"github.com/skaphos/reposync/internal/missing"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/orchestrator"
	"github.com/skaphos/reposync/internal/termstyle"
)

// missingDecider resolves a MissingPrompt policy for the foreground sync
// command. Without --yes it defers to the resolver's own non-interactive
// fallback (skip); with --yes it archives, since sync is the one context
// with an operator present to have already opted into mutating actions.
func missingDecider() missing.Decider {
	if !flagYes {
		return nil
	}
	return func(string, cache.RepoEntry) model.MissingPolicy {
		return model.MissingArchive
	}
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror every configured target once",
	RunE: func(cmd *cobra.Command, args []string) error {
		only, _ := cmd.Flags().GetString("target")
		jobs, _ := cmd.Flags().GetInt("jobs")
		refresh, _ := cmd.Flags().GetBool("refresh")
		detectMissing, _ := cmd.Flags().GetBool("detect-missing")
		format, _ := cmd.Flags().GetString("format")

		cfg, cfgPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(cfg.Targets) == 0 {
			return fmt.Errorf("no targets configured (run \"reposync target add\" first)")
		}

		lPath, err := lockPath(cfgPath)
		if err != nil {
			return err
		}
		handle, err := lockfile.TryAcquire(lPath)
		if err != nil {
			return err
		}
		if handle == nil {
			return fmt.Errorf("another reposync process is already running (lock held at %s)", lPath)
		}
		defer handle.Release() //nolint:errcheck // best-effort; process exit also drops the advisory lock

		storePath, err := tokenStorePath(cfgPath)
		if err != nil {
			return err
		}
		cPath, err := cachePath(cfgPath)
		if err != nil {
			return err
		}
		logger, err := newAuditLogger(cfgPath)
		if err != nil {
			return err
		}
		reg := buildRegistry(keyring.NewFileStore(storePath))

		targets := cfg.Targets
		if only != "" {
			targets = filterTargets(targets, only)
			if len(targets) == 0 {
				return fmt.Errorf("no target matches %q", only)
			}
		}

		type targetSummary struct {
			TargetID string        `json:"target_id"`
			Summary  model.Summary `json:"summary"`
			Error    string        `json:"error,omitempty"`
		}
		results := make([]targetSummary, 0, len(targets))
		failed := false

		for _, target := range targets {
			debugf(cmd, "syncing target %s", target.ID())
			summary, err := orchestrator.RunSyncFiltered(cmd.Context(), reg, logger, target, cfg.Root, cPath, orchestrator.Options{
				MissingPolicy: cfg.MissingPolicy,
				Decider:       missingDecider(),
				Jobs:          jobs,
				DetectMissing: detectMissing,
				Refresh:       refresh,
			})
			entry := targetSummary{TargetID: target.ID(), Summary: summary}
			if err != nil {
				entry.Error = err.Error()
				failed = true
			}
			results = append(results, entry)
		}

		switch format {
		case "json":
			data, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		default:
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := termstyle.Colorize(!flagNoColor, "ok", termstyle.Healthy)
				if r.Error != "" {
					status = termstyle.Colorize(!flagNoColor, "error: "+r.Error, termstyle.Error)
				} else if r.Summary.Failed > 0 {
					status = termstyle.Colorize(!flagNoColor, "ok", termstyle.Warn)
				}
				rows = append(rows, []string{
					r.TargetID,
					fmt.Sprintf("cloned=%d ff=%d up_to_date=%d dirty=%d diverged=%d failed=%d",
						r.Summary.Cloned, r.Summary.FastForwarded, r.Summary.UpToDate, r.Summary.Dirty, r.Summary.Diverged, r.Summary.Failed),
					status,
				})
			}
			if err := cliio.WriteTable(cmd.OutOrStdout(), flagNoColor, false, []string{"TARGET", "SUMMARY", "STATUS"}, rows); err != nil {
				return err
			}
		}

		if failed {
			raiseExitCode(cmd, 2)
		}
		return nil
	},
}

func filterTargets(targets []model.Target, selector string) []model.Target {
	out := make([]model.Target, 0, 1)
	for _, t := range targets {
		if t.ID() == selector {
			out = append(out, t)
		}
	}
	return out
}

func init() {
	syncCmd.Flags().String("target", "", "restrict to a single target id")
	syncCmd.Flags().Int("jobs", 4, "max concurrent repo operations")
	syncCmd.Flags().Bool("refresh", false, "bypass the 15-minute listing cache")
	syncCmd.Flags().Bool("detect-missing", true, "resolve repos cached but absent from the latest listing")
	syncCmd.Flags().String("format", "table", "output format: table or json")

	rootCmd.AddCommand(syncCmd)
}
