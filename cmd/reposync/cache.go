package reposync

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/cache"
	"github.com/skaphos/reposync/internal/cliio"
	"github.com/skaphos/reposync/internal/lockfile"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/termstyle"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local cache document",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cache entries for repos outside the configured targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cfgPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !flagYes {
			confirmed, err := confirmPrune(cmd)
			if err != nil {
				return err
			}
			if !confirmed {
				infof(cmd, "prune cancelled")
				return nil
			}
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

		cPath, err := cachePath(cfgPath)
		if err != nil {
			return err
		}
		doc, err := cache.Load(cPath)
		if err != nil {
			return err
		}
		removed := cache.PruneForTargets(doc, cfg.Targets)
		if err := cache.Save(cPath, doc); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pruned %d repo entries\n", removed)
		return nil
	},
}

func confirmPrune(cmd *cobra.Command) (bool, error) {
	return cliio.PromptYesNo(cmd.ErrOrStderr(), cmd.InOrStdin(), "Prune cache entries outside configured targets? [y/N]: ")
}

var cacheOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print the last known status for every target, read-only",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfgPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cPath, err := cachePath(cfgPath)
		if err != nil {
			return err
		}
		doc, err := cache.Load(cPath)
		if err != nil {
			return err
		}
		if len(doc.TargetSyncStatus) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no sync status recorded yet")
			return nil
		}
		targetIDs := make([]string, 0, len(doc.TargetSyncStatus))
		for targetID := range doc.TargetSyncStatus {
			targetIDs = append(targetIDs, targetID)
		}
		sort.Strings(targetIDs)

		rows := make([][]string, 0, len(targetIDs))
		for _, targetID := range targetIDs {
			status := doc.TargetSyncStatus[targetID]
			rows = append(rows, []string{
				targetID,
				termstyle.Colorize(!flagNoColor, string(status.LastAction), lastActionColor(status.LastAction)),
				fmt.Sprintf("%d/%d", status.ProcessedRepos, status.TotalRepos),
				fmt.Sprintf("cloned=%d ff=%d up_to_date=%d dirty=%d diverged=%d failed=%d",
					status.Summary.Cloned, status.Summary.FastForwarded, status.Summary.UpToDate, status.Summary.Dirty, status.Summary.Diverged, status.Summary.Failed),
			})
		}
		return cliio.WriteTable(cmd.OutOrStdout(), flagNoColor, false, []string{"TARGET", "LAST_ACTION", "PROGRESS", "SUMMARY"}, rows)
	},
}

// lastActionColor maps a persisted status action to the semantic color a
// human operator scanning the overview table would expect.
func lastActionColor(action string) string {
	switch model.StatusAction(action) {
	case model.ActionFailed:
		return termstyle.Error
	case model.ActionDirty, model.ActionDiverged, model.ActionMissingSkipped:
		return termstyle.Warn
	default:
		return termstyle.Healthy
	}
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd, cacheOverviewCmd)
	rootCmd.AddCommand(cacheCmd)
}
