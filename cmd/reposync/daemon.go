package reposync

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/daemon"
	"github.com/skaphos/reposync/internal/keyring"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the long-lived daemon loop, syncing every target on an interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		intervalMinutes, _ := cmd.Flags().GetInt("interval-minutes")
		jobs, _ := cmd.Flags().GetInt("jobs")

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

		infof(cmd, "starting daemon: %d target(s), interval %dm", len(cfg.Targets), intervalMinutes)
		return daemon.Run(cmd.Context(), reg, logger, daemon.Config{
			LockPath:  lPath,
			CachePath: cPath,
			Root:      cfg.Root,
			Targets:   cfg.Targets,
			Interval:  time.Duration(intervalMinutes) * time.Minute,
			Jobs:      jobs,
			Policy:    cfg.MissingPolicy,
		})
	},
}

func init() {
	daemonCmd.Flags().Int("interval-minutes", 60, "minutes between sync ticks")
	daemonCmd.Flags().Int("jobs", 4, "max concurrent repo operations per target")

	rootCmd.AddCommand(daemonCmd)
}
