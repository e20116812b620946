package reposync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/keyring"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every configured target's listing endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cfgPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(cfg.Targets) == 0 {
			return fmt.Errorf("no targets configured (run \"reposync target add\" first)")
		}
		storePath, err := tokenStorePath(cfgPath)
		if err != nil {
			return err
		}
		reg := buildRegistry(keyring.NewFileStore(storePath))

		unhealthy := false
		for _, target := range cfg.Targets {
			adapter, err := reg.For(target.Kind)
			if err != nil {
				unhealthy = true
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tunknown provider: %v\n", target.ID(), err)
				continue
			}
			creds, err := adapter.AuthForTarget(cmd.Context(), target)
			if err == nil {
				err = adapter.HealthCheck(cmd.Context(), target, creds)
			}
			if err != nil {
				unhealthy = true
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tunhealthy: %v\n", target.ID(), err)
				continue
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\thealthy\n", target.ID())
		}

		if unhealthy {
			raiseExitCode(cmd, 2)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
