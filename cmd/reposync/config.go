package reposync

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the reposync machine configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a reposync configuration",
	Long:  "Creates a reposync config file in the current directory by default.",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		root, _ := cmd.Flags().GetString("root")

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		cfgPath, err := config.InitConfigPath(configOverride(cmd), cwd)
		if err != nil {
			return err
		}
		if _, err := os.Stat(cfgPath); err == nil {
			if !force {
				return fmt.Errorf("config already exists at %q (use --force to overwrite)", cfgPath)
			}
			if err := os.Remove(cfgPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove existing config %q: %w", cfgPath, err)
			}
		}

		cfg := config.DefaultConfig()
		if root != "" {
			cfg.Root = root
		} else {
			cfg.Root = config.ConfigRoot(cfgPath)
		}

		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", cfgPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite existing config without prompting")
	configInitCmd.Flags().String("root", "", "mirror root directory (default: the config file's directory)")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
