package reposync

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/cliio"
	"github.com/skaphos/reposync/internal/config"
	"github.com/skaphos/reposync/internal/model"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage configured provider targets",
}

var targetAddCmd = &cobra.Command{
	Use:   "add <scope/path>",
	Short: "Add a provider target to mirror",
	Long:  "Adds a target identified by --provider and a scope path (e.g. \"acme\" for a GitHub org, \"acme/platform\" for an Azure DevOps org/project).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		providerFlag, _ := cmd.Flags().GetString("provider")
		host, _ := cmd.Flags().GetString("host")

		kind, err := parseProviderKind(providerFlag)
		if err != nil {
			return err
		}
		scope := strings.Split(strings.Trim(args[0], "/"), "/")
		if len(scope) == 0 || scope[0] == "" {
			return fmt.Errorf("scope must not be empty")
		}
		target := model.Target{Kind: kind, Scope: scope, Host: host}

		cfg, cfgPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !config.AddTarget(cfg, target) {
			infof(cmd, "target %s already configured", target.ID())
			return nil
		}
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added target %s (%s)\n", strings.Join(scope, "/"), target.ID())
		return nil
	},
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(cfg.Targets) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no targets configured")
			return nil
		}
		rows := make([][]string, 0, len(cfg.Targets))
		for _, t := range cfg.Targets {
			host := t.Host
			if host == "" {
				host = "<default>"
			}
			rows = append(rows, []string{t.ID(), string(t.Kind), host, strings.Join(t.Scope, "/")})
		}
		return cliio.WriteTable(cmd.OutOrStdout(), flagNoColor, false, []string{"ID", "PROVIDER", "HOST", "SCOPE"}, rows)
	},
}

var targetRemoveCmd = &cobra.Command{
	Use:   "remove <target-id>",
	Short: "Remove a configured target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cfgPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !config.RemoveTarget(cfg, args[0]) {
			return fmt.Errorf("no target with id %q", args[0])
		}
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed target %s\n", args[0])
		return nil
	},
}

func init() {
	targetAddCmd.Flags().String("provider", "", "provider: github, gitlab, or azure-devops")
	targetAddCmd.Flags().String("host", "", "self-hosted API host override")
	_ = targetAddCmd.MarkFlagRequired("provider")

	targetCmd.AddCommand(targetAddCmd, targetListCmd, targetRemoveCmd)
	rootCmd.AddCommand(targetCmd)
}
