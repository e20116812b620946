package reposync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/keyring"
	"github.com/skaphos/reposync/internal/provider"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage provider webhooks",
}

var webhookRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a callback webhook for a provider scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := targetFromFlags(cmd)
		if err != nil {
			return err
		}
		callbackURL, _ := cmd.Flags().GetString("callback-url")
		secret, _ := cmd.Flags().GetString("secret")
		if callbackURL == "" {
			return fmt.Errorf("--callback-url is required")
		}

		_, cfgPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		storePath, err := tokenStorePath(cfgPath)
		if err != nil {
			return err
		}
		reg := buildRegistry(keyring.NewFileStore(storePath))
		adapter, err := reg.For(target.Kind)
		if err != nil {
			return err
		}
		registrar, ok := adapter.(provider.WebhookRegistrar)
		if !ok {
			return fmt.Errorf("%s does not support webhook registration", target.Kind)
		}

		creds, err := adapter.AuthForTarget(cmd.Context(), target)
		if err != nil {
			return err
		}
		if err := registrar.RegisterWebhook(cmd.Context(), target, creds, callbackURL, secret); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "registered webhook for %s\n", target.ID())
		return nil
	},
}

func init() {
	webhookRegisterCmd.Flags().String("provider", "", "provider: github, gitlab, or azure-devops")
	webhookRegisterCmd.Flags().String("host", "", "self-hosted API host override")
	webhookRegisterCmd.Flags().String("scope", "", "scope path (e.g. \"acme\" or \"acme/platform\")")
	webhookRegisterCmd.Flags().String("callback-url", "", "URL the provider should call on repo events")
	webhookRegisterCmd.Flags().String("secret", "", "webhook signing secret")
	_ = webhookRegisterCmd.MarkFlagRequired("provider")
	_ = webhookRegisterCmd.MarkFlagRequired("scope")
	_ = webhookRegisterCmd.MarkFlagRequired("callback-url")

	webhookCmd.AddCommand(webhookRegisterCmd)
	rootCmd.AddCommand(webhookCmd)
}
