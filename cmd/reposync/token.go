package reposync

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/cache"
	"github.com/skaphos/reposync/internal/errs"
	"github.com/skaphos/reposync/internal/keyring"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/provider"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage provider personal access tokens",
}

func targetFromFlags(cmd *cobra.Command) (model.Target, error) {
	providerFlag, _ := cmd.Flags().GetString("provider")
	host, _ := cmd.Flags().GetString("host")
	scopeFlag, _ := cmd.Flags().GetString("scope")

	kind, err := parseProviderKind(providerFlag)
	if err != nil {
		return model.Target{}, err
	}
	scope := strings.Split(strings.Trim(scopeFlag, "/"), "/")
	if len(scope) == 0 || scope[0] == "" {
		return model.Target{}, fmt.Errorf("--scope must not be empty")
	}
	return model.Target{Kind: kind, Scope: scope, Host: host}, nil
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a personal access token for a provider scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := targetFromFlags(cmd)
		if err != nil {
			return err
		}
		_, cfgPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		storePath, err := tokenStorePath(cfgPath)
		if err != nil {
			return err
		}
		accountKey, err := tokenAccountKey(target)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Paste token: ")
		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read token: %w", err)
		}
		token := strings.TrimSpace(line)
		if token == "" {
			return fmt.Errorf("token must not be empty")
		}

		store := keyring.NewFileStore(storePath)
		if err := store.Set(accountKey, token); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored token for %s\n", accountKey)
		return nil
	},
}

var tokenGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Print where to generate a personal access token for a provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		providerFlag, _ := cmd.Flags().GetString("provider")
		kind, err := parseProviderKind(providerFlag)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch kind {
		case model.ProviderGitHub:
			_, _ = fmt.Fprintln(out, "GitHub: Settings > Developer settings > Personal access tokens > Fine-grained tokens. Grant read access to the organization's repositories.")
		case model.ProviderGitLab:
			_, _ = fmt.Fprintln(out, "GitLab: User Settings > Access Tokens. Grant the read_api and read_repository scopes.")
		case model.ProviderAzureDevOps:
			_, _ = fmt.Fprintln(out, "Azure DevOps: User settings > Personal access tokens. Grant Code (Read) scope for the organization.")
		}
		return nil
	},
}

var tokenValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the stored token for a provider scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := targetFromFlags(cmd)
		if err != nil {
			return err
		}
		_, cfgPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		storePath, err := tokenStorePath(cfgPath)
		if err != nil {
			return err
		}
		store := keyring.NewFileStore(storePath)
		reg := buildRegistry(store)
		adapter, err := reg.For(target.Kind)
		if err != nil {
			return err
		}

		creds, err := adapter.AuthForTarget(cmd.Context(), target)
		if err != nil {
			raiseExitCode(cmd, 2)
			return err
		}
		if err := adapter.ValidateAuth(cmd.Context(), target, creds); err != nil {
			raiseExitCode(cmd, 2)
			return fmt.Errorf("token validation failed (%s): %w", errs.Classify(err), err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token is valid")
		return nil
	},
}

var tokenDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate every configured target's token and persist the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cfgPath, err := loadConfig(cmd)
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
		store := keyring.NewFileStore(storePath)
		reg := buildRegistry(store)
		doc, err := cache.Load(cPath)
		if err != nil {
			return err
		}

		exitCode := 0
		for _, target := range cfg.Targets {
			accountKey, err := tokenAccountKey(target)
			if err != nil {
				exitCode = 2
				continue
			}
			adapter, err := reg.For(target.Kind)
			if err != nil {
				exitCode = 2
				continue
			}
			creds, err := adapter.AuthForTarget(cmd.Context(), target)
			status := cache.TokenOK
			errMsg := ""
			if err == nil {
				err = adapter.ValidateAuth(cmd.Context(), target, creds)
			}
			if err != nil {
				errMsg = err.Error()
				switch errs.Classify(err) {
				case errs.KindAuthentication:
					status = cache.TokenInvalid
				case errs.KindScope:
					status = cache.TokenScopeNotFound
				case errs.KindTransient:
					status = cache.TokenNetwork
				default:
					status = cache.TokenError
				}
				exitCode = 2
			}

			// Scope discovery is a best-effort add-on and only attempted
			// once auth itself is confirmed good. An adapter that doesn't
			// implement TokenScoper gets recorded as unsupported rather
			// than silently skipped, per the contract's "never pretend
			// scopes were checked" rule.
			var scopes []string
			var scopeStatus cache.TokenCheckStatus
			if err == nil {
				if scoper, ok := adapter.(provider.TokenScoper); ok {
					scopes, err = scoper.TokenScopes(cmd.Context(), target, creds)
					if err != nil {
						scopeStatus = cache.TokenError
						if errMsg == "" {
							errMsg = err.Error()
						}
						exitCode = 2
					} else {
						scopeStatus = cache.TokenOK
					}
				} else {
					scopeStatus = cache.TokenScopesUnsupported
				}
			}

			cache.RecordTokenCheck(doc, accountKey, cache.TokenCheckRecord{
				LastChecked: time.Now().Unix(),
				Status:      status,
				Error:       errMsg,
				Scopes:      scopes,
				ScopeStatus: scopeStatus,
			})
			if scopeStatus != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tscopes=%s(%s)\n", accountKey, status, scopeStatus, strings.Join(scopes, ","))
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", accountKey, status)
			}
		}

		if err := cache.Save(cPath, doc); err != nil {
			return err
		}
		if exitCode != 0 {
			raiseExitCode(cmd, exitCode)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{tokenSetCmd, tokenValidateCmd} {
		c.Flags().String("provider", "", "provider: github, gitlab, or azure-devops")
		c.Flags().String("host", "", "self-hosted API host override")
		c.Flags().String("scope", "", "scope path (e.g. \"acme\" or \"acme/platform\")")
		_ = c.MarkFlagRequired("provider")
		_ = c.MarkFlagRequired("scope")
	}
	tokenGuideCmd.Flags().String("provider", "", "provider: github, gitlab, or azure-devops")
	_ = tokenGuideCmd.MarkFlagRequired("provider")

	tokenCmd.AddCommand(tokenSetCmd, tokenGuideCmd, tokenValidateCmd, tokenDoctorCmd)
	rootCmd.AddCommand(tokenCmd)
}
