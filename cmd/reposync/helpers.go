package reposync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/audit"
	"github.com/skaphos/reposync/internal/config"
	"github.com/skaphos/reposync/internal/keyring"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/provider"
	"github.com/skaphos/reposync/internal/provider/azuredevopsadapter"
	"github.com/skaphos/reposync/internal/provider/githubadapter"
	"github.com/skaphos/reposync/internal/provider/gitlabadapter"
)

// loadConfig resolves and loads the machine config for the current command,
// honoring the --config override in the usual resolution order.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	cfgPath, err := config.ResolveConfigPath(configOverride(cmd), cwd)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// tokenStorePath returns the filesystem path the FileStore keyring
// implementation persists to, alongside the config directory.
func tokenStorePath(cfgPath string) (string, error) {
	dir, err := config.ConfigDir(filepath.Dir(cfgPath))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tokens.json"), nil
}

// buildRegistry wires every Provider Adapter against the same token store.
func buildRegistry(tokens keyring.Store) *provider.Registry {
	return provider.NewRegistry(
		githubadapter.New(tokens),
		gitlabadapter.New(tokens),
		azuredevopsadapter.New(tokens),
	)
}

// cachePath returns the cache document path alongside the config directory.
func cachePath(cfgPath string) (string, error) {
	dir, err := config.ConfigDir(filepath.Dir(cfgPath))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.json"), nil
}

// lockPath returns the advisory lockfile path alongside the config
// directory.
func lockPath(cfgPath string) (string, error) {
	dir, err := config.ConfigDir(filepath.Dir(cfgPath))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "reposync.lock"), nil
}

// auditDir returns the audit log directory alongside the config directory.
func auditDir(cfgPath string) (string, error) {
	dir, err := config.ConfigDir(filepath.Dir(cfgPath))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit"), nil
}

// newAuditLogger builds an audit.Logger tagged with a fresh session id.
func newAuditLogger(cfgPath string) (*audit.Logger, error) {
	dir, err := auditDir(cfgPath)
	if err != nil {
		return nil, err
	}
	return audit.New(dir, uuid.NewString()), nil
}

// tokenAccountKey computes the keyring account key for a target, matching
// each adapter's own scoping rule: github/azdo key on the first scope
// segment (the org), gitlab keys on the full group path.
func tokenAccountKey(target model.Target) (string, error) {
	if len(target.Scope) == 0 {
		return "", fmt.Errorf("target requires at least one scope segment")
	}
	prefix := target.Kind.Prefix()
	switch target.Kind {
	case model.ProviderGitLab:
		scope := target.Scope[0]
		for _, seg := range target.Scope[1:] {
			scope += "/" + seg
		}
		return keyring.AccountKey(prefix, target.Host, scope), nil
	default:
		return keyring.AccountKey(prefix, target.Host, target.Scope[0]), nil
	}
}

// parseProviderKind maps a CLI --provider flag value to a model.ProviderKind.
func parseProviderKind(raw string) (model.ProviderKind, error) {
	switch raw {
	case "github":
		return model.ProviderGitHub, nil
	case "gitlab":
		return model.ProviderGitLab, nil
	case "azure-devops", "azdo":
		return model.ProviderAzureDevOps, nil
	default:
		return "", fmt.Errorf("unsupported provider %q (want github, gitlab, or azure-devops)", raw)
	}
}
