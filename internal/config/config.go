// Package config handles loading, saving, and resolving the Sync Engine's
// machine configuration file: mirror root, concurrency defaults, exclude
// globs, and the set of provider targets to sync.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skaphos/reposync/internal/model"
	"go.yaml.in/yaml/v3"
)

const (
	// LocalConfigFilename is the per-directory config file searched for in
	// cwd and its parents before falling back to the platform config dir.
	LocalConfigFilename = ".reposync.yaml"
	// ConfigAPIVersion is the current config schema apiVersion.
	ConfigAPIVersion = "skaphos.io/reposync/v1beta1"
	// ConfigKind is the current config schema kind.
	ConfigKind = "SyncConfig"
)

// Defaults holds default values applied when a target or CLI flag does not
// override them.
type Defaults struct {
	Concurrency    int `yaml:"concurrency"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Config is the machine-level Sync Engine configuration.
type Config struct {
	APIVersion    string              `yaml:"apiVersion"`
	Kind          string              `yaml:"kind"`
	Root          string              `yaml:"root"`
	Exclude       []string            `yaml:"exclude"`
	Defaults      Defaults            `yaml:"defaults"`
	Targets       []model.Target      `yaml:"targets"`
	MissingPolicy model.MissingPolicy `yaml:"missing_policy"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	return Config{
		APIVersion: ConfigAPIVersion,
		Kind:       ConfigKind,
		Exclude:    []string{"**/node_modules/**", "**/.terraform/**", "**/dist/**", "**/vendor/**"},
		Defaults: Defaults{
			Concurrency:    8,
			TimeoutSeconds: 60,
		},
		MissingPolicy: model.MissingSkip,
	}
}

// ConfigDir returns the platform-appropriate config directory path. It
// checks, in order: the override parameter, REPOSYNC_CONFIG env var, and
// finally os.UserConfigDir()/reposync.
func ConfigDir(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return filepath.Dir(override), nil
		}
		return override, nil
	}

	if env := os.Getenv("REPOSYNC_CONFIG"); env != "" {
		if isConfigFilePath(env) {
			return filepath.Dir(env), nil
		}
		return env, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "reposync"), nil
}

// ConfigPath resolves the config file path from override/env/defaults.
func ConfigPath(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return override, nil
		}
		return filepath.Join(override, "config.yaml"), nil
	}

	if env := os.Getenv("REPOSYNC_CONFIG"); env != "" {
		if isConfigFilePath(env) {
			return env, nil
		}
		return filepath.Join(env, "config.yaml"), nil
	}

	dir, err := ConfigDir("")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// InitConfigPath resolves where "reposync config init" should write
// config. Order: explicit override, REPOSYNC_CONFIG, then local dotfile in
// cwd.
func InitConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv("REPOSYNC_CONFIG") != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(cwd, LocalConfigFilename), nil
}

// ResolveConfigPath resolves config for runtime commands. Order: explicit
// override, REPOSYNC_CONFIG, nearest local dotfile in cwd/parents, then
// global platform config path.
func ResolveConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv("REPOSYNC_CONFIG") != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}

	localPath, err := FindNearestConfigPath(cwd)
	if err != nil {
		return "", err
	}
	if localPath != "" {
		return localPath, nil
	}

	return ConfigPath("")
}

// FindNearestConfigPath searches cwd and each parent directory for
// .reposync.yaml. It returns an empty string when no local config file is
// found.
func FindNearestConfigPath(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if err != nil && !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads the config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigGVK(&cfg)
	if err := validateConfigGVK(&cfg); err != nil {
		return nil, err
	}

	if cfg.Defaults.Concurrency == 0 {
		cfg.Defaults.Concurrency = DefaultConfig().Defaults.Concurrency
	}
	if cfg.Defaults.TimeoutSeconds == 0 {
		cfg.Defaults.TimeoutSeconds = DefaultConfig().Defaults.TimeoutSeconds
	}
	if cfg.MissingPolicy == "" {
		cfg.MissingPolicy = DefaultConfig().MissingPolicy
	}
	if cfg.Root == "" {
		cfg.Root = ConfigRoot(path)
	}

	return &cfg, nil
}

// ConfigRoot returns the effective default mirror root for a config file
// path, used only when the config omits an explicit root.
func ConfigRoot(configPath string) string {
	if strings.TrimSpace(configPath) == "" {
		return ""
	}
	return filepath.Clean(filepath.Dir(configPath))
}

// Save writes the config to the given path.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	applyConfigGVK(cfg)
	if err := validateConfigGVK(cfg); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AddTarget appends target unless an equivalent one (same id) is already
// configured, and returns whether it was added.
func AddTarget(cfg *Config, target model.Target) bool {
	id := target.ID()
	for _, t := range cfg.Targets {
		if t.ID() == id {
			return false
		}
	}
	cfg.Targets = append(cfg.Targets, target)
	return true
}

// RemoveTarget removes the target matching id and returns whether one was
// removed.
func RemoveTarget(cfg *Config, id string) bool {
	for i, t := range cfg.Targets {
		if t.ID() == id {
			cfg.Targets = append(cfg.Targets[:i], cfg.Targets[i+1:]...)
			return true
		}
	}
	return false
}

func isConfigFilePath(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, "config.yaml") || strings.HasSuffix(lower, "config.yml") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyConfigGVK(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = ConfigAPIVersion
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		cfg.Kind = ConfigKind
	}
}

func validateConfigGVK(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.APIVersion != ConfigAPIVersion {
		return fmt.Errorf("unsupported config apiVersion %q (expected %q)", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return fmt.Errorf("unsupported config kind %q (expected %q)", cfg.Kind, ConfigKind)
	}
	return nil
}
