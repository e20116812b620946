package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/reposync/internal/config"
	"github.com/skaphos/reposync/internal/model"
)

var _ = Describe("Config", func() {
	It("resolves config path from override directory", func() {
		path, err := config.ConfigPath(filepath.Join("C:", "tmp", "reposync"))
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(HaveSuffix(filepath.Join("reposync", "config.yaml")))
	})

	It("resolves config path from override file", func() {
		path, err := config.ConfigPath(filepath.Join("C:", "tmp", "config.yaml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(HaveSuffix(filepath.Join("tmp", "config.yaml")))
	})

	It("resolves config path from env", func() {
		Expect(os.Setenv("REPOSYNC_CONFIG", filepath.Join("C:", "cfg", "config.yaml"))).To(Succeed())
		defer func() { _ = os.Unsetenv("REPOSYNC_CONFIG") }()
		path, err := config.ConfigPath("")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(HaveSuffix(filepath.Join("cfg", "config.yaml")))
	})

	It("resolves init path to local dotfile by default", func() {
		dir := GinkgoT().TempDir()
		path, err := config.InitConfigPath("", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(dir, ".reposync.yaml")))
	})

	It("prefers local dotfile for runtime config resolution", func() {
		dir := GinkgoT().TempDir()
		localPath := filepath.Join(dir, ".reposync.yaml")
		Expect(os.WriteFile(localPath, []byte("apiVersion: "+config.ConfigAPIVersion+"\nkind: "+config.ConfigKind+"\n"), 0o644)).To(Succeed())

		path, err := config.ResolveConfigPath("", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(localPath))
	})

	It("resolves runtime config from nearest parent dotfile", func() {
		dir := GinkgoT().TempDir()
		parentPath := filepath.Join(dir, ".reposync.yaml")
		Expect(os.WriteFile(parentPath, []byte("apiVersion: "+config.ConfigAPIVersion+"\nkind: "+config.ConfigKind+"\n"), 0o644)).To(Succeed())

		nested := filepath.Join(dir, "a", "b", "c")
		Expect(os.MkdirAll(nested, 0o755)).To(Succeed())

		path, err := config.ResolveConfigPath("", nested)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(parentPath))
	})

	It("prefers nearer dotfile over farther parent", func() {
		dir := GinkgoT().TempDir()
		parentPath := filepath.Join(dir, ".reposync.yaml")
		Expect(os.WriteFile(parentPath, []byte("apiVersion: "+config.ConfigAPIVersion+"\nkind: "+config.ConfigKind+"\n"), 0o644)).To(Succeed())

		childDir := filepath.Join(dir, "a", "b")
		Expect(os.MkdirAll(childDir, 0o755)).To(Succeed())
		childPath := filepath.Join(childDir, ".reposync.yaml")
		Expect(os.WriteFile(childPath, []byte("apiVersion: "+config.ConfigAPIVersion+"\nkind: "+config.ConfigKind+"\n"), 0o644)).To(Succeed())

		nested := filepath.Join(childDir, "c")
		Expect(os.MkdirAll(nested, 0o755)).To(Succeed())

		path, err := config.ResolveConfigPath("", nested)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(childPath))
	})

	It("falls back to global runtime config when local dotfile is absent", func() {
		dir := GinkgoT().TempDir()
		path, err := config.ResolveConfigPath("", dir)
		Expect(err).NotTo(HaveOccurred())

		globalPath, err := config.ConfigPath("")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(globalPath))
	})

	It("saves and loads config with targets and defaults", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "config.yaml")
		cfg := config.DefaultConfig()
		cfg.Root = filepath.Join(dir, "repos")
		cfg.Targets = []model.Target{{Kind: model.ProviderGitHub, Scope: model.ProviderScope{"acme"}}}

		Expect(config.Save(&cfg, path)).To(Succeed())
		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Root).To(Equal(cfg.Root))
		Expect(loaded.Targets).To(HaveLen(1))
		Expect(loaded.Defaults.Concurrency).To(Equal(8))
		Expect(loaded.MissingPolicy).To(Equal(model.MissingSkip))
	})

	It("adds and removes targets without duplicating", func() {
		cfg := config.DefaultConfig()
		target := model.Target{Kind: model.ProviderGitLab, Scope: model.ProviderScope{"acme", "platform"}}

		Expect(config.AddTarget(&cfg, target)).To(BeTrue())
		Expect(config.AddTarget(&cfg, target)).To(BeFalse())
		Expect(cfg.Targets).To(HaveLen(1))

		Expect(config.RemoveTarget(&cfg, target.ID())).To(BeTrue())
		Expect(cfg.Targets).To(BeEmpty())
	})
})
