package cache_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/reposync/internal/cache"
	"github.com/skaphos/reposync/internal/model"
)

var _ = Describe("Cache", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "cache.json")
	})

	It("returns an empty v4 document when the file is absent", func() {
		doc, err := cache.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Version).To(Equal(cache.CurrentVersion))
		Expect(doc.Repos).NotTo(BeNil())
		Expect(doc.TargetSyncStatus).NotTo(BeNil())
	})

	It("treats a corrupt file as an absent document rather than failing", func() {
		Expect(os.WriteFile(path, []byte("{not json"), 0o644)).To(Succeed())
		doc, err := cache.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Version).To(Equal(cache.CurrentVersion))
	})

	It("round-trips a saved document through Load", func() {
		doc := &cache.Document{}
		cache.RecordObservation(doc, "repo-1", cache.RepoEntry{Name: "widgets", Provider: "github", Scope: []string{"acme"}, LocalPath: "/mirror/github/acme/widgets"})
		Expect(cache.Save(path, doc)).To(Succeed())

		loaded, err := cache.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Repos).To(HaveKey("repo-1"))
		Expect(loaded.Repos["repo-1"].Name).To(Equal("widgets"))
	})

	It("forward-migrates a legacy (no version field) document", func() {
		legacy := map[string]any{
			"last_sync": map[string]string{"repo-1": "100"},
			"repos": map[string]any{
				"repo-1": map[string]any{"name": "widgets", "provider": "github", "scope": []string{"acme"}, "local_path": "/mirror/widgets"},
			},
		}
		data, err := json.Marshal(legacy)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(path, data, 0o644)).To(Succeed())

		doc, err := cache.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Version).To(Equal(cache.CurrentVersion))
		Expect(doc.Repos).To(HaveKey("repo-1"))
		Expect(doc.LastSync["repo-1"]).To(Equal("100"))
		Expect(doc.TargetSyncStatus).NotTo(BeNil())
	})

	It("forward-migrates a v2 document, preserving backoff state", func() {
		v2 := map[string]any{
			"version":                 2,
			"repos":                   map[string]any{},
			"target_backoff_attempts": map[string]int{"target-1": 3},
		}
		data, err := json.Marshal(v2)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(path, data, 0o644)).To(Succeed())

		doc, err := cache.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Version).To(Equal(cache.CurrentVersion))
		Expect(doc.TargetBackoffAttempts["target-1"]).To(Equal(3))
	})

	It("prunes repo entries whose target no longer exists", func() {
		doc := &cache.Document{}
		cache.RecordObservation(doc, "repo-1", cache.RepoEntry{Provider: "github", Scope: []string{"acme"}})
		cache.RecordObservation(doc, "repo-2", cache.RepoEntry{Provider: "gitlab", Scope: []string{"other"}})

		kept := model.Target{Kind: model.ProviderGitHub, Scope: model.ProviderScope{"acme"}}
		removed := cache.PruneForTargets(doc, []model.Target{kept})

		Expect(removed).To(Equal(1))
		Expect(doc.Repos).To(HaveKey("repo-1"))
		Expect(doc.Repos).NotTo(HaveKey("repo-2"))
	})

	It("resets backoff on success and doubles it on repeated failure", func() {
		doc := &cache.Document{}
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		base := time.Minute
		ceiling := time.Hour

		cache.RecordBackoff(doc, "t1", false, now, base, ceiling)
		first := doc.TargetBackoffUntil["t1"]
		Expect(first).To(Equal(now.Add(base).Unix()))

		cache.RecordBackoff(doc, "t1", false, now, base, ceiling)
		second := doc.TargetBackoffUntil["t1"]
		Expect(second).To(Equal(now.Add(2 * base).Unix()))

		cache.RecordBackoff(doc, "t1", true, now, base, ceiling)
		Expect(doc.TargetBackoffUntil["t1"]).To(BeZero())
		Expect(doc.TargetBackoffAttempts["t1"]).To(BeZero())
	})

	It("caps backoff delay at the ceiling after repeated failures", func() {
		doc := &cache.Document{}
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		base := time.Minute
		ceiling := time.Hour

		for i := 0; i < 10; i++ {
			cache.RecordBackoff(doc, "t1", false, now, base, ceiling)
		}
		Expect(doc.TargetBackoffUntil["t1"]).To(Equal(now.Add(ceiling).Unix()))
	})

	It("records token-check and sync-status snapshots", func() {
		doc := &cache.Document{}
		cache.RecordTokenCheck(doc, "github:<default>:acme", cache.TokenCheckRecord{Status: cache.TokenOK})
		Expect(doc.TokenChecks["github:<default>:acme"].Status).To(Equal(cache.TokenOK))

		cache.RecordSyncStatus(doc, "target-1", cache.SyncStatus{TotalRepos: 5, ProcessedRepos: 5})
		Expect(doc.TargetSyncStatus["target-1"].TotalRepos).To(Equal(5))
	})
})
