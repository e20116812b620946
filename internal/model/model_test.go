package model_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/reposync/internal/model"
)

var _ = Describe("Model", func() {
	It("computes a stable, deterministic target id", func() {
		t := model.Target{Kind: model.ProviderGitHub, Scope: model.ProviderScope{"acme"}}
		id1 := t.ID()
		id2 := t.ID()
		Expect(id1).To(Equal(id2))
		Expect(id1).To(HaveLen(64))
	})

	It("varies target id with host, kind, and scope", func() {
		base := model.Target{Kind: model.ProviderGitHub, Scope: model.ProviderScope{"acme"}}
		withHost := base
		withHost.Host = "github.example.com"
		withScope := base
		withScope.Scope = model.ProviderScope{"acme", "platform"}
		otherKind := base
		otherKind.Kind = model.ProviderGitLab

		Expect(withHost.ID()).NotTo(Equal(base.ID()))
		Expect(withScope.ID()).NotTo(Equal(base.ID()))
		Expect(otherKind.ID()).NotTo(Equal(base.ID()))
	})

	It("maps provider kinds to their mirror directory and id prefix", func() {
		Expect(model.ProviderGitHub.Dir()).To(Equal("github"))
		Expect(model.ProviderGitLab.Dir()).To(Equal("gitlab"))
		Expect(model.ProviderAzureDevOps.Dir()).To(Equal("azure-devops"))
		Expect(model.ProviderAzureDevOps.Prefix()).To(Equal("azdo"))
	})

	It("round-trips RemoteRepo JSON without leaking credentials", func() {
		repo := model.RemoteRepo{
			ID:            "123",
			Name:          "widgets",
			CloneURL:      "https://github.com/acme/widgets.git",
			DefaultBranch: "main",
			Kind:          model.ProviderGitHub,
			Scope:         model.ProviderScope{"acme"},
			Auth:          &model.Credentials{Username: "x", Password: "secret"},
		}

		data, err := json.Marshal(repo)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).NotTo(ContainSubstring("secret"))

		var decoded model.RemoteRepo
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.Name).To(Equal(repo.Name))
		Expect(decoded.Kind).To(BeEmpty())
		Expect(decoded.Auth).To(BeNil())
	})

	It("records exactly one counter per processed outcome", func() {
		var s model.Summary
		s.Record(model.OutcomeCloned)
		s.Record(model.OutcomeFastForwarded)
		s.Record(model.OutcomeUpToDate)
		s.Record(model.OutcomeDirty)
		s.Record(model.OutcomeDiverged)

		Expect(s.Total()).To(Equal(5))
		Expect(s.Cloned).To(Equal(1))
		Expect(s.FastForwarded).To(Equal(1))
		Expect(s.UpToDate).To(Equal(1))
		Expect(s.Dirty).To(Equal(1))
		Expect(s.Diverged).To(Equal(1))
	})

	It("excludes missing-repo actions from Total", func() {
		s := model.Summary{MissingArchived: 3, MissingRemoved: 2, MissingSkipped: 1}
		Expect(s.Total()).To(Equal(0))
	})
})
