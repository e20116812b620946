package provider_test

import (
	"context"
	"testing"

	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/provider"
)

type fakeAdapter struct {
	kind model.ProviderKind
}

func (f fakeAdapter) Kind() model.ProviderKind { return f.kind }
func (f fakeAdapter) ListRepos(context.Context, model.Target, *model.Credentials) ([]model.RemoteRepo, error) {
	return nil, nil
}
func (f fakeAdapter) ValidateAuth(context.Context, model.Target, *model.Credentials) error { return nil }
func (f fakeAdapter) AuthForTarget(context.Context, model.Target) (*model.Credentials, error) {
	return nil, nil
}
func (f fakeAdapter) HealthCheck(context.Context, model.Target, *model.Credentials) error { return nil }

func TestRegistryDispatchesByKind(t *testing.T) {
	reg := provider.NewRegistry(fakeAdapter{kind: model.ProviderGitHub}, fakeAdapter{kind: model.ProviderGitLab})

	got, err := reg.For(model.ProviderGitHub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind() != model.ProviderGitHub {
		t.Fatalf("unexpected adapter kind: %v", got.Kind())
	}
}

func TestRegistryErrorsForUnregisteredKind(t *testing.T) {
	reg := provider.NewRegistry(fakeAdapter{kind: model.ProviderGitHub})
	if _, err := reg.For(model.ProviderAzureDevOps); err == nil {
		t.Fatal("expected an error for an unregistered provider kind")
	}
}

func TestRegistryWithNoAdapters(t *testing.T) {
	reg := provider.NewRegistry()
	if _, err := reg.For(model.ProviderGitHub); err == nil {
		t.Fatal("expected an error from an empty registry")
	}
}
