// Package provider defines the Provider Adapter Contract: uniform remote
// listing, auth, webhook, and health probes for each hosting service,
// plus a registry keyed by ProviderKind. The tagged ProviderKind variant
// is what crosses process boundaries (configuration, audit); behavior is
// behind the interface's dynamic dispatch.
package provider

import (
	"context"
	"fmt"

	"github.com/skaphos/reposync/internal/model"
)

// Adapter is the capability set every provider implements.
type Adapter interface {
	Kind() model.ProviderKind

	// ListRepos paginates exhaustively and returns every repo in scope.
	// Returned repos carry the auth they should be cloned with, or nil to
	// inherit the target-level auth resolved by AuthForTarget.
	ListRepos(ctx context.Context, target model.Target, creds *model.Credentials) ([]model.RemoteRepo, error)

	// ValidateAuth is a cheap check that credentials exist and the scope
	// is reachable.
	ValidateAuth(ctx context.Context, target model.Target, creds *model.Credentials) error

	// AuthForTarget returns the per-target credential used as default when
	// a repo carries none. Returns (nil, nil) when the provider has no
	// centrally-resolvable credential for this target.
	AuthForTarget(ctx context.Context, target model.Target) (*model.Credentials, error)

	// HealthCheck exercises the listing endpoint with the smallest
	// possible page.
	HealthCheck(ctx context.Context, target model.Target, creds *model.Credentials) error
}

// WebhookRegistrar is an optional capability: providers whose API supports
// webhook registration implement it and it is discovered via type
// assertion, exactly as MultiAdapter's optional capabilities are in the
// local-VCS analog this package generalizes.
type WebhookRegistrar interface {
	RegisterWebhook(ctx context.Context, target model.Target, creds *model.Credentials, callbackURL, secret string) error
}

// TokenScoper is an optional capability: providers whose API exposes
// token scopes implement it. Adapters that cannot discover scopes must not
// implement this interface — callers fall back to an auth-based health
// probe and report the check as unsupported.
type TokenScoper interface {
	TokenScopes(ctx context.Context, target model.Target, creds *model.Credentials) ([]string, error)
}

// Registry dispatches to the Adapter registered for a ProviderKind.
type Registry struct {
	adapters map[model.ProviderKind]Adapter
}

// NewRegistry builds a Registry from a set of adapters, keyed by their own
// Kind().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.ProviderKind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// For returns the adapter registered for kind, or an error if none is
// registered.
func (r *Registry) For(kind model.ProviderKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("provider: no adapter registered for %q", kind)
	}
	return a, nil
}
