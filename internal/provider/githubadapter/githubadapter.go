// Package githubadapter implements the Provider Adapter Contract for
// GitHub, using go-github for listing and health checks and a shared
// retryablehttp transport for the transient-error retry rule.
package githubadapter

import (
	"context"
	"fmt"

	ghclient "github.com/google/go-github/v80/github"

	"github.com/skaphos/reposync/internal/errs"
	"github.com/skaphos/reposync/internal/keyring"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/provider"
)

// Adapter implements provider.Adapter for github.com and GitHub Enterprise
// Server hosts.
type Adapter struct {
	Tokens keyring.Store
}

// New creates a GitHub Adapter backed by tokens.
func New(tokens keyring.Store) *Adapter {
	return &Adapter{Tokens: tokens}
}

func (a *Adapter) Kind() model.ProviderKind { return model.ProviderGitHub }

func (a *Adapter) client(target model.Target, creds *model.Credentials) (*ghclient.Client, error) {
	httpClient := provider.NewRetryableHTTPClient()
	client := ghclient.NewClient(httpClient)
	if target.Host != "" {
		c, err := client.WithEnterpriseURLs(
			fmt.Sprintf("https://%s/api/v3/", target.Host),
			fmt.Sprintf("https://%s/api/uploads/", target.Host),
		)
		if err != nil {
			return nil, fmt.Errorf("githubadapter: enterprise host %s: %w", target.Host, err)
		}
		client = c
	}
	if creds != nil && creds.Password != "" {
		client = client.WithAuthToken(creds.Password)
	}
	return client, nil
}

// ListRepos paginates github.com's /orgs/{org}/repos endpoint exhaustively
// using go-github's own page-number pagination.
func (a *Adapter) ListRepos(ctx context.Context, target model.Target, creds *model.Credentials) ([]model.RemoteRepo, error) {
	org, err := org(target)
	if err != nil {
		return nil, err
	}
	client, err := a.client(target, creds)
	if err != nil {
		return nil, err
	}

	opts := &ghclient.RepositoryListByOrgOptions{
		ListOptions: ghclient.ListOptions{PerPage: 100},
	}

	var repos []model.RemoteRepo
	for {
		page, resp, err := client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, classifyGitHubErr(err)
		}
		for _, r := range page {
			repos = append(repos, model.RemoteRepo{
				ID:            fmt.Sprintf("%d", r.GetID()),
				Name:          r.GetName(),
				CloneURL:      r.GetCloneURL(),
				DefaultBranch: r.GetDefaultBranch(),
				Archived:      r.GetArchived(),
				Kind:          model.ProviderGitHub,
				Scope:         target.Scope,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// ValidateAuth performs a cheap authenticated request against the scope.
func (a *Adapter) ValidateAuth(ctx context.Context, target model.Target, creds *model.Credentials) error {
	return a.HealthCheck(ctx, target, creds)
}

// AuthForTarget resolves the org-level token from the keyring.
func (a *Adapter) AuthForTarget(_ context.Context, target model.Target) (*model.Credentials, error) {
	org, err := org(target)
	if err != nil {
		return nil, err
	}
	if a.Tokens == nil {
		return nil, nil
	}
	token, found, err := a.Tokens.Get(keyring.AccountKey("github", target.Host, org))
	if err != nil {
		return nil, fmt.Errorf("githubadapter: resolve token: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &model.Credentials{Username: "token", Password: token}, nil
}

// HealthCheck exercises the listing endpoint with per_page=1.
func (a *Adapter) HealthCheck(ctx context.Context, target model.Target, creds *model.Credentials) error {
	org, err := org(target)
	if err != nil {
		return err
	}
	client, err := a.client(target, creds)
	if err != nil {
		return err
	}
	_, _, err = client.Repositories.ListByOrg(ctx, org, &ghclient.RepositoryListByOrgOptions{
		ListOptions: ghclient.ListOptions{PerPage: 1},
	})
	if err != nil {
		return classifyGitHubErr(err)
	}
	return nil
}

// TokenScopes reads the X-OAuth-Scopes response header GitHub attaches to
// authenticated requests, satisfying provider.TokenScoper.
func (a *Adapter) TokenScopes(ctx context.Context, target model.Target, creds *model.Credentials) ([]string, error) {
	client, err := a.client(target, creds)
	if err != nil {
		return nil, err
	}
	_, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, classifyGitHubErr(err)
	}
	scopes := resp.Header.Get("X-OAuth-Scopes")
	if scopes == "" {
		return nil, nil
	}
	return splitScopes(scopes), nil
}

// RegisterWebhook creates a repo-scoped push webhook, satisfying
// provider.WebhookRegistrar. target.Scope must name org/repo.
func (a *Adapter) RegisterWebhook(ctx context.Context, target model.Target, creds *model.Credentials, callbackURL, secret string) error {
	if len(target.Scope) < 2 {
		return fmt.Errorf("%w: github webhook registration requires org/repo scope", errs.ErrConfiguration)
	}
	client, err := a.client(target, creds)
	if err != nil {
		return err
	}
	config := &ghclient.HookConfig{
		URL:         ghclient.Ptr(callbackURL),
		ContentType: ghclient.Ptr("json"),
	}
	if secret != "" {
		config.Secret = ghclient.Ptr(secret)
	}
	_, _, err = client.Repositories.CreateHook(ctx, target.Scope[0], target.Scope[1], &ghclient.Hook{
		Name:   ghclient.Ptr("web"),
		Events: []string{"push"},
		Active: ghclient.Ptr(true),
		Config: config,
	})
	if err != nil {
		return classifyGitHubErr(err)
	}
	return nil
}

func org(target model.Target) (string, error) {
	if len(target.Scope) == 0 {
		return "", fmt.Errorf("%w: github target requires an org scope segment", errs.ErrConfiguration)
	}
	return target.Scope[0], nil
}

func splitScopes(raw string) []string {
	var out []string
	cur := ""
	for _, r := range raw {
		switch r {
		case ',', ' ':
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
		default:
			cur += string(r)
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// classifyGitHubErr maps a go-github ErrorResponse's status code onto the
// shared provider error taxonomy.
func classifyGitHubErr(err error) error {
	if ghErr, ok := err.(*ghclient.ErrorResponse); ok && ghErr.Response != nil {
		return fmt.Errorf("githubadapter: %w", &errs.HTTPError{Status: ghErr.Response.StatusCode, URL: ghErr.Response.Request.URL.String()})
	}
	return fmt.Errorf("githubadapter: %w", err)
}
