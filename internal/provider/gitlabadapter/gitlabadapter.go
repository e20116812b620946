// Package gitlabadapter implements the Provider Adapter Contract for
// GitLab (gitlab.com and self-hosted instances), using
// gitlab.com/gitlab-org/api/client-go for listing and health checks and a
// shared retryablehttp transport for the transient-error retry rule.
package gitlabadapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/skaphos/reposync/internal/errs"
	"github.com/skaphos/reposync/internal/keyring"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/provider"
)

// Adapter implements provider.Adapter for gitlab.com and self-managed
// instances.
type Adapter struct {
	Tokens keyring.Store
}

// New creates a GitLab Adapter backed by tokens.
func New(tokens keyring.Store) *Adapter {
	return &Adapter{Tokens: tokens}
}

func (a *Adapter) Kind() model.ProviderKind { return model.ProviderGitLab }

func (a *Adapter) client(target model.Target, creds *model.Credentials) (*gl.Client, error) {
	token := ""
	if creds != nil {
		token = creds.Password
	}
	opts := []gl.ClientOptionFunc{gl.WithHTTPClient(provider.NewRetryableHTTPClient())}
	if target.Host != "" {
		opts = append(opts, gl.WithBaseURL(fmt.Sprintf("https://%s/api/v4", target.Host)))
	}
	client, err := gl.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("gitlabadapter: new client: %w", err)
	}
	return client, nil
}

// ListRepos paginates a group's projects exhaustively, reading the
// x-next-page response header.
func (a *Adapter) ListRepos(ctx context.Context, target model.Target, creds *model.Credentials) ([]model.RemoteRepo, error) {
	groupPath, err := groupPath(target)
	if err != nil {
		return nil, err
	}
	client, err := a.client(target, creds)
	if err != nil {
		return nil, err
	}

	includeSub := true
	opts := &gl.ListGroupProjectsOptions{
		ListOptions:      gl.ListOptions{PerPage: 100},
		IncludeSubGroups: &includeSub,
	}

	var repos []model.RemoteRepo
	for {
		projects, resp, err := client.Groups.ListGroupProjects(groupPath, opts, gl.WithContext(ctx))
		if err != nil {
			return nil, classifyGitLabErr(err)
		}
		for _, p := range projects {
			repos = append(repos, model.RemoteRepo{
				ID:            strconv.Itoa(p.ID),
				Name:          p.Name,
				CloneURL:      p.HTTPURLToRepo,
				DefaultBranch: p.DefaultBranch,
				Archived:      p.Archived,
				Kind:          model.ProviderGitLab,
				Scope:         target.Scope,
			})
		}
		next := resp.Header.Get("x-next-page")
		if next == "" {
			break
		}
		nextPage, err := strconv.Atoi(next)
		if err != nil || nextPage == 0 {
			break
		}
		opts.Page = nextPage
	}
	return repos, nil
}

// ValidateAuth performs a cheap authenticated request against the scope.
func (a *Adapter) ValidateAuth(ctx context.Context, target model.Target, creds *model.Credentials) error {
	return a.HealthCheck(ctx, target, creds)
}

// AuthForTarget resolves the group-level token from the keyring, keyed on
// the full group path (all scope segments joined with "/").
func (a *Adapter) AuthForTarget(_ context.Context, target model.Target) (*model.Credentials, error) {
	groupPath, err := groupPath(target)
	if err != nil {
		return nil, err
	}
	if a.Tokens == nil {
		return nil, nil
	}
	token, found, err := a.Tokens.Get(keyring.AccountKey("gitlab", target.Host, groupPath))
	if err != nil {
		return nil, fmt.Errorf("gitlabadapter: resolve token: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &model.Credentials{Username: "oauth2", Password: token}, nil
}

// HealthCheck exercises the listing endpoint with per_page=1.
func (a *Adapter) HealthCheck(ctx context.Context, target model.Target, creds *model.Credentials) error {
	groupPath, err := groupPath(target)
	if err != nil {
		return err
	}
	client, err := a.client(target, creds)
	if err != nil {
		return err
	}
	_, _, err = client.Groups.ListGroupProjects(groupPath, &gl.ListGroupProjectsOptions{
		ListOptions: gl.ListOptions{PerPage: 1},
	}, gl.WithContext(ctx))
	if err != nil {
		return classifyGitLabErr(err)
	}
	return nil
}

func groupPath(target model.Target) (string, error) {
	if len(target.Scope) == 0 {
		return "", fmt.Errorf("%w: gitlab target requires a group scope", errs.ErrConfiguration)
	}
	return strings.Join(target.Scope, "/"), nil
}

func classifyGitLabErr(err error) error {
	if glErr, ok := err.(*gl.ErrorResponse); ok && glErr.Response != nil {
		return fmt.Errorf("gitlabadapter: %w", &errs.HTTPError{Status: glErr.Response.StatusCode, URL: glErr.Response.Request.URL.String()})
	}
	return fmt.Errorf("gitlabadapter: %w", err)
}
