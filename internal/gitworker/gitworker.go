// Package gitworker implements the Git Worker: per-repo clone/fetch/
// fast-forward against a local working directory, using HTTPS credentials.
// It never deletes files, never rewrites history, and never touches
// non-default branches.
package gitworker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	ggit "github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	ghttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/skaphos/reposync/internal/errs"
	"github.com/skaphos/reposync/internal/model"
)

// Input is what the Git Worker needs to process one repository.
type Input struct {
	LocalPath     string
	CloneURL      string
	DefaultBranch string
	Auth          *model.Credentials
}

// Sync runs the Git Worker algorithm against one repository and returns its
// terminal outcome. Failed is represented as an empty outcome with a non-nil
// error rather than a fifth outcome value; Dirty and Diverged are returned
// together with errs.ErrDirty and errs.ErrDivergence respectively.
func Sync(ctx context.Context, in Input) (model.OutcomeKind, error) {
	auth := authMethod(in.CloneURL, in.Auth)

	if _, err := os.Stat(in.LocalPath); errors.Is(err, os.ErrNotExist) {
		if err := clone(ctx, in, auth); err != nil {
			return "", err
		}
		return model.OutcomeCloned, nil
	}

	repo, err := ggit.PlainOpen(in.LocalPath)
	if err != nil {
		return "", fmt.Errorf("gitworker: open %s: %w", in.LocalPath, err)
	}

	dirty, err := isDirty(repo)
	if err != nil {
		return "", fmt.Errorf("gitworker: worktree status: %w", err)
	}
	if dirty {
		return model.OutcomeDirty, errs.ErrDirty
	}

	if err := fetchOrigin(ctx, repo, in.CloneURL, auth); err != nil {
		return "", err
	}

	remoteRefName := plumbing.NewRemoteReferenceName("origin", in.DefaultBranch)
	remoteRef, err := repo.Reference(remoteRefName, true)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", errs.ErrMissingRemoteRef, remoteRefName, err)
	}

	localRefName := plumbing.NewBranchReferenceName(in.DefaultBranch)
	localRef, err := repo.Reference(localRefName, true)
	if err != nil {
		if err := repo.Storer.SetReference(plumbing.NewHashReference(localRefName, remoteRef.Hash())); err != nil {
			return "", fmt.Errorf("gitworker: create local branch: %w", err)
		}
		if err := checkoutDefaultIfHead(repo, localRefName); err != nil {
			return "", err
		}
		return model.OutcomeFastForwarded, nil
	}

	ahead, behind, err := aheadBehind(repo, localRef.Hash(), remoteRef.Hash())
	if err != nil {
		return "", fmt.Errorf("gitworker: ahead/behind: %w", err)
	}

	switch {
	case ahead > 0:
		// Both ahead-and-behind and purely-local-ahead fold into Diverged:
		// this mirror never pushes, so a local-only advance is surfaced the
		// same way as a true fork.
		return model.OutcomeDiverged, errs.ErrDivergence
	case behind == 0:
		return model.OutcomeUpToDate, nil
	default:
		if err := repo.Storer.SetReference(plumbing.NewHashReference(localRefName, remoteRef.Hash())); err != nil {
			return "", fmt.Errorf("gitworker: fast-forward local ref: %w", err)
		}
		if err := checkoutDefaultIfHead(repo, localRefName); err != nil {
			return "", err
		}
		return model.OutcomeFastForwarded, nil
	}
}

func clone(ctx context.Context, in Input, auth transport.AuthMethod) error {
	opts := &ggit.CloneOptions{
		URL:  in.CloneURL,
		Auth: auth,
	}
	if in.DefaultBranch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(in.DefaultBranch)
		opts.SingleBranch = false
	}
	if _, err := ggit.PlainCloneContext(ctx, in.LocalPath, false, opts); err != nil {
		return fmt.Errorf("gitworker: clone %s: %w", in.CloneURL, err)
	}
	return nil
}

func isDirty(repo *ggit.Repository) (bool, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, err
	}
	return !status.IsClean(), nil
}

func fetchOrigin(ctx context.Context, repo *ggit.Repository, cloneURL string, auth transport.AuthMethod) error {
	_, err := repo.Remote("origin")
	if errors.Is(err, ggit.ErrRemoteNotFound) {
		_, err = repo.CreateRemote(&ggitcfg.RemoteConfig{
			Name: "origin",
			URLs: []string{cloneURL},
		})
	}
	if err != nil {
		return fmt.Errorf("gitworker: resolve origin remote: %w", err)
	}

	err = repo.FetchContext(ctx, &ggit.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		Tags:       ggit.TagFollowing,
		RefSpecs:   []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	})
	if err != nil && !errors.Is(err, ggit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("gitworker: fetch origin: %w", err)
	}
	return nil
}

// checkoutDefaultIfHead re-checks out HEAD when it currently points at the
// default branch, so the working tree reflects the moved ref.
func checkoutDefaultIfHead(repo *ggit.Repository, branch plumbing.ReferenceName) error {
	head, err := repo.Head()
	if err != nil {
		// Bare or unborn HEAD: nothing to check out.
		return nil //nolint:nilerr
	}
	if head.Name() != branch {
		return nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil //nolint:nilerr // bare repository has no worktree to refresh
	}
	if err := wt.Checkout(&ggit.CheckoutOptions{Branch: branch}); err != nil {
		return fmt.Errorf("gitworker: checkout %s: %w", branch, err)
	}
	return nil
}

// aheadBehind walks the commit graph from local and remote back to their
// merge base and counts commits unique to each side.
func aheadBehind(repo *ggit.Repository, local, remote plumbing.Hash) (ahead, behind int, err error) {
	if local == remote {
		return 0, 0, nil
	}
	localAncestors, err := ancestry(repo, local)
	if err != nil {
		return 0, 0, err
	}
	remoteAncestors, err := ancestry(repo, remote)
	if err != nil {
		return 0, 0, err
	}
	for h := range localAncestors {
		if _, ok := remoteAncestors[h]; !ok {
			ahead++
		}
	}
	for h := range remoteAncestors {
		if _, ok := localAncestors[h]; !ok {
			behind++
		}
	}
	return ahead, behind, nil
}

// ancestry returns the set of commit hashes reachable from start,
// inclusive.
func ancestry(repo *ggit.Repository, start plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{start}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return nil, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return seen, nil
}

// authMethod builds an HTTPS BasicAuth method from plaintext credentials.
// If no username is supplied, it defaults to the URL-embedded username, or
// "pat" when the URL carries none either.
func authMethod(cloneURL string, creds *model.Credentials) transport.AuthMethod {
	if creds == nil || creds.Password == "" {
		return nil
	}
	username := creds.Username
	if username == "" {
		username = usernameFromURL(cloneURL)
	}
	if username == "" {
		username = "pat"
	}
	return &ghttp.BasicAuth{Username: username, Password: creds.Password}
}

func usernameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return ""
	}
	return u.User.Username()
}
