// Package githubcheck verifies that a repository and branch exist on GitHub
// before a deployment is handed to the platform, catching typos early instead
// of after a port has been allocated and a project created.
package githubcheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Checker wraps an authenticated GitHub client. A Checker built without a
// token is disabled and verifies nothing.
type Checker struct {
	client *github.Client
}

// New creates a checker. An empty token disables verification.
func New(token string) *Checker {
	if token == "" {
		return &Checker{}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &Checker{client: github.NewClient(tc)}
}

// Enabled reports whether verification will actually happen.
func (c *Checker) Enabled() bool {
	return c.client != nil
}

// VerifyRepo checks that the repository and branch exist and are accessible.
// repoURL must be a normalized https://github.com/owner/repo(.git) URL.
// A disabled checker returns nil.
func (c *Checker) VerifyRepo(ctx context.Context, repoURL, branch string) error {
	if c.client == nil {
		return nil
	}

	owner, repo, err := SplitOwnerRepo(repoURL)
	if err != nil {
		return err
	}

	if _, _, err := c.client.Repositories.Get(ctx, owner, repo); err != nil {
		return fmt.Errorf("repository %s/%s not accessible: %w", owner, repo, err)
	}

	if _, _, err := c.client.Repositories.GetBranch(ctx, owner, repo, branch, 0); err != nil {
		return fmt.Errorf("branch %q not found in %s/%s: %w", branch, owner, repo, err)
	}

	return nil
}

// SplitOwnerRepo extracts owner and repository name from a GitHub URL.
func SplitOwnerRepo(repoURL string) (owner, repo string, err error) {
	trimmed := strings.TrimPrefix(repoURL, "https://github.com/")
	trimmed = strings.TrimSuffix(trimmed, ".git")

	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid owner/repo format: %s", repoURL)
	}
	return parts[0], parts[1], nil
}
