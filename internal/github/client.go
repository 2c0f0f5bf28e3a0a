package github

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/clintrovert/taskhook/internal/webhook"
	"github.com/clintrovert/taskhook/pkg/types"
)

// Client wraps the GitHub API calls the tracker needs
type Client struct {
	apiClient *github.Client
	logger    *zap.Logger
}

// NewClient creates a new GitHub client. An empty token makes
// unauthenticated requests.
func NewClient(accessToken string, logger *zap.Logger) *Client {
	var httpClient *http.Client
	if accessToken != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: accessToken},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	return &Client{
		apiClient: github.NewClient(httpClient),
		logger:    logger,
	}
}

// SplitFullName splits "owner/name" into its parts
func SplitFullName(fullName string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository name %q, expected owner/name", fullName)
	}
	return owner, name, nil
}

// GetRepository looks up a repository's stable id by full name
func (c *Client) GetRepository(ctx context.Context, fullName string) (*types.Repository, error) {
	owner, name, err := SplitFullName(fullName)
	if err != nil {
		return nil, err
	}

	repo, _, err := c.apiClient.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s: %w", fullName, err)
	}

	return &types.Repository{
		ExternalID: repo.GetID(),
		Name:       repo.GetFullName(),
		UpdatedAt:  repo.GetUpdatedAt().Time,
	}, nil
}

// ListCommitMessages lists commits on branch (default branch when empty), oldest
// first. A zero since lists the whole history; limit <= 0 means no limit.
func (c *Client) ListCommitMessages(ctx context.Context, fullName, branch string, since time.Time, limit int) ([]webhook.Commit, error) {
	owner, name, err := SplitFullName(fullName)
	if err != nil {
		return nil, err
	}

	opts := &github.CommitsListOptions{
		SHA:         branch,
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var commits []webhook.Commit
	for {
		page, resp, err := c.apiClient.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list commits for %s: %w", fullName, err)
		}
		for _, rc := range page {
			commits = append(commits, webhook.Commit{
				ID:      rc.GetSHA(),
				Message: rc.GetCommit().GetMessage(),
			})
			if limit > 0 && len(commits) >= limit {
				break
			}
		}
		if resp.NextPage == 0 || (limit > 0 && len(commits) >= limit) {
			break
		}
		opts.Page = resp.NextPage
	}

	// the API returns newest first
	slices.Reverse(commits)

	c.logger.Info("listed commits",
		zap.String("repository", fullName),
		zap.Int("count", len(commits)),
	)
	return commits, nil
}
