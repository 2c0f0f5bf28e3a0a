package github

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/clintrovert/taskhook/internal/webhook"
)

// ReadLocalCommits reads the history reachable from HEAD of the clone at
// repoPath, oldest first. A zero since reads everything; limit <= 0 means no
// limit (the newest commits are kept when limited).
func ReadLocalCommits(repoPath string, since time.Time, limit int) ([]webhook.Commit, error) {
	r, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	opts := &git.LogOptions{Order: git.LogOrderCommitterTime}
	if !since.IsZero() {
		opts.Since = &since
	}

	iter, err := r.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []webhook.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, webhook.Commit{ID: c.Hash.String(), Message: c.Message})
		if limit > 0 && len(commits) >= limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, fmt.Errorf("failed to walk log: %w", err)
	}

	slices.Reverse(commits)
	return commits, nil
}

// LocalRemoteFullName returns "owner/name" of the origin remote of the clone
// at repoPath
func LocalRemoteFullName(repoPath string) (string, error) {
	r, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}

	remote, err := r.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("failed to get remote: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("origin remote has no url")
	}
	return ParseRemoteURL(urls[0])
}

// ParseRemoteURL extracts "owner/name" from an https or scp-style git URL
func ParseRemoteURL(raw string) (string, error) {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		path = u.Path
	} else if _, after, ok := strings.Cut(raw, ":"); ok {
		// git@github.com:owner/name.git
		path = after
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("cannot parse repository from remote %q", raw)
	}
	fullName := parts[len(parts)-2] + "/" + parts[len(parts)-1]
	if _, _, err := SplitFullName(fullName); err != nil {
		return "", err
	}
	return fullName, nil
}
