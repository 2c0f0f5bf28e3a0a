package jira

import (
	"context"
	"fmt"
	"strings"

	jira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/github"
	"github.com/clintrovert/taskhook/pkg/types"
)

const searchPageSize = 50

// ImportedTask is a Jira issue converted into a task plus the full names of
// the repositories named in its repository field
type ImportedTask struct {
	Task         *types.Task
	Repositories []string
}

// Client wraps Jira API client functionality
type Client struct {
	client      *jira.Client
	logger      *zap.Logger
	projectKey  string
	customField string
}

// NewClient creates a new Jira client
func NewClient(baseURL, username, apiToken, projectKey, customField string, logger *zap.Logger) (*Client, error) {
	tp := jira.BasicAuthTransport{
		Username: username,
		Password: apiToken,
	}

	client, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	return &Client{
		client:      client,
		logger:      logger,
		projectKey:  projectKey,
		customField: customField,
	}, nil
}

// ListProjectTasks retrieves every issue of the project that names at least
// one repository
func (c *Client) ListProjectTasks(ctx context.Context) ([]ImportedTask, error) {
	jql := fmt.Sprintf("project = \"%s\" ORDER BY key ASC", c.projectKey)

	var tasks []ImportedTask
	startAt := 0
	for {
		issues, resp, err := c.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{
			StartAt:    startAt,
			MaxResults: searchPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search issues: %w", err)
		}

		for i := range issues {
			imported, err := c.issueToTask(&issues[i])
			if err != nil {
				c.logger.Debug("skipping issue",
					zap.String("issue", issues[i].Key),
					zap.Error(err),
				)
				continue
			}
			tasks = append(tasks, imported)
		}

		startAt += len(issues)
		if len(issues) == 0 || resp == nil || startAt >= resp.Total {
			break
		}
	}

	return tasks, nil
}

// UpdateTaskStatus transitions an issue to the named status
func (c *Client) UpdateTaskStatus(ctx context.Context, ticketID, status string) error {
	transitions, _, err := c.client.Issue.GetTransitionsWithContext(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("failed to get transitions: %w", err)
	}

	var transitionID string
	for _, transition := range transitions {
		if strings.EqualFold(transition.To.Name, status) {
			transitionID = transition.ID
			break
		}
	}

	if transitionID == "" {
		return fmt.Errorf("transition to status %s not found", status)
	}

	_, err = c.client.Issue.DoTransitionWithContext(ctx, ticketID, transitionID)
	if err != nil {
		return fmt.Errorf("failed to transition issue: %w", err)
	}

	return nil
}

// AddComment adds a comment to an issue
func (c *Client) AddComment(ctx context.Context, ticketID, comment string) error {
	_, _, err := c.client.Issue.AddCommentWithContext(ctx, ticketID, &jira.Comment{
		Body: comment,
	})
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}

	return nil
}

// issueToTask converts a Jira issue to a task
func (c *Client) issueToTask(issue *jira.Issue) (ImportedTask, error) {
	if issue.Fields == nil {
		return ImportedTask{}, fmt.Errorf("issue has no fields")
	}

	repos, err := c.extractRepositories(issue)
	if err != nil {
		return ImportedTask{}, fmt.Errorf("failed to extract repository info: %w", err)
	}

	statusName := ""
	if issue.Fields.Status != nil {
		statusName = issue.Fields.Status.Name
	}

	return ImportedTask{
		Task: &types.Task{
			DisplayID:   issue.Key,
			Title:       issue.Fields.Summary,
			Description: issue.Fields.Description,
			Status:      MapStatus(statusName),
		},
		Repositories: repos,
	}, nil
}

// extractRepositories reads repository names from the custom field. The
// field holds one or more "owner/repo" or GitHub URL values, either as a
// list or separated by commas or whitespace.
func (c *Client) extractRepositories(issue *jira.Issue) ([]string, error) {
	for key, value := range issue.Fields.Unknowns {
		if !strings.Contains(strings.ToLower(key), strings.ToLower(c.customField)) {
			continue
		}

		var raw []string
		switch v := value.(type) {
		case string:
			raw = strings.FieldsFunc(v, func(r rune) bool {
				return r == ',' || r == ' ' || r == '\n' || r == '\t'
			})
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					raw = append(raw, s)
				}
			}
		default:
			continue
		}

		var repos []string
		for _, r := range raw {
			name, err := parseRepository(r)
			if err != nil {
				c.logger.Warn("ignoring repository value",
					zap.String("issue", issue.Key),
					zap.String("value", r),
					zap.Error(err),
				)
				continue
			}
			repos = append(repos, name)
		}
		if len(repos) > 0 {
			return repos, nil
		}
	}

	return nil, fmt.Errorf("repository information not found in custom field %s", c.customField)
}

func parseRepository(value string) (string, error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "://") || strings.HasPrefix(value, "git@") {
		return github.ParseRemoteURL(value)
	}
	if _, _, err := github.SplitFullName(value); err != nil {
		return "", err
	}
	return value, nil
}
