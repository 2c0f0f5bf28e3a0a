package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
)

// JiraUpdater is the part of the Jira client the mirror needs
type JiraUpdater interface {
	AddComment(ctx context.Context, ticketID, comment string) error
	UpdateTaskStatus(ctx context.Context, ticketID, status string) error
}

// JiraActivities handles Jira-related activities
type JiraActivities struct {
	jiraClient JiraUpdater
	doneStatus string
}

// NewJiraActivities creates a new Jira activities handler
func NewJiraActivities(jiraClient JiraUpdater, doneStatus string) *JiraActivities {
	return &JiraActivities{
		jiraClient: jiraClient,
		doneStatus: doneStatus,
	}
}

// MirrorCompletion comments the completing commit on the issue and moves it
// to the done status. A failed transition does not fail the activity.
func (a *JiraActivities) MirrorCompletion(ctx context.Context, req MirrorRequest) (MirrorResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("mirroring completion", "task_id", req.TaskID, "repository_id", req.RepositoryID)

	comment := fmt.Sprintf("Completed by commit:\n{quote}%s{quote}", req.CommitMessage)
	if err := a.jiraClient.AddComment(ctx, req.TaskID, comment); err != nil {
		logger.Error("failed to add comment", "task_id", req.TaskID, "error", err)
		return MirrorResult{Message: err.Error()}, err
	}

	result := MirrorResult{Commented: true}
	if err := a.jiraClient.UpdateTaskStatus(ctx, req.TaskID, a.doneStatus); err != nil {
		logger.Warn("failed to update status", "task_id", req.TaskID, "status", a.doneStatus, "error", err)
		result.Message = err.Error()
		return result, nil
	}

	result.Transitioned = true
	result.Message = "Jira updated successfully"
	return result, nil
}
