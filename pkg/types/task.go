package types

import (
	"fmt"
	"slices"
	"time"
)

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	StatusBacklog    TaskStatus = "Backlog"
	StatusReady      TaskStatus = "Ready"
	StatusInProgress TaskStatus = "InProgress"
	StatusInReview   TaskStatus = "InReview"
	StatusCompleted  TaskStatus = "Completed"
)

var taskStatuses = []TaskStatus{
	StatusBacklog,
	StatusReady,
	StatusInProgress,
	StatusInReview,
	StatusCompleted,
}

// ParseTaskStatus converts a stored status name into a TaskStatus
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !slices.Contains(taskStatuses, status) {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return status, nil
}

// IsTerminal reports whether no further transition can leave this status
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// Task represents a tracked unit of work that commits can complete
type Task struct {
	ID                 string
	DisplayID          string
	Title              string
	Description        string
	Status             TaskStatus
	LinkedRepositories []int64
	UpdatedAt          time.Time
}

// IsLinkedTo reports whether pushes from the repository may complete the task
func (t *Task) IsLinkedTo(externalRepositoryID int64) bool {
	return slices.Contains(t.LinkedRepositories, externalRepositoryID)
}
