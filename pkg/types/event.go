package types

import "time"

// Classification is the classifier's reading of a single commit message.
// An empty TaskDisplayID means the commit references no task.
type Classification struct {
	TaskDisplayID string
	Completed     bool
}

// NoOp is the classification that never triggers a transition
var NoOp = Classification{}

// IsCompletion reports whether the classification asks for a task to be completed
func (c Classification) IsCompletion() bool {
	return c.TaskDisplayID != "" && c.Completed
}

// CompletionEvent is published to real-time subscribers after a task is completed
type CompletionEvent struct {
	TaskID        string     `json:"taskId"`
	Status        TaskStatus `json:"status"`
	CommitMessage string     `json:"commitMessage"`

	RepositoryID int64     `json:"-"`
	OccurredAt   time.Time `json:"-"`
}
