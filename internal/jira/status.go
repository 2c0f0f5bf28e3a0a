package jira

import (
	"strings"

	"github.com/clintrovert/taskhook/pkg/types"
)

var statusMapping = map[string]types.TaskStatus{
	"to do":                    types.StatusBacklog,
	"backlog":                  types.StatusBacklog,
	"selected for development": types.StatusReady,
	"ready":                    types.StatusReady,
	"in progress":              types.StatusInProgress,
	"in review":                types.StatusInReview,
	"code review":              types.StatusInReview,
	"done":                     types.StatusCompleted,
	"closed":                   types.StatusCompleted,
	"resolved":                 types.StatusCompleted,
}

// MapStatus maps a Jira workflow status name onto a task status. Unknown
// names land in Backlog.
func MapStatus(name string) types.TaskStatus {
	if status, ok := statusMapping[strings.ToLower(strings.TrimSpace(name))]; ok {
		return status
	}
	return types.StatusBacklog
}
