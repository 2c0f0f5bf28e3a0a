package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
)

// Event types understood by the receiver
const (
	EventPing = "ping"
	EventPush = "push"
)

// ErrMissingRepository is returned for push payloads without a repository id
var ErrMissingRepository = errors.New("push payload has no repository id")

// EventHeader returns the event-type header name for a provider, e.g.
// "X-GitHub-Event" for github.
func EventHeader(provider string) string {
	name := provider
	if strings.EqualFold(provider, "github") {
		name = "GitHub"
	}
	return "X-" + name + "-Event"
}

// Commit is a single commit of a push, in delivery order
type Commit struct {
	ID      string
	Message string
}

// PushEvent is the part of a push delivery the pipeline needs
type PushEvent struct {
	RepositoryID   int64
	RepositoryName string
	InstallationID int64
	Commits        []Commit
}

// ParsePush decodes a push payload. Commits keep the order of the payload.
func ParsePush(body []byte) (*PushEvent, error) {
	var event github.PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode push payload: %w", err)
	}

	repo := event.GetRepo()
	if repo.GetID() == 0 {
		return nil, ErrMissingRepository
	}

	push := &PushEvent{
		RepositoryID:   repo.GetID(),
		RepositoryName: repo.GetFullName(),
		InstallationID: event.GetInstallation().GetID(),
		Commits:        make([]Commit, 0, len(event.Commits)),
	}
	for _, c := range event.Commits {
		if c == nil {
			continue
		}
		push.Commits = append(push.Commits, Commit{ID: c.GetID(), Message: c.GetMessage()})
	}
	return push, nil
}
