package workflows

import (
	"github.com/clintrovert/taskhook/internal/activities"
)

// MirrorInput is the input for the completion mirror workflow
type MirrorInput struct {
	Request activities.MirrorRequest
}
