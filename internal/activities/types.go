package activities

// MirrorRequest is a completed task to mirror into Jira
type MirrorRequest struct {
	TaskID        string
	CommitMessage string
	RepositoryID  int64
}

// MirrorResult contains the result of a mirror attempt
type MirrorResult struct {
	Commented    bool
	Transitioned bool
	Message      string
}
