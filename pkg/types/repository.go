package types

import "time"

// Repository is a source-control repository known to the tracker
type Repository struct {
	ExternalID int64
	Name       string
	UpdatedAt  time.Time
}
