package models

import (
	"time"

	"github.com/foxzi/audience/internal/segment"
)

// Submission records a campaign created through the service
// together with the recipient count frozen at creation time
type Submission struct {
	ID              string           `json:"id"`
	WorkspaceID     string           `json:"workspace_id"`
	CampaignID      string           `json:"campaign_id"` // assigned by the backend
	Name            string           `json:"name"`
	Channel         segment.Channel  `json:"channel"`
	Criteria        segment.Criteria `json:"criteria"`
	TotalRecipients int              `json:"total_recipients"`
	CreatedAt       time.Time        `json:"created_at"`
}

// SubmissionFilter for filtering submissions
type SubmissionFilter struct {
	WorkspaceID string
	Channel     segment.Channel
	Limit       int
	Offset      int
}
