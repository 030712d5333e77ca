package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/audience/internal/segment"
)

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// APIError is returned for HTTP responses with status >= 400
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// ID is an opaque identifier that the backend may encode as a string or a number
type ID string

// UnmarshalJSON accepts both JSON strings and numbers
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ClientRecord is a client as returned by GET /api/clients
type ClientRecord struct {
	ID                ID         `json:"id"`
	WorkspaceID       ID         `json:"workspace_id,omitempty"`
	Name              string     `json:"name"`
	Phone             string     `json:"phone,omitempty"`
	Email             *string    `json:"email"`
	Tags              []string   `json:"tags"`
	Status            string     `json:"status"`
	LastInteractionAt *time.Time `json:"last_interaction_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ToContact converts the record to the segmenter's view.
// Unrecognized statuses map to segment.StatusUnknown.
func (r ClientRecord) ToContact() segment.Contact {
	c := segment.Contact{
		ID:                string(r.ID),
		Tags:              r.Tags,
		LastInteractionAt: r.LastInteractionAt,
	}
	if r.Email != nil {
		c.Email = strings.TrimSpace(*r.Email)
	}
	if status, err := segment.ParseStatus(r.Status); err == nil {
		c.Status = status
	}
	return c
}

// ClientListResponse is the wrapped form of the client list
type ClientListResponse struct {
	Clients []ClientRecord `json:"clients"`
	Total   int            `json:"total"`
}

// CampaignCreateRequest is the body of POST /api/campaigns
type CampaignCreateRequest struct {
	WorkspaceID     string     `json:"workspace_id"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Subject         string     `json:"subject,omitempty"`
	Message         string     `json:"message"`
	TemplateID      string     `json:"template_id,omitempty"`
	TargetTags      []string   `json:"target_tags"`
	TargetStatuses  []string   `json:"target_statuses"`
	RecencyDays     int        `json:"recency_days"`
	TotalRecipients int        `json:"total_recipients"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	Status          string     `json:"status"`
}

// Campaign is the campaign returned by the backend
type Campaign struct {
	ID              ID         `json:"id"`
	WorkspaceID     ID         `json:"workspace_id,omitempty"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	TotalRecipients int        `json:"total_recipients"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
