// Package campaign turns campaign drafts into backend campaigns whose
// recipient count is frozen from the segmented roster.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxzi/audience/internal/backend"
	"github.com/foxzi/audience/internal/metrics"
	"github.com/foxzi/audience/internal/models"
	"github.com/foxzi/audience/internal/roster"
	"github.com/foxzi/audience/internal/segment"
)

var (
	// ErrInvalidDraft is returned when a draft is missing required fields
	ErrInvalidDraft = errors.New("invalid campaign draft")
	// ErrNoRecipients is returned when the criteria select nobody
	ErrNoRecipients = errors.New("no contacts match the selected criteria")
)

const (
	purposePreview = "preview"
	purposeCreate  = "create"
)

// RosterSource supplies workspace rosters
type RosterSource interface {
	Roster(ctx context.Context, workspace string) (*roster.Snapshot, error)
}

// Creator creates campaigns in the backend
type Creator interface {
	CreateCampaign(ctx context.Context, req *backend.CampaignCreateRequest) (*backend.Campaign, error)
}

// Recorder stores submissions
type Recorder interface {
	Create(s *models.Submission) error
}

// Draft is a campaign as composed in the campaign modal
type Draft struct {
	WorkspaceID string           `json:"workspace_id"`
	Name        string           `json:"name"`
	Message     string           `json:"message"`
	Subject     string           `json:"subject,omitempty"`
	TemplateID  string           `json:"template_id,omitempty"`
	ScheduledAt *time.Time       `json:"scheduled_at,omitempty"`
	Criteria    segment.Criteria `json:"criteria"`
}

// Validate checks required fields and the criteria
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.WorkspaceID) == "" {
		return fmt.Errorf("%w: workspace_id is required", ErrInvalidDraft)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDraft)
	}
	if strings.TrimSpace(d.Message) == "" && d.TemplateID == "" {
		return fmt.Errorf("%w: message or template_id is required", ErrInvalidDraft)
	}
	if d.Criteria.Channel.OrDefault() == segment.ChannelEmail && strings.TrimSpace(d.Subject) == "" && d.TemplateID == "" {
		return fmt.Errorf("%w: subject is required for email campaigns", ErrInvalidDraft)
	}
	if err := d.Criteria.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	return nil
}

// Preview is the live audience estimate for a set of criteria
type Preview struct {
	WorkspaceID string           `json:"workspace_id,omitempty"`
	Criteria    segment.Criteria `json:"criteria"`
	Count       int              `json:"count"`
	Report      segment.Report   `json:"report"`
	SampleIDs   []string         `json:"sample_ids"`
	Tags        []string         `json:"tags"`
	Source      roster.Source    `json:"source"`
	FetchedAt   *time.Time       `json:"fetched_at,omitempty"`
}

// Result describes a created campaign
type Result struct {
	Campaign   *backend.Campaign  `json:"campaign"`
	Submission *models.Submission `json:"submission"`
	Recipients int                `json:"recipients"`
}

// Service computes audiences and creates campaigns
type Service struct {
	rosters    RosterSource
	creator    Creator
	recorder   Recorder
	sampleSize int
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a campaign service. creator and recorder may be nil
// when only previews are needed.
func NewService(rosters RosterSource, creator Creator, recorder Recorder, sampleSize int, logger *slog.Logger) *Service {
	return &Service{
		rosters:    rosters,
		creator:    creator,
		recorder:   recorder,
		sampleSize: sampleSize,
		logger:     logger.With("component", "campaign"),
		now:        time.Now,
	}
}

// Preview segments the workspace roster with criteria
func (s *Service) Preview(ctx context.Context, workspaceID string, criteria segment.Criteria) (*Preview, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	snap, err := s.rosters.Roster(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	p := s.preview(snap.Contacts, criteria)
	p.WorkspaceID = workspaceID
	p.Source = snap.Source
	fetched := snap.FetchedAt
	p.FetchedAt = &fetched
	return p, nil
}

// PreviewContacts segments a roster supplied by the caller
func (s *Service) PreviewContacts(contacts []segment.Contact, criteria segment.Criteria) (*Preview, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	p := s.preview(contacts, criteria)
	p.Source = roster.SourceInline
	return p, nil
}

func (s *Service) preview(contacts []segment.Contact, criteria segment.Criteria) *Preview {
	criteria = criteria.Normalize()
	now := s.now()

	start := time.Now()
	matched := segment.SegmentAt(contacts, criteria, now)
	metrics.ObserveSegment(string(criteria.Channel), purposePreview, len(contacts), len(matched), time.Since(start))

	sample := make([]string, 0, min(len(matched), s.sampleSize))
	for i := 0; i < len(matched) && i < s.sampleSize; i++ {
		sample = append(sample, matched[i].ID)
	}

	return &Preview{
		Criteria:  criteria,
		Count:     len(matched),
		Report:    segment.Explain(contacts, criteria, now),
		SampleIDs: sample,
		Tags:      segment.DistinctTags(contacts),
	}
}

// Tags returns the distinct tags of a workspace roster
func (s *Service) Tags(ctx context.Context, workspaceID string) ([]string, error) {
	snap, err := s.rosters.Roster(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return segment.DistinctTags(snap.Contacts), nil
}

// Create segments the roster, refuses empty audiences and creates the
// campaign with the recipient count frozen at this moment
func (s *Service) Create(ctx context.Context, d Draft) (*Result, error) {
	if err := d.Validate(); err != nil {
		metrics.IncCampaignsRejected("invalid_draft")
		return nil, err
	}
	if s.creator == nil {
		return nil, fmt.Errorf("campaign creation is not configured")
	}

	snap, err := s.rosters.Roster(ctx, d.WorkspaceID)
	if err != nil {
		metrics.IncCampaignsRejected("roster_unavailable")
		return nil, err
	}

	criteria := d.Criteria.Normalize()
	start := time.Now()
	matched := segment.SegmentAt(snap.Contacts, criteria, s.now())
	metrics.ObserveSegment(string(criteria.Channel), purposeCreate, len(snap.Contacts), len(matched), time.Since(start))

	if len(matched) == 0 {
		metrics.IncCampaignsRejected("no_recipients")
		s.logger.Info("campaign draft rejected, empty audience",
			"workspace", d.WorkspaceID,
			"name", d.Name,
			"roster", len(snap.Contacts),
		)
		return nil, ErrNoRecipients
	}

	req := &backend.CampaignCreateRequest{
		WorkspaceID:     d.WorkspaceID,
		Name:            strings.TrimSpace(d.Name),
		Type:            string(criteria.Channel),
		Message:         d.Message,
		TemplateID:      d.TemplateID,
		TargetTags:      nonNil(criteria.Tags),
		TargetStatuses:  statusStrings(criteria.Statuses),
		RecencyDays:     criteria.RecencyWindowDays,
		TotalRecipients: len(matched),
		ScheduledAt:     d.ScheduledAt,
		Status:          "draft",
	}
	if criteria.Channel == segment.ChannelEmail {
		req.Subject = d.Subject
	}
	if d.ScheduledAt != nil {
		req.Status = "scheduled"
	}

	created, err := s.creator.CreateCampaign(ctx, req)
	if err != nil {
		metrics.IncCampaignsRejected("backend_error")
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	metrics.IncCampaignsCreated(string(criteria.Channel))

	sub := &models.Submission{
		WorkspaceID:     d.WorkspaceID,
		CampaignID:      string(created.ID),
		Name:            req.Name,
		Channel:         criteria.Channel,
		Criteria:        criteria,
		TotalRecipients: len(matched),
	}
	if s.recorder != nil {
		if err := s.recorder.Create(sub); err != nil {
			// the campaign exists in the backend already
			s.logger.Error("failed to record submission", "campaign_id", created.ID, "error", err)
		}
	}

	s.logger.Info("campaign created",
		"workspace", d.WorkspaceID,
		"campaign_id", created.ID,
		"channel", criteria.Channel,
		"recipients", len(matched),
		"unrestricted", criteria.IsEmpty(),
		"roster_source", snap.Source,
	)

	return &Result{Campaign: created, Submission: sub, Recipients: len(matched)}, nil
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func statusStrings(statuses []segment.LifecycleStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
