package campaign

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/foxzi/audience/internal/backend"
	"github.com/foxzi/audience/internal/models"
	"github.com/foxzi/audience/internal/roster"
	"github.com/foxzi/audience/internal/segment"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := testNow.Add(-time.Duration(n) * segment.Day)
	return &t
}

func testContacts() []segment.Contact {
	return []segment.Contact{
		{ID: "1", Tags: []string{"vip"}, Status: segment.StatusCustomer, Email: "a@x.com", LastInteractionAt: daysAgo(0)},
		{ID: "2", Tags: []string{"new"}, Status: segment.StatusLead, LastInteractionAt: daysAgo(40)},
		{ID: "3", Tags: []string{"vip"}, Status: segment.StatusCustomer, Email: "c@x.com", LastInteractionAt: daysAgo(2)},
	}
}

type fakeRosters struct {
	snap *roster.Snapshot
	err  error
}

func (f *fakeRosters) Roster(ctx context.Context, workspace string) (*roster.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

type fakeCreator struct {
	got *backend.CampaignCreateRequest
	err error
}

func (f *fakeCreator) CreateCampaign(ctx context.Context, req *backend.CampaignCreateRequest) (*backend.Campaign, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &backend.Campaign{ID: "42", Name: req.Name, Type: req.Type, Status: req.Status, TotalRecipients: req.TotalRecipients}, nil
}

type fakeRecorder struct {
	subs []*models.Submission
	err  error
}

func (f *fakeRecorder) Create(s *models.Submission) error {
	if f.err != nil {
		return f.err
	}
	s.ID = "sub-1"
	f.subs = append(f.subs, s)
	return nil
}

func newTestService(r RosterSource, c Creator, rec Recorder) *Service {
	s := NewService(r, c, rec, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return testNow }
	return s
}

func liveRoster() *fakeRosters {
	return &fakeRosters{snap: &roster.Snapshot{
		Workspace: "ws-1",
		FetchedAt: testNow,
		Contacts:  testContacts(),
		Source:    roster.SourceLive,
	}}
}

func validDraft() Draft {
	return Draft{
		WorkspaceID: "ws-1",
		Name:        " VIP win-back ",
		Message:     "We miss you",
		Subject:     "A gift for you",
		Criteria: segment.Criteria{
			Tags:              []string{"vip"},
			Statuses:          []segment.LifecycleStatus{segment.StatusCustomer},
			RecencyWindowDays: 7,
			Channel:           segment.ChannelEmail,
		},
	}
}

func TestPreview(t *testing.T) {
	s := newTestService(liveRoster(), nil, nil)

	p, err := s.Preview(context.Background(), "ws-1", segment.Criteria{Tags: []string{"vip", "new"}})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	if p.Count != 3 {
		t.Errorf("Count = %d, want 3", p.Count)
	}
	// sample size is 1
	if diff := cmp.Diff([]string{"1"}, p.SampleIDs); diff != "" {
		t.Errorf("SampleIDs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"new", "vip"}, p.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if p.Criteria.Channel != segment.ChannelWhatsApp {
		t.Errorf("Criteria.Channel = %q, want whatsapp", p.Criteria.Channel)
	}
	if p.Source != roster.SourceLive {
		t.Errorf("Source = %q, want live", p.Source)
	}
	if p.FetchedAt == nil || !p.FetchedAt.Equal(testNow) {
		t.Errorf("FetchedAt = %v, want %v", p.FetchedAt, testNow)
	}
	want := segment.Report{Total: 3, AfterTags: 3, AfterStatus: 3, AfterRecent: 3, AfterReach: 3}
	if diff := cmp.Diff(want, p.Report); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestPreviewInvalidCriteria(t *testing.T) {
	s := newTestService(liveRoster(), nil, nil)

	_, err := s.Preview(context.Background(), "ws-1", segment.Criteria{RecencyWindowDays: -1})
	if !errors.Is(err, segment.ErrInvalidCriteria) {
		t.Errorf("Preview() error = %v, want ErrInvalidCriteria", err)
	}
}

func TestPreviewRosterError(t *testing.T) {
	s := newTestService(&fakeRosters{err: roster.ErrNoRoster}, nil, nil)

	_, err := s.Preview(context.Background(), "ws-1", segment.Criteria{})
	if !errors.Is(err, roster.ErrNoRoster) {
		t.Errorf("Preview() error = %v, want ErrNoRoster", err)
	}
}

func TestPreviewContacts(t *testing.T) {
	s := newTestService(nil, nil, nil)

	p, err := s.PreviewContacts(testContacts(), validDraft().Criteria)
	if err != nil {
		t.Fatalf("PreviewContacts() error = %v", err)
	}
	if p.Count != 2 {
		t.Errorf("Count = %d, want 2", p.Count)
	}
	if p.Source != roster.SourceInline {
		t.Errorf("Source = %q, want inline", p.Source)
	}
	if p.FetchedAt != nil {
		t.Errorf("FetchedAt = %v, want nil", p.FetchedAt)
	}
}

func TestTags(t *testing.T) {
	s := newTestService(liveRoster(), nil, nil)

	tags, err := s.Tags(context.Background(), "ws-1")
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	if diff := cmp.Diff([]string{"new", "vip"}, tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
}

func TestCreate(t *testing.T) {
	creator := &fakeCreator{}
	recorder := &fakeRecorder{}
	s := newTestService(liveRoster(), creator, recorder)

	res, err := s.Create(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if res.Recipients != 2 {
		t.Errorf("Recipients = %d, want 2", res.Recipients)
	}

	want := &backend.CampaignCreateRequest{
		WorkspaceID:     "ws-1",
		Name:            "VIP win-back",
		Type:            "email",
		Subject:         "A gift for you",
		Message:         "We miss you",
		TargetTags:      []string{"vip"},
		TargetStatuses:  []string{"customer"},
		RecencyDays:     7,
		TotalRecipients: 2,
		Status:          "draft",
	}
	if diff := cmp.Diff(want, creator.got); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}

	if len(recorder.subs) != 1 {
		t.Fatalf("recorded %d submissions, want 1", len(recorder.subs))
	}
	sub := recorder.subs[0]
	if sub.CampaignID != "42" || sub.TotalRecipients != 2 || sub.Channel != segment.ChannelEmail {
		t.Errorf("submission = %+v", sub)
	}
}

func TestCreateScheduledWhatsApp(t *testing.T) {
	creator := &fakeCreator{}
	s := newTestService(liveRoster(), creator, nil)

	at := testNow.Add(24 * time.Hour)
	d := Draft{
		WorkspaceID: "ws-1",
		Name:        "Everyone",
		Message:     "Hello",
		Subject:     "ignored",
		ScheduledAt: &at,
	}

	res, err := s.Create(context.Background(), d)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if res.Recipients != 3 {
		t.Errorf("Recipients = %d, want 3", res.Recipients)
	}
	if creator.got.Status != "scheduled" {
		t.Errorf("Status = %q, want scheduled", creator.got.Status)
	}
	if creator.got.Type != "whatsapp" {
		t.Errorf("Type = %q, want whatsapp", creator.got.Type)
	}
	if creator.got.Subject != "" {
		t.Errorf("Subject = %q, want empty for whatsapp", creator.got.Subject)
	}
	if creator.got.TargetTags == nil || creator.got.TargetStatuses == nil {
		t.Error("target lists must be non-nil")
	}
}

func TestCreateNoRecipients(t *testing.T) {
	creator := &fakeCreator{}
	s := newTestService(liveRoster(), creator, nil)

	d := validDraft()
	d.Criteria.Tags = []string{"nobody"}

	_, err := s.Create(context.Background(), d)
	if !errors.Is(err, ErrNoRecipients) {
		t.Errorf("Create() error = %v, want ErrNoRecipients", err)
	}
	if creator.got != nil {
		t.Error("backend was called for an empty audience")
	}
}

func TestCreateInvalidDraft(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Draft)
	}{
		{"missing workspace", func(d *Draft) { d.WorkspaceID = "" }},
		{"missing name", func(d *Draft) { d.Name = "  " }},
		{"missing message", func(d *Draft) { d.Message = "" }},
		{"email without subject", func(d *Draft) { d.Subject = "" }},
		{"negative recency", func(d *Draft) { d.Criteria.RecencyWindowDays = -3 }},
		{"unknown status", func(d *Draft) { d.Criteria.Statuses = []segment.LifecycleStatus{"vip"} }},
		{"unknown channel", func(d *Draft) { d.Criteria.Channel = "sms" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &fakeCreator{}
			s := newTestService(liveRoster(), creator, nil)

			d := validDraft()
			tt.mutate(&d)

			_, err := s.Create(context.Background(), d)
			if !errors.Is(err, ErrInvalidDraft) {
				t.Errorf("Create() error = %v, want ErrInvalidDraft", err)
			}
			if creator.got != nil {
				t.Error("backend was called for an invalid draft")
			}
		})
	}
}

func TestCreateTemplateOnly(t *testing.T) {
	s := newTestService(liveRoster(), &fakeCreator{}, nil)

	d := validDraft()
	d.Message = ""
	d.Subject = ""
	d.TemplateID = "tpl-1"

	if _, err := s.Create(context.Background(), d); err != nil {
		t.Errorf("Create() error = %v", err)
	}
}

func TestCreateBackendError(t *testing.T) {
	recorder := &fakeRecorder{}
	s := newTestService(liveRoster(), &fakeCreator{err: &backend.APIError{StatusCode: 500}}, recorder)

	_, err := s.Create(context.Background(), validDraft())
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Create() error = %v, want *backend.APIError", err)
	}
	if len(recorder.subs) != 0 {
		t.Error("submission recorded for a failed campaign")
	}
}

func TestCreateRecorderFailureKeepsCampaign(t *testing.T) {
	s := newTestService(liveRoster(), &fakeCreator{}, &fakeRecorder{err: errors.New("disk full")})

	res, err := s.Create(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if res.Campaign == nil || res.Campaign.ID != "42" {
		t.Errorf("Campaign = %+v, want id 42", res.Campaign)
	}
}

func TestCreateWithoutCreator(t *testing.T) {
	s := newTestService(liveRoster(), nil, nil)

	if _, err := s.Create(context.Background(), validDraft()); err == nil {
		t.Error("Create() expected error without a backend")
	}
}
