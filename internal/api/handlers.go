package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/audience/internal/backend"
	"github.com/foxzi/audience/internal/campaign"
	"github.com/foxzi/audience/internal/metrics"
	"github.com/foxzi/audience/internal/models"
	"github.com/foxzi/audience/internal/roster"
	"github.com/foxzi/audience/internal/segment"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// PreviewRequest is the request body for POST /audience/preview.
// When Contacts is present the workspace roster is not loaded.
type PreviewRequest struct {
	WorkspaceID string            `json:"workspace_id"`
	Criteria    segment.Criteria  `json:"criteria"`
	Contacts    []segment.Contact `json:"contacts,omitempty"`
}

// TagsResponse is the response for GET /audience/tags
type TagsResponse struct {
	WorkspaceID string   `json:"workspace_id"`
	Tags        []string `json:"tags"`
}

// SubmissionsResponse is the response for GET /campaigns/submissions
type SubmissionsResponse struct {
	Submissions []models.Submission `json:"submissions"`
	Total       int                 `json:"total"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
}

// SyncResponse is the response for POST /rosters/{workspace}/sync
type SyncResponse struct {
	WorkspaceID string `json:"workspace_id"`
	Contacts    int    `json:"contacts"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handlePreview handles POST /api/v1/audience/preview
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		preview *campaign.Preview
		err     error
	)
	if req.Contacts != nil {
		preview, err = s.campaigns.PreviewContacts(req.Contacts, req.Criteria)
	} else {
		if strings.TrimSpace(req.WorkspaceID) == "" {
			s.sendError(w, http.StatusBadRequest, "workspace_id or contacts is required")
			return
		}
		preview, err = s.campaigns.Preview(r.Context(), req.WorkspaceID, req.Criteria)
	}
	if err != nil {
		s.handleServiceError(w, err, "Failed to preview audience")
		return
	}

	s.sendJSON(w, http.StatusOK, preview)
}

// handleTags handles GET /api/v1/audience/tags
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	ws := strings.TrimSpace(r.URL.Query().Get("workspace_id"))
	if ws == "" {
		s.sendError(w, http.StatusBadRequest, "workspace_id is required")
		return
	}

	tags, err := s.campaigns.Tags(r.Context(), ws)
	if err != nil {
		s.handleServiceError(w, err, "Failed to load tags")
		return
	}

	s.sendJSON(w, http.StatusOK, TagsResponse{WorkspaceID: ws, Tags: tags})
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var draft campaign.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.campaigns.Create(r.Context(), draft)
	if err != nil {
		s.handleServiceError(w, err, "Failed to create campaign")
		return
	}

	s.sendJSON(w, http.StatusCreated, res)
}

// handleSubmissions handles GET /api/v1/campaigns/submissions
func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.submissions == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Submission history is not configured")
		return
	}

	q := r.URL.Query()
	filter := models.SubmissionFilter{
		WorkspaceID: strings.TrimSpace(q.Get("workspace_id")),
		Limit:       defaultPageSize,
	}

	if v := q.Get("channel"); v != "" {
		ch, err := segment.ParseChannel(v)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Channel = ch
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	list, total, err := s.submissions.List(filter)
	if err != nil {
		s.logger.Error("failed to list submissions", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list submissions")
		return
	}

	s.sendJSON(w, http.StatusOK, SubmissionsResponse{
		Submissions: list,
		Total:       total,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// handleGetSubmission handles GET /api/v1/campaigns/submissions/{id}
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	if s.submissions == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Submission history is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	sub, err := s.submissions.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get submission", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get submission")
		return
	}
	if sub == nil {
		s.sendError(w, http.StatusNotFound, "Submission not found")
		return
	}

	s.sendJSON(w, http.StatusOK, sub)
}

// handleRosterSync handles POST /api/v1/rosters/{workspace}/sync
func (s *Server) handleRosterSync(w http.ResponseWriter, r *http.Request) {
	if s.rosters == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Roster sync is not configured")
		return
	}

	ws := chi.URLParam(r, "workspace")
	n, err := s.rosters.Sync(r.Context(), ws)
	if err != nil {
		s.handleServiceError(w, err, "Failed to sync roster")
		return
	}

	s.sendJSON(w, http.StatusOK, SyncResponse{WorkspaceID: ws, Contacts: n})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

// handleServiceError maps service errors to HTTP statuses
func (s *Server) handleServiceError(w http.ResponseWriter, err error, fallback string) {
	var apiErr *backend.APIError

	switch {
	case errors.Is(err, campaign.ErrInvalidDraft), errors.Is(err, segment.ErrInvalidCriteria):
		metrics.IncAPIErrors("invalid_request")
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, campaign.ErrNoRecipients):
		metrics.IncAPIErrors("empty_audience")
		s.sendError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, roster.ErrNoRoster):
		metrics.IncAPIErrors("roster_unavailable")
		s.sendError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &apiErr):
		metrics.IncAPIErrors("backend")
		s.logger.Warn("backend request failed", "status", apiErr.StatusCode, "error", err)
		s.sendError(w, http.StatusBadGateway, apiErr.Error())
	default:
		metrics.IncAPIErrors("internal")
		s.logger.Error(strings.ToLower(fallback), "error", err)
		s.sendError(w, http.StatusInternalServerError, fallback)
	}
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
