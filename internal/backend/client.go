package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foxzi/audience/internal/segment"
)

// Client is a platform backend API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new backend API client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// request performs an HTTP request to the backend API
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			apiErr.Message = errResp.Error
			if apiErr.Message == "" {
				apiErr.Message = errResp.Message
			}
		}
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Health checks backend health
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.request(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListClients returns every client of a workspace.
// The backend may answer with a bare array or with a {"clients": [...]} envelope.
func (c *Client) ListClients(ctx context.Context, workspaceID string) ([]ClientRecord, error) {
	params := url.Values{}
	params.Set("workspace_id", workspaceID)

	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, "/api/clients?"+params.Encode(), nil, &raw); err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []ClientRecord{}, nil
	}

	if raw[0] == '[' {
		var records []ClientRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode clients: %w", err)
		}
		return records, nil
	}

	var wrapped ClientListResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode clients: %w", err)
	}
	if wrapped.Clients == nil {
		wrapped.Clients = []ClientRecord{}
	}
	return wrapped.Clients, nil
}

// Contacts fetches the workspace roster converted for segmentation
func (c *Client) Contacts(ctx context.Context, workspaceID string) ([]segment.Contact, error) {
	records, err := c.ListClients(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	contacts := make([]segment.Contact, len(records))
	for i, r := range records {
		contacts[i] = r.ToContact()
	}
	return contacts, nil
}

// CreateCampaign creates a campaign on the backend
func (c *Client) CreateCampaign(ctx context.Context, req *CampaignCreateRequest) (*Campaign, error) {
	var resp Campaign
	if err := c.request(ctx, http.MethodPost, "/api/campaigns", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
