package disruptlinesdk

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
)

// Client is a minimal Disruptline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// DisruptionDetails describes what happened and where.
type DisruptionDetails struct {
	Type         string `json:"disruption_type"`
	Scope        string `json:"scope"`
	Identifier   string `json:"identifier"`
	DiscoveredAt string `json:"time_discovered,omitempty"`
	Source       string `json:"source"`
}

// Case represents the API case model (partial).
type Case struct {
	ID                string            `json:"id"`
	Description       string            `json:"description"`
	Disruption        DisruptionDetails `json:"disruption_details"`
	Status            string            `json:"status"`
	Owner             *string           `json:"decision_owner_email,omitempty"`
	CoordinationPhase string            `json:"coordination_status,omitempty"`
	Evidence          *EvidenceScore    `json:"evidence_score,omitempty"`
	RCA               map[string]any    `json:"rca,omitempty"`
	UpdatedAt         string            `json:"updated_at"`
}

type EvidenceScore struct {
	Score     int      `json:"score"`
	Satisfied []string `json:"breakdown"`
	Missing   []string `json:"missing_actions"`
}

// TimelineEvent represents one immutable case event.
type TimelineEvent struct {
	ID          string         `json:"id"`
	CaseID      string         `json:"case_id"`
	Actor       string         `json:"actor"`
	Action      string         `json:"action"`
	Content     string         `json:"content"`
	SourceType  string         `json:"source_type"`
	Reliability string         `json:"reliability"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

// PaginatedTimeline wraps timeline pages with a cursor.
type PaginatedTimeline struct {
	Items      []TimelineEvent `json:"items"`
	NextCursor string          `json:"next_cursor"`
}

// Action is one step of an approved plan.
type Action struct {
	ID            string         `json:"id,omitempty"`
	Type          string         `json:"type"`
	Description   string         `json:"description"`
	Owner         string         `json:"owner,omitempty"`
	Deadline      string         `json:"deadline,omitempty"`
	System        string         `json:"system,omitempty"`
	Endpoint      string         `json:"endpoint,omitempty"`
	ContactMethod string         `json:"contact_method,omitempty"`
	Contact       map[string]any `json:"contact,omitempty"`
}

type ActionResult struct {
	ActionID string `json:"action_id"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Detail   string `json:"details,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ExecuteResult struct {
	Results   []ActionResult `json:"results"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
}

type OutreachResult struct {
	Stakeholder   string `json:"stakeholder"`
	ContactMethod string `json:"contact_method"`
	Status        string `json:"status"`
	MessageID     string `json:"message_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

type CoordinationStart struct {
	Case      Case             `json:"case"`
	Outreach  []OutreachResult `json:"outreach_results"`
	Contacted int              `json:"total_contacted"`
}

type RCAOutcome struct {
	Case     Case           `json:"case"`
	RCA      map[string]any `json:"rca_result"`
	Fallback bool           `json:"fallback"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateCase reports a disruption.
func (c *Client) CreateCase(ctx context.Context, description string, details DisruptionDetails) (Case, error) {
	body := map[string]any{
		"description":        description,
		"disruption_details": details,
	}
	var resp Case
	err := c.do(ctx, http.MethodPost, "cases", body, &resp)
	return resp, err
}

// GetCase fetches a case by id.
func (c *Client) GetCase(ctx context.Context, id string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodGet, c.casePath(id, ""), nil, &resp)
	return resp, err
}

// AssignOwner sets the decision owner by email.
func (c *Client) AssignOwner(ctx context.Context, caseID, ownerEmail string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodPost, c.casePath(caseID, "owner"), map[string]any{"owner_email": ownerEmail}, &resp)
	return resp, err
}

// Transition advances the case status. Only the owner may call it.
func (c *Client) Transition(ctx context.Context, caseID, status, reason string) (Case, error) {
	body := map[string]any{"status": status}
	if reason != "" {
		body["reason"] = reason
	}
	var resp Case
	err := c.do(ctx, http.MethodPost, c.casePath(caseID, "transition"), body, &resp)
	return resp, err
}

// AddContext appends a text or voice note to the timeline.
func (c *Client) AddContext(ctx context.Context, caseID, content, sourceType string) (TimelineEvent, error) {
	body := map[string]any{"content": content}
	if sourceType != "" {
		body["source_type"] = sourceType
	}
	var resp TimelineEvent
	err := c.do(ctx, http.MethodPost, c.casePath(caseID, "timeline"), body, &resp)
	return resp, err
}

// TimelinePage returns one newest-first page of a case's timeline.
func (c *Client) TimelinePage(ctx context.Context, caseID string, limit int, cursor string) (PaginatedTimeline, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.casePath(caseID, "timeline")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedTimeline
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// StartCoordination identifies stakeholders and sends outreach.
func (c *Client) StartCoordination(ctx context.Context, caseID string) (CoordinationStart, error) {
	var resp CoordinationStart
	err := c.do(ctx, http.MethodPost, c.casePath(caseID, "coordination/start"), nil, &resp)
	return resp, err
}

// PerformRCA synthesizes a root cause from the responses so far.
func (c *Client) PerformRCA(ctx context.Context, caseID string) (RCAOutcome, error) {
	var resp RCAOutcome
	err := c.do(ctx, http.MethodPost, c.casePath(caseID, "coordination/rca"), nil, &resp)
	return resp, err
}

// ExecutePlan runs an approved action plan.
func (c *Client) ExecutePlan(ctx context.Context, caseID string, actions []Action) (ExecuteResult, error) {
	var resp ExecuteResult
	err := c.do(ctx, http.MethodPost, c.casePath(caseID, "coordination/execute"), map[string]any{"actions": actions}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) casePath(caseID, p string) string {
	out := "cases/" + url.PathEscape(caseID)
	if p != "" {
		out += "/" + strings.TrimLeft(p, "/")
	}
	return out
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
