package server

import (
	"time"

	"disruptline/internal/coordination"
	"disruptline/internal/domain"
)

// Request payloads

type CreateCaseRequest struct {
	Description       string                    `json:"description" minLength:"10"`
	Disruption        domain.DisruptionDetails  `json:"disruption_details"`
	StructuredContext *domain.StructuredContext `json:"structured_context,omitempty"`
	FinancialImpact   *domain.FinancialImpact   `json:"financial_impact,omitempty"`
}

type AssignOwnerRequest struct {
	OwnerEmail string `json:"owner_email" format:"email"`
}

type TransitionRequest struct {
	Status string `json:"status" enum:"REPORTED,CLARIFIED,DECISION_REQUIRED,DECIDED,IN_PROGRESS,RESOLVED"`
	Reason string `json:"reason,omitempty"`
}

type AddContextRequest struct {
	Content     string         `json:"content"`
	SourceType  string         `json:"source_type,omitempty" enum:"text,voice,system"`
	Reliability string         `json:"reliability,omitempty" enum:"low,medium,high"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type AddDocumentRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

type StartCoordinationRequest struct {
	Summary  string `json:"summary,omitempty"`
	Location string `json:"location,omitempty"`
}

type ExecutePlanRequest struct {
	Actions []domain.ActionItem `json:"actions"`
}

type SimulateResponseRequest struct {
	Stakeholder string `json:"stakeholder"`
	Content     string `json:"content"`
}

type RegisterUserRequest struct {
	Email string `json:"email" format:"email"`
	Name  string `json:"name,omitempty"`
}

type IssueAPIKeyRequest struct {
	Email string `json:"email" format:"email"`
	Name  string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	UserID  string `json:"user_id,omitempty"`
	Source  string `json:"source"`
}

type paginatedTimeline struct {
	Items      []domain.TimelineEvent `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type ExecutePlanResponse struct {
	Results   []domain.ActionResult `json:"results"`
	Completed int                   `json:"completed"`
	Total     int                   `json:"total"`
}

type CollectResponse struct {
	Responses []domain.Response `json:"responses"`
	Complete  bool              `json:"complete"`
	Expected  int               `json:"expected"`
}

func collectResponse(c coordination.Collection, expected int) CollectResponse {
	return CollectResponse{Responses: nonNilSlice(c.Responses), Complete: c.Complete, Expected: expected}
}

type IssueAPIKeyResponse struct {
	Key    string         `json:"key"`
	APIKey APIKeyResponse `json:"api_key"`
}

type APIKeyResponse struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
