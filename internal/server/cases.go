package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"disruptline/internal/domain"
	"disruptline/internal/engine"
	"disruptline/internal/repo"
)

// output wraps a response body for huma.
type output[T any] struct {
	Body T `json:"body"`
}

func ok[T any](v T) *output[T] {
	return &output[T]{Body: v}
}

type casePath struct {
	CaseID string `path:"case_id"`
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerCases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-case",
		Method:        http.MethodPost,
		Path:          "/cases",
		Summary:       "Report a disruption",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateCaseRequest `json:"body"`
	}) (*output[domain.Case], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCase(ctx, engine.CaseCreateOptions{
			Description:       input.Body.Description,
			Disruption:        input.Body.Disruption,
			StructuredContext: input.Body.StructuredContext,
			FinancialImpact:   input.Body.FinancialImpact,
			ActorID:           actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return ok(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List cases, most recently updated first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" enum:"REPORTED,CLARIFIED,DECISION_REQUIRED,DECIDED,IN_PROGRESS,RESOLVED"`
		OwnerEmail string `query:"owner_email"`
		Limit      int    `query:"limit" default:"50"`
	}) (*output[[]domain.Case], error) {
		items, err := e.ListCases(ctx, repo.CaseFilters{
			Status:     input.Status,
			OwnerEmail: strings.ToLower(strings.TrimSpace(input.OwnerEmail)),
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return ok(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}",
		Summary:     "Get case",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*output[domain.Case], error) {
		c, err := e.GetCase(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-owner",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/owner",
		Summary:     "Assign the decision owner",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		casePath
		Body AssignOwnerRequest `json:"body"`
	}) (*output[domain.Case], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AssignOwner(ctx, input.CaseID, input.Body.OwnerEmail, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-case",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/transition",
		Summary:     "Advance the case status; owner only",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		casePath
		Body TransitionRequest `json:"body"`
	}) (*output[domain.Case], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Transition(ctx, input.CaseID, input.Body.Status, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-context",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/timeline",
		Summary:       "Add context to the case timeline",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		casePath
		Body AddContextRequest `json:"body"`
	}) (*output[domain.TimelineEvent], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev, err := e.AddContext(ctx, engine.ContextOptions{
			CaseID:      input.CaseID,
			ActorID:     actorID,
			Content:     input.Body.Content,
			SourceType:  input.Body.SourceType,
			Reliability: input.Body.Reliability,
			Metadata:    input.Body.Metadata,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return ok(ev), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-timeline",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/timeline",
		Summary:     "List timeline events, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		casePath
		Action string `query:"action"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*output[paginatedTimeline], error) {
		after, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"cursor": input.Cursor})
		}
		if _, err := e.GetCase(ctx, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		f := repo.TimelineFilters{CaseID: input.CaseID, Limit: limit + 1, After: after, Newest: true}
		if input.Action != "" {
			f.Actions = []string{input.Action}
		}
		items, err := e.Repo.ListTimelineEvents(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTimeline{Items: []domain.TimelineEvent{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit-1])
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return ok(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-document",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/documents",
		Summary:       "Record a supporting document",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		casePath
		Body AddDocumentRequest `json:"body"`
	}) (*output[domain.Document], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		doc, err := e.AddDocument(ctx, input.CaseID, actorID, input.Body.Name, input.Body.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(doc), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/documents",
		Summary:     "List documents",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*output[[]domain.Document], error) {
		if _, err := e.GetCase(ctx, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		docs, err := e.Repo.ListDocuments(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(nonNilSlice(docs)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recompute-evidence",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/evidence",
		Summary:     "Recompute the evidence completeness score",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*output[domain.EvidenceScore], error) {
		score, err := e.RecomputeEvidence(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(score), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-action-results",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/actions",
		Summary:     "List executed plan actions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*output[[]domain.ActionResult], error) {
		if _, err := e.GetCase(ctx, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		results, err := e.Repo.ListActionResults(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(nonNilSlice(results)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "case-audit",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/audit",
		Summary:     "Audit trail for one case, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		casePath
		Limit int `query:"limit" default:"100"`
	}) (*output[[]domain.AuditEntry], error) {
		if _, err := e.GetCase(ctx, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		entries, err := e.Audit(ctx, []string{input.CaseID}, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return ok(nonNilSlice(entries)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Audit trail for a set of cases, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CaseIDs string `query:"case_ids" doc:"Comma-separated case ids"`
		Limit   int    `query:"limit" default:"100"`
	}) (*output[[]domain.AuditEntry], error) {
		var ids []string
		for _, id := range strings.Split(input.CaseIDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "case_ids is required", nil)
		}
		entries, err := e.Audit(ctx, ids, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return ok(nonNilSlice(entries)), nil
	})
}
