package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"disruptline/internal/coordination"
	"disruptline/internal/domain"
)

func registerCoordination(api huma.API, cfg Config) {
	o := cfg.Orchestrator

	huma.Register(api, huma.Operation{
		OperationID: "start-coordination",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/coordination/start",
		Summary:     "Identify stakeholders and send outreach",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		casePath
		Body *StartCoordinationRequest `json:"body,omitempty" required:"false"`
	}) (*output[coordination.StartResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := coordination.StartOptions{ActorID: actorID}
		if input.Body != nil {
			opts.Summary = input.Body.Summary
			opts.Location = input.Body.Location
		}
		res, err := o.StartCoordination(ctx, input.CaseID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		res.Stakeholders = nonNilSlice(res.Stakeholders)
		res.Outreach = nonNilSlice(res.Outreach)
		return ok(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "perform-rca",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/coordination/rca",
		Summary:     "Synthesize a root cause from collected responses",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *casePath) (*output[coordination.RCAOutcome], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := o.PerformEnhancedRCA(ctx, input.CaseID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-plan",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/coordination/execute",
		Summary:     "Execute an approved action plan",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		casePath
		Body ExecutePlanRequest `json:"body"`
	}) (*output[ExecutePlanResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		results, err := o.ExecutePlan(ctx, input.CaseID, actorID, input.Body.Actions)
		if err != nil {
			return nil, handleError(err)
		}
		resp := ExecutePlanResponse{Results: nonNilSlice(results), Total: len(results)}
		for _, r := range results {
			if r.Status == domain.ActionCompleted {
				resp.Completed++
			}
		}
		return ok(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "simulate-response",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/coordination/responses",
		Summary:       "Inject a stakeholder response",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		casePath
		Body SimulateResponseRequest `json:"body"`
	}) (*output[domain.TimelineEvent], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ev, err := o.SimulateResponse(ctx, input.CaseID, input.Body.Stakeholder, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(ev), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "collect-responses",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/coordination/responses",
		Summary:     "Collect stakeholder responses, optionally waiting for more",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		casePath
		Expected       int `query:"expected" default:"-1" doc:"Responses to wait for; negative uses the configured default"`
		TimeoutSeconds int `query:"timeout_seconds" minimum:"0"`
	}) (*output[CollectResponse], error) {
		expected := input.Expected
		if expected < 0 {
			expected = o.ExpectedResponses
		}
		timeout := time.Duration(input.TimeoutSeconds) * time.Second
		if timeout > cfg.MaxCollectTimeout {
			timeout = cfg.MaxCollectTimeout
		}
		got, err := o.Collect(ctx, input.CaseID, expected, timeout)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(collectResponse(got, expected)), nil
	})
}
