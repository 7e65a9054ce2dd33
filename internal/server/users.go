package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"disruptline/internal/domain"
	"disruptline/internal/engine"
	"disruptline/internal/engine/auth"
)

func registerUsers(api huma.API, e engine.Engine) {
	users := func() auth.Service {
		return auth.Service{Repo: e.Repo, Now: e.Now}
	}

	huma.Register(api, huma.Operation{
		OperationID:   "register-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register a user who can own cases",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body RegisterUserRequest `json:"body"`
	}) (*output[domain.User], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		u, err := users().RegisterUser(ctx, input.Body.Email, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.User], error) {
		items, err := users().ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "issue-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key for a user; the raw key is returned once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body IssueAPIKeyRequest `json:"body"`
	}) (*output[IssueAPIKeyResponse], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		raw, key, err := users().IssueAPIKey(ctx, input.Body.Email, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(IssueAPIKeyResponse{Key: raw, APIKey: apiKeyResponse(key)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys without their secrets",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*output[[]APIKeyResponse], error) {
		keys, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, apiKeyResponse(k))
		}
		return ok(out), nil
	})
}
