package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"disruptline/internal/coordination"
	"disruptline/internal/domain"
	"disruptline/internal/engine"
	"disruptline/internal/repo"
)

const (
	defaultBasePath   = "/v0"
	defaultPageSize   = 50
	maxPageSize       = 200
	defaultMaxCollect = 2 * time.Minute
)

// Config for the HTTP API handler.
type Config struct {
	Engine       engine.Engine
	Orchestrator coordination.Orchestrator
	BasePath     string
	Auth         AuthConfig
	Logger       *zap.Logger
	// MaxCollectTimeout caps the wait a single collect request may ask for.
	MaxCollectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	c.BasePath = "/" + strings.Trim(c.BasePath, "/")
	if c.BasePath == "/" {
		c.BasePath = defaultBasePath
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Auth.Logger == nil {
		c.Auth.Logger = c.Logger
	}
	if c.MaxCollectTimeout <= 0 {
		c.MaxCollectTimeout = defaultMaxCollect
	}
	return c
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid transition REPORTED -> DECIDED"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"REPORTED\"}"`
}

// apiError is the {"error": {...}} envelope every failure is written in.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

// useErrorEnvelope routes huma's own errors (bad params, schema failures)
// through apiError. Schema failures are reported as 400.
func useErrorEnvelope() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, errorDetails(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return newAPIError(status, "", msg, errorDetails(errs))
	}
}

func errorDetails(errs []error) map[string]any {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return map[string]any{"errors": msgs}
}

// New returns an HTTP handler exposing the Disruptline API.
func New(cfg Config) (http.Handler, error) {
	cfg = cfg.withDefaults()
	huma.DefaultArrayNullable = false
	useErrorEnvelope()

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(cfg.BasePath, cfg.Auth, cfg.Engine.Repo))

	hcfg := huma.DefaultConfig("Disruptline API", "0.2.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, cfg.BasePath)

	registerHealth(group)
	registerCases(group, cfg.Engine)
	registerCoordination(group, cfg)
	registerUsers(group, cfg.Engine)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)

	mountDocs(router, api, cfg.BasePath)
	router.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(router, "disruptline.api"), nil
}

// handleError maps domain errors onto the envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var (
		se       huma.StatusError
		authErr  domain.AuthorizationError
		transErr domain.InvalidTransitionError
		valErr   domain.ValidationError
	)
	switch {
	case errors.As(err, &se):
		return se
	case errors.As(err, &authErr):
		return newAPIError(http.StatusForbidden, "not_case_owner", err.Error(), map[string]any{"case_id": authErr.CaseID})
	case errors.As(err, &transErr):
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": transErr.From, "to": transErr.To})
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &valErr):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": valErr.Field})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return newAPIError(http.StatusServiceUnavailable, "timeout", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

type healthResponse struct {
	Status string `json:"status" example:"ok"`
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness probe",
	}, func(ctx context.Context, _ *struct{}) (*output[healthResponse], error) {
		return ok(healthResponse{Status: "ok"}), nil
	})
}

func normalizeLimit(in int) int {
	switch {
	case in <= 0:
		return defaultPageSize
	case in > maxPageSize:
		return maxPageSize
	}
	return in
}

var errBadCursor = errors.New("invalid cursor")

// parseCompositeCursor reads a "<rfc3339nano>|<seq>" timeline position.
func parseCompositeCursor(cursor string) (*repo.Cursor, error) {
	if cursor == "" {
		return nil, nil
	}
	stamp, seqText, found := strings.Cut(cursor, "|")
	if !found || stamp == "" || seqText == "" {
		return nil, errBadCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadCursor, err)
	}
	seq, err := strconv.ParseInt(seqText, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadCursor, err)
	}
	return &repo.Cursor{Timestamp: ts, Seq: seq}, nil
}

func composeCursor(ev domain.TimelineEvent) string {
	return ev.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + strconv.FormatInt(ev.Seq, 10)
}
