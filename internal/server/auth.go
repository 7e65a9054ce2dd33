package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"disruptline/internal/engine/auth"
	"disruptline/internal/repo"
)

const (
	tokenIssuer   = "disruptline"
	devTokenTTL   = 12 * time.Hour
	sourceJWT     = "jwt"
	sourceAPIKey  = "api_key"
	sourceHeader  = "actor_header"
	headerAPIKey  = "X-Api-Key"
	headerActorID = "X-Actor-Id"
)

type AuthConfig struct {
	JWTSecret string
	// AllowActorHeader trusts X-Actor-Id without credentials. Local use only.
	AllowActorHeader bool
	Logger           *zap.Logger
}

// Principal is the authenticated caller. ActorID is what lands in the
// timeline and audit trail and what the owner gate compares against.
type Principal struct {
	ActorID string
	UserID  string
	Source  string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.ActorID != ""
}

var errUnauthenticated = newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok {
		return p.ActorID, nil
	}
	return "", errUnauthenticated
}

// SignToken mints an HS256 token whose subject is the actor id.
func SignToken(secret, subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// authenticator turns request credentials into a Principal. Precedence is
// bearer token, then API key, then the trusted actor header.
type authenticator struct {
	cfg    AuthConfig
	keys   auth.Service
	logger *zap.Logger
	parser *jwt.Parser
}

func newAuthenticator(cfg AuthConfig, r repo.Repo) authenticator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return authenticator{
		cfg:    cfg,
		keys:   auth.Service{Repo: r},
		logger: logger,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer)),
	}
}

var errBadCredentials = errors.New("invalid credentials")

func (a authenticator) authenticate(req *http.Request) (Principal, error) {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		scheme, token, found := strings.Cut(authz, " ")
		if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return Principal{}, errBadCredentials
		}
		return a.fromToken(strings.TrimSpace(token))
	}
	if key := strings.TrimSpace(req.Header.Get(headerAPIKey)); key != "" {
		user, err := a.keys.ResolveAPIKey(req.Context(), key)
		if err != nil {
			a.logger.Debug("api key rejected", zap.Error(err))
			return Principal{}, errBadCredentials
		}
		return Principal{ActorID: user.Email, UserID: user.ID, Source: sourceAPIKey}, nil
	}
	if actor := strings.TrimSpace(req.Header.Get(headerActorID)); actor != "" && a.cfg.AllowActorHeader {
		a.logger.Warn("trusting X-Actor-Id without credentials", zap.String("actor_id", actor))
		return Principal{ActorID: actor, Source: sourceHeader}, nil
	}
	return Principal{}, nil
}

func (a authenticator) fromToken(token string) (Principal, error) {
	if strings.TrimSpace(a.cfg.JWTSecret) == "" {
		return Principal{}, errBadCredentials
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.JWTSecret), nil
	}); err != nil {
		a.logger.Debug("jwt rejected", zap.Error(err))
		return Principal{}, errBadCredentials
	}
	if claims.Subject == "" {
		return Principal{}, errBadCredentials
	}
	return Principal{ActorID: claims.Subject, Source: sourceJWT}, nil
}

// newAuthMiddleware guards every route under basePath except publicPaths.
// Routes outside basePath (docs, metrics) are left open.
func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	public := publicPaths(basePath)
	authn := newAuthenticator(cfg, r)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			_, open := public[req.URL.Path]
			if open || !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			p, err := authn.authenticate(req)
			switch {
			case err != nil:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil))
			case p.ActorID == "":
				respondStatusError(w, errUnauthenticated)
			default:
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), p)))
			}
		})
	}
}

// publicPaths are served without credentials.
func publicPaths(basePath string) map[string]struct{} {
	out := make(map[string]struct{}, 3)
	for _, p := range []string{"health", "auth/dev/login", "openapi.json"} {
		out[path.Join("/", basePath, p)] = struct{}{}
	}
	return out
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[WhoAmIResponse], error) {
		p, found := principalFromContext(ctx)
		if !found {
			return nil, errUnauthenticated
		}
		return ok(WhoAmIResponse{ActorID: p.ActorID, UserID: p.UserID, Source: p.Source}), nil
	})
}

// registerDevAuth exposes a token endpoint for local work. It refuses to
// sign when no secret is configured.
func registerDevAuth(api huma.API, cfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a bearer token for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*output[DevLoginResponse], error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "jwt secret not configured", nil)
		}
		token, err := SignToken(cfg.JWTSecret, actor, devTokenTTL)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(DevLoginResponse{Token: token}), nil
	})
}
