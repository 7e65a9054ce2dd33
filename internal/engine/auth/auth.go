// Package auth resolves owner identities and API-key principals.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"disruptline/internal/domain"
	"disruptline/internal/repo"
)

// Service is the user registry backed by the ledger store.
type Service struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.ValidationError{Field: "email", Reason: "must be a plain email address"}
	}
	return email, nil
}

// RegisterUser adds a user that cases can be assigned to.
func (s Service) RegisterUser(ctx context.Context, email, name string) (domain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, domain.ValidationError{Field: "email", Reason: "already registered"}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}
	u := domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		CreatedAt: s.now(),
	}
	if err := s.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ResolveUser maps an email to its canonical user.
func (s Service) ResolveUser(ctx context.Context, email string) (domain.User, error) {
	return s.Repo.GetUserByEmail(ctx, email)
}

func (s Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.Repo.ListUsers(ctx)
}

// IssueAPIKey creates a key for the user and returns the raw value once.
func (s Service) IssueAPIKey(ctx context.Context, email, name string) (string, domain.APIKey, error) {
	user, err := s.ResolveUser(ctx, email)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	raw := "dl_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   user.ID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: s.now(),
	}
	if err := s.Repo.InsertAPIKey(ctx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

// ResolveAPIKey returns the user owning a raw API key.
func (s Service) ResolveAPIKey(ctx context.Context, raw string) (domain.User, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.User{}, domain.ValidationError{Field: "api_key", Reason: "required"}
	}
	key, err := s.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if err != nil {
		return domain.User{}, err
	}
	return s.Repo.GetUser(ctx, key.ActorID)
}
