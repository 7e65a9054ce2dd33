package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"disruptline/internal/domain"
	"disruptline/internal/engine/auth"
	"disruptline/internal/ledger"
	"disruptline/internal/metrics"
	"disruptline/internal/repo"
)

// statusChain holds the single legal successor of each status. RESOLVED is
// terminal.
var statusChain = map[string]string{
	domain.StatusReported:         domain.StatusClarified,
	domain.StatusClarified:        domain.StatusDecisionRequired,
	domain.StatusDecisionRequired: domain.StatusDecided,
	domain.StatusDecided:          domain.StatusInProgress,
	domain.StatusInProgress:       domain.StatusResolved,
}

// NextStatus returns the legal successor of status, if any.
func NextStatus(status string) (string, bool) {
	next, ok := statusChain[status]
	return next, ok
}

// ValidStatus reports whether status is part of the lifecycle.
func ValidStatus(status string) bool {
	_, ok := statusChain[status]
	return ok || status == domain.StatusResolved
}

func ensureCaseTransition(from, to string) error {
	if next, ok := NextStatus(from); ok && next == to {
		return nil
	}
	return domain.InvalidTransitionError{From: from, To: to}
}

// IdentityResolver maps an owner email to a registered user.
type IdentityResolver interface {
	ResolveUser(ctx context.Context, email string) (domain.User, error)
}

func (e Engine) identity(r repo.Repo) IdentityResolver {
	return auth.Service{Repo: r, Now: e.now}
}

// AssignOwner sets the decision owner of a case. Any actor may assign.
func (e Engine) AssignOwner(ctx context.Context, caseID, ownerEmail, actorID string) (domain.Case, error) {
	ownerEmail = strings.TrimSpace(ownerEmail)
	if ownerEmail == "" {
		return domain.Case{}, domain.ValidationError{Field: "owner_email", Reason: "required"}
	}
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		user, err := e.identity(tx).ResolveUser(ctx, ownerEmail)
		if err != nil {
			return err
		}
		previous := c.OwnerIdentity()
		content := fmt.Sprintf("Ownership assigned to %s", user.Email)
		if previous != "" {
			content = fmt.Sprintf("Ownership reassigned from %s to %s", previous, user.Email)
		}
		if err := tx.UpdateCaseFields(ctx, c.ID, repo.CaseUpdate{
			OwnerID:   &user.ID,
			Owner:     &user.Email,
			UpdatedAt: e.now(),
		}); err != nil {
			return err
		}
		meta := map[string]any{
			"previous_owner": previous,
			"new_owner":      user.Email,
			"assigned_by":    actorID,
		}
		l := e.ledgerFor(tx)
		if _, err := l.Append(ctx, ledger.Entry{
			CaseID:      c.ID,
			Actor:       actorID,
			Action:      domain.ActionOwnerAssigned,
			Content:     content,
			SourceType:  domain.SourceSystem,
			Reliability: domain.ReliabilityHigh,
			Metadata:    meta,
		}); err != nil {
			return err
		}
		_, err = l.AppendAudit(ctx, c.ID, actorID, domain.ActionOwnerAssigned, meta)
		return err
	})
	if err != nil {
		return domain.Case{}, err
	}
	e.log().Info("case owner assigned", zap.String("case_id", caseID), zap.String("owner", ownerEmail), zap.String("actor", actorID))
	return e.Repo.GetCase(ctx, caseID)
}

// Transition advances a case to its next status. Only the decision owner
// may advance, and only along the fixed chain; a rejected call writes
// nothing.
func (e Engine) Transition(ctx context.Context, caseID, target, actorID, reason string) (domain.Case, error) {
	var updated domain.Case
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		if !isOwner(c, actorID) {
			return domain.AuthorizationError{CaseID: c.ID, Actor: actorID, Owner: c.OwnerIdentity()}
		}
		if err := ensureCaseTransition(c.Status, target); err != nil {
			return err
		}
		now := e.now()
		if err := tx.UpdateCaseFields(ctx, c.ID, repo.CaseUpdate{Status: &target, UpdatedAt: now}); err != nil {
			return err
		}
		content := fmt.Sprintf("State advanced from %s to %s", c.Status, target)
		if strings.TrimSpace(reason) != "" {
			content += ": " + strings.TrimSpace(reason)
		}
		meta := map[string]any{
			"from_state": c.Status,
			"to_state":   target,
			"reason":     reason,
		}
		l := e.ledgerFor(tx)
		if _, err := l.Append(ctx, ledger.Entry{
			CaseID:      c.ID,
			Actor:       actorID,
			Action:      domain.ActionStateTransition,
			Content:     content,
			SourceType:  domain.SourceSystem,
			Reliability: domain.ReliabilityHigh,
			Metadata:    meta,
		}); err != nil {
			return err
		}
		if _, err := l.AppendAudit(ctx, c.ID, actorID, domain.ActionStateTransition, meta); err != nil {
			return err
		}
		updated, err = tx.GetCase(ctx, c.ID)
		return err
	})
	label := target
	if !ValidStatus(label) {
		label = "unknown"
	}
	metrics.TransitionsTotal.WithLabelValues(label, transitionOutcome(err)).Inc()
	if err != nil {
		return domain.Case{}, err
	}
	e.log().Info("case transitioned", zap.String("case_id", caseID), zap.String("to", target), zap.String("actor", actorID))
	return updated, nil
}

func isOwner(c domain.Case, actorID string) bool {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return false
	}
	if owner := c.OwnerIdentity(); owner != "" && strings.EqualFold(owner, actorID) {
		return true
	}
	return c.OwnerID != nil && *c.OwnerID == actorID
}

func transitionOutcome(err error) string {
	switch err.(type) {
	case nil:
		return "ok"
	case domain.AuthorizationError:
		return "unauthorized"
	case domain.InvalidTransitionError:
		return "invalid"
	default:
		return "error"
	}
}
