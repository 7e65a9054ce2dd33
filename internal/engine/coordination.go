package engine

import (
	"context"

	"go.uber.org/zap"

	"disruptline/internal/domain"
	"disruptline/internal/ledger"
	"disruptline/internal/repo"
)

// Coordination audit actions.
const (
	AuditOutreachStarted = "OUTREACH_STARTED"
	AuditRCARecorded     = "RCA_RECORDED"
)

// RecordStakeholders stores the identified stakeholder list and the
// coordination phase, and audits what was attempted.
func (e Engine) RecordStakeholders(ctx context.Context, caseID, actorID string, stakeholders []domain.Stakeholder, phase string, attempt map[string]any) (domain.Case, error) {
	var updated domain.Case
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		if _, err := tx.GetCase(ctx, caseID); err != nil {
			return err
		}
		list := stakeholders
		if list == nil {
			list = []domain.Stakeholder{}
		}
		if err := tx.UpdateCaseFields(ctx, caseID, repo.CaseUpdate{
			Stakeholders:      &list,
			CoordinationPhase: &phase,
			UpdatedAt:         e.now(),
		}); err != nil {
			return err
		}
		if _, err := e.ledgerFor(tx).AppendAudit(ctx, caseID, actorID, AuditOutreachStarted, attempt); err != nil {
			return err
		}
		if _, err := e.recompute(ctx, tx, caseID); err != nil {
			return err
		}
		var err error
		updated, err = tx.GetCase(ctx, caseID)
		return err
	})
	if err != nil {
		return domain.Case{}, err
	}
	e.log().Info("stakeholders recorded", zap.String("case_id", caseID), zap.Int("count", len(stakeholders)), zap.String("phase", phase))
	return updated, nil
}

// RecordRCA stores a root-cause result on the case, appends an
// ENHANCED_RCA_PERFORMED event summarizing it and rescores the case.
func (e Engine) RecordRCA(ctx context.Context, caseID, actorID string, rca domain.RCAResult, meta map[string]any) (domain.Case, error) {
	var updated domain.Case
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		if _, err := tx.GetCase(ctx, caseID); err != nil {
			return err
		}
		now := e.now()
		if err := tx.UpdateCaseFields(ctx, caseID, repo.CaseUpdate{
			RCA:            &rca,
			RCAPerformedAt: &now,
			RCAPerformedBy: &actorID,
			UpdatedAt:      now,
		}); err != nil {
			return err
		}
		metadata := map[string]any{
			"confidence":          rca.Confidence,
			"recommended_actions": len(rca.RecommendedActions),
		}
		for k, v := range meta {
			metadata[k] = v
		}
		l := e.ledgerFor(tx)
		if _, err := l.Append(ctx, ledger.Entry{
			CaseID:      caseID,
			Actor:       actorID,
			Action:      domain.ActionEnhancedRCAPerformed,
			Content:     "Enhanced RCA completed. Root Cause: " + rca.RootCause,
			SourceType:  domain.SourceSystem,
			Reliability: rcaReliability(rca.Confidence),
			Metadata:    metadata,
		}); err != nil {
			return err
		}
		if _, err := l.AppendAudit(ctx, caseID, actorID, AuditRCARecorded, metadata); err != nil {
			return err
		}
		if _, err := e.recompute(ctx, tx, caseID); err != nil {
			return err
		}
		var err error
		updated, err = tx.GetCase(ctx, caseID)
		return err
	})
	if err != nil {
		return domain.Case{}, err
	}
	return updated, nil
}

func rcaReliability(confidence string) string {
	switch confidence {
	case domain.ConfidenceHigh:
		return domain.ReliabilityHigh
	case domain.ConfidenceLow:
		return domain.ReliabilityLow
	default:
		return domain.ReliabilityMedium
	}
}
