package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"disruptline/internal/domain"
	"disruptline/internal/evidence"
	"disruptline/internal/ledger"
	"disruptline/internal/metrics"
	"disruptline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Ledger ledger.Ledger
	Logger *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Ledger: ledger.New(r),
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// ledgerFor binds the ledger to r and to the engine clock.
func (e Engine) ledgerFor(r repo.Repo) ledger.Ledger {
	l := e.Ledger.With(r)
	l.Now = e.now
	return l
}

// CaseCreateOptions are parameters for reporting a disruption.
type CaseCreateOptions struct {
	Description       string
	Disruption        domain.DisruptionDetails
	StructuredContext *domain.StructuredContext
	FinancialImpact   *domain.FinancialImpact
	ActorID           string
}

func validateCreate(opts CaseCreateOptions) error {
	check := func(field, v string, minLen int) error {
		if len(strings.TrimSpace(v)) < minLen {
			return domain.ValidationError{Field: field, Reason: fmt.Sprintf("must be at least %d characters", minLen)}
		}
		return nil
	}
	for _, c := range []struct {
		field, value string
		minLen       int
	}{
		{"description", opts.Description, 10},
		{"disruption_details.disruption_type", opts.Disruption.Type, 3},
		{"disruption_details.scope", opts.Disruption.Scope, 3},
		{"disruption_details.identifier", opts.Disruption.Identifier, 1},
		{"disruption_details.source", opts.Disruption.Source, 3},
	} {
		if err := check(c.field, c.value, c.minLen); err != nil {
			return err
		}
	}
	if strings.TrimSpace(opts.ActorID) == "" {
		return domain.ValidationError{Field: "actor", Reason: "required"}
	}
	return nil
}

// CreateCase records a new disruption in REPORTED status with no owner.
func (e Engine) CreateCase(ctx context.Context, opts CaseCreateOptions) (domain.Case, error) {
	if err := validateCreate(opts); err != nil {
		return domain.Case{}, err
	}
	now := e.now()
	if opts.Disruption.DiscoveredAt == "" {
		opts.Disruption.DiscoveredAt = now.Format(time.RFC3339)
	}
	c := domain.Case{
		ID:                uuid.NewString(),
		Description:       strings.TrimSpace(opts.Description),
		Disruption:        opts.Disruption,
		StructuredContext: opts.StructuredContext,
		FinancialImpact:   opts.FinancialImpact,
		Status:            domain.StatusReported,
		CreatedBy:         opts.ActorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		if err := tx.InsertCase(ctx, c); err != nil {
			return err
		}
		l := e.ledgerFor(tx)
		if _, err := l.Append(ctx, ledger.Entry{
			CaseID:      c.ID,
			Actor:       opts.ActorID,
			Action:      domain.ActionDisruptionReported,
			Content:     c.Description,
			SourceType:  domain.SourceText,
			Reliability: domain.ReliabilityHigh,
			Metadata: map[string]any{
				"disruption_type": c.Disruption.Type,
				"scope":           c.Disruption.Scope,
				"identifier":      c.Disruption.Identifier,
				"time_discovered": c.Disruption.DiscoveredAt,
				"source":          c.Disruption.Source,
			},
		}); err != nil {
			return err
		}
		if _, err := l.AppendAudit(ctx, c.ID, opts.ActorID, domain.ActionCaseCreated, map[string]any{
			"disruption_type": c.Disruption.Type,
			"identifier":      c.Disruption.Identifier,
		}); err != nil {
			return err
		}
		_, err := e.recompute(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return domain.Case{}, err
	}
	metrics.CasesCreatedTotal.Inc()
	e.log().Info("case reported", zap.String("case_id", c.ID), zap.String("type", c.Disruption.Type), zap.String("actor", opts.ActorID))
	return e.Repo.GetCase(ctx, c.ID)
}

func (e Engine) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return e.Repo.GetCase(ctx, id)
}

func (e Engine) ListCases(ctx context.Context, f repo.CaseFilters) ([]domain.Case, error) {
	return e.Repo.ListCases(ctx, f)
}

// ContextOptions describe one piece of evidence added to a case timeline.
type ContextOptions struct {
	CaseID      string
	ActorID     string
	Content     string
	SourceType  string
	Reliability string
	Metadata    map[string]any
}

// AddContext appends a CONTEXT_ADDED event. The first voice report also
// becomes the case's transcript.
func (e Engine) AddContext(ctx context.Context, opts ContextOptions) (domain.TimelineEvent, error) {
	if strings.TrimSpace(opts.Content) == "" {
		return domain.TimelineEvent{}, domain.ValidationError{Field: "content", Reason: "required"}
	}
	switch opts.SourceType {
	case "":
		opts.SourceType = domain.SourceText
	case domain.SourceText, domain.SourceVoice, domain.SourceSystem:
	default:
		return domain.TimelineEvent{}, domain.ValidationError{Field: "source_type", Reason: "must be text, voice or system"}
	}
	switch opts.Reliability {
	case "":
		opts.Reliability = domain.ReliabilityMedium
	case domain.ReliabilityLow, domain.ReliabilityMedium, domain.ReliabilityHigh:
	default:
		return domain.TimelineEvent{}, domain.ValidationError{Field: "reliability", Reason: "must be low, medium or high"}
	}
	var ev domain.TimelineEvent
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		c, err := tx.GetCase(ctx, opts.CaseID)
		if err != nil {
			return err
		}
		ev, err = e.ledgerFor(tx).Append(ctx, ledger.Entry{
			CaseID:      c.ID,
			Actor:       opts.ActorID,
			Action:      domain.ActionContextAdded,
			Content:     opts.Content,
			SourceType:  opts.SourceType,
			Reliability: opts.Reliability,
			Metadata:    opts.Metadata,
		})
		if err != nil {
			return err
		}
		if opts.SourceType == domain.SourceVoice && c.VoiceTranscript == "" {
			transcript := opts.Content
			if err := tx.UpdateCaseFields(ctx, c.ID, repo.CaseUpdate{VoiceTranscript: &transcript, UpdatedAt: e.now()}); err != nil {
				return err
			}
		}
		_, err = e.recompute(ctx, tx, c.ID)
		return err
	})
	return ev, err
}

// AddDocument records that a supporting document was attached.
func (e Engine) AddDocument(ctx context.Context, caseID, actorID, name, kind string) (domain.Document, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Document{}, domain.ValidationError{Field: "name", Reason: "required"}
	}
	doc := domain.Document{
		ID:         uuid.NewString(),
		CaseID:     caseID,
		Name:       strings.TrimSpace(name),
		Kind:       kind,
		UploadedBy: actorID,
		CreatedAt:  e.now(),
	}
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		if _, err := tx.GetCase(ctx, caseID); err != nil {
			return err
		}
		if err := tx.InsertDocument(ctx, doc); err != nil {
			return err
		}
		if _, err := e.ledgerFor(tx).Append(ctx, ledger.Entry{
			CaseID:      caseID,
			Actor:       actorID,
			Action:      domain.ActionDocumentAdded,
			Content:     "Document added: " + doc.Name,
			SourceType:  domain.SourceSystem,
			Reliability: domain.ReliabilityHigh,
			Metadata:    map[string]any{"document_id": doc.ID, "name": doc.Name, "kind": kind},
		}); err != nil {
			return err
		}
		_, err := e.recompute(ctx, tx, caseID)
		return err
	})
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// RecomputeEvidence rescores a case from its current fields, timeline and
// documents and stores the snapshot.
func (e Engine) RecomputeEvidence(ctx context.Context, caseID string) (domain.EvidenceScore, error) {
	var score domain.EvidenceScore
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		var err error
		score, err = e.recompute(ctx, tx, caseID)
		return err
	})
	return score, err
}

func (e Engine) recompute(ctx context.Context, tx repo.Repo, caseID string) (domain.EvidenceScore, error) {
	c, err := tx.GetCase(ctx, caseID)
	if err != nil {
		return domain.EvidenceScore{}, err
	}
	var events []domain.TimelineEvent
	for ev, err := range e.ledgerFor(tx).All(ctx, caseID, 0) {
		if err != nil {
			return domain.EvidenceScore{}, err
		}
		events = append(events, ev)
	}
	docs, err := tx.CountDocuments(ctx, caseID)
	if err != nil {
		return domain.EvidenceScore{}, err
	}
	score := evidence.Score(c, events, docs, e.now())
	update := repo.CaseUpdate{Evidence: &score}
	if c.EvidenceReadyAt == nil {
		update.EvidenceReadyAt = evidence.ReadyAt(nil, score)
	}
	if err := tx.UpdateCaseFields(ctx, caseID, update); err != nil {
		return domain.EvidenceScore{}, err
	}
	metrics.EvidenceRecomputeTotal.Inc()
	metrics.EvidenceScore.Observe(float64(score.Score))
	if update.EvidenceReadyAt != nil {
		e.log().Info("case evidence ready", zap.String("case_id", caseID), zap.Int("score", score.Score))
	}
	return score, nil
}

// Timeline returns a case's events, newest first.
func (e Engine) Timeline(ctx context.Context, caseID string, limit int) ([]domain.TimelineEvent, error) {
	if _, err := e.Repo.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return e.Ledger.List(ctx, caseID, limit)
}

// Audit returns audit entries for the given cases, newest first.
func (e Engine) Audit(ctx context.Context, caseIDs []string, limit int) ([]domain.AuditEntry, error) {
	return e.Ledger.Audit(ctx, caseIDs, limit)
}
