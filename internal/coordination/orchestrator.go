package coordination

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"disruptline/internal/config"
	"disruptline/internal/domain"
	"disruptline/internal/ledger"
	"disruptline/internal/metrics"
	"disruptline/internal/reasoning"
)

const tracerName = "disruptline/coordination"

// AuditPlanExecuted is the audit action written by ExecutePlan.
const AuditPlanExecuted = "PLAN_EXECUTION_REQUESTED"

// CaseStore is the case side of the engine the orchestrator drives.
type CaseStore interface {
	GetCase(ctx context.Context, id string) (domain.Case, error)
	RecordStakeholders(ctx context.Context, caseID, actorID string, stakeholders []domain.Stakeholder, phase string, attempt map[string]any) (domain.Case, error)
	RecordRCA(ctx context.Context, caseID, actorID string, rca domain.RCAResult, meta map[string]any) (domain.Case, error)
	RecomputeEvidence(ctx context.Context, caseID string) (domain.EvidenceScore, error)
}

// History is the case ledger as seen by the pipeline.
type History interface {
	TimelineWriter
	TimelineReader
	AppendAudit(ctx context.Context, caseID, actor, action string, payload map[string]any) (domain.AuditEntry, error)
	ListSince(ctx context.Context, caseID string, since time.Time) ([]domain.TimelineEvent, error)
}

// Orchestrator exposes the coordination phases. Each phase is triggered
// independently; none advances to the next on its own.
type Orchestrator struct {
	Cases       CaseStore
	History     History
	Identifier  Identifier
	Dispatcher  Dispatcher
	Collector   Collector
	Synthesizer Synthesizer
	Executor    Executor
	// ExpectedResponses is the quota PerformEnhancedRCA reports completeness against.
	ExpectedResponses int
	Logger            *zap.Logger
	Tracer            trace.Tracer
}

// Deps are the collaborators New wires into an Orchestrator.
type Deps struct {
	Cases    CaseStore
	History  History
	Results  ActionResultStore
	Reasoner reasoning.Reasoner
	Senders  map[string]Sender
	Logger   *zap.Logger
	Now      func() time.Time
}

// New builds an orchestrator from config and collaborators. Nil senders
// default to NewSenders(cfg.Channels).
func New(cfg config.Config, deps Deps) Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	senders := deps.Senders
	if senders == nil {
		senders = NewSenders(cfg.Channels, logger, deps.Now)
	}
	return Orchestrator{
		Cases:      deps.Cases,
		History:    deps.History,
		Identifier: NewIdentifier(cfg.Regions),
		Dispatcher: Dispatcher{
			Senders:     senders,
			Timeline:    deps.History,
			Logger:      logger,
			Concurrency: cfg.Outreach.Concurrency,
			Now:         deps.Now,
		},
		Collector: Collector{
			Timeline:     deps.History,
			PollInterval: cfg.Collector.PollInterval,
			Logger:       logger,
		},
		Synthesizer: Synthesizer{Reasoner: deps.Reasoner, Logger: logger},
		Executor: Executor{
			Senders:     senders,
			Timeline:    deps.History,
			Results:     deps.Results,
			Logger:      logger,
			Concurrency: cfg.Executor.Concurrency,
			Now:         deps.Now,
		},
		ExpectedResponses: cfg.Collector.ExpectedResponses,
		Logger:            logger,
	}
}

func (o Orchestrator) tracer() trace.Tracer {
	if o.Tracer != nil {
		return o.Tracer
	}
	return otel.Tracer(tracerName)
}

func (o Orchestrator) log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// phase wraps one coordination step in a span and a duration sample.
func (o Orchestrator) phase(ctx context.Context, name, caseID string, fn func(context.Context) error) error {
	ctx, span := o.tracer().Start(ctx, "coordination."+name, trace.WithAttributes(attribute.String("case.id", caseID)))
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	metrics.PhaseDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// StartOptions override what StartCoordination derives from the case.
type StartOptions struct {
	ActorID  string
	Summary  string
	Location string
}

type StartResult struct {
	Case         domain.Case             `json:"case"`
	Stakeholders []domain.Stakeholder    `json:"stakeholders"`
	Outreach     []domain.OutreachResult `json:"outreach_results"`
	Contacted    int                     `json:"total_contacted"`
}

// StartCoordination identifies stakeholders, contacts them, and records
// the list on the case with phase outreach_sent.
func (o Orchestrator) StartCoordination(ctx context.Context, caseID string, opts StartOptions) (StartResult, error) {
	var out StartResult
	err := o.phase(ctx, "outreach", caseID, func(ctx context.Context) error {
		c, err := o.Cases.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		summary := strings.TrimSpace(opts.Summary)
		if summary == "" {
			summary = Summary(c)
		}
		location := strings.TrimSpace(opts.Location)
		if location == "" {
			location = c.Disruption.Identifier
		}
		stakeholders := o.Identifier.Identify(c.Disruption.Type, location)
		results := o.Dispatcher.Dispatch(ctx, stakeholders, c.ID, summary)
		sent := 0
		for _, r := range results {
			if r.Status == domain.OutreachSent {
				sent++
			}
		}
		actor := opts.ActorID
		if actor == "" {
			actor = ActorOutreach
		}
		updated, err := o.Cases.RecordStakeholders(ctx, c.ID, actor, stakeholders, domain.PhaseOutreachSent, map[string]any{
			"disruption_type": c.Disruption.Type,
			"location":        location,
			"stakeholders":    len(stakeholders),
			"sent":            sent,
			"results":         results,
		})
		if err != nil {
			return err
		}
		out = StartResult{Case: updated, Stakeholders: stakeholders, Outreach: results, Contacted: len(results)}
		o.log().Info("coordination started", zap.String("case_id", c.ID), zap.Int("stakeholders", len(stakeholders)), zap.Int("sent", sent))
		return nil
	})
	return out, err
}

// Summary is the one-line disruption description used in outreach.
func Summary(c domain.Case) string {
	d := c.Disruption
	head := strings.ReplaceAll(NormalizeDisruptionType(d.Type), "_", " ")
	if d.Identifier != "" {
		head = fmt.Sprintf("%s at %s", head, d.Identifier)
	}
	if c.Description == "" {
		return head
	}
	return head + ": " + c.Description
}

type RCAOutcome struct {
	Case      domain.Case      `json:"case"`
	RCA       domain.RCAResult `json:"rca_result"`
	Fallback  bool             `json:"fallback"`
	Responses int              `json:"responses_used"`
	Complete  bool             `json:"responses_complete"`
	// Sources counts the stakeholder responses plus the initial report.
	Sources int `json:"data_sources_count"`
}

// PerformEnhancedRCA reads the responses already on the timeline, asks
// for a root-cause synthesis and stores the result, fallback included.
func (o Orchestrator) PerformEnhancedRCA(ctx context.Context, caseID, actorID string) (RCAOutcome, error) {
	var out RCAOutcome
	err := o.phase(ctx, "rca", caseID, func(ctx context.Context) error {
		c, err := o.Cases.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		collected, err := o.Collector.Collect(ctx, caseID, o.ExpectedResponses, 0)
		if err != nil {
			return err
		}
		timeline, err := o.History.ListSince(ctx, caseID, time.Time{})
		if err != nil {
			return err
		}
		rca, fallback := o.Synthesizer.Synthesize(ctx, SynthesisInput{Case: c, Timeline: timeline, Responses: collected.Responses})
		actor := actorID
		if actor == "" {
			actor = ActorRCA
		}
		updated, err := o.Cases.RecordRCA(ctx, caseID, actor, rca, map[string]any{
			"fallback":  fallback,
			"responses": len(collected.Responses),
		})
		if err != nil {
			return err
		}
		out = RCAOutcome{
			Case:      updated,
			RCA:       rca,
			Fallback:  fallback,
			Responses: len(collected.Responses),
			Complete:  collected.Complete,
			Sources:   len(collected.Responses) + 1,
		}
		return nil
	})
	return out, err
}

// ExecutePlan runs an approved action plan against the case.
func (o Orchestrator) ExecutePlan(ctx context.Context, caseID, actorID string, plan []domain.ActionItem) ([]domain.ActionResult, error) {
	var results []domain.ActionResult
	err := o.phase(ctx, "execute", caseID, func(ctx context.Context) error {
		if _, err := o.Cases.GetCase(ctx, caseID); err != nil {
			return err
		}
		for i, a := range plan {
			if strings.TrimSpace(a.Description) == "" {
				return domain.ValidationError{Field: fmt.Sprintf("action_plan[%d].description", i), Reason: "required"}
			}
		}
		actor := actorID
		if actor == "" {
			actor = ActorExecutor
		}
		if _, err := o.History.AppendAudit(ctx, caseID, actor, AuditPlanExecuted, map[string]any{"actions": plan}); err != nil {
			return err
		}
		var err error
		results, err = o.Executor.Execute(ctx, plan, caseID)
		return err
	})
	return results, err
}

// SimulateResponse injects a stakeholder reply so collection can be
// exercised without live outreach.
func (o Orchestrator) SimulateResponse(ctx context.Context, caseID, actor, content string) (domain.TimelineEvent, error) {
	if strings.TrimSpace(actor) == "" {
		return domain.TimelineEvent{}, domain.ValidationError{Field: "actor", Reason: "required"}
	}
	if strings.TrimSpace(content) == "" {
		return domain.TimelineEvent{}, domain.ValidationError{Field: "content", Reason: "required"}
	}
	if _, err := o.Cases.GetCase(ctx, caseID); err != nil {
		return domain.TimelineEvent{}, err
	}
	ev, err := o.History.Append(ctx, ledger.Entry{
		CaseID:      caseID,
		Actor:       actor,
		Action:      domain.ActionStakeholderResponse,
		Content:     content,
		SourceType:  domain.SourceText,
		Reliability: domain.ReliabilityHigh,
		Metadata:    map[string]any{"simulated": true},
	})
	if err != nil {
		return domain.TimelineEvent{}, err
	}
	if _, err := o.History.AppendAudit(ctx, caseID, ActorSimulator, domain.ActionStakeholderResponse, map[string]any{"event_id": ev.ID, "simulated": true}); err != nil {
		return ev, err
	}
	if _, err := o.Cases.RecomputeEvidence(ctx, caseID); err != nil {
		return ev, err
	}
	return ev, nil
}

// Collect exposes the response collector for callers that want to wait.
func (o Orchestrator) Collect(ctx context.Context, caseID string, expected int, timeout time.Duration) (Collection, error) {
	ctx, span := o.tracer().Start(ctx, "coordination.collect", trace.WithAttributes(attribute.String("case.id", caseID)))
	defer span.End()
	if _, err := o.Cases.GetCase(ctx, caseID); err != nil {
		return Collection{}, err
	}
	return o.Collector.Collect(ctx, caseID, expected, timeout)
}
