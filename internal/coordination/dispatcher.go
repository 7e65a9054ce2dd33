package coordination

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"disruptline/internal/domain"
	"disruptline/internal/ledger"
	"disruptline/internal/metrics"
)

// Actor names used for events the pipeline writes on its own behalf.
const (
	ActorOutreach  = "Disruptline (Outreach)"
	ActorRCA       = "Disruptline (Root Cause)"
	ActorExecutor  = "Disruptline (Executor)"
	ActorSimulator = "Disruptline (Simulator)"
)

// TimelineWriter appends timeline events.
type TimelineWriter interface {
	Append(ctx context.Context, e ledger.Entry) (domain.TimelineEvent, error)
}

// Dispatcher sends role-specific messages to stakeholders in parallel.
type Dispatcher struct {
	Senders     map[string]Sender
	Timeline    TimelineWriter
	Logger      *zap.Logger
	Concurrency int
	Now         func() time.Time
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Dispatcher) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Dispatch contacts every stakeholder and returns one result per
// stakeholder in input order. A failing channel only fails its own
// result. Sent messages are then logged to the case timeline; a logging
// failure is not returned.
func (d Dispatcher) Dispatch(ctx context.Context, stakeholders []domain.Stakeholder, caseID, summary string) []domain.OutreachResult {
	results := fanOut(ctx, d.Concurrency, stakeholders,
		func(ctx context.Context, s domain.Stakeholder) (domain.OutreachResult, error) {
			return d.send(ctx, s, caseID, summary)
		},
		func(s domain.Stakeholder, err error) domain.OutreachResult {
			d.log().Warn("outreach failed", zap.String("case_id", caseID), zap.String("role", s.Role), zap.String("method", s.ContactMethod), zap.Error(err))
			return domain.OutreachResult{
				Stakeholder:   s.Role,
				ContactMethod: s.ContactMethod,
				Status:        domain.OutreachFailed,
				Error:         err.Error(),
				Timestamp:     d.now(),
			}
		},
	)
	for _, r := range results {
		metrics.OutreachTotal.WithLabelValues(r.ContactMethod, r.Status).Inc()
	}
	d.logContacted(ctx, caseID, results)
	return results
}

func (d Dispatcher) send(ctx context.Context, s domain.Stakeholder, caseID, summary string) (domain.OutreachResult, error) {
	sender, ok := d.Senders[s.ContactMethod]
	if !ok {
		return domain.OutreachResult{
			Stakeholder:   s.Role,
			ContactMethod: s.ContactMethod,
			Status:        domain.OutreachSkipped,
			Reason:        "Unknown contact method: " + s.ContactMethod,
			Timestamp:     d.now(),
		}, nil
	}
	msg := RenderMessage(s.Role, summary, caseID)
	res, err := sender.Send(ctx, s.Contact, msg, caseID)
	if err != nil {
		return domain.OutreachResult{}, err
	}
	status := res.Status
	if status == "" {
		status = domain.OutreachSent
	}
	return domain.OutreachResult{
		Stakeholder:   s.Role,
		ContactMethod: s.ContactMethod,
		Status:        status,
		MessageID:     res.MessageID,
		Timestamp:     d.now(),
	}, nil
}

func (d Dispatcher) logContacted(ctx context.Context, caseID string, results []domain.OutreachResult) {
	if d.Timeline == nil {
		return
	}
	for _, r := range results {
		if r.Status != domain.OutreachSent {
			continue
		}
		_, err := d.Timeline.Append(ctx, ledger.Entry{
			CaseID:      caseID,
			Actor:       ActorOutreach,
			Action:      domain.ActionStakeholderContacted,
			Content:     fmt.Sprintf("Contacted %s via %s", r.Stakeholder, r.ContactMethod),
			SourceType:  domain.SourceSystem,
			Reliability: domain.ReliabilityHigh,
			Metadata: map[string]any{
				"stakeholder":    r.Stakeholder,
				"contact_method": r.ContactMethod,
				"status":         r.Status,
				"message_id":     r.MessageID,
			},
		})
		if err != nil {
			d.log().Error("log outreach to timeline", zap.String("case_id", caseID), zap.Error(err))
			return
		}
	}
}
