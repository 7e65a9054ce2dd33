package coordination

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disruptline/internal/domain"
	"disruptline/internal/engine"
)

func TestStartCoordinationPersistsStakeholders(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "Customs Hold", "JNPT Mumbai")
	senders := allSenders(okSender(domain.OutreachSent))
	senders[MethodAPI] = failingSender()
	o := env.orchestrator(senders, nil)

	res, err := o.StartCoordination(context.Background(), c.ID, StartOptions{ActorID: "ops@example.com"})
	require.NoError(t, err)
	require.Len(t, res.Stakeholders, 4)
	assert.Equal(t, 4, res.Contacted)
	assert.Equal(t, domain.PhaseOutreachSent, res.Case.CoordinationPhase)
	assert.Len(t, res.Case.Stakeholders, 4)
	assert.Equal(t, "Jagdish Customs Clearing", res.Case.Stakeholders[0].Contact.Name)

	// shipping_line goes out over api, which fails
	assert.Equal(t, 3, countActions(t, env, c.ID, domain.ActionStakeholderContacted))

	audit, err := env.ledger.Audit(context.Background(), []string{c.ID}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, audit)
	assert.Equal(t, engine.AuditOutreachStarted, audit[0].Action)
	assert.EqualValues(t, 3, audit[0].Payload["sent"])

	// stakeholders count toward counterparty evidence
	assert.Contains(t, res.Case.Evidence.Satisfied, "Counterparty identified")
}

func TestStartCoordinationUnknownTypeAndMissingCase(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "volcanic_ash", "Delhi")
	o := env.orchestrator(allSenders(okSender(domain.OutreachSent)), nil)

	res, err := o.StartCoordination(context.Background(), c.ID, StartOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Stakeholders)
	assert.Equal(t, domain.PhaseOutreachSent, res.Case.CoordinationPhase)

	_, err = o.StartCoordination(context.Background(), "missing", StartOptions{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPerformEnhancedRCAStoresResult(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "customs_hold", "JNPT")
	var prompt string
	o := env.orchestrator(allSenders(okSender(domain.OutreachSent)), func(_ context.Context, _, user string) (string, error) {
		prompt = user
		return parsedRCA, nil
	})
	_, err := o.SimulateResponse(context.Background(), c.ID, "Jagdish Customs Clearing", "Valuation query on invoice")
	require.NoError(t, err)

	out, err := o.PerformEnhancedRCA(context.Background(), c.ID, "")
	require.NoError(t, err)
	assert.False(t, out.Fallback)
	assert.Equal(t, 1, out.Responses)
	assert.Equal(t, 2, out.Sources)
	assert.False(t, out.Complete)
	assert.Contains(t, prompt, "Valuation query on invoice")

	require.NotNil(t, out.Case.RCA)
	assert.Equal(t, "Invoice value mismatch triggered valuation hold", out.Case.RCA.RootCause)
	assert.Equal(t, ActorRCA, out.Case.RCAPerformedBy)
	require.NotNil(t, out.Case.RCAPerformedAt)
	assert.Contains(t, out.Case.Evidence.Satisfied, "RCA consistent")

	events, err := env.ledger.ListActions(context.Background(), c.ID, []string{domain.ActionEnhancedRCAPerformed}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Enhanced RCA completed. Root Cause: Invoice value mismatch triggered valuation hold", events[0].Content)
}

func TestPerformEnhancedRCAFallbackIsPersisted(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "customs_hold", "JNPT")
	o := env.orchestrator(nil, func(context.Context, string, string) (string, error) {
		return "not json", nil
	})

	out, err := o.PerformEnhancedRCA(context.Background(), c.ID, "ops@example.com")
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	require.NotNil(t, out.Case.RCA)
	assert.Equal(t, domain.ConfidenceLow, out.Case.RCA.Confidence)

	events, err := env.ledger.ListActions(context.Background(), c.ID, []string{domain.ActionEnhancedRCAPerformed}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0].Metadata["fallback"])
	assert.Equal(t, domain.ReliabilityLow, events[0].Reliability)
}

func TestExecutePlanAuditsAndValidates(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "truck_breakdown", "Pune")
	o := env.orchestrator(allSenders(okSender(domain.OutreachSent)), nil)

	_, err := o.ExecutePlan(context.Background(), c.ID, "lead@example.com", []domain.ActionItem{{Type: ActionNotify}})
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)

	results, err := o.ExecutePlan(context.Background(), c.ID, "lead@example.com", []domain.ActionItem{
		{Type: ActionReminder, Description: "Confirm backup truck dispatched", Deadline: "1h"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.ActionCompleted, results[0].Status)

	audit, err := env.ledger.Audit(context.Background(), []string{c.ID}, 0)
	require.NoError(t, err)
	assert.Equal(t, AuditPlanExecuted, audit[0].Action)
	assert.Equal(t, "lead@example.com", audit[0].Actor)
}

func TestSimulateResponse(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "customs_hold", "JNPT")
	o := env.orchestrator(nil, nil)

	ev, err := o.SimulateResponse(context.Background(), c.ID, "Port Ops", "Container on hold in yard 4")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStakeholderResponse, ev.Action)
	assert.Equal(t, true, ev.Metadata["simulated"])
	assert.Equal(t, domain.ReliabilityHigh, ev.Reliability)

	_, err = o.SimulateResponse(context.Background(), c.ID, "", "x")
	assert.Error(t, err)
	_, err = o.SimulateResponse(context.Background(), "nope", "Port Ops", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSummary(t *testing.T) {
	c := domain.Case{
		Description: "Container held",
		Disruption:  domain.DisruptionDetails{Type: "Customs-Hold", Identifier: "MSKU1"},
	}
	assert.Equal(t, "customs hold at MSKU1: Container held", Summary(c))
}
