package coordination

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"disruptline/internal/config"
	"disruptline/internal/db"
	"disruptline/internal/domain"
	"disruptline/internal/engine"
	"disruptline/internal/ledger"
	"disruptline/internal/migrate"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type testEnv struct {
	engine engine.Engine
	ledger ledger.Ledger
	clock  *clock
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	clk := &clock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	e := engine.New(conn, nil)
	e.Now = clk.Now
	l := e.Ledger
	l.Now = clk.Now
	return testEnv{engine: e, ledger: l, clock: clk}
}

func (env testEnv) createCase(t *testing.T, disruptionType, identifier string) domain.Case {
	t.Helper()
	c, err := env.engine.CreateCase(context.Background(), engine.CaseCreateOptions{
		Description: "Container held at customs pending inspection",
		Disruption: domain.DisruptionDetails{
			Type:       disruptionType,
			Scope:      "single container",
			Identifier: identifier,
			Source:     "field operator",
		},
		ActorID: "ops@example.com",
	})
	require.NoError(t, err)
	return c
}

func (env testEnv) orchestrator(senders map[string]Sender, reasoner func(ctx context.Context, system, user string) (string, error)) Orchestrator {
	cfg := *config.Default()
	deps := Deps{
		Cases:   env.engine,
		History: env.ledger,
		Results: env.engine.Repo,
		Senders: senders,
		Now:     env.clock.Now,
	}
	if reasoner != nil {
		deps.Reasoner = fakeReasoner(reasoner)
	}
	return New(cfg, deps)
}

type fakeReasoner func(ctx context.Context, system, user string) (string, error)

func (f fakeReasoner) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

func okSender(status string) Sender {
	return SenderFunc(func(_ context.Context, _ domain.Contact, _ string, caseID string) (SendResult, error) {
		return SendResult{Status: status, MessageID: "msg_" + caseID}, nil
	})
}

var errTransport = errors.New("connection refused")

func failingSender() Sender {
	return SenderFunc(func(context.Context, domain.Contact, string, string) (SendResult, error) {
		return SendResult{}, domain.ExternalCallError{Collaborator: "whatsapp", Err: errTransport}
	})
}

func allSenders(s Sender) map[string]Sender {
	return map[string]Sender{
		MethodWhatsApp: s, MethodSMS: s, MethodEmail: s, MethodPhone: s, MethodAPI: s,
	}
}

func countActions(t *testing.T, env testEnv, caseID, action string) int {
	t.Helper()
	events, err := env.ledger.ListActions(context.Background(), caseID, []string{action}, 0)
	require.NoError(t, err)
	return len(events)
}
