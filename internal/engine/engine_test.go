package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"disruptline/internal/db"
	"disruptline/internal/domain"
	"disruptline/internal/engine"
	"disruptline/internal/engine/auth"
	"disruptline/internal/migrate"
	"disruptline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, nil)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return clock }
	ctx := context.Background()
	users := auth.Service{Repo: eng.Repo}
	for _, email := range []string{"ops@example.com", "lead@example.com"} {
		if _, err := users.RegisterUser(ctx, email, ""); err != nil {
			t.Fatalf("register %s: %v", email, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx, clock: &clock}
}

func (env testEnv) advance(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func (env testEnv) createCase(t *testing.T) domain.Case {
	t.Helper()
	c, err := env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{
		Description: "Container MSKU1234567 held at Nhava Sheva customs",
		Disruption: domain.DisruptionDetails{
			Type: "customs_hold", Scope: "single container", Identifier: "JNPT", Source: "driver call",
		},
		ActorID: "ops@example.com",
	})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	return c
}

func countActions(events []domain.TimelineEvent, action string) int {
	n := 0
	for _, ev := range events {
		if ev.Action == action {
			n++
		}
	}
	return n
}

func TestCreateCaseWritesReportAndAudit(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t)
	if c.Status != domain.StatusReported || c.Owner != nil {
		t.Fatalf("unexpected initial case: status=%s owner=%v", c.Status, c.Owner)
	}
	if c.Evidence == nil || c.Evidence.Score != 15 {
		t.Fatalf("expected source attribution only, got %+v", c.Evidence)
	}
	events, err := env.Engine.Timeline(env.Ctx, c.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Action != domain.ActionDisruptionReported {
		t.Fatalf("expected one DISRUPTION_REPORTED event, got %+v", events)
	}
	if events[0].Metadata["disruption_type"] != "customs_hold" {
		t.Fatalf("disruption details missing from metadata: %+v", events[0].Metadata)
	}
	audit, err := env.Engine.Audit(env.Ctx, []string{c.ID}, 0)
	if err != nil || len(audit) != 1 || audit[0].Action != domain.ActionCaseCreated {
		t.Fatalf("expected CASE_CREATED audit, got %+v (%v)", audit, err)
	}
}

func TestCreateCaseValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{
		Description: "short",
		Disruption:  domain.DisruptionDetails{Type: "customs_hold", Scope: "one", Identifier: "X", Source: "driver"},
		ActorID:     "ops@example.com",
	})
	var verr domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "description" {
		t.Fatalf("expected description validation error, got %v", err)
	}
}

func TestAssignThenTransitionScenario(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t)
	before, _ := env.Engine.Timeline(env.Ctx, c.ID, 0)
	beforeAudit, _ := env.Engine.Audit(env.Ctx, []string{c.ID}, 0)

	env.advance(time.Minute)
	c, err := env.Engine.AssignOwner(env.Ctx, c.ID, "ops@example.com", "lead@example.com")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if c.OwnerIdentity() != "ops@example.com" || c.OwnerID == nil {
		t.Fatalf("owner not set: %+v", c)
	}
	env.advance(time.Minute)
	c, err = env.Engine.Transition(env.Ctx, c.ID, domain.StatusClarified, "ops@example.com", "CHA confirmed hold reason")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if c.Status != domain.StatusClarified {
		t.Fatalf("status = %s", c.Status)
	}

	after, _ := env.Engine.Timeline(env.Ctx, c.ID, 0)
	afterAudit, _ := env.Engine.Audit(env.Ctx, []string{c.ID}, 0)
	if len(after)-len(before) != 2 || len(afterAudit)-len(beforeAudit) != 2 {
		t.Fatalf("expected two new events and audit entries, got %d/%d", len(after)-len(before), len(afterAudit)-len(beforeAudit))
	}
	if after[0].Action != domain.ActionStateTransition || after[1].Action != domain.ActionOwnerAssigned {
		t.Fatalf("unexpected newest events: %s, %s", after[0].Action, after[1].Action)
	}
	if after[0].Content != "State advanced from REPORTED to CLARIFIED: CHA confirmed hold reason" {
		t.Fatalf("content = %q", after[0].Content)
	}
	if after[1].Content != "Ownership assigned to ops@example.com" {
		t.Fatalf("content = %q", after[1].Content)
	}
}

func TestReassignRecordsPreviousOwner(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t)
	if _, err := env.Engine.AssignOwner(env.Ctx, c.ID, "ops@example.com", "lead@example.com"); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Second)
	if _, err := env.Engine.AssignOwner(env.Ctx, c.ID, "lead@example.com", "lead@example.com"); err != nil {
		t.Fatal(err)
	}
	events, _ := env.Engine.Timeline(env.Ctx, c.ID, 1)
	if events[0].Content != "Ownership reassigned from ops@example.com to lead@example.com" {
		t.Fatalf("content = %q", events[0].Content)
	}
	if events[0].Metadata["previous_owner"] != "ops@example.com" {
		t.Fatalf("previous owner missing: %+v", events[0].Metadata)
	}
}

func TestAssignOwnerNotFound(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t)
	if _, err := env.Engine.AssignOwner(env.Ctx, c.ID, "ghost@example.com", "lead@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	if _, err := env.Engine.AssignOwner(env.Ctx, "missing", "ops@example.com", "lead@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected case not found, got %v", err)
	}
	events, _ := env.Engine.Timeline(env.Ctx, c.ID, 0)
	if countActions(events, domain.ActionOwnerAssigned) != 0 {
		t.Fatalf("failed assignment must not write events")
	}
}

func TestTransitionByNonOwnerChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t)
	// no owner yet
	if _, err := env.Engine.Transition(env.Ctx, c.ID, domain.StatusClarified, "ops@example.com", ""); !errors.As(err, new(domain.AuthorizationError)) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	c, _ = env.Engine.AssignOwner(env.Ctx, c.ID, "ops@example.com", "lead@example.com")
	env.advance(time.Hour)
	_, err := env.Engine.Transition(env.Ctx, c.ID, domain.StatusClarified, "lead@example.com", "")
	if !errors.As(err, new(domain.AuthorizationError)) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	got, _ := env.Engine.GetCase(env.Ctx, c.ID)
	if got.Status != domain.StatusReported || !got.UpdatedAt.Equal(c.UpdatedAt) {
		t.Fatalf("rejected transition mutated case: %+v", got)
	}
	events, _ := env.Engine.Timeline(env.Ctx, c.ID, 0)
	if countActions(events, domain.ActionStateTransition) != 0 {
		t.Fatalf("rejected transition wrote an event")
	}
}

func TestTransitionFollowsChainOnly(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t)
	if _, err := env.Engine.AssignOwner(env.Ctx, c.ID, "ops@example.com", "ops@example.com"); err != nil {
		t.Fatal(err)
	}
	chain := []string{
		domain.StatusClarified, domain.StatusDecisionRequired, domain.StatusDecided,
		domain.StatusInProgress, domain.StatusResolved,
	}
	all := append([]string{domain.StatusReported}, chain...)
	current := domain.StatusReported
	for _, next := range chain {
		// every target other than the successor is rejected
		for _, target := range all {
			if target == next {
				continue
			}
			_, err := env.Engine.Transition(env.Ctx, c.ID, target, "ops@example.com", "")
			var terr domain.InvalidTransitionError
			if !errors.As(err, &terr) || terr.From != current {
				t.Fatalf("%s -> %s: expected invalid transition, got %v", current, target, err)
			}
		}
		got, err := env.Engine.Transition(env.Ctx, c.ID, next, "ops@example.com", "")
		if err != nil || got.Status != next {
			t.Fatalf("%s -> %s: %v", current, next, err)
		}
		current = next
	}
	if _, ok := engine.NextStatus(domain.StatusResolved); ok {
		t.Fatalf("RESOLVED must be terminal")
	}
	if _, err := env.Engine.Transition(env.Ctx, c.ID, "REOPENED", "ops@example.com", ""); !errors.As(err, new(domain.InvalidTransitionError)) {
		t.Fatalf("expected invalid transition from terminal state, got %v", err)
	}
}

func TestAddContextVoiceSetsTranscriptOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t)
	if _, err := env.Engine.AddContext(env.Ctx, engine.ContextOptions{
		CaseID: c.ID, ActorID: "Ramesh (driver)", Content: "Customs officer asked for the original invoice", SourceType: domain.SourceVoice,
	}); err != nil {
		t.Fatalf("add voice: %v", err)
	}
	if _, err := env.Engine.AddContext(env.Ctx, engine.ContextOptions{
		CaseID: c.ID, ActorID: "Ramesh (driver)", Content: "Second call", SourceType: domain.SourceVoice,
	}); err != nil {
		t.Fatalf("add voice: %v", err)
	}
	got, _ := env.Engine.GetCase(env.Ctx, c.ID)
	if got.VoiceTranscript != "Customs officer asked for the original invoice" {
		t.Fatalf("transcript = %q", got.VoiceTranscript)
	}
	if got.Evidence == nil || got.Evidence.Score != 55 {
		t.Fatalf("expected voice+transcript+attribution = 55, got %+v", got.Evidence)
	}
	if _, err := env.Engine.AddContext(env.Ctx, engine.ContextOptions{CaseID: c.ID, ActorID: "x", Content: "y", SourceType: "fax"}); err == nil {
		t.Fatalf("expected source type validation")
	}
}

func TestEvidenceReadyTimestampSetOnce(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{
		Description:       "Truck KA01AB1234 broke down near Whitefield",
		Disruption:        domain.DisruptionDetails{Type: "truck_breakdown", Scope: "one truck", Identifier: "Whitefield", Source: "driver"},
		StructuredContext: &domain.StructuredContext{CarrierCode: "VRL"},
		ActorID:           "ops@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.EvidenceReadyAt != nil {
		t.Fatalf("case not ready yet")
	}
	env.advance(time.Minute)
	if _, err := env.Engine.AddDocument(env.Ctx, c.ID, "ops@example.com", "breakdown_report.pdf", "report"); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Minute)
	if _, err := env.Engine.AddContext(env.Ctx, engine.ContextOptions{CaseID: c.ID, ActorID: "Driver", Content: "Radiator hose burst", SourceType: domain.SourceVoice}); err != nil {
		t.Fatal(err)
	}
	ready, _ := env.Engine.GetCase(env.Ctx, c.ID)
	if ready.EvidenceReadyAt == nil || ready.Evidence.Score < 70 {
		t.Fatalf("expected ready case, got %+v", ready.Evidence)
	}
	firstReady := *ready.EvidenceReadyAt

	env.advance(time.Hour)
	if _, err := env.Engine.RecomputeEvidence(env.Ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	again, _ := env.Engine.GetCase(env.Ctx, c.ID)
	if !again.EvidenceReadyAt.Equal(firstReady) {
		t.Fatalf("ready timestamp moved from %v to %v", firstReady, *again.EvidenceReadyAt)
	}
	if !again.Evidence.LastCalculated.Equal(*env.clock) {
		t.Fatalf("last calculated not refreshed")
	}
}

func TestListCasesByOwner(t *testing.T) {
	env := newTestEnv(t)
	a := env.createCase(t)
	env.createCase(t)
	if _, err := env.Engine.AssignOwner(env.Ctx, a.ID, "ops@example.com", "lead@example.com"); err != nil {
		t.Fatal(err)
	}
	owned, err := env.Engine.ListCases(env.Ctx, repo.CaseFilters{OwnerEmail: "ops@example.com"})
	if err != nil || len(owned) != 1 || owned[0].ID != a.ID {
		t.Fatalf("owner filter: %v %+v", err, owned)
	}
}
