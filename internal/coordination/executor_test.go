package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disruptline/internal/domain"
	"disruptline/internal/ledger"
)

// brokenResults rejects every insert.
type brokenResults struct{ calls atomic.Int32 }

func (b *brokenResults) InsertActionResult(context.Context, domain.ActionResult) error {
	b.calls.Add(1)
	return errors.New("disk full")
}

type recordingTimeline struct{ entries []ledger.Entry }

func (r *recordingTimeline) Append(_ context.Context, e ledger.Entry) (domain.TimelineEvent, error) {
	r.entries = append(r.entries, e)
	return domain.TimelineEvent{CaseID: e.CaseID, Action: e.Action}, nil
}

func TestExecuteIsolatesFailuresAndSummarizes(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "customs_hold", "JNPT")

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, c.ID, body["case_id"])
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	x := Executor{
		Senders:  allSenders(okSender(domain.OutreachSent)),
		Timeline: env.ledger,
		Results:  env.engine.Repo,
		Now:      env.clock.Now,
	}
	plan := []domain.ActionItem{
		{ID: "a1", Type: ActionNotify, Description: "Tell CHA to file revised invoice", Owner: "CHA",
			ContactMethod: MethodWhatsApp, Contact: &domain.Contact{Name: "Jagdish"}},
		{ID: "a2", Type: ActionReminder, Description: "Check assessment status", Deadline: "2026-03-02T18:00:00+05:30"},
		{ID: "a3", Type: ActionAPICall, Description: "Open carrier ticket", System: "carrier", Endpoint: srv.URL},
		{ID: "a4", Type: ActionExternalCall, Description: "Notify ERP", System: "erp", Endpoint: "http://127.0.0.1:1/unreachable"},
		{ID: "a5", Type: "escalate", Description: "Escalate to plant head"},
	}
	results, err := x.Execute(context.Background(), plan, c.ID)
	require.NoError(t, err)
	require.Len(t, results, len(plan))

	for i, r := range results {
		assert.Equal(t, plan[i].ID, r.ActionID)
	}
	assert.Equal(t, domain.ActionCompleted, results[0].Status)
	assert.Equal(t, domain.ActionCompleted, results[1].Status)
	assert.Equal(t, domain.ActionCompleted, results[2].Status)
	assert.Equal(t, domain.ActionFailed, results[3].Status)
	assert.NotEmpty(t, results[3].Error)
	assert.Equal(t, domain.ActionCompleted, results[4].Status)
	assert.Equal(t, "Executed: Escalate to plant head", results[4].Detail)
	assert.Equal(t, int32(1), hits.Load())

	assert.Equal(t, 1, countActions(t, env, c.ID, domain.ActionReminderSet))
	summaries, err := env.ledger.ListActions(context.Background(), c.ID, []string{domain.ActionPlanExecuted}, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Executed 4 actions from the approved plan.", summaries[0].Content)
	assert.Len(t, summaries[0].Metadata["results"], 5)

	stored, err := env.engine.Repo.ListActionResults(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestExecuteNotifyWithoutSender(t *testing.T) {
	x := Executor{}
	results, err := x.Execute(context.Background(), []domain.ActionItem{
		{Type: ActionNotify, Description: "ping", ContactMethod: "pager", Contact: &domain.Contact{Name: "x"}},
		{Type: ActionNotify, Description: "log only"},
	}, "c1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, domain.ActionFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "pager")
	assert.Equal(t, domain.ActionCompleted, results[1].Status)
	assert.NotEmpty(t, results[0].ActionID)
}

func TestExecuteKeepsGoingWhenResultsCannotBeStored(t *testing.T) {
	store := &brokenResults{}
	tl := &recordingTimeline{}
	x := Executor{Results: store, Timeline: tl}
	results, err := x.Execute(context.Background(), []domain.ActionItem{
		{Type: "escalate", Description: "Escalate to plant head"},
		{Type: ActionNotify, Description: "Tell the transporter"},
	}, "c1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int32(2), store.calls.Load())

	require.Len(t, tl.entries, 1)
	assert.Equal(t, domain.ActionPlanExecuted, tl.entries[0].Action)
	assert.Equal(t, 2, tl.entries[0].Metadata["completed"])
}
