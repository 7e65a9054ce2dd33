package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disruptline/internal/db"
	"disruptline/internal/domain"
	"disruptline/internal/ledger"
	"disruptline/internal/migrate"
	"disruptline/internal/repo"
)

func newLedger(t *testing.T) (ledger.Ledger, *time.Time) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := repo.Repo{DB: conn}
	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, r.InsertCase(context.Background(), domain.Case{
		ID: "case-1", Description: "Truck breakdown on NH48", Status: domain.StatusReported,
		Disruption: domain.DisruptionDetails{Type: "truck_breakdown", Scope: "one truck", Identifier: "NH48", Source: "driver"},
		CreatedBy:  "ops@example.com", CreatedAt: now, UpdatedAt: now,
	}))
	l := ledger.New(r)
	l.Now = func() time.Time { return now }
	return l, &now
}

func TestAppendThenListSinceRoundTrip(t *testing.T) {
	l, now := newLedger(t)
	ctx := context.Background()
	appended, err := l.Append(ctx, ledger.Entry{
		CaseID:      "case-1",
		Actor:       "Ravi (driver)",
		Action:      domain.ActionContextAdded,
		Content:     "Radiator burst near Vapi",
		SourceType:  domain.SourceVoice,
		Reliability: domain.ReliabilityHigh,
		Metadata:    map[string]any{"language": "hi", "confirmed": true},
	})
	require.NoError(t, err)

	got, err := l.ListSince(ctx, "case-1", *now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, appended, got[0])
}

func TestAppendReturnsMetadataAsStored(t *testing.T) {
	l, now := newLedger(t)
	ctx := context.Background()
	counted, err := l.Append(ctx, ledger.Entry{
		CaseID:   "case-1",
		Actor:    "executor",
		Action:   domain.ActionPlanExecuted,
		Metadata: map[string]any{"completed": 3, "total": 4, "tags": []string{"rail"}},
	})
	require.NoError(t, err)
	empty, err := l.Append(ctx, ledger.Entry{
		CaseID:   "case-1",
		Actor:    "system",
		Action:   domain.ActionContextAdded,
		Metadata: map[string]any{},
	})
	require.NoError(t, err)
	bare, err := l.Append(ctx, ledger.Entry{CaseID: "case-1", Actor: "system", Action: domain.ActionContextAdded})
	require.NoError(t, err)

	assert.Equal(t, float64(3), counted.Metadata["completed"])
	assert.Equal(t, []any{"rail"}, counted.Metadata["tags"])
	assert.NotNil(t, empty.Metadata)
	assert.Empty(t, empty.Metadata)
	assert.Nil(t, bare.Metadata)

	got, err := l.ListSince(ctx, "case-1", *now)
	require.NoError(t, err)
	assert.Equal(t, []domain.TimelineEvent{counted, empty, bare}, got)
}

func TestAppendDefaultsAndRequiredFields(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	ev, err := l.Append(ctx, ledger.Entry{CaseID: "case-1", Actor: "system", Action: domain.ActionContextAdded})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceText, ev.SourceType)
	assert.Equal(t, domain.ReliabilityMedium, ev.Reliability)

	_, err = l.Append(ctx, ledger.Entry{CaseID: "case-1", Action: domain.ActionContextAdded})
	var verr domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAllPagesAndRestarts(t *testing.T) {
	l, now := newLedger(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		// several events share a timestamp so paging has to respect seq ties
		at := now.Add(time.Duration(i/3) * time.Second)
		l.Now = func() time.Time { return at }
		_, err := l.Append(ctx, ledger.Entry{CaseID: "case-1", Actor: "system", Action: domain.ActionContextAdded, Content: string(rune('a' + i))})
		require.NoError(t, err)
	}
	collect := func() []string {
		var out []string
		for ev, err := range l.All(ctx, "case-1", 2) {
			require.NoError(t, err)
			out = append(out, ev.Content)
		}
		return out
	}
	want := []string{"a", "b", "c", "d", "e", "f", "g"}
	assert.Equal(t, want, collect())
	assert.Equal(t, want, collect(), "sequence is restartable")

	var first []string
	for ev := range l.All(ctx, "case-1", 2) {
		first = append(first, ev.Content)
		if len(first) == 3 {
			break
		}
	}
	assert.Equal(t, want[:3], first)

	newest, err := l.List(ctx, "case-1", 1)
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, "g", newest[0].Content)
}

func TestAuditByCaseSet(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	_, err := l.AppendAudit(ctx, "case-1", "ops@example.com", domain.ActionOwnerAssigned, map[string]any{"new_owner": "ops@example.com"})
	require.NoError(t, err)
	_, err = l.AppendAudit(ctx, "case-2", "ops@example.com", domain.ActionCaseCreated, nil)
	require.NoError(t, err)

	entries, err := l.Audit(ctx, []string{"case-1"}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionOwnerAssigned, entries[0].Action)
}
