package coordination

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disruptline/internal/domain"
)

// growingTimeline returns the same newest-first window on every scan and
// adds one reply each time it is read, so a poll sees overlapping events.
type growingTimeline struct {
	mu     sync.Mutex
	events []domain.TimelineEvent
	grow   bool
	scans  int
}

func (g *growingTimeline) ListActions(_ context.Context, _ string, _ []string, _ int) ([]domain.TimelineEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scans++
	out := make([]domain.TimelineEvent, len(g.events))
	for i := range g.events {
		out[len(g.events)-1-i] = g.events[i]
	}
	if g.grow {
		n := len(g.events) + 1
		g.events = append(g.events, domain.TimelineEvent{
			ID:        "ev-" + string(rune('a'+n)),
			Actor:     "CHA",
			Action:    domain.ActionStakeholderResponse,
			Content:   "reply",
			Timestamp: time.Unix(int64(n), 0).UTC(),
		})
	}
	return out, nil
}

// deepTimeline honours the scan limit over a fixed newest-first backlog.
type deepTimeline struct {
	events []domain.TimelineEvent
	limits []int
}

func (d *deepTimeline) ListActions(_ context.Context, _ string, _ []string, limit int) ([]domain.TimelineEvent, error) {
	d.limits = append(d.limits, limit)
	if limit > 0 && limit < len(d.events) {
		return d.events[:limit], nil
	}
	return d.events, nil
}

func TestCollectReadsPastTheFirstWindow(t *testing.T) {
	tl := &deepTimeline{}
	for i := 250; i > 0; i-- {
		tl.events = append(tl.events, domain.TimelineEvent{
			ID:        fmt.Sprintf("ev-%03d", i),
			Actor:     "Carrier desk",
			Action:    domain.ActionStakeholderResponse,
			Timestamp: time.Unix(int64(i), 0).UTC(),
		})
	}
	c := Collector{Timeline: tl}

	got, err := c.Collect(context.Background(), "case", 250, 0)
	require.NoError(t, err)
	assert.Len(t, got.Responses, 250)
	assert.True(t, got.Complete)
	assert.Equal(t, []int{100, 200, 400}, tl.limits)
	assert.Equal(t, "ev-250", got.Responses[0].EventID)
}

func TestCollectZeroTimeoutReturnsImmediately(t *testing.T) {
	tl := &growingTimeline{events: []domain.TimelineEvent{
		{ID: "a", Actor: "", Content: "first"},
	}}
	c := Collector{Timeline: tl, PollInterval: time.Hour}

	start := time.Now()
	got, err := c.Collect(context.Background(), "case", 3, 0)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, got.Responses, 1)
	assert.False(t, got.Complete)
	assert.Equal(t, "Unknown", got.Responses[0].Stakeholder)
	assert.Equal(t, domain.ReliabilityMedium, got.Responses[0].Reliability)

	got, err = c.Collect(context.Background(), "case", 0, time.Hour)
	require.NoError(t, err)
	assert.True(t, got.Complete)
	assert.Equal(t, 2, tl.scans)
}

func TestCollectPollsUntilQuotaWithoutDuplicates(t *testing.T) {
	tl := &growingTimeline{grow: true}
	c := Collector{Timeline: tl, PollInterval: 5 * time.Millisecond}

	got, err := c.Collect(context.Background(), "case", 3, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, got.Complete)
	require.Len(t, got.Responses, 3)
	seen := map[string]bool{}
	for _, r := range got.Responses {
		assert.False(t, seen[r.EventID], "duplicate %s", r.EventID)
		seen[r.EventID] = true
	}
}

func TestCollectStopsAtDeadline(t *testing.T) {
	tl := &growingTimeline{events: []domain.TimelineEvent{{ID: "only", Actor: "CHA"}}}
	c := Collector{Timeline: tl, PollInterval: 5 * time.Millisecond}

	got, err := c.Collect(context.Background(), "case", 2, 40*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, got.Complete)
	assert.Len(t, got.Responses, 1)
	assert.Greater(t, tl.scans, 1)
}

func TestCollectHonoursCancellation(t *testing.T) {
	tl := &growingTimeline{}
	c := Collector{Timeline: tl, PollInterval: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Collect(ctx, "case", 1, time.Hour)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCollectReadsLedgerResponses(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "customs_hold", "JNPT")
	o := env.orchestrator(allSenders(okSender(domain.OutreachSent)), nil)

	_, err := o.SimulateResponse(context.Background(), c.ID, "Jagdish Customs Clearing", "Bill of entry flagged for valuation")
	require.NoError(t, err)
	_, err = o.SimulateResponse(context.Background(), c.ID, "Jagdish Customs Clearing", "Officer Sharma handling, clearance by 6pm")
	require.NoError(t, err)

	got, err := o.Collect(context.Background(), c.ID, 2, time.Second)
	require.NoError(t, err)
	assert.True(t, got.Complete)
	require.Len(t, got.Responses, 2)
	assert.Equal(t, "Officer Sharma handling, clearance by 6pm", got.Responses[0].Content)
	assert.Equal(t, domain.ReliabilityHigh, got.Responses[0].Reliability)
	assert.Equal(t, true, got.Responses[0].Metadata["simulated"])
}
