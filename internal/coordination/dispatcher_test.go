package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"disruptline/internal/config"
	"disruptline/internal/domain"
	"disruptline/internal/ledger"
)

func TestDispatchIsolatesFailingChannel(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "customs_hold", "JNPT")
	stakeholders := NewIdentifier(config.RegionsConfig{}).Identify("customs_hold", "JNPT")
	require.Len(t, stakeholders, 4)

	senders := allSenders(okSender(domain.OutreachSent))
	senders[MethodWhatsApp] = failingSender()
	d := Dispatcher{Senders: senders, Timeline: env.ledger, Now: env.clock.Now}

	results := d.Dispatch(context.Background(), stakeholders, c.ID, Summary(c))
	require.Len(t, results, len(stakeholders))
	failed := 0
	for i, r := range results {
		assert.Equal(t, stakeholders[i].Role, r.Stakeholder, "results keep input order")
		if r.Status == domain.OutreachFailed {
			failed++
			assert.Contains(t, r.Error, "connection refused")
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, countActions(t, env, c.ID, domain.ActionStakeholderContacted))
}

func TestDispatchRecoversPanickingSender(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "truck_breakdown", "Pune")
	stakeholders := NewIdentifier(config.RegionsConfig{}).Identify("truck_breakdown", "Pune")

	senders := allSenders(okSender(domain.OutreachSent))
	senders[MethodSMS] = SenderFunc(func(context.Context, domain.Contact, string, string) (SendResult, error) {
		panic("sms gateway exploded")
	})
	d := Dispatcher{Senders: senders, Timeline: env.ledger, Concurrency: 2}
	results := d.Dispatch(context.Background(), stakeholders, c.ID, "truck down")

	require.Len(t, results, len(stakeholders))
	statuses := map[string]string{}
	for _, r := range results {
		statuses[r.Stakeholder] = r.Status
	}
	assert.Equal(t, domain.OutreachFailed, statuses["backup_truck"])
	assert.Equal(t, domain.OutreachSent, statuses["driver"])
	assert.Equal(t, domain.OutreachSent, statuses["depot_manager"])
}

func TestDispatchSkipsUnknownAndDisabledMethods(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "customs_hold", "JNPT")
	disabled := false
	senders := NewSenders(map[string]config.ChannelConfig{"api": {Enabled: &disabled}}, zap.NewNop(), env.clock.Now)
	_, hasAPI := senders[MethodAPI]
	require.False(t, hasAPI)

	stakeholders := []domain.Stakeholder{
		{Role: "CHA", ContactMethod: MethodWhatsApp},
		{Role: "shipping_line", ContactMethod: MethodAPI},
		{Role: "carrier_pigeon", ContactMethod: "pigeon"},
	}
	d := Dispatcher{Senders: senders, Timeline: env.ledger}
	results := d.Dispatch(context.Background(), stakeholders, c.ID, "held")

	require.Len(t, results, 3)
	assert.Equal(t, domain.OutreachSent, results[0].Status)
	assert.True(t, strings.HasPrefix(results[0].MessageID, "wa_"+c.ID+"_"))
	assert.Equal(t, domain.OutreachSkipped, results[1].Status)
	assert.Equal(t, domain.OutreachSkipped, results[2].Status)
	assert.Equal(t, "Unknown contact method: pigeon", results[2].Reason)
	assert.Equal(t, 1, countActions(t, env, c.ID, domain.ActionStakeholderContacted))
}

type brokenTimeline struct{ calls atomic.Int32 }

func (b *brokenTimeline) Append(context.Context, ledger.Entry) (domain.TimelineEvent, error) {
	b.calls.Add(1)
	return domain.TimelineEvent{}, errors.New("disk full")
}

func TestDispatchSwallowsTimelineFailure(t *testing.T) {
	tl := &brokenTimeline{}
	d := Dispatcher{Senders: allSenders(okSender("")), Timeline: tl}
	results := d.Dispatch(context.Background(), []domain.Stakeholder{
		{Role: "CHA", ContactMethod: MethodWhatsApp},
		{Role: "shipper", ContactMethod: MethodEmail},
	}, "case-1", "held")

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, domain.OutreachSent, r.Status)
	}
	assert.Equal(t, int32(1), tl.calls.Load())
}

func TestHTTPChannelSender(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.Contact.Name == "reject" {
			http.Error(w, "bad recipient", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"message_id":"gw-42"}`))
	}))
	defer srv.Close()

	fixed := func() time.Time { return time.Unix(0, 7) }
	senders := NewSenders(map[string]config.ChannelConfig{"email": {WebhookURL: srv.URL}}, nil, fixed)
	res, err := senders[MethodEmail].Send(context.Background(), domain.Contact{Name: "Maersk"}, "hello", "c9")
	require.NoError(t, err)
	assert.Equal(t, SendResult{Status: domain.OutreachSent, MessageID: "gw-42"}, res)
	assert.Equal(t, "c9", got.CaseID)
	assert.Equal(t, "email", got.Channel)

	_, err = senders[MethodEmail].Send(context.Background(), domain.Contact{Name: "reject"}, "hello", "c9")
	var callErr domain.ExternalCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "email", callErr.Collaborator)

	res, err = senders[MethodSMS].Send(context.Background(), domain.Contact{Name: "x"}, "hello", "c9")
	require.NoError(t, err)
	assert.Equal(t, "sms_c9_7", res.MessageID)
}

func TestFanOutKeepsOrderAndLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	out := fanOut(context.Background(), 3, items,
		func(_ context.Context, n int) (int, error) {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			if n == 4 {
				return 0, errors.New("four")
			}
			return n * 10, nil
		},
		func(int, error) int { return -1 },
	)
	assert.Equal(t, []int{10, 20, 30, -1, 50, 60, 70, 80}, out)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestLogSenderPreviewKeepsRunesWhole(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := logSender{method: MethodSMS, logger: zap.New(core), now: time.Now}
	msg := strings.Repeat("ट्रक", 20)
	res, err := s.Send(context.Background(), domain.Contact{Name: "Ravi"}, msg, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutreachSent, res.Status)

	entries := logs.FilterMessage("outreach message").All()
	require.Len(t, entries, 1)
	preview := entries[0].ContextMap()["preview"].(string)
	assert.True(t, utf8.ValidString(preview))
	assert.Equal(t, 50, utf8.RuneCountInString(strings.TrimSuffix(preview, "...")))
}
