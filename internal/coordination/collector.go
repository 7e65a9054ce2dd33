package coordination

import (
	"context"
	"time"

	"go.uber.org/zap"

	"disruptline/internal/domain"
	"disruptline/internal/metrics"
)

const (
	defaultPollInterval = 10 * time.Second
	collectScanLimit    = 100
)

var responseActions = []string{domain.ActionStakeholderResponse, domain.ActionContextAdded}

// TimelineReader scans a case timeline, newest first.
type TimelineReader interface {
	ListActions(ctx context.Context, caseID string, actions []string, limit int) ([]domain.TimelineEvent, error)
}

// Collector polls a case timeline for stakeholder replies.
type Collector struct {
	Timeline     TimelineReader
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Collection is what a collect call gathered.
type Collection struct {
	Responses []domain.Response `json:"responses"`
	Complete  bool              `json:"complete"`
}

// Collect gathers responses until expected have arrived or timeout
// elapses. A zero timeout or zero expected count reads what is already
// present without waiting. Cancelling ctx ends the wait early and returns
// what was gathered together with ctx's error.
func (c Collector) Collect(ctx context.Context, caseID string, expected int, timeout time.Duration) (Collection, error) {
	seen := map[string]struct{}{}
	var out Collection
	// scan widens the newest-first window until it reaches a reply an
	// earlier scan already took or runs out of replies.
	scan := func() error {
		metrics.CollectorPollsTotal.Inc()
		for limit := collectScanLimit; ; limit *= 2 {
			events, err := c.Timeline.ListActions(ctx, caseID, responseActions, limit)
			if err != nil {
				return err
			}
			overlap := false
			if n := len(events); n > 0 {
				_, overlap = seen[events[n-1].ID]
			}
			for _, ev := range events {
				if _, ok := seen[ev.ID]; ok {
					continue
				}
				seen[ev.ID] = struct{}{}
				out.Responses = append(out.Responses, normalizeResponse(ev))
			}
			if overlap || len(events) < limit {
				return nil
			}
		}
	}
	if err := scan(); err != nil {
		return out, err
	}
	if expected <= 0 || timeout <= 0 || len(out.Responses) >= expected {
		out.Complete = len(out.Responses) >= expected
		return out, nil
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-deadline.C:
			if c.Logger != nil {
				c.Logger.Info("response collection timed out", zap.String("case_id", caseID), zap.Int("collected", len(out.Responses)), zap.Int("expected", expected))
			}
			return out, nil
		case <-ticker.C:
			if err := scan(); err != nil {
				return out, err
			}
			if len(out.Responses) >= expected {
				out.Complete = true
				return out, nil
			}
		}
	}
}

func normalizeResponse(ev domain.TimelineEvent) domain.Response {
	r := domain.Response{
		EventID:     ev.ID,
		Stakeholder: ev.Actor,
		Content:     ev.Content,
		Timestamp:   ev.Timestamp,
		Reliability: ev.Reliability,
		SourceType:  ev.SourceType,
		Metadata:    ev.Metadata,
	}
	if r.Stakeholder == "" {
		r.Stakeholder = "Unknown"
	}
	if r.Reliability == "" {
		r.Reliability = domain.ReliabilityMedium
	}
	return r
}
