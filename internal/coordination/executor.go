package coordination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"disruptline/internal/domain"
	"disruptline/internal/ledger"
	"disruptline/internal/metrics"
)

// Action types an approved plan may contain.
const (
	ActionNotify       = "notify"
	ActionReminder     = "reminder"
	ActionAPICall      = "api_call"
	ActionExternalCall = "external_call"
)

// ActionResultStore persists per-action outcomes.
type ActionResultStore interface {
	InsertActionResult(ctx context.Context, res domain.ActionResult) error
}

// Executor runs the items of an approved action plan in parallel.
type Executor struct {
	Senders     map[string]Sender
	Timeline    TimelineWriter
	Results     ActionResultStore
	HTTPClient  *http.Client
	Logger      *zap.Logger
	Concurrency int
	Now         func() time.Time
}

func (x Executor) now() time.Time {
	if x.Now != nil {
		return x.Now().UTC()
	}
	return time.Now().UTC()
}

func (x Executor) log() *zap.Logger {
	if x.Logger == nil {
		return zap.NewNop()
	}
	return x.Logger
}

// Execute runs every action and returns one result per action in plan
// order. A failing action only fails its own result. The batch is summed
// up in a single PLAN_EXECUTED timeline event. Once actions have run,
// storage failures are logged and never returned.
func (x Executor) Execute(ctx context.Context, plan []domain.ActionItem, caseID string) ([]domain.ActionResult, error) {
	plan = append([]domain.ActionItem(nil), plan...)
	for i := range plan {
		if plan[i].ID == "" {
			plan[i].ID = uuid.NewString()
		}
	}
	results := fanOut(ctx, x.Concurrency, plan,
		func(ctx context.Context, a domain.ActionItem) (domain.ActionResult, error) {
			detail, err := x.run(ctx, a, caseID)
			if err != nil {
				return domain.ActionResult{}, err
			}
			return x.result(a, caseID, domain.ActionCompleted, detail, ""), nil
		},
		func(a domain.ActionItem, err error) domain.ActionResult {
			x.log().Warn("plan action failed", zap.String("case_id", caseID), zap.String("action_id", a.ID), zap.String("type", a.Type), zap.Error(err))
			return x.result(a, caseID, domain.ActionFailed, "", err.Error())
		},
	)
	completed := 0
	for _, r := range results {
		metrics.ActionsTotal.WithLabelValues(r.Type, r.Status).Inc()
		if r.Status == domain.ActionCompleted {
			completed++
		}
		if x.Results == nil {
			continue
		}
		if err := x.Results.InsertActionResult(ctx, r); err != nil {
			x.log().Error("persist action result", zap.String("case_id", caseID), zap.String("action_id", r.ActionID), zap.Error(err))
		}
	}
	if x.Timeline != nil {
		if _, err := x.Timeline.Append(ctx, ledger.Entry{
			CaseID:      caseID,
			Actor:       ActorExecutor,
			Action:      domain.ActionPlanExecuted,
			Content:     fmt.Sprintf("Executed %d actions from the approved plan.", completed),
			SourceType:  domain.SourceSystem,
			Reliability: domain.ReliabilityHigh,
			Metadata:    map[string]any{"completed": completed, "total": len(results), "results": results},
		}); err != nil {
			x.log().Error("log plan execution to timeline", zap.String("case_id", caseID), zap.Error(err))
		}
	}
	return results, nil
}

func (x Executor) result(a domain.ActionItem, caseID, status, detail, errText string) domain.ActionResult {
	return domain.ActionResult{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		ActionID:  a.ID,
		Type:      a.Type,
		Status:    status,
		Detail:    detail,
		Error:     errText,
		Timestamp: x.now(),
	}
}

func (x Executor) run(ctx context.Context, a domain.ActionItem, caseID string) (string, error) {
	executed := "Executed: " + a.Description
	switch a.Type {
	case ActionNotify:
		return executed, x.notify(ctx, a, caseID)
	case ActionReminder:
		return executed, x.remind(ctx, a, caseID)
	case ActionAPICall, ActionExternalCall:
		return executed, x.callExternal(ctx, a, caseID)
	default:
		return executed, nil
	}
}

func (x Executor) notify(ctx context.Context, a domain.ActionItem, caseID string) error {
	if a.Contact == nil || a.ContactMethod == "" {
		x.log().Info("notify action", zap.String("case_id", caseID), zap.String("owner", a.Owner), zap.String("description", a.Description))
		return nil
	}
	sender, ok := x.Senders[a.ContactMethod]
	if !ok {
		return fmt.Errorf("no sender for contact method %s", a.ContactMethod)
	}
	msg := fmt.Sprintf("Case #%s action for %s: %s", caseID, orNA(a.Owner), a.Description)
	if a.Deadline != "" {
		msg += " (by " + a.Deadline + ")"
	}
	_, err := sender.Send(ctx, *a.Contact, msg, caseID)
	return err
}

func (x Executor) remind(ctx context.Context, a domain.ActionItem, caseID string) error {
	if x.Timeline == nil {
		return nil
	}
	content := "Reminder: " + a.Description
	if a.Deadline != "" {
		content += " (due " + a.Deadline + ")"
	}
	_, err := x.Timeline.Append(ctx, ledger.Entry{
		CaseID:      caseID,
		Actor:       ActorExecutor,
		Action:      domain.ActionReminderSet,
		Content:     content,
		SourceType:  domain.SourceSystem,
		Reliability: domain.ReliabilityHigh,
		Metadata:    map[string]any{"action_id": a.ID, "owner": a.Owner, "deadline": a.Deadline},
	})
	return err
}

func (x Executor) callExternal(ctx context.Context, a domain.ActionItem, caseID string) error {
	if strings.TrimSpace(a.Endpoint) == "" {
		x.log().Info("external call action", zap.String("case_id", caseID), zap.String("system", a.System), zap.String("description", a.Description))
		return nil
	}
	data, err := json.Marshal(map[string]any{
		"case_id":     caseID,
		"action_id":   a.ID,
		"system":      a.System,
		"description": a.Description,
		"owner":       a.Owner,
		"deadline":    a.Deadline,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(data))
	if err != nil {
		return domain.ExternalCallError{Collaborator: orNA(a.System), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	client := x.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultChannelTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return domain.ExternalCallError{Collaborator: orNA(a.System), Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return domain.ExternalCallError{
			Collaborator: orNA(a.System),
			Err:          fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	return nil
}
