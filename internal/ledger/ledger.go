package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"disruptline/internal/domain"
	"disruptline/internal/repo"
)

const defaultPageSize = 50

// Ledger appends immutable timeline and audit records. It is the only
// writer of case history.
type Ledger struct {
	Repo repo.Repo
	Now  func() time.Time
}

func New(r repo.Repo) Ledger {
	return Ledger{Repo: r, Now: time.Now}
}

// With returns a copy bound to r, typically a transaction-scoped repo.
func (l Ledger) With(r repo.Repo) Ledger {
	l.Repo = r
	return l
}

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// Entry is the caller-supplied part of a timeline event.
type Entry struct {
	CaseID      string
	Actor       string
	Action      string
	Content     string
	SourceType  string
	Reliability string
	Metadata    map[string]any
}

// Append writes one timeline event. Source type defaults to text and
// reliability to medium.
func (l Ledger) Append(ctx context.Context, e Entry) (domain.TimelineEvent, error) {
	switch {
	case e.CaseID == "":
		return domain.TimelineEvent{}, domain.ValidationError{Field: "case_id", Reason: "required"}
	case e.Actor == "":
		return domain.TimelineEvent{}, domain.ValidationError{Field: "actor", Reason: "required"}
	case e.Action == "":
		return domain.TimelineEvent{}, domain.ValidationError{Field: "action", Reason: "required"}
	}
	if e.SourceType == "" {
		e.SourceType = domain.SourceText
	}
	if e.Reliability == "" {
		e.Reliability = domain.ReliabilityMedium
	}
	meta, err := storedMetadata(e.Metadata)
	if err != nil {
		return domain.TimelineEvent{}, err
	}
	ev := domain.TimelineEvent{
		ID:          uuid.NewString(),
		CaseID:      e.CaseID,
		Actor:       e.Actor,
		Action:      e.Action,
		Content:     e.Content,
		SourceType:  e.SourceType,
		Reliability: e.Reliability,
		Metadata:    meta,
		Timestamp:   l.now(),
	}
	seq, err := l.Repo.InsertTimelineEvent(ctx, ev)
	if err != nil {
		return domain.TimelineEvent{}, err
	}
	ev.Seq = seq
	return ev, nil
}

// storedMetadata returns metadata in the shape readers decode it in:
// numbers become float64 and nested values plain maps and slices.
func storedMetadata(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode event metadata: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode event metadata: %w", err)
	}
	return out, nil
}

// AppendAudit writes one compliance record.
func (l Ledger) AppendAudit(ctx context.Context, caseID, actor, action string, payload map[string]any) (domain.AuditEntry, error) {
	if caseID == "" || actor == "" || action == "" {
		return domain.AuditEntry{}, domain.ValidationError{Field: "audit", Reason: "case_id, actor and action are required"}
	}
	entry := domain.AuditEntry{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		Actor:     actor,
		Action:    action,
		Payload:   payload,
		Timestamp: l.now(),
	}
	if err := l.Repo.InsertAuditEntry(ctx, entry); err != nil {
		return domain.AuditEntry{}, err
	}
	return entry, nil
}

// List returns up to limit events for a case, newest first.
func (l Ledger) List(ctx context.Context, caseID string, limit int) ([]domain.TimelineEvent, error) {
	return l.Repo.ListTimelineEvents(ctx, repo.TimelineFilters{CaseID: caseID, Limit: limit, Newest: true})
}

// ListSince returns events at or after since, oldest first.
func (l Ledger) ListSince(ctx context.Context, caseID string, since time.Time) ([]domain.TimelineEvent, error) {
	return l.Repo.ListTimelineEvents(ctx, repo.TimelineFilters{CaseID: caseID, Since: since})
}

// ListActions returns the newest events carrying one of the given actions.
func (l Ledger) ListActions(ctx context.Context, caseID string, actions []string, limit int) ([]domain.TimelineEvent, error) {
	return l.Repo.ListTimelineEvents(ctx, repo.TimelineFilters{CaseID: caseID, Actions: actions, Limit: limit, Newest: true})
}

// All yields every event of a case oldest first, fetching one page at a
// time. Each call to the returned sequence starts a fresh scan.
func (l Ledger) All(ctx context.Context, caseID string, pageSize int) iter.Seq2[domain.TimelineEvent, error] {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return func(yield func(domain.TimelineEvent, error) bool) {
		var cursor *repo.Cursor
		for {
			page, err := l.Repo.ListTimelineEvents(ctx, repo.TimelineFilters{CaseID: caseID, Limit: pageSize, After: cursor})
			if err != nil {
				yield(domain.TimelineEvent{}, err)
				return
			}
			for _, ev := range page {
				if !yield(ev, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			last := page[len(page)-1]
			cursor = &repo.Cursor{Timestamp: last.Timestamp, Seq: last.Seq}
		}
	}
}

// Audit returns audit entries for a set of cases, newest first.
func (l Ledger) Audit(ctx context.Context, caseIDs []string, limit int) ([]domain.AuditEntry, error) {
	return l.Repo.ListAuditEntries(ctx, repo.AuditFilters{CaseIDs: caseIDs, Limit: limit})
}
