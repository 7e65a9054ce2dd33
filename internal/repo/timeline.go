package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"disruptline/internal/domain"
)

const timelineColumns = `seq,id,case_id,actor,action,content,source_type,reliability,metadata_json,ts`

func scanTimelineEvent(row rowScanner) (domain.TimelineEvent, error) {
	var ev domain.TimelineEvent
	var meta sql.NullString
	var ts string
	if err := row.Scan(&ev.Seq, &ev.ID, &ev.CaseID, &ev.Actor, &ev.Action, &ev.Content, &ev.SourceType, &ev.Reliability, &meta, &ts); err != nil {
		return ev, err
	}
	if err := unmarshalNullable(meta, &ev.Metadata); err != nil {
		return ev, fmt.Errorf("decode event metadata: %w", err)
	}
	t, err := parseTS(ts)
	if err != nil {
		return ev, err
	}
	ev.Timestamp = t
	return ev, nil
}

// InsertTimelineEvent appends one event and returns its insertion sequence.
func (r Repo) InsertTimelineEvent(ctx context.Context, ev domain.TimelineEvent) (int64, error) {
	var meta any
	if ev.Metadata != nil {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encode event metadata: %w", err)
		}
		meta = string(b)
	}
	res, err := r.conn().ExecContext(ctx, `INSERT INTO timeline_events(id,case_id,actor,action,content,source_type,reliability,metadata_json,ts)
VALUES (?,?,?,?,?,?,?,?,?)`, ev.ID, ev.CaseID, ev.Actor, ev.Action, ev.Content, ev.SourceType, ev.Reliability, meta, formatTS(ev.Timestamp))
	if err != nil {
		return 0, storageErr("insert timeline event", err)
	}
	seq, err := res.LastInsertId()
	return seq, storageErr("timeline event seq", err)
}

// Cursor is a position in the (timestamp, seq) ordering of the timeline.
type Cursor struct {
	Timestamp time.Time
	Seq       int64
}

type TimelineFilters struct {
	CaseID  string
	Actions []string
	Limit   int
	// Since keeps events at or after this instant.
	Since time.Time
	// After resumes an ordered scan strictly past this position.
	After *Cursor
	// Newest orders newest first; otherwise oldest first.
	Newest bool
}

// ListTimelineEvents scans events ordered by timestamp with insertion order
// breaking ties.
func (r Repo) ListTimelineEvents(ctx context.Context, f TimelineFilters) ([]domain.TimelineEvent, error) {
	var clauses []string
	var args []any
	if f.CaseID != "" {
		clauses = append(clauses, "case_id=?")
		args = append(args, f.CaseID)
	}
	if len(f.Actions) > 0 {
		clause, inArgs := inClause("action", f.Actions)
		clauses = append(clauses, clause)
		args = append(args, inArgs...)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "ts>=?")
		args = append(args, formatTS(f.Since))
	}
	if f.After != nil {
		ts := formatTS(f.After.Timestamp)
		if f.Newest {
			clauses = append(clauses, "(ts<? OR (ts=? AND seq<?))")
		} else {
			clauses = append(clauses, "(ts>? OR (ts=? AND seq>?))")
		}
		args = append(args, ts, ts, f.After.Seq)
	}
	query := `SELECT ` + timelineColumns + ` FROM timeline_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if f.Newest {
		query += " ORDER BY ts DESC, seq DESC"
	} else {
		query += " ORDER BY ts ASC, seq ASC"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list timeline", err)
	}
	defer rows.Close()
	var res []domain.TimelineEvent
	for rows.Next() {
		ev, err := scanTimelineEvent(rows)
		if err != nil {
			return nil, storageErr("scan timeline event", err)
		}
		res = append(res, ev)
	}
	return res, storageErr("list timeline", rows.Err())
}

// EventsAfter returns events across all cases in insertion order.
func (r Repo) EventsAfter(ctx context.Context, seq int64, limit int) ([]domain.TimelineEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.conn().QueryContext(ctx, `SELECT `+timelineColumns+` FROM timeline_events WHERE seq>? ORDER BY seq ASC LIMIT ?`, seq, limit)
	if err != nil {
		return nil, storageErr("events after", err)
	}
	defer rows.Close()
	var res []domain.TimelineEvent
	for rows.Next() {
		ev, err := scanTimelineEvent(rows)
		if err != nil {
			return nil, storageErr("scan timeline event", err)
		}
		res = append(res, ev)
	}
	return res, storageErr("events after", rows.Err())
}

func (r Repo) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := r.conn().QueryRowContext(ctx, `SELECT MAX(seq) FROM timeline_events`).Scan(&seq); err != nil {
		return 0, storageErr("latest seq", err)
	}
	return seq.Int64, nil
}
