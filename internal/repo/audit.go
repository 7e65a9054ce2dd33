package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"disruptline/internal/domain"
)

func (r Repo) InsertAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	payload, err := marshalNullable(e.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	_, err = r.conn().ExecContext(ctx, `INSERT INTO audit_entries(id,case_id,actor,action,payload_json,ts) VALUES (?,?,?,?,?,?)`,
		e.ID, e.CaseID, e.Actor, e.Action, payload, formatTS(e.Timestamp))
	return storageErr("insert audit entry", err)
}

type AuditFilters struct {
	CaseIDs []string
	Action  string
	Limit   int
}

// ListAuditEntries returns entries newest first. An empty CaseIDs set means
// every case.
func (r Repo) ListAuditEntries(ctx context.Context, f AuditFilters) ([]domain.AuditEntry, error) {
	var clauses []string
	var args []any
	if len(f.CaseIDs) > 0 {
		clause, inArgs := inClause("case_id", f.CaseIDs)
		clauses = append(clauses, clause)
		args = append(args, inArgs...)
	}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	query := `SELECT id,case_id,actor,action,payload_json,ts FROM audit_entries`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY ts DESC, seq DESC LIMIT ?"
	args = append(args, limit)
	rows, err := r.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list audit", err)
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var payload sql.NullString
		var ts string
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Actor, &e.Action, &payload, &ts); err != nil {
			return nil, storageErr("scan audit entry", err)
		}
		if err := unmarshalNullable(payload, &e.Payload); err != nil {
			return nil, storageErr("decode audit payload", err)
		}
		if e.Timestamp, err = parseTS(ts); err != nil {
			return nil, storageErr("parse audit ts", err)
		}
		res = append(res, e)
	}
	return res, storageErr("list audit", rows.Err())
}
