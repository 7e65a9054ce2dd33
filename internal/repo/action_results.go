package repo

import (
	"context"
	"database/sql"

	"disruptline/internal/domain"
)

func (r Repo) InsertActionResult(ctx context.Context, res domain.ActionResult) error {
	_, err := r.conn().ExecContext(ctx, `INSERT INTO action_results(id,case_id,action_id,type,status,detail,error,ts) VALUES (?,?,?,?,?,?,?,?)`,
		res.ID, res.CaseID, res.ActionID, res.Type, res.Status, nullable(res.Detail), nullable(res.Error), formatTS(res.Timestamp))
	return storageErr("insert action result", err)
}

func (r Repo) ListActionResults(ctx context.Context, caseID string) ([]domain.ActionResult, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT id,case_id,action_id,type,status,detail,error,ts FROM action_results WHERE case_id=? ORDER BY ts ASC, id ASC`, caseID)
	if err != nil {
		return nil, storageErr("list action results", err)
	}
	defer rows.Close()
	var out []domain.ActionResult
	for rows.Next() {
		var res domain.ActionResult
		var detail, errText sql.NullString
		var ts string
		if err := rows.Scan(&res.ID, &res.CaseID, &res.ActionID, &res.Type, &res.Status, &detail, &errText, &ts); err != nil {
			return nil, storageErr("scan action result", err)
		}
		res.Detail = detail.String
		res.Error = errText.String
		if res.Timestamp, err = parseTS(ts); err != nil {
			return nil, storageErr("parse action result ts", err)
		}
		out = append(out, res)
	}
	return out, storageErr("list action results", rows.Err())
}
