package repo

import (
	"context"
	"database/sql"

	"disruptline/internal/domain"
)

func (r Repo) InsertDocument(ctx context.Context, d domain.Document) error {
	_, err := r.conn().ExecContext(ctx, `INSERT INTO documents(id,case_id,name,kind,uploaded_by,created_at) VALUES (?,?,?,?,?,?)`,
		d.ID, d.CaseID, d.Name, nullable(d.Kind), d.UploadedBy, formatTS(d.CreatedAt))
	return storageErr("insert document", err)
}

func (r Repo) ListDocuments(ctx context.Context, caseID string) ([]domain.Document, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT id,case_id,name,kind,uploaded_by,created_at FROM documents WHERE case_id=? ORDER BY created_at ASC, id ASC`, caseID)
	if err != nil {
		return nil, storageErr("list documents", err)
	}
	defer rows.Close()
	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		var kind sql.NullString
		var created string
		if err := rows.Scan(&d.ID, &d.CaseID, &d.Name, &kind, &d.UploadedBy, &created); err != nil {
			return nil, storageErr("scan document", err)
		}
		d.Kind = kind.String
		if d.CreatedAt, err = parseTS(created); err != nil {
			return nil, storageErr("parse document ts", err)
		}
		docs = append(docs, d)
	}
	return docs, storageErr("list documents", rows.Err())
}

func (r Repo) CountDocuments(ctx context.Context, caseID string) (int, error) {
	var n int
	err := r.conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE case_id=?`, caseID).Scan(&n)
	return n, storageErr("count documents", err)
}
