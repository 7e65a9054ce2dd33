package repo

import (
	"context"
	"database/sql"
	"strings"

	"disruptline/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.conn().ExecContext(ctx, `INSERT INTO users(id,email,name,created_at) VALUES (?,?,?,?)`,
		u.ID, strings.ToLower(strings.TrimSpace(u.Email)), nullable(u.Name), formatTS(u.CreatedAt))
	return storageErr("insert user", err)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getUser(ctx, `email=?`, email, email)
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.getUser(ctx, `id=?`, id, id)
}

func (r Repo) getUser(ctx context.Context, where, arg, label string) (domain.User, error) {
	var u domain.User
	var name sql.NullString
	var created string
	err := r.conn().QueryRowContext(ctx, `SELECT id,email,name,created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Email, &name, &created)
	if err == sql.ErrNoRows {
		return u, domain.NotFoundError{Kind: "user", ID: label}
	}
	if err != nil {
		return u, storageErr("get user", err)
	}
	u.Name = name.String
	if u.CreatedAt, err = parseTS(created); err != nil {
		return u, storageErr("parse user ts", err)
	}
	return u, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT id,email,name,created_at FROM users ORDER BY email ASC`)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		var u domain.User
		var name sql.NullString
		var created string
		if err := rows.Scan(&u.ID, &u.Email, &name, &created); err != nil {
			return nil, storageErr("scan user", err)
		}
		u.Name = name.String
		if u.CreatedAt, err = parseTS(created); err != nil {
			return nil, storageErr("parse user ts", err)
		}
		users = append(users, u)
	}
	return users, storageErr("list users", rows.Err())
}
