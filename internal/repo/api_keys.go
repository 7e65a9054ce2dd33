package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"disruptline/internal/domain"
)

// HashAPIKey returns the SHA-256 hex digest stored in place of a raw key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores an already hashed key for a user.
func (r Repo) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return domain.ValidationError{Field: "id", Reason: "required"}
	case key.ActorID == "":
		return domain.ValidationError{Field: "actor_id", Reason: "required"}
	case key.KeyHash == "":
		return domain.ValidationError{Field: "key_hash", Reason: "required"}
	}
	_, err := r.conn().ExecContext(ctx, `INSERT INTO api_keys(id,actor_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.ActorID, nullable(key.Name), key.KeyHash, formatTS(key.CreatedAt))
	return storageErr("insert api key", err)
}

func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var key domain.APIKey
	var name sql.NullString
	var created string
	err := r.conn().QueryRowContext(ctx, `SELECT id,actor_id,name,key_hash,created_at FROM api_keys WHERE key_hash=? LIMIT 1`, hash).
		Scan(&key.ID, &key.ActorID, &name, &key.KeyHash, &created)
	if err == sql.ErrNoRows {
		return key, domain.NotFoundError{Kind: "api key", ID: "(hash)"}
	}
	if err != nil {
		return key, storageErr("get api key", err)
	}
	key.Name = name.String
	if key.CreatedAt, err = parseTS(created); err != nil {
		return key, storageErr("parse api key ts", err)
	}
	return key, nil
}

// ListAPIKeys returns keys, optionally filtered by actor.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	query := `SELECT id,actor_id,name,key_hash,created_at FROM api_keys`
	var args []any
	if actorID != "" {
		query += ` WHERE actor_id=?`
		args = append(args, actorID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list api keys", err)
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		var key domain.APIKey
		var name sql.NullString
		var created string
		if err := rows.Scan(&key.ID, &key.ActorID, &name, &key.KeyHash, &created); err != nil {
			return nil, storageErr("scan api key", err)
		}
		key.Name = name.String
		if key.CreatedAt, err = parseTS(created); err != nil {
			return nil, storageErr("parse api key ts", err)
		}
		keys = append(keys, key)
	}
	return keys, storageErr("list api keys", rows.Err())
}

func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ValidationError{Field: "id", Reason: "required"}
	}
	res, err := r.conn().ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return storageErr("delete api key", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundError{Kind: "api key", ID: id}
	}
	return nil
}
