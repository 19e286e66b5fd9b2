package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pkg/errors"

	"doclife/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed API key for an existing user.
func (r Repo) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return domain.NewError(domain.ErrKindValidationFailed, "api key id required")
	case key.UserID == "":
		return domain.NewError(domain.ErrKindValidationFailed, "api key user required")
	case key.KeyHash == "":
		return domain.NewError(domain.ErrKindValidationFailed, "api key hash required")
	}
	if _, err := r.GetUser(ctx, key.UserID); err != nil {
		return err
	}
	if key.CreatedAt == "" {
		key.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO api_keys(id, user_id, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.UserID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return errors.Wrap(err, "insert api key")
}

// UserByAPIKey resolves a raw key to its user.
func (r Repo) UserByAPIKey(ctx context.Context, raw string) (domain.User, error) {
	var userID string
	err := r.DB.QueryRowContext(ctx, `SELECT user_id FROM api_keys WHERE key_hash=? LIMIT 1`, HashAPIKey(raw)).Scan(&userID)
	if err == sql.ErrNoRows {
		return domain.User{}, domain.NewError(domain.ErrKindNotFound, "unknown api key")
	}
	if err != nil {
		return domain.User{}, errors.Wrap(err, "select api key")
	}
	return r.GetUser(ctx, userID)
}

// ListAPIKeys returns API keys, optionally filtered by user.
func (r Repo) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	query := `SELECT id, user_id, COALESCE(name,''), key_hash, created_at FROM api_keys`
	var args []any
	if userID != "" {
		query += ` WHERE user_id=?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list api keys")
	}
	defer rows.Close()
	keys := []domain.APIKey{}
	for rows.Next() {
		var key domain.APIKey
		if err := rows.Scan(&key.ID, &key.UserID, &key.Name, &key.KeyHash, &key.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan api key")
		}
		keys = append(keys, key)
	}
	return keys, errors.Wrap(rows.Err(), "iterate api keys")
}

// DeleteAPIKey revokes an API key by id.
func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return errors.Wrap(err, "delete api key")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errorf(domain.ErrKindNotFound, "api key %s not found", id)
	}
	return nil
}
