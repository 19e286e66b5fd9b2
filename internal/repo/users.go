package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"doclife/internal/domain"
)

// UpsertUser creates the user if missing, updates the email when given and
// adds groups. Existing groups are kept.
func (r Repo) UpsertUser(ctx context.Context, u domain.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return domain.NewError(domain.ErrKindValidationFailed, "user id is required")
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users(id, email, created_at) VALUES (?,?,?)`, u.ID, nullable(u.Email), now); err != nil {
		return errors.Wrap(err, "insert user")
	}
	if u.Email != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET email=? WHERE id=?`, u.Email, u.ID); err != nil {
			return errors.Wrap(err, "update user email")
		}
	}
	for _, g := range u.Groups {
		if err := addGroup(ctx, tx, u.ID, g); err != nil {
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "commit user")
}

func addGroup(ctx context.Context, tx *sql.Tx, userID, group string) error {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO user_groups(user_id, group_name) VALUES (?,?)`, userID, group)
	return errors.Wrap(err, "add group")
}

// RemoveGroup drops one group membership.
func (r Repo) RemoveGroup(ctx context.Context, userID, group string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM user_groups WHERE user_id=? AND group_name=?`, userID, group)
	if err != nil {
		return errors.Wrap(err, "remove group")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errorf(domain.ErrKindNotFound, "user %s is not in group %s", userID, group)
	}
	return nil
}

// GetUser loads a user with their groups.
func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var email sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id, email FROM users WHERE id=?`, id).Scan(&u.ID, &email)
	if err == sql.ErrNoRows {
		return u, domain.Errorf(domain.ErrKindNotFound, "user %s not found", id)
	}
	if err != nil {
		return u, errors.Wrap(err, "select user")
	}
	u.Email = email.String
	if u.Groups, err = r.userGroups(ctx, id); err != nil {
		return u, err
	}
	return u, nil
}

// ListUsers returns every user with groups, ordered by id.
func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, COALESCE(email,'') FROM users ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan user")
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate users")
	}
	for i := range users {
		if users[i].Groups, err = r.userGroups(ctx, users[i].ID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r Repo) userGroups(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT group_name FROM user_groups WHERE user_id=?`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select groups")
	}
	defer rows.Close()
	set := map[string]bool{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, errors.Wrap(err, "scan group")
		}
		set[g] = true
	}
	return sortedKeys(set), errors.Wrap(rows.Err(), "iterate groups")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
