package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/palabria/internal/model"
)

// CreateUser inserts a user. Returns ErrConflict if the username is taken.
// The username must already be sanitised.
func (l *Ledger) CreateUser(ctx context.Context, username string) (model.User, error) {
	now := l.Now()
	res, err := l.q.ExecContext(ctx, `
		INSERT INTO users (username, created_at)
		VALUES (?, ?)
		ON CONFLICT(username) DO NOTHING
	`, username, formatTime(now))
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return model.User{}, fmt.Errorf("create user: rows affected: %w", err)
	}
	if n == 0 {
		return model.User{}, fmt.Errorf("user %q: %w", username, ErrConflict)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, fmt.Errorf("create user: last insert id: %w", err)
	}
	return model.User{ID: id, Username: username, CreatedAt: now}, nil
}

// GetUser returns the user with the given id, or ErrNotFound.
func (l *Ledger) GetUser(ctx context.Context, userID int64) (model.User, error) {
	row := l.q.QueryRowContext(ctx, `
		SELECT id, username, created_at FROM users WHERE id = ?
	`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %d: %w", userID, err)
	}
	return u, nil
}

// UserByName returns the user with the given username, or ErrNotFound.
func (l *Ledger) UserByName(ctx context.Context, username string) (model.User, error) {
	row := l.q.QueryRowContext(ctx, `
		SELECT id, username, created_at FROM users WHERE username = ?
	`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

// UserExists reports whether a user with the given id exists.
func (l *Ledger) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists int
	err := l.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user %d: %w", userID, err)
	}
	return exists == 1, nil
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u         model.User
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Username, &createdAt); err != nil {
		return model.User{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return model.User{}, err
	}
	u.CreatedAt = t
	return u, nil
}
