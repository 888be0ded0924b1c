package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/storage"
)

// CreateUser inserts a user with a lowercased email.
func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID.String(), u.Email, u.Name, u.PasswordHash, ts(u.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, storage.ErrDuplicateEmail
		}
		return model.User{}, fmt.Errorf("sqlite: create user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks a user up by (case-insensitive) email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.getUser(ctx, `email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

// GetUserByID looks a user up by id.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return s.getUser(ctx, `id = ?`, id.String())
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (model.User, error) {
	var (
		u         model.User
		id        string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE `+where, arg,
	).Scan(&id, &u.Email, &u.Name, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, fmt.Errorf("sqlite: user: %w", storage.ErrNotFound)
		}
		return model.User{}, fmt.Errorf("sqlite: get user: %w", err)
	}
	if u.ID, err = parseUUID(id); err != nil {
		return model.User{}, err
	}
	if u.CreatedAt, err = parseTS(createdAt); err != nil {
		return model.User{}, err
	}
	return u, nil
}
