package services

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// UserService manages anonymous identities in PostgreSQL. Sign-in produces an
// opaque stable user ID and nothing else; there is no profile data.
type UserService struct {
	db *sql.DB
}

func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

// CreateAnonymous mints a new anonymous user and returns its ID.
func (s *UserService) CreateAnonymous(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users DEFAULT VALUES RETURNING id
	`).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Exists reports whether an active user with the given ID exists.
func (s *UserService) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND is_active = TRUE)
	`, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Touch updates the user's last_seen timestamp. Best-effort.
func (s *UserService) Touch(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_seen = NOW() WHERE id = $1
	`, userID)
	return err
}
