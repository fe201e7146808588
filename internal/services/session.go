package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the Redis key prefix for user->session mapping
	UserSessionKeyPrefix = "user_session:"
)

// SessionService stores session tokens in Redis. Anonymous identities are
// long-lived; a device re-signing-in refreshes its session rather than
// minting a new user.
type SessionService struct {
	rdb *redis.Client
}

func NewSessionService(rdb *redis.Client) *SessionService {
	return &SessionService{rdb: rdb}
}

// Create issues a new session token for a user and stores it with a 7-day
// expiration. An existing session for the user is invalidated first so the
// timer resets from the current sign-in.
func (s *SessionService) Create(ctx context.Context, userID uuid.UUID) (string, error) {
	s.InvalidateUser(ctx, userID)

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	if err := s.rdb.Set(ctx, SessionKeyPrefix+token, userID.String(), SessionDuration).Err(); err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, UserSessionKeyPrefix+userID.String(), token, SessionDuration).Err(); err != nil {
		return "", err
	}

	return token, nil
}

// Validate checks a session token and returns the user ID it belongs to.
func (s *SessionService) Validate(ctx context.Context, token string) (uuid.UUID, bool, error) {
	if token == "" {
		return uuid.Nil, false, nil
	}

	userIDStr, err := s.rdb.Get(ctx, SessionKeyPrefix+token).Result()
	if err != nil {
		return uuid.Nil, false, nil
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false, err
	}
	return userID, true, nil
}

// Refresh extends the session expiration by 7 days from now.
func (s *SessionService) Refresh(ctx context.Context, token string) error {
	userIDStr, err := s.rdb.Get(ctx, SessionKeyPrefix+token).Result()
	if err != nil {
		return err
	}

	if err := s.rdb.Expire(ctx, SessionKeyPrefix+token, SessionDuration).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, UserSessionKeyPrefix+userIDStr, SessionDuration).Err()
}

// InvalidateUser removes any session for the user.
func (s *SessionService) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	userSessionKey := UserSessionKeyPrefix + userID.String()

	token, err := s.rdb.Get(ctx, userSessionKey).Result()
	if err == nil && token != "" {
		s.rdb.Del(ctx, SessionKeyPrefix+token)
	}
	return s.rdb.Del(ctx, userSessionKey).Err()
}
