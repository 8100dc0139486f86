package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/emilyats/authmed/internal/database"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// AccountSessionKeyPrefix is the Redis key prefix for account->session mapping
	AccountSessionKeyPrefix = "account_session:"
)

// RedisSessionStore keeps sessions in Redis. It implements
// identity.SessionStore.
type RedisSessionStore struct{}

// Create opens a new session for an account. Any existing session for the
// account is invalidated first so the 7-day timer resets from this login.
func (s *RedisSessionStore) Create(ctx context.Context, accountID uuid.UUID) (string, error) {
	_ = s.invalidateAccountSessions(ctx, accountID)

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	sessionKey := SessionKeyPrefix + token
	accountKey := AccountSessionKeyPrefix + accountID.String()

	if err := database.RedisClient.Set(ctx, sessionKey, accountID.String(), SessionDuration).Err(); err != nil {
		return "", err
	}
	if err := database.RedisClient.Set(ctx, accountKey, token, SessionDuration).Err(); err != nil {
		return "", err
	}

	return token, nil
}

// Resolve returns the account behind a session token. A missing or expired
// token resolves to (Nil, false, nil); a Redis transport failure is an
// error, not an unauthenticated session.
func (s *RedisSessionStore) Resolve(ctx context.Context, token string) (uuid.UUID, bool, error) {
	if token == "" {
		return uuid.Nil, false, nil
	}

	accountIDStr, err := database.RedisClient.Get(ctx, SessionKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}

	accountID, err := uuid.Parse(accountIDStr)
	if err != nil {
		return uuid.Nil, false, err
	}

	return accountID, true, nil
}

// Invalidate removes a session. Unknown tokens are a no-op.
func (s *RedisSessionStore) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	sessionKey := SessionKeyPrefix + token

	accountIDStr, err := database.RedisClient.Get(ctx, sessionKey).Result()
	if err == nil && accountIDStr != "" {
		database.RedisClient.Del(ctx, AccountSessionKeyPrefix+accountIDStr)
	}

	return database.RedisClient.Del(ctx, sessionKey).Err()
}

func (s *RedisSessionStore) invalidateAccountSessions(ctx context.Context, accountID uuid.UUID) error {
	accountKey := AccountSessionKeyPrefix + accountID.String()

	token, err := database.RedisClient.Get(ctx, accountKey).Result()
	if err == nil && token != "" {
		database.RedisClient.Del(ctx, SessionKeyPrefix+token)
	}

	return database.RedisClient.Del(ctx, accountKey).Err()
}

// Sessions is the process-wide session store.
var Sessions = &RedisSessionStore{}
