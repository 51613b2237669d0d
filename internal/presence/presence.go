// Package presence mirrors who-is-online state into Redis so other
// services can read it without touching the messaging core. Strictly
// best-effort: a nil *Store disables every operation.
package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const onlineTTL = 2 * time.Minute

// Store wraps a Redis client for presence keys.
type Store struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, redisURL string, logger zerolog.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Store{
		client: client,
		logger: logger.With().Str("component", "presence").Logger(),
	}, nil
}

func onlineKey(userID string) string {
	return "studyroom:online:" + userID
}

// SetOnline marks userID online with a TTL refreshed by Heartbeat.
func (s *Store) SetOnline(ctx context.Context, userID string) {
	if s == nil {
		return
	}
	if err := s.client.Set(ctx, onlineKey(userID), time.Now().UTC().Format(time.RFC3339), onlineTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("presence set failed")
	}
}

// Heartbeat extends the online TTL for a live connection.
func (s *Store) Heartbeat(ctx context.Context, userID string) {
	if s == nil {
		return
	}
	if err := s.client.Expire(ctx, onlineKey(userID), onlineTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("presence refresh failed")
	}
}

// SetOffline removes the online marker on disconnect.
func (s *Store) SetOffline(ctx context.Context, userID string) {
	if s == nil {
		return
	}
	if err := s.client.Del(ctx, onlineKey(userID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("presence delete failed")
	}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
