// internal/app/store/prefs/prefs.go

// Package prefs is the device-preference store: the per-session cached
// group hint the reconciler consults before the authoritative
// collections. The hint is never authoritative: it may lag, or
// reference a group that was deleted or that the account was removed
// from; reconciliation exists to repair exactly that divergence.
package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store is the device-scoped preference interface.
type Store interface {
	// GroupID returns the cached group hint and whether one is set.
	GroupID(ctx context.Context, userID string) (string, bool, error)
	// SetGroupID writes the cached group hint.
	SetGroupID(ctx context.Context, userID, groupID string) error
	// Clear drops all cached group data for the session.
	Clear(ctx context.Context, userID string) error
}

const groupIDField = "group_id"

// RedisStore keeps preferences in a per-session Redis hash.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a Redis-backed preference store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "muster:prefs:"}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

func (s *RedisStore) GroupID(ctx context.Context, userID string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.key(userID), groupIDField).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("prefs: read group hint: %w", err)
	}
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (s *RedisStore) SetGroupID(ctx context.Context, userID, groupID string) error {
	if err := s.client.HSet(ctx, s.key(userID), groupIDField, groupID).Err(); err != nil {
		return fmt.Errorf("prefs: write group hint: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("prefs: clear: %w", err)
	}
	return nil
}
