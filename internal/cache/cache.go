package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ggecl/auth-sessions/internal/model"
)

// SessionCache is the shared low-latency store used for two things:
// rotation results keyed by the consumed refresh token, and session
// lookups memoized per principal. Rotation keys are written once and
// only read until they expire.
type SessionCache struct {
	rdb         *redis.Client
	rotationTTL time.Duration
	sessionTTL  time.Duration
}

func New(rdb *redis.Client, rotationTTL, sessionTTL time.Duration) *SessionCache {
	return &SessionCache{rdb: rdb, rotationTTL: rotationTTL, sessionTTL: sessionTTL}
}

func rotationKey(refreshToken string) string {
	return "rotation:" + refreshToken
}

func sessionKey(id string, role model.Role) string {
	return fmt.Sprintf("user:%s:%s", id, role)
}

// GetRotation returns the pair published for an already-consumed
// refresh token, if any.
func (c *SessionCache) GetRotation(ctx context.Context, oldToken string) (model.TokenPair, bool, error) {
	value, err := c.rdb.Get(ctx, rotationKey(oldToken)).Result()
	if errors.Is(err, redis.Nil) {
		return model.TokenPair{}, false, nil
	}
	if err != nil {
		return model.TokenPair{}, false, fmt.Errorf("session cache get: %w", err)
	}
	var pair model.TokenPair
	if err := json.Unmarshal([]byte(value), &pair); err != nil {
		return model.TokenPair{}, false, fmt.Errorf("session cache decode: %w", err)
	}
	return pair, true, nil
}

// PublishRotation records the pair minted for oldToken. The delete and
// the write go through one pipeline so late arrivals never observe a
// stale entry between the two.
func (c *SessionCache) PublishRotation(ctx context.Context, oldToken string, pair model.TokenPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("session cache encode: %w", err)
	}
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, rotationKey(oldToken))
	pipe.Set(ctx, rotationKey(oldToken), data, c.rotationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session cache publish: %w", err)
	}
	return nil
}

func (c *SessionCache) DeleteRotation(ctx context.Context, refreshToken string) error {
	if err := c.rdb.Del(ctx, rotationKey(refreshToken)).Err(); err != nil {
		return fmt.Errorf("session cache delete: %w", err)
	}
	return nil
}

// GetSession returns the memoized session lookup for a principal.
func (c *SessionCache) GetSession(ctx context.Context, id string, role model.Role) (model.Session, bool, error) {
	value, err := c.rdb.Get(ctx, sessionKey(id, role)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, fmt.Errorf("session cache get: %w", err)
	}
	var session model.Session
	if err := json.Unmarshal([]byte(value), &session); err != nil {
		return model.Session{}, false, fmt.Errorf("session cache decode: %w", err)
	}
	return session, true, nil
}

func (c *SessionCache) PutSession(ctx context.Context, session model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("session cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, sessionKey(session.ID, session.Role), data, c.sessionTTL).Err(); err != nil {
		return fmt.Errorf("session cache put: %w", err)
	}
	return nil
}

func (c *SessionCache) DeleteSession(ctx context.Context, id string, role model.Role) error {
	if err := c.rdb.Del(ctx, sessionKey(id, role)).Err(); err != nil {
		return fmt.Errorf("session cache delete: %w", err)
	}
	return nil
}
