package redishost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for Redis-backed sessions.Host. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379" yaml:"redis_addr"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=marketplace:sessions:" yaml:"key_prefix"`
}

type Host struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

func New(cfg Config) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cl, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client. The host takes ownership of it and
// closes it on Close.
func NewWithClient(cl *redis.Client, keyPrefix string) *Host {
	if keyPrefix == "" {
		keyPrefix = "marketplace:sessions:"
	}
	return &Host{client: cl, keyPrefix: keyPrefix, now: time.Now}
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv() (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis session host config: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

func (h *Host) sessionKey(sessionID string) string { return h.keyPrefix + "session:" + sessionID }

func (h *Host) GetSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	raw, err := h.client.Get(ctx, h.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessions.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	var s sessions.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	// Key TTLs are coarse; don't hand out a record that has already lapsed.
	if !s.ExpiresAt.IsZero() && !h.now().Before(s.ExpiresAt) {
		return nil, sessions.ErrSessionNotFound
	}
	return &s, nil
}

func (h *Host) CreateSession(ctx context.Context, s *sessions.Session) error {
	if s.ID == "" {
		s.ID = sessions.NewID()
	}
	now := h.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	var ttl time.Duration
	if !s.ExpiresAt.IsZero() {
		ttl = s.ExpiresAt.Sub(now)
		if ttl <= 0 {
			return fmt.Errorf("create session %s: %w", s.ID, sessions.ErrSessionExpired)
		}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	if err := h.client.Set(ctx, h.sessionKey(s.ID), b, ttl).Err(); err != nil {
		return fmt.Errorf("set session %s: %w", s.ID, err)
	}
	return nil
}

func (h *Host) RevokeSession(ctx context.Context, sessionID string) error {
	key := h.sessionKey(sessionID)
	c := context.WithoutCancel(ctx)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(c, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return sessions.ErrSessionNotFound
			}
			return err
		}
		var s sessions.Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decode session %s: %w", sessionID, err)
		}
		s.Revoked = true
		b, err := json.Marshal(&s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(c, func(p redis.Pipeliner) error {
			p.Set(c, key, b, redis.KeepTTL)
			return nil
		})
		return err
	}
	// Optimistic retry on concurrent modification.
	for i := 0; i < 3; i++ {
		err := h.client.Watch(c, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("revoke session %s: too much contention", sessionID)
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	if err := h.client.Del(context.WithoutCancel(ctx), h.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// Interface compliance
var _ sessions.Host = (*Host)(nil)
