package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/auth"
	"github.com/clone-prom-team-2025/server-sub001/auth/authtest"
	"github.com/clone-prom-team-2025/server-sub001/broker"
	"github.com/clone-prom-team-2025/server-sub001/broker/memory"
	redisbroker "github.com/clone-prom-team-2025/server-sub001/broker/redis"
	"github.com/clone-prom-team-2025/server-sub001/internal/config"
	"github.com/clone-prom-team-2025/server-sub001/notifications"
	"github.com/clone-prom-team-2025/server-sub001/sessions"
	"github.com/clone-prom-team-2025/server-sub001/sessions/memoryhost"
	"github.com/clone-prom-team-2025/server-sub001/sessions/redishost"
)

// staticSessionTTL bounds the sessions seeded for static tokens.
const staticSessionTTL = 24 * time.Hour

func newAuthenticator(ctx context.Context, cfg config.AuthConfig) (auth.Authenticator, error) {
	opts := []auth.AccessTokenAuthOption{auth.WithLeeway(cfg.Leeway)}
	if len(cfg.AllowedAlgs) > 0 {
		opts = append(opts, auth.WithAllowedAlgs(cfg.AllowedAlgs...))
	}
	switch cfg.Mode {
	case config.AuthOIDC:
		a, err := auth.NewFromDiscovery(ctx, cfg.Issuer, cfg.Audience, opts...)
		if err != nil {
			return nil, fmt.Errorf("oidc authenticator: %w", err)
		}
		return a, nil
	case config.AuthJWKS:
		a, err := auth.NewStatic(ctx, cfg.Issuer, cfg.Audience, cfg.JWKSURI, opts...)
		if err != nil {
			return nil, fmt.Errorf("jwks authenticator: %w", err)
		}
		return a, nil
	case config.AuthStatic:
		tokens := make(map[string]authtest.Identity, len(cfg.StaticTokens))
		for tok, id := range cfg.StaticTokens {
			tokens[tok] = authtest.Identity{UserID: id.UserID, SessionID: id.SessionID, Roles: id.Roles}
		}
		return authtest.NewStatic(tokens), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

func newSessionHost(cfg config.SessionsConfig) (sessions.Host, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		h, err := redishost.New(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis session host: %w", err)
		}
		return h, nil
	default:
		return memoryhost.New(), nil
	}
}

func newBroker(cfg config.BrokerConfig) (broker.Broker, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		b := redisbroker.New(cfg.Redis)
		return b, func() { _ = b.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}

// startRelay runs relay in the background and waits until it holds its
// first subscription. Events published earlier would never reach this
// instance, so nothing may publish before it returns. The returned channel
// yields Run's result.
func startRelay(ctx context.Context, relay *notifications.Relay) (<-chan error, error) {
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	select {
	case <-relay.Ready():
		return done, nil
	case <-ctx.Done():
		return done, ctx.Err()
	}
}

// seedStaticSessions creates a live session for each static identity so
// local clients can connect without a login service.
func seedStaticSessions(ctx context.Context, log *slog.Logger, host sessions.Host, ids map[string]config.StaticIdentity) {
	for _, id := range ids {
		if id.SessionID == "" {
			continue
		}
		sid, err := sessions.ParseID(id.SessionID)
		if err != nil {
			log.WarnContext(ctx, "session.seed.skip", slog.String("session_id", id.SessionID), slog.String("err", err.Error()))
			continue
		}
		if _, err := host.GetSession(ctx, sid); err == nil {
			continue
		}
		s := &sessions.Session{
			ID:        sid,
			UserID:    id.UserID,
			Roles:     id.Roles,
			ExpiresAt: time.Now().Add(staticSessionTTL),
		}
		if err := host.CreateSession(ctx, s); err != nil {
			log.WarnContext(ctx, "session.seed.fail", slog.String("session_id", sid), slog.String("err", err.Error()))
		}
	}
}
