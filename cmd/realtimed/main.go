// Command realtimed runs the marketplace real-time gateway: the WebSocket hub
// clients connect to and the admin API business services call.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/adminapi"
	"github.com/clone-prom-team-2025/server-sub001/internal/config"
	"github.com/clone-prom-team-2025/server-sub001/internal/logctx"
	"github.com/clone-prom-team-2025/server-sub001/notifications"
	"github.com/clone-prom-team-2025/server-sub001/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "realtimed:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	lvl, _ := config.ParseLevel(cfg.LogLevel)
	level.Set(lvl)
	log := newLogger(cfg.LogFormat, level)
	slog.SetDefault(log)

	authn, err := newAuthenticator(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	host, err := newSessionHost(cfg.Sessions)
	if err != nil {
		return err
	}
	defer host.Close()
	if cfg.Auth.Mode == config.AuthStatic {
		seedStaticSessions(ctx, log, host, cfg.Auth.StaticTokens)
	}

	b, closeBroker, err := newBroker(cfg.Broker)
	if err != nil {
		return err
	}
	defer closeBroker()

	hub := realtime.NewHub(host, authn,
		realtime.WithLogger(log),
		realtime.WithRealm(cfg.Hub.Realm),
		realtime.WithAllowedOrigins(cfg.Hub.AllowedOrigins...),
		realtime.WithSendQueueSize(cfg.Hub.SendQueueSize),
		realtime.WithKeepalive(cfg.Hub.PongWait),
		realtime.WithWriteTimeout(cfg.Hub.WriteTimeout),
		realtime.WithMaxMessageSize(cfg.Hub.MaxMessageSize),
	)

	dispatchOpts := []notifications.Option{notifications.WithLogger(log)}
	if cfg.Hub.LogoutMessage != "" {
		dispatchOpts = append(dispatchOpts, notifications.WithLogoutMessage(cfg.Hub.LogoutMessage))
	}
	dispatcher := notifications.NewDispatcher(hub.Registry(), dispatchOpts...)
	relay := notifications.NewRelay(b, dispatcher,
		notifications.WithTopic(cfg.Broker.Topic),
		notifications.WithRelayLogger(log),
	)

	admin := adminapi.New(relay, host, authn,
		adminapi.WithLogger(log),
		adminapi.WithStats(hub),
		adminapi.WithAdminRole(cfg.Auth.AdminRole),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Handle(cfg.HubPath, hub)
	admin.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	relayDone, err := startRelay(runCtx, relay)
	if err != nil {
		// Interrupted before the first subscription.
		<-relayDone
		return nil
	}
	log.InfoContext(ctx, "relay.ready", slog.String("topic", cfg.Broker.Topic))

	if path := os.Getenv(config.FileEnv); path != "" {
		go func() {
			err := config.Watch(runCtx, path, log, func(c *config.Config) {
				if l, err := config.ParseLevel(c.LogLevel); err == nil {
					level.Set(l)
				}
			})
			if err != nil {
				log.WarnContext(runCtx, "config.watch.fail", slog.String("err", err.Error()))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "server.listen",
			slog.String("addr", cfg.ListenAddr),
			slog.String("hub_path", cfg.HubPath),
			slog.String("auth_mode", cfg.Auth.Mode),
			slog.String("sessions", cfg.Sessions.Backend),
			slog.String("broker", cfg.Broker.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.InfoContext(ctx, "server.shutdown.start")
	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer scancel()

	// Hijacked sockets are invisible to http.Server.Shutdown; close them first.
	if err := hub.Shutdown(sctx); err != nil {
		log.WarnContext(sctx, "hub.shutdown.fail", slog.String("err", err.Error()))
	}
	if err := srv.Shutdown(sctx); err != nil {
		log.WarnContext(sctx, "server.shutdown.fail", slog.String("err", err.Error()))
	}
	cancel()
	if err := <-relayDone; err != nil {
		log.WarnContext(sctx, "relay.stop.fail", slog.String("err", err.Error()))
	}
	log.InfoContext(sctx, "server.shutdown.done")
	return nil
}

func newLogger(format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return logctx.Wrap(slog.New(h))
}
