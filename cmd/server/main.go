package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"campus_realtime/internal/config"
	"campus_realtime/internal/domain"
	"campus_realtime/internal/httpserver"
	"campus_realtime/internal/metrics"
	"campus_realtime/internal/presence"
	"campus_realtime/internal/push"
	"campus_realtime/internal/retention"
	"campus_realtime/internal/security"
	"campus_realtime/internal/service"
	"campus_realtime/internal/store/postgres"
	"campus_realtime/internal/store/redisstore"
	"campus_realtime/internal/store/sqlite"
	"campus_realtime/internal/typing"
	"campus_realtime/internal/workerpool"
	"campus_realtime/internal/ws"
)

// @title           Campus Realtime API
// @version         1.0
// @description     Real-time messaging and notifications for the college portal.

// @host            localhost:8000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type repositories struct {
	messages      domain.MessageRepository
	notifications domain.NotificationRepository
	subscriptions domain.SubscriptionRepository
	profiles      domain.ProfileRepository
	members       domain.MembershipRepository
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// Initialize database
	db, repos, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := ws.NewHub(m, logger)
	tokens := security.NewTokenService(cfg.JWTSecret, 24*time.Hour)

	var trackerOpts []presence.Option
	if cfg.RedisAddr != "" {
		store, err := redisstore.New(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Warn("redis unavailable, last-seen kept in memory", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer store.Close()
			trackerOpts = append(trackerOpts, presence.WithStore(store))
		}
	}
	trackerOpts = append(trackerOpts, presence.WithChangeFunc(func(d domain.PresenceChangedData) {
		hub.BroadcastAll(domain.Event{Name: domain.EventPresenceChanged, Data: d})
	}))
	tracker := presence.NewTracker(logger, trackerOpts...)

	coordinator := typing.NewCoordinator(cfg.TypingWindow, func(contextID string, typists []string) {
		hub.Broadcast(contextID, domain.Event{
			Name: domain.EventTypingChanged,
			Data: domain.TypingChangedData{ContextID: contextID, Typists: typists},
		})
	})
	go coordinator.Run(ctx)

	pool := workerpool.New(cfg.NotifyWorkers, cfg.NotifyQueue, logger)

	var pusher push.Pusher = push.Noop{}
	if cfg.PushEnabled() {
		pusher = push.NewWebPusher(push.Config{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
			TTL:        cfg.PushTTL,
		}, logger)
	} else {
		logger.Info("web push disabled, VAPID keys not configured")
	}

	policies := service.DefaultPolicies(repos.members, repos.profiles)
	notifications := service.NewNotificationService(
		repos.notifications, repos.subscriptions, repos.profiles,
		policies, hub, tracker, pusher, pool, m, logger,
	)
	notifications.AppName = cfg.AppName

	messages := service.NewMessageService(
		repos.messages, repos.profiles, repos.members, policies, hub, notifications, logger,
	)
	messages.MaxBodyRunes = cfg.MaxBodyRunes
	messages.SearchLimit = cfg.SearchLimit
	messages.PinnedLimit = cfg.PinnedDisplayLimit
	messages.OnContextPurged(func(contextID string) { hub.EvictContext(contextID) })
	messages.OnContextPurged(coordinator.RemoveContext)
	messages.OnMemberRemoved(func(contextID, userID string) {
		hub.LeaveUser(userID, contextID)
		coordinator.StopTyping(contextID, userID)
	})

	socket := ws.NewHandler(hub, tokens, tracker, coordinator, messages, ws.HandlerConfig{
		AllowedOrigins: cfg.CORSOrigins,
		PingInterval:   cfg.HeartbeatInterval,
		PongTimeout:    cfg.HeartbeatTimeout,
		SendBuffer:     cfg.SendBuffer,
		Rate:           cfg.SocketRate,
		Burst:          cfg.SocketBurst,
	}, logger)
	go ws.NewHeartbeatChecker(hub, cfg.HeartbeatTimeout, cfg.HeartbeatInterval, logger).Start(ctx)

	if cfg.RetentionEnabled {
		job, err := retention.New(repos.notifications, cfg.RetentionCron, cfg.RetentionPeriod, m, logger)
		if err != nil {
			logger.Error("invalid retention settings", "error", err)
			os.Exit(1)
		}
		go job.Run(ctx)
	}

	// Build HTTP router
	router := httpserver.NewRouter(httpserver.Deps{
		AppName:        cfg.AppName,
		CORSOrigins:    cfg.CORSOrigins,
		InternalAPIKey: cfg.InternalAPIKey,
		VAPIDPublicKey: cfg.VAPIDPublicKey,
		Tokens:         tokens,
		Messages:       messages,
		Notifications:  notifications,
		Profiles:       repos.profiles,
		Members:        repos.members,
		Presence:       tracker,
		Socket:         socket,
		Gatherer:       reg,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:        cfg.HTTPAddr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("starting campus realtime server", "addr", cfg.HTTPAddr(), "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	for _, c := range hub.Clients() {
		c.Close()
	}
	pool.Shutdown()
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Env, "production") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openStore(cfg *config.Config) (*sql.DB, repositories, error) {
	if cfg.StoreDriver == "postgres" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, repositories{}, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, repositories{}, err
		}
		return db, repositories{
			messages:      postgres.NewMessageRepo(db),
			notifications: postgres.NewNotificationRepo(db),
			subscriptions: postgres.NewSubscriptionRepo(db),
			profiles:      postgres.NewProfileRepo(db),
			members:       postgres.NewMembershipRepo(db),
		}, nil
	}

	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, repositories{}, err
	}
	if err := sqlite.Migrate(db); err != nil {
		db.Close()
		return nil, repositories{}, err
	}
	return db, repositories{
		messages:      sqlite.NewMessageRepo(db),
		notifications: sqlite.NewNotificationRepo(db),
		subscriptions: sqlite.NewSubscriptionRepo(db),
		profiles:      sqlite.NewProfileRepo(db),
		members:       sqlite.NewMembershipRepo(db),
	}, nil
}
