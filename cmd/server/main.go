package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"golang.org/x/time/rate"

	"netpulseserver/internal/auth"
	"netpulseserver/internal/config"
	"netpulseserver/internal/httpapi"
	"netpulseserver/internal/notifications"
	"netpulseserver/internal/realtime"
	"netpulseserver/internal/service"
	"netpulseserver/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if cfg.DBDSN == "" {
		logger.Error("APP_DB_DSN is required")
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := postgres.Open(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("db open failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	users := postgres.NewUsersStore(pool)
	sessions := postgres.NewSessionsStore(pool)
	invitations := postgres.NewInvitationsStore(pool)
	messages := postgres.NewMessagesStore(pool)
	friendships := postgres.NewFriendshipsStore(pool)
	userSearch := postgres.NewUserSearchStore(pool)
	achievements := postgres.NewAchievementsStore(pool)
	external := postgres.NewExternalAccountsStore(pool)
	pushTokens := postgres.NewNotificationTokensStore(pool)
	stats := postgres.NewStatsStore(pool)

	tokens := auth.NewTokenCodec([]byte(cfg.TokenSecret), cfg.TokenTTL)
	registry := realtime.NewRegistry()

	pushSvc := &service.PushService{Tokens: pushTokens, Logger: logger}
	if cfg.PushEnabled() {
		sender, err := notifications.NewFCMSender(ctx, cfg.FCMProjectID, cfg.FCMCredentialsFile)
		if err != nil {
			logger.Error("fcm init failed", "err", err)
			os.Exit(1)
		}
		pushSvc.Sender = sender
		logger.Info("push notifications enabled", "project_id", cfg.FCMProjectID)
	}

	notifier := &realtime.Notifier{
		Registry:     registry,
		Participants: sessions,
		Friends:      friendships,
		Push:         pushSvc,
		Logger:       logger,
	}

	authSvc := &service.AuthService{Users: users, External: external, Tokens: tokens}
	presenceSvc := &service.PresenceService{Users: users, Notifier: notifier}
	usersSvc := &service.UsersService{Store: userSearch, Users: users}
	achievementsSvc := &service.AchievementsService{
		Achievements: achievements,
		Users:        users,
		Friends:      friendships,
		Notifier:     notifier,
	}
	friendsSvc := &service.FriendsService{
		Users:       users,
		Friendships: friendships,
		Notifier:    notifier,
		Evaluator:   achievementsSvc,
	}
	sessionsSvc := &service.SessionsService{
		Sessions:    sessions,
		Invitations: invitations,
		Messages:    messages,
		Users:       users,
		Notifier:    notifier,
		Evaluator:   achievementsSvc,
		Logger:      logger,
	}

	reportOrphanedSessions(ctx, logger, sessions)

	wsHandler := &realtime.Handler{
		Registry:     registry,
		Auth:         authSvc,
		Presence:     presenceSvc,
		Directory:    usersSvc,
		Friends:      friendsSvc,
		Sessions:     sessionsSvc,
		Achievements: achievementsSvc,
		FrameRate:    rate.Limit(cfg.SocketRatePerSec),
		FrameBurst:   cfg.SocketRatePerSec * 2,
		Logger:       logger,
	}

	apiRouter := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:             logger,
		IsProd:             cfg.IsProd(),
		DBPing:             pool.Ping,
		Stats:              stats,
		Auth:               authSvc,
		Users:              usersSvc,
		Friends:            friendsSvc,
		Sessions:           sessionsSvc,
		Achievements:       achievementsSvc,
		Push:               pushSvc,
		Tokens:             tokens,
		OperatorToken:      cfg.OperatorToken,
		AppleClientIDs:     cfg.AppleClientIDs,
		GoogleClientID:     cfg.GoogleClientID,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
	})

	root := http.NewServeMux()
	root.Handle("/ws", wsHandler)
	root.Handle("/", apiRouter)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		registry.CloseAll()
		sessionsSvc.StopTimers()
		logger.Info("server stopped")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

// reportOrphanedSessions logs sessions still marked ACTIVE from a previous
// run. Their timers died with the old process, so they will never complete
// on their own; an operator resolves each one through the admin cancel
// endpoint.
func reportOrphanedSessions(ctx context.Context, logger *slog.Logger, sessions *postgres.SessionsStore) {
	ids, err := sessions.ListActiveSessionIDs(ctx)
	if err != nil {
		logger.Warn("list active sessions at boot", "err", err)
		return
	}
	for _, id := range ids {
		logger.Warn("session still active from a previous run; cancel it via the operator endpoint", "session_id", id)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
