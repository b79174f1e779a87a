package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"netpulseserver/internal/auth"
	"netpulseserver/internal/domain"
	"netpulseserver/internal/service"
)

// StatsSource serves the aggregate counters for the stats endpoint.
type StatsSource interface {
	Snapshot(ctx context.Context) (domain.Stats, error)
}

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing func(context.Context) error
	Stats  StatsSource

	Auth         *service.AuthService
	Users        *service.UsersService
	Friends      *service.FriendsService
	Sessions     *service.SessionsService
	Achievements *service.AchievementsService
	Push         *service.PushService

	Tokens         auth.TokenCodec
	OperatorToken  string
	AppleClientIDs []string
	GoogleClientID string

	LoginRatePerMinute int
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &api{
		logger:          logger,
		isProd:          opts.IsProd,
		dbPing:          opts.DBPing,
		stats:           opts.Stats,
		authSvc:         opts.Auth,
		usersSvc:        opts.Users,
		friendsSvc:      opts.Friends,
		sessionsSvc:     opts.Sessions,
		achievementsSvc: opts.Achievements,
		pushSvc:         opts.Push,
		tokens:          opts.Tokens,
		operatorToken:   opts.OperatorToken,
		appleClientIDs:  opts.AppleClientIDs,
		googleClientID:  opts.GoogleClientID,
		loginLimiter:    newLoginLimiter(opts.LoginRatePerMinute),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/stats", a.handleStats)

	mux.HandleFunc("POST /api/register", a.handleAuthRegister)
	mux.HandleFunc("POST /api/login", a.handleAuthLogin)
	mux.HandleFunc("POST /api/auth/apple", a.handleAuthApple)
	mux.HandleFunc("POST /api/auth/google", a.handleAuthGoogle)

	mux.HandleFunc("GET /api/user/{username}", a.handleUserByUsername)
	mux.HandleFunc("GET /api/user/id/{id}", a.handleUserByID)
	mux.HandleFunc("GET /api/profile/{id}", a.handleProfile)
	mux.HandleFunc("GET /api/friends/{id}", a.handleFriends)
	mux.HandleFunc("GET /api/achievements/{id}", a.handleAchievements)
	mux.HandleFunc("GET /api/sessions/{id}", a.handleSessionHistory)

	mux.HandleFunc("GET /api/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("POST /api/push-tokens", a.requireAuth(a.handlePushTokenUpsert))
	mux.HandleFunc("DELETE /api/push-tokens", a.requireAuth(a.handlePushTokenDelete))

	mux.HandleFunc("POST /api/admin/sessions/{id}/cancel", a.requireOperator(a.handleAdminCancelSession))

	// Unmatched /api paths get a JSON 404 instead of the mux default.
	mux.HandleFunc("/api/", func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "not_found", "not found")
	})

	var h http.Handler = mux
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error
	stats  StatsSource

	authSvc         *service.AuthService
	usersSvc        *service.UsersService
	friendsSvc      *service.FriendsService
	sessionsSvc     *service.SessionsService
	achievementsSvc *service.AchievementsService
	pushSvc         *service.PushService

	tokens         auth.TokenCodec
	operatorToken  string
	appleClientIDs []string
	googleClientID string

	loginLimiter *loginLimiter
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
