package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eventinator/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusObserver    middleware.StatusObserver
	SessionLoader     middleware.SessionLoader
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	// CSRF はCSRF検証ミドルウェア。nilの場合は適用しない。
	CSRF func(http.Handler) http.Handler
	HSTS bool

	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// イベント
	EventService EventServiceInterface

	// ユーザー
	UserService         UserServiceInterface
	JoinedEvents        JoinedEventLister
	Calendar            CalendarExporter
	CredentialForgetter CredentialForgetter
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → RequestSize → Session → CSRF
//	→ RequireAuth|OptionalAuth → RateLimit
//
// /health と /metrics はセッションとCSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	eventHandler := NewEventHandler(deps.EventService)
	userHandler := NewUserHandler(deps.UserService, deps.JoinedEvents, deps.Calendar, deps.CredentialForgetter)

	requireAuth := middleware.NewRequireAuthMiddleware(deps.Authenticator)
	optionalAuth := middleware.NewOptionalAuthMiddleware(deps.Authenticator)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequestSizeMiddleware(middleware.DefaultMaxBodySize))
		r.Use(middleware.NewSessionMiddleware(deps.SessionLoader))
		if deps.CSRF != nil {
			r.Use(deps.CSRF)
		}

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler())

		// --- 認証フロー ---
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.LoginMiddleware())
				r.Get("/discord/login", authHandler.DiscordLogin)
				r.Get("/discord/callback", authHandler.DiscordCallback)
				r.Post("/login", authHandler.PasswordLogin)
				r.Post("/signup", authHandler.SignUp)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Use(deps.RateLimiter.GeneralMiddleware())
				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.Me)
			})
		})

		// --- ゲストも閲覧できるルート ---
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Get("/api/events/{id}", eventHandler.Get)
			r.Get("/api/events/{id}/members", eventHandler.Members)
		})

		// --- ログインが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// GETと同じパターンを共有するためRouteではなく個別に登録する
			r.Post("/api/events", eventHandler.Create)
			r.Post("/api/events/{id}/join", eventHandler.Join)
			r.Post("/api/events/{id}/leave", eventHandler.Leave)
			r.Delete("/api/events/{id}", eventHandler.Delete)

			r.Get("/api/users/me/dashboard", userHandler.Dashboard)
			r.Put("/api/users/me/timezone", userHandler.SetTimezone)
			r.Get("/api/users/me/calendar.ics", userHandler.Calendar)
			r.Delete("/api/users/me", userHandler.DeleteAccount)
		})
	})

	return r
}
