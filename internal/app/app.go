package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/eventinator/internal/auth"
	"github.com/hitoshi/eventinator/internal/config"
	"github.com/hitoshi/eventinator/internal/database"
	"github.com/hitoshi/eventinator/internal/events"
	"github.com/hitoshi/eventinator/internal/handler"
	"github.com/hitoshi/eventinator/internal/idgen"
	"github.com/hitoshi/eventinator/internal/logger"
	"github.com/hitoshi/eventinator/internal/metrics"
	"github.com/hitoshi/eventinator/internal/middleware"
	"github.com/hitoshi/eventinator/internal/repository"
	"github.com/hitoshi/eventinator/internal/security"
	"github.com/hitoshi/eventinator/internal/session"
	"github.com/hitoshi/eventinator/internal/user"
	"github.com/hitoshi/eventinator/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はJSON構造化ログをセットアップし、環境変数から設定を読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.String("error", err.Error()))
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run はサブコマンドを解析して対応するモードで起動する。argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は設定の読み込みを行わない
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting eventinator",
		slog.String("command", cmd.String()),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// connectGateway はDBへ接続したGatewayを返す。
func connectGateway(ctx context.Context, cfg *config.Config) (*database.Gateway, error) {
	gateway := database.NewPostgres(cfg.DatabaseURL)
	if err := gateway.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return gateway, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func runServe(ctx context.Context, cfg *config.Config) error {
	gateway, err := connectGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer gateway.Disconnect()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(gateway)
	eventRepo := repository.NewPostgresEventRepo(gateway)
	sessionRepo := repository.NewPostgresSessionRepo(gateway)
	ids := idgen.New()

	// 外部IdP
	offloader := auth.NewOffloader(cfg.IdentityMaxConcurrent, cfg.IdentityTimeout, collector)
	idpClient := &http.Client{Timeout: cfg.IdentityTimeout}

	fbClient, err := auth.NewFirebaseAuthClient(ctx, cfg.FirebaseCredentialsFile, cfg.FirebaseProjectID)
	if err != nil {
		return err
	}
	firebaseProvider := auth.NewFirebaseProvider(fbClient, auth.FirebaseConfig{
		WebAPIKey:  cfg.FirebaseWebAPIKey,
		SessionTTL: cfg.PasswordSessionTTL,
		HTTPClient: idpClient,
	})
	discordProvider := auth.NewDiscordProvider(auth.DiscordConfig{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordRedirectURL,
		HTTPClient:   idpClient,
	})

	sessions := session.NewManager(sessionRepo, session.Config{
		MaxAge:       time.Duration(cfg.SessionMaxAge) * time.Second,
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	})

	// 認証
	social := auth.NewSocialAdapter(discordProvider, sessions, offloader)
	password := auth.NewPasswordAdapter(firebaseProvider, offloader, auth.CookieConfig{
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
	}, cfg.PasswordSessionTTL)
	resolver := auth.NewResolver(userRepo, ids, firebaseProvider, offloader, collector)
	authenticator := auth.NewAuthenticator(social, password, resolver, collector)
	authService := auth.NewService(social, password, resolver)

	// ドメインサービス
	sanitizer := security.NewContentSanitizer()
	eventService := events.NewService(eventRepo, ids, sanitizer, collector)
	calendar := events.NewCalendarExporter(cfg.BaseURL, sanitizer)
	userService := user.NewService(userRepo, eventService, password)

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	csrf := middleware.NewCSRFMiddleware(middleware.CSRFConfig{
		AuthKey:        []byte(cfg.SessionSecret),
		CookieSecure:   cfg.CookieSecure,
		CookieDomain:   cfg.CookieDomain,
		TrustedOrigins: trustedOrigins(cfg.CORSAllowedOrigin),
	})

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		StatusObserver:    collector,
		SessionLoader:     sessions,
		Authenticator:     authenticator,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF:              csrf,
		HSTS:              cfg.CookieSecure,

		HealthChecker:  gateway,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig:  handler.AuthHandlerConfig{BaseURL: cfg.BaseURL},

		EventService: eventService,

		UserService:         userService,
		JoinedEvents:        eventService,
		Calendar:            calendar,
		CredentialForgetter: authService,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serveUntilDone(ctx, server, "API server")
}

// runWorker は期限切れセッションの定期削除を行う。
// SERVER_PORTで/metricsのみを公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	gateway, err := connectGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer gateway.Disconnect()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	job := cleanup.NewCleanupJob(
		repository.NewPostgresSessionRepo(gateway),
		collector,
		slog.Default(),
	)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := serveUntilDone(ctx, server, "worker metrics server"); err != nil {
			slog.Error("worker metrics server failed", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// serveUntilDone はserverを起動し、ctxの終了でShutdownする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}
	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate は未適用のマイグレーションをすべて適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はdistrolessイメージ向けのヘルスチェック。/healthが200を返すか確認する。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// trustedOrigins はCORS許可オリジンからCSRF検証用のホスト名を取り出す。
func trustedOrigins(origin string) []string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// maskDatabaseURL はデータベースURLのパスワードを伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
