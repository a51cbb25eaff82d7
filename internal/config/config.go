package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Discord OAuth2
	DiscordClientID     string `env:"DISCORD_CLIENT_ID,required,notEmpty"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET,required,notEmpty"`
	DiscordRedirectURL  string `env:"DISCORD_REDIRECT_URL,required,notEmpty"`

	// Firebase
	FirebaseWebAPIKey       string `env:"FIREBASE_WEB_API_KEY,required,notEmpty"`
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE" envDefault:"admin-sdk.json"`
	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`

	// Session
	SessionSecret      string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionMaxAge      int           `env:"SESSION_MAX_AGE" envDefault:"3600"`
	PasswordSessionTTL time.Duration `env:"PASSWORD_SESSION_TTL" envDefault:"120h"`

	// Identity provider calls
	IdentityMaxConcurrent int           `env:"IDENTITY_MAX_CONCURRENT" envDefault:"16"`
	IdentityTimeout       time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`

	// Rate Limit（req/min）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitLogin   int `env:"RATE_LIMIT_LOGIN" envDefault:"10"`

	// Worker
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は未設定の変数名をまとめたエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		if missing := missingKeys(err); len(missing) > 0 {
			return nil, fmt.Errorf("required environment variables are not set: %v", missing)
		}
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	if cfg.IdentityMaxConcurrent < 1 {
		cfg.IdentityMaxConcurrent = 1
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// missingKeys はenvの集約エラーから未設定・空の必須変数名を取り出す。
func missingKeys(err error) []string {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return nil
	}

	var keys []string
	for _, e := range agg.Errors {
		var notSet env.EnvVarIsNotSetError
		var empty env.EmptyEnvVarError
		switch {
		case errors.As(e, &notSet):
			keys = append(keys, notSet.Key)
		case errors.As(e, &empty):
			keys = append(keys, empty.Key)
		}
	}
	return keys
}
