package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/hitoshi/eventinator/internal/model"
)

// サーバーサイドセッションに保存するキー
const (
	sessionKeyToken = "discord_oauth2_token"
	sessionKeyState = "discord_oauth2_state"
)

// DiscordClient はSocialAdapterが使うDiscordの操作。
type DiscordClient interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token)) (*SocialProfile, error)
}

// SessionStore はサーバーサイドセッションの操作。*session.Manager が満たす。
type SessionStore interface {
	Current(r *http.Request) (*model.Session, error)
	Start(ctx context.Context, w http.ResponseWriter, r *http.Request) (*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	Destroy(ctx context.Context, w http.ResponseWriter, s *model.Session) error
}

// SocialAdapter はDiscordログインの状態をサーバーサイドセッションで管理する。
type SocialAdapter struct {
	discord   DiscordClient
	sessions  SessionStore
	offloader *Offloader
	logger    *slog.Logger
}

// NewSocialAdapter はSocialAdapterを生成する。
func NewSocialAdapter(discord DiscordClient, sessions SessionStore, offloader *Offloader) *SocialAdapter {
	return &SocialAdapter{
		discord:   discord,
		sessions:  sessions,
		offloader: offloader,
		logger:    slog.Default(),
	}
}

// CheckLoggedIn はセッションにDiscordのトークンがあるかを返す。IdPへの通信は行わない。
func (a *SocialAdapter) CheckLoggedIn(r *http.Request) (*oauth2.Token, bool) {
	s, err := a.sessions.Current(r)
	if err != nil || s == nil {
		return nil, false
	}
	var token oauth2.Token
	ok, err := s.Get(sessionKeyToken, &token)
	if err != nil || !ok || token.AccessToken == "" {
		return nil, false
	}
	return &token, true
}

// LoginURL はstateをセッションに保存し、Discordの認可URLを返す。
func (a *SocialAdapter) LoginURL(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	s, err := a.sessions.Start(ctx, w, r)
	if err != nil {
		return "", err
	}
	if err := s.Set(sessionKeyState, state); err != nil {
		return "", err
	}
	if err := a.sessions.Save(ctx, s); err != nil {
		return "", err
	}
	return a.discord.AuthorizationURL(state), nil
}

// HandleCallback は認可コールバックを処理し、成功した場合はトークンをセッションに保存する。
// ユーザーが認可を拒否した場合やstateが一致しない場合はfalseを返す。
func (a *SocialAdapter) HandleCallback(ctx context.Context, r *http.Request) (bool, error) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		a.logger.InfoContext(ctx, "discord authorization declined", slog.String("error", e))
		return false, nil
	}

	s, err := a.sessions.Current(r)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}

	var expected string
	if ok, _ := s.Get(sessionKeyState, &expected); !ok || expected == "" || q.Get("state") != expected {
		a.logger.WarnContext(ctx, "oauth state mismatch")
		return false, nil
	}
	code := q.Get("code")
	if code == "" {
		return false, nil
	}

	token, err := offload(ctx, a.offloader, ProviderDiscord, func(ctx context.Context) (*oauth2.Token, error) {
		return a.discord.Exchange(ctx, code)
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "discord code exchange failed", slog.String("error", err.Error()))
		return false, model.NewIdentityProviderError(ProviderDiscord)
	}

	s.Delete(sessionKeyState)
	if err := s.Set(sessionKeyToken, token); err != nil {
		return false, err
	}
	if err := a.sessions.Save(ctx, s); err != nil {
		return false, err
	}
	return true, nil
}

// Profile はセッションのトークンでDiscordのプロフィールを取得する。
// トークンが更新された場合は新しいトークンをセッションに書き戻す。
func (a *SocialAdapter) Profile(ctx context.Context, r *http.Request) (*SocialProfile, error) {
	token, ok := a.CheckLoggedIn(r)
	if !ok {
		return nil, model.NewUnauthenticatedError()
	}
	s, err := a.sessions.Current(r)
	if err != nil {
		return nil, err
	}

	return offload(ctx, a.offloader, ProviderDiscord, func(ctx context.Context) (*SocialProfile, error) {
		return a.discord.FetchProfile(ctx, token, func(t *oauth2.Token) {
			if err := s.Set(sessionKeyToken, t); err != nil {
				return
			}
			if err := a.sessions.Save(ctx, s); err != nil {
				a.logger.WarnContext(ctx, "failed to persist refreshed token", slog.String("error", err.Error()))
			}
		})
	})
}

// Logout はサーバーサイドセッションを破棄する。
func (a *SocialAdapter) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	s, err := a.sessions.Current(r)
	if err != nil {
		return err
	}
	return a.sessions.Destroy(ctx, w, s)
}

// generateState はCSRF対策用のstateを生成する。
func generateState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
