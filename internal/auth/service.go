// Package auth はDiscord OAuth2とFirebaseのメールアドレス・パスワード認証を扱い、
// リクエストの認証主体をローカルのユーザーに解決する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eventinator/internal/model"
)

// Service はログイン・新規登録・ログアウトのフローを提供する。
type Service struct {
	social   *SocialAdapter
	password *PasswordAdapter
	resolver *Resolver
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(social *SocialAdapter, password *PasswordAdapter, resolver *Resolver) *Service {
	return &Service{
		social:   social,
		password: password,
		resolver: resolver,
		logger:   slog.Default(),
	}
}

// DiscordLoginURL はDiscordの認可URLを返す。
func (s *Service) DiscordLoginURL(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error) {
	return s.social.LoginURL(ctx, w, r)
}

// DiscordCallback は認可コールバックを処理し、ログインしたユーザーを返す。
// 認可が拒否された場合はnilを返す。
func (s *Service) DiscordCallback(ctx context.Context, r *http.Request) (*model.User, error) {
	ok, err := s.social.HandleCallback(ctx, r)
	if err != nil || !ok {
		return nil, err
	}

	profile, err := s.social.Profile(ctx, r)
	if err != nil {
		s.logger.ErrorContext(ctx, "discord profile fetch failed", slog.String("error", err.Error()))
		return nil, model.NewIdentityProviderError(ProviderDiscord)
	}
	user, err := s.resolver.ResolveSocial(ctx, profile)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.UID),
		slog.String("platform", model.PlatformDiscord.String()),
	)
	return user, nil
}

// PasswordLogin はメールアドレスとパスワードでログインし、セッションCookieを設定する。
func (s *Service) PasswordLogin(ctx context.Context, w http.ResponseWriter, email, password string) error {
	cookie, err := s.password.Login(ctx, email, password)
	if err != nil {
		return err
	}
	s.password.WriteCookie(w, cookie)
	return nil
}

// SignUp はアカウントを作成し、そのままログインする。
func (s *Service) SignUp(ctx context.Context, w http.ResponseWriter, in SignUpInput) (*model.User, error) {
	user, err := s.resolver.SignUp(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.PasswordLogin(ctx, w, in.Email, in.Password); err != nil {
		return user, fmt.Errorf("account created but login failed: %w", err)
	}
	return user, nil
}

// Logout は認証主体のプラットフォームに応じてログアウトする。
// Discordはサーバーサイドセッションを破棄し、パスワード認証はトークンを失効させる。
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request, p model.Principal) error {
	switch p.Platform {
	case model.PlatformDiscord:
		return s.social.Logout(ctx, w, r)
	case model.PlatformFirebase:
		return s.password.Logout(ctx, w, p.User.UID)
	default:
		return model.NewUnauthenticatedError()
	}
}

// ForgetCredentials はIdPに問い合わせずにブラウザ側の認証情報を破棄する。
// 退会後のようにIdP上のアカウントが既に存在しない場合に使う。
func (s *Service) ForgetCredentials(ctx context.Context, w http.ResponseWriter, r *http.Request, p model.Principal) error {
	switch p.Platform {
	case model.PlatformDiscord:
		return s.social.Logout(ctx, w, r)
	case model.PlatformFirebase:
		s.password.ClearCookie(w)
	}
	return nil
}
