package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/eventinator/internal/model"
)

// PasswordCookieName はFirebaseのセッションCookieを保持するCookieの名前。
const PasswordCookieName = "session"

// PasswordProvider はPasswordAdapterが使うFirebaseの操作。
type PasswordProvider interface {
	CreateAccount(ctx context.Context, acct NewAccount) error
	SignIn(ctx context.Context, email, password string) (string, error)
	CreateSessionCookie(ctx context.Context, idToken string) (string, bool)
	VerifySessionCookie(ctx context.Context, cookie string) (*PasswordClaims, bool)
	Revoke(ctx context.Context, uid string) error
	DeleteAccount(ctx context.Context, uid string) error
}

// SessionCookie は発行したセッションCookieの値と有効期間。
type SessionCookie struct {
	Value     string
	ExpiresIn time.Duration
}

// CookieConfig はパスワード認証Cookieの属性。
type CookieConfig struct {
	Secure bool
	Domain string
}

// PasswordAdapter はFirebaseのセッションCookieによるログイン状態を扱う。
type PasswordAdapter struct {
	provider  PasswordProvider
	offloader *Offloader
	cookie    CookieConfig
	ttl       time.Duration
	logger    *slog.Logger
}

// NewPasswordAdapter はPasswordAdapterを生成する。
func NewPasswordAdapter(provider PasswordProvider, offloader *Offloader, cookie CookieConfig, ttl time.Duration) *PasswordAdapter {
	return &PasswordAdapter{
		provider:  provider,
		offloader: offloader,
		cookie:    cookie,
		ttl:       ttl,
		logger:    slog.Default(),
	}
}

// CheckLoggedIn はセッションCookieを検証する。Cookieがない・不正・失効の場合はfalseを返す。
func (a *PasswordAdapter) CheckLoggedIn(ctx context.Context, r *http.Request) (*PasswordClaims, bool) {
	c, err := r.Cookie(PasswordCookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}

	type result struct {
		claims *PasswordClaims
		ok     bool
	}
	res, err := offload(ctx, a.offloader, ProviderFirebase, func(ctx context.Context) (result, error) {
		claims, ok := a.provider.VerifySessionCookie(ctx, c.Value)
		return result{claims: claims, ok: ok}, nil
	})
	if err != nil || !res.ok {
		return nil, false
	}
	return res.claims, true
}

// Login はメールアドレスとパスワードでサインインし、セッションCookieを発行する。
// 認証情報が誤っている場合は未認証エラー、Cookie発行に失敗した場合は区別したエラーを返す。
func (a *PasswordAdapter) Login(ctx context.Context, email, password string) (*SessionCookie, error) {
	idToken, err := offload(ctx, a.offloader, ProviderFirebase, func(ctx context.Context) (string, error) {
		return a.provider.SignIn(ctx, email, password)
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "firebase sign-in failed", slog.String("error", err.Error()))
		return nil, model.NewIdentityProviderError(ProviderFirebase)
	}
	if idToken == "" {
		return nil, model.NewUnauthenticatedError()
	}

	type result struct {
		value string
		ok    bool
	}
	res, err := offload(ctx, a.offloader, ProviderFirebase, func(ctx context.Context) (result, error) {
		value, ok := a.provider.CreateSessionCookie(ctx, idToken)
		return result{value: value, ok: ok}, nil
	})
	if err != nil || !res.ok {
		return nil, model.NewSessionCookieError()
	}
	return &SessionCookie{Value: res.value, ExpiresIn: a.ttl}, nil
}

// WriteCookie はセッションCookieをレスポンスに設定する。
func (a *PasswordAdapter) WriteCookie(w http.ResponseWriter, c *SessionCookie) {
	http.SetCookie(w, &http.Cookie{
		Name:     PasswordCookieName,
		Value:    c.Value,
		Path:     "/",
		Domain:   a.cookie.Domain,
		MaxAge:   int(c.ExpiresIn.Seconds()),
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie はセッションCookieを削除する。
func (a *PasswordAdapter) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     PasswordCookieName,
		Value:    "",
		Path:     "/",
		Domain:   a.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Logout はリフレッシュトークンを失効させ、Cookieを削除する。
func (a *PasswordAdapter) Logout(ctx context.Context, w http.ResponseWriter, uid string) error {
	a.ClearCookie(w)
	err := a.offloader.Do(ctx, ProviderFirebase, func(ctx context.Context) error {
		return a.provider.Revoke(ctx, uid)
	})
	if err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// DeleteAccount はIdP上のアカウントを削除する。
func (a *PasswordAdapter) DeleteAccount(ctx context.Context, uid string) error {
	err := a.offloader.Do(ctx, ProviderFirebase, func(ctx context.Context) error {
		return a.provider.DeleteAccount(ctx, uid)
	})
	if err != nil {
		return fmt.Errorf("failed to delete remote account: %w", err)
	}
	return nil
}
