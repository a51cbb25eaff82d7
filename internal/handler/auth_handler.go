// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/eventinator/internal/auth"
	"github.com/hitoshi/eventinator/internal/middleware"
	"github.com/hitoshi/eventinator/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	DiscordLoginURL(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error)
	DiscordCallback(ctx context.Context, r *http.Request) (*model.User, error)
	PasswordLogin(ctx context.Context, w http.ResponseWriter, email, password string) error
	SignUp(ctx context.Context, w http.ResponseWriter, in auth.SignUpInput) (*model.User, error)
	Logout(ctx context.Context, w http.ResponseWriter, r *http.Request, p model.Principal) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// BaseURL はOAuthフロー完了後のリダイレクト先。
	BaseURL string
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// loginRequest はパスワードログインのリクエストボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// DiscordLogin はDiscordのOAuthフローを開始する。
// GET /auth/discord/login
func (h *AuthHandler) DiscordLogin(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.DiscordLoginURL(r.Context(), w, r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// DiscordCallback はOAuthコールバックを処理する。
// GET /auth/discord/callback?code=xxx&state=yyy
// 利用者が認可を拒否した場合やstateが一致しない場合はトップページに戻す。
func (h *AuthHandler) DiscordCallback(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.DiscordCallback(r.Context(), r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if user == nil {
		slog.WarnContext(r.Context(), "discord login was not completed")
		http.Redirect(w, r, h.redirectURL("/"), http.StatusTemporaryRedirect)
		return
	}
	http.Redirect(w, r, h.redirectURL("/dashboard"), http.StatusTemporaryRedirect)
}

// PasswordLogin はメールアドレスとパスワードでログインし、セッションCookieを発行する。
// POST /auth/login
func (h *AuthHandler) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("email and password are required"))
		return
	}

	if err := h.service.PasswordLogin(r.Context(), w, req.Email, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SignUp はパスワード認証のアカウントを作成し、そのままログインさせる。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req auth.SignUpInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.SignUp(r.Context(), w, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toUserResponse(user, model.PlatformFirebase))
}

// Logout はログイン方式に応じてセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrForbidden(w, r)
	if !ok {
		return
	}
	if err := h.service.Logout(r.Context(), w, r, p); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrForbidden(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toUserResponse(p.User, p.Platform))
}

func (h *AuthHandler) redirectURL(path string) string {
	return strings.TrimRight(h.config.BaseURL, "/") + path
}
