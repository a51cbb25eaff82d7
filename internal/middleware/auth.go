package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eventinator/internal/model"
)

// Authenticator はリクエストの認証主体を決定する。auth.Authenticatorが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (model.Principal, error)
	AuthenticateOptional(ctx context.Context, r *http.Request) (model.Principal, error)
}

// NewRequireAuthMiddleware はログイン必須のミドルウェアを返す。
// 未認証のリクエストには403を返し、どの認証方式で失敗したかは含めない。
func NewRequireAuthMiddleware(a Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.Authenticate(r.Context(), r)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// NewOptionalAuthMiddleware はゲストを許可するミドルウェアを返す。
// 未認証の場合はゲストの認証主体をコンテキストに注入する。
func NewOptionalAuthMiddleware(a Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.AuthenticateOptional(r.Context(), r)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	switch {
	case errors.Is(err, model.ErrUnauthenticated) && errors.As(err, &apiErr):
		WriteErrorResponse(w, http.StatusForbidden, apiErr)
	case errors.Is(err, model.ErrUpstream) && errors.As(err, &apiErr):
		WriteErrorResponse(w, http.StatusBadGateway, apiErr)
	default:
		slog.ErrorContext(r.Context(), "authentication failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteInternalServerError(w)
	}
}
