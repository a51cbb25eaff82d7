package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eventinator/internal/model"
	"github.com/hitoshi/eventinator/internal/session"
)

// SessionLoader はCookieからサーバーサイドセッションを読み込む。*session.Managerが実装する。
type SessionLoader interface {
	Load(ctx context.Context, r *http.Request) (*model.Session, error)
}

// NewSessionMiddleware はサーバーサイドセッションを読み込んでコンテキストに格納するミドルウェアを返す。
// セッションがなくてもリクエストは拒否しない。
func NewSessionMiddleware(loader SessionLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := loader.Load(r.Context(), r)
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to load session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			ctx := session.NewContext(r.Context(), s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
