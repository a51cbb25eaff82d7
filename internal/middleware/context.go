// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/eventinator/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

const (
	principalContextKey   = contextKey("principal")
	requestInfoContextKey = contextKey("request_info")
)

// requestInfo はロギングミドルウェアが内側のミドルウェアから受け取る情報。
type requestInfo struct {
	requestID string
	userID    string
}

// ContextWithPrincipal はコンテキストに認証主体を注入する。
func ContextWithPrincipal(ctx context.Context, p model.Principal) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok && p.User != nil {
		info.userID = p.User.UID
	}
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext はリクエストコンテキストから認証主体を取得する。
// 認可ミドルウェアを通過していない場合はfalseを返す。
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(model.Principal)
	return p, ok
}

// UserIDFromContext はリクエストコンテキストからログイン中のユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.IsGuest() {
		return "", fmt.Errorf("user ID not found in context")
	}
	return p.User.UID, nil
}

// RequestIDFromContext はリクエストIDを取得する。
func RequestIDFromContext(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		return info.requestID
	}
	return ""
}
