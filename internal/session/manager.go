// Package session はDBに保存するサーバーサイドセッションを提供する。
// Discordのアクセストークンやstateはクライアントに渡さずここに保持する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/eventinator/internal/model"
	"github.com/hitoshi/eventinator/internal/repository"
)

// CookieName はセッションIDを保持するCookieの名前。
const CookieName = "session_id"

// Config はセッションマネージャーの設定。
type Config struct {
	MaxAge       time.Duration
	CookieSecure bool
	CookieDomain string
}

// Manager はセッションの読み込み・作成・保存・破棄を行う。
type Manager struct {
	repo   repository.SessionRepository
	config Config
	now    func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(repo repository.SessionRepository, config Config) *Manager {
	return &Manager{
		repo:   repo,
		config: config,
		now:    time.Now,
	}
}

type contextKey struct{}

type loaded struct {
	session *model.Session
}

// NewContext は読み込み済みのセッションをコンテキストに格納する。
// セッションが存在しない場合もnilを格納し、再読み込みを避ける。
func NewContext(ctx context.Context, s *model.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, loaded{session: s})
}

// FromContext はコンテキストからセッションを取り出す。
// 2つ目の戻り値はミドルウェアで読み込み済みかどうかを示す。
func FromContext(ctx context.Context) (*model.Session, bool) {
	l, ok := ctx.Value(contextKey{}).(loaded)
	return l.session, ok
}

// Load はCookieからセッションを読み込む。Cookieがない、または期限切れの場合はnilを返す。
func (m *Manager) Load(ctx context.Context, r *http.Request) (*model.Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	s, err := m.repo.FindByID(ctx, cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return s, nil
}

// Current はミドルウェアが読み込んだセッションを返し、なければCookieから読み込む。
func (m *Manager) Current(r *http.Request) (*model.Session, error) {
	if s, ok := FromContext(r.Context()); ok {
		return s, nil
	}
	return m.Load(r.Context(), r)
}

// Start は現在のセッションを返す。存在しない場合は新規に作成してCookieを設定する。
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, r *http.Request) (*model.Session, error) {
	s, err := m.Current(r)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}

	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	s = &model.Session{
		ID:        id,
		ExpiresAt: now.Add(m.config.MaxAge),
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.setCookie(w, s.ID, int(m.config.MaxAge.Seconds()))
	return s, nil
}

// Save はセッションデータを保存し、有効期限を延長する。
func (m *Manager) Save(ctx context.Context, s *model.Session) error {
	s.ExpiresAt = m.now().Add(m.config.MaxAge)
	if err := m.repo.Update(ctx, s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Destroy はセッションを削除しCookieを無効化する。
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *model.Session) error {
	m.setCookie(w, "", -1)
	if s == nil {
		return nil
	}
	if err := m.repo.DeleteByID(ctx, s.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Domain:   m.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
