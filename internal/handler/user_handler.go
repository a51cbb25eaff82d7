package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eventinator/internal/middleware"
	"github.com/hitoshi/eventinator/internal/model"
	"github.com/hitoshi/eventinator/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Dashboard(ctx context.Context, p model.Principal) (*user.Dashboard, error)
	SetTimezone(ctx context.Context, u *model.User, raw string) (string, error)
	// DeleteAccount はユーザーの退会処理を実行する。
	// 所有イベントとその参加情報、自身の参加情報を一括削除する。
	DeleteAccount(ctx context.Context, p model.Principal) error
}

// JoinedEventLister は参加イベント一覧の取得インターフェース。
type JoinedEventLister interface {
	ListJoined(ctx context.Context, uid string) ([]*model.Event, error)
}

// CalendarExporter は参加イベントのiCalendar出力インターフェース。
type CalendarExporter interface {
	Export(w io.Writer, u *model.User, events []*model.Event) error
}

// CredentialForgetter は退会後にブラウザ側の認証情報を破棄する。
type CredentialForgetter interface {
	ForgetCredentials(ctx context.Context, w http.ResponseWriter, r *http.Request, p model.Principal) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service     UserServiceInterface
	events      JoinedEventLister
	calendar    CalendarExporter
	credentials CredentialForgetter
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(
	service UserServiceInterface,
	events JoinedEventLister,
	calendar CalendarExporter,
	credentials CredentialForgetter,
) *UserHandler {
	return &UserHandler{
		service:     service,
		events:      events,
		calendar:    calendar,
		credentials: credentials,
	}
}

// timezoneRequest はタイムゾーン設定のリクエストボディ。
type timezoneRequest struct {
	Timezone string `json:"timezone"`
}

// dashboardResponse はダッシュボードのAPIレスポンス。
type dashboardResponse struct {
	User   userResponse    `json:"user"`
	Owned  []eventResponse `json:"owned_events"`
	Joined []eventResponse `json:"joined_events"`
}

// Dashboard は所有イベントと参加イベントを返す。
// GET /api/users/me/dashboard
func (h *UserHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrForbidden(w, r)
	if !ok {
		return
	}

	d, err := h.service.Dashboard(r.Context(), p)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dashboardResponse{
		User:   toUserResponse(d.User, d.Platform),
		Owned:  toEventResponses(d.Owned, p),
		Joined: toEventResponses(d.Joined, p),
	})
}

// SetTimezone はタイムゾーンを設定する。
// PUT /api/users/me/timezone
func (h *UserHandler) SetTimezone(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrForbidden(w, r)
	if !ok {
		return
	}

	var req timezoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tz, err := h.service.SetTimezone(r.Context(), p.User, req.Timezone)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, timezoneRequest{Timezone: tz})
}

// Calendar は参加イベントをiCalendar形式で返す。
// GET /api/users/me/calendar.ics
func (h *UserHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrForbidden(w, r)
	if !ok {
		return
	}

	joined, err := h.events.ListJoined(r.Context(), p.User.UID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="eventinator.ics"`)
	if err := h.calendar.Export(w, p.User, joined); err != nil {
		// ヘッダー送信後のため、ログのみ
		slog.ErrorContext(r.Context(), "failed to export calendar", slog.String("error", err.Error()))
	}
}

// DeleteAccount はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrForbidden(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteAccount(r.Context(), p); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if h.credentials != nil {
		if err := h.credentials.ForgetCredentials(r.Context(), w, r, p); err != nil {
			slog.WarnContext(r.Context(), "failed to clear credentials after account deletion",
				slog.String("error", err.Error()),
			)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
