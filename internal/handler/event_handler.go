package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eventinator/internal/events"
	"github.com/hitoshi/eventinator/internal/middleware"
	"github.com/hitoshi/eventinator/internal/model"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	Create(ctx context.Context, owner *model.User, in events.CreateEventInput) (*model.Event, error)
	Get(ctx context.Context, eventID string) (*model.Event, error)
	Join(ctx context.Context, user *model.User, eventID, accessCode string) (bool, error)
	Leave(ctx context.Context, user *model.User, eventID string) (bool, error)
	Delete(ctx context.Context, user *model.User, eventID string) error
	MemberUsernames(ctx context.Context, eventID string) ([]string, error)
	IsMember(ctx context.Context, user *model.User, eventID string) (bool, error)
}

// EventHandler はイベント管理のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

// joinRequest は参加リクエストのボディ。参加コードがないイベントでは省略できる。
type joinRequest struct {
	AccessCode string `json:"access_code"`
}

// Create はイベントを作成する。
// POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrForbidden(w, r)
	if !ok {
		return
	}

	var req events.CreateEventInput
	if !decodeJSON(w, r, &req) {
		return
	}

	event, err := h.service.Create(r.Context(), p.User, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/events/"+event.ID)
	middleware.WriteJSON(w, http.StatusCreated, toEventResponse(event, p))
}

// Get はイベント詳細を返す。ゲストも閲覧できる。
// GET /api/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	event, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	resp := toEventResponse(event, p)
	if !p.IsGuest() {
		resp.IsMember, err = h.service.IsMember(r.Context(), p.User, event.ID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Members はイベント参加者のユーザー名一覧を返す。
// GET /api/events/{id}/members
func (h *EventHandler) Members(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.MemberUsernames(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string][]string{"usernames": names})
}

// Join はイベントに参加する。参加済みの場合もエラーにしない。
// POST /api/events/{id}/join
func (h *EventHandler) Join(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrForbidden(w, r)
	if !ok {
		return
	}

	var req joinRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	joined, err := h.service.Join(r.Context(), p.User, chi.URLParam(r, "id"), req.AccessCode)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"joined": joined})
}

// Leave はイベントから脱退する。所有者も脱退できる。
// POST /api/events/{id}/leave
func (h *EventHandler) Leave(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrForbidden(w, r)
	if !ok {
		return
	}

	left, err := h.service.Leave(r.Context(), p.User, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"left": left})
}

// Delete はイベントを削除する。所有者のみ。
// DELETE /api/events/{id}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrForbidden(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), p.User, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeOptionalJSON は空ボディを許容するdecodeJSON。
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return decodeJSON(w, r, v)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return true
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return decodeJSON(w, r, v)
}
