package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eventinator/internal/middleware"
	"github.com/hitoshi/eventinator/internal/model"
)

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status := mapAPIErrorToHTTPStatus(apiErr)
		if status == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "internal server error",
				slog.String("code", apiErr.Code),
				slog.String("error", err.Error()),
			)
			middleware.WriteInternalServerError(w)
			return
		}
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.ErrorContext(r.Context(), "internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorの分類からHTTPステータスコードにマッピングする。
// 未認証は401ではなく403を返す。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch {
	case errors.Is(apiErr, model.ErrUnauthenticated), errors.Is(apiErr, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(apiErr, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(apiErr, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(apiErr, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(apiErr, model.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをvにデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// principalOrForbidden はコンテキストからログイン中の認証主体を取り出す。
// ゲストの場合は403を書き込みfalseを返す。
func principalOrForbidden(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || p.IsGuest() {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewUnauthenticatedError())
		return model.Principal{}, false
	}
	return p, true
}
