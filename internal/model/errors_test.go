package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_ErrorFormat(t *testing.T) {
	err := NewEventNotFoundError("evt-1")

	want := "[EVENT_NOT_FOUND] 指定されたイベントが見つかりません: evt-1"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAPIError_UnwrapToKind(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		kind error
	}{
		{"unauthenticated", NewUnauthenticatedError(), ErrUnauthenticated},
		{"session cookie", NewSessionCookieError(), ErrUnauthenticated},
		{"owner only", NewOwnerOnlyError("e"), ErrForbidden},
		{"access code", NewAccessCodeError("e"), ErrForbidden},
		{"data integrity", NewDataIntegrityError("u"), ErrDataIntegrity},
		{"validation", NewValidationError("x"), ErrValidation},
		{"event not found", NewEventNotFoundError("e"), ErrNotFound},
		{"user not found", NewUserNotFoundError(), ErrNotFound},
		{"email taken", NewEmailTakenError(), ErrConflict},
		{"provider", NewIdentityProviderError("discord"), ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// ラップされた状態でも分類を判定できること
			wrapped := fmt.Errorf("layer: %w", tt.err)
			if !errors.Is(wrapped, tt.kind) {
				t.Errorf("errors.Is(%v, %v) = false, want true", wrapped, tt.kind)
			}

			var apiErr *APIError
			if !errors.As(wrapped, &apiErr) {
				t.Fatal("errors.As should find *APIError")
			}
			if apiErr.Code != tt.err.Code {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.err.Code)
			}
		})
	}
}

func TestOwnerOnlyError_IsNotUnauthenticated(t *testing.T) {
	err := NewOwnerOnlyError("evt-1")
	if errors.Is(err, ErrUnauthenticated) {
		t.Error("owner-only error should be an authorization error, not unauthenticated")
	}
}
