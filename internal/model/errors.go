// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// エラー分類。APIErrorはいずれかをUnwrapで返すため errors.Is で判定できる。
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrDataIntegrity   = errors.New("data integrity violation")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUpstream        = errors.New("identity provider failure")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, event, system
	Action   string // ユーザー向け対処方法

	kind error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は分類用のセンチネルエラーを返す。
func (e *APIError) Unwrap() error {
	return e.kind
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated       = "UNAUTHENTICATED"
	ErrCodeSessionCookieFailed   = "SESSION_COOKIE_FAILED"
	ErrCodeOwnerOnlyAction       = "OWNER_ONLY_ACTION"
	ErrCodeAccessCodeMismatch    = "ACCESS_CODE_MISMATCH"
	ErrCodeDataIntegrity         = "DATA_INTEGRITY"
	ErrCodeValidation            = "VALIDATION_FAILED"
	ErrCodeEventNotFound         = "EVENT_NOT_FOUND"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeIdentityProviderError = "IDENTITY_PROVIDER_ERROR"
)

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "Discordまたはメールアドレスでログインしてください。",
		kind:     ErrUnauthenticated,
	}
}

// NewSessionCookieError はIdPがセッションCookieの発行を拒否した場合のエラーを生成する。
// 認証情報は正しいがCookieを作れなかったことを未認証と区別して返す。
func NewSessionCookieError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionCookieFailed,
		Message:  "セッションの作成に失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度ログインしてください。",
		kind:     ErrUnauthenticated,
	}
}

// NewOwnerOnlyError はイベント所有者以外が所有者限定操作を行った場合のエラーを生成する。
func NewOwnerOnlyError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeOwnerOnlyAction,
		Message:  fmt.Sprintf("この操作はイベントの所有者のみ実行できます: %s", eventID),
		Category: "auth",
		Action:   "イベントの所有者に依頼してください。",
		kind:     ErrForbidden,
	}
}

// NewAccessCodeError は参加コード不一致エラーを生成する。
func NewAccessCodeError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccessCodeMismatch,
		Message:  fmt.Sprintf("参加コードが一致しません: %s", eventID),
		Category: "auth",
		Action:   "イベントの所有者から正しい参加コードを受け取ってください。",
		kind:     ErrForbidden,
	}
}

// NewDataIntegrityError は検証済みセッションに対応するユーザー行が存在しない場合のエラーを生成する。
func NewDataIntegrityError(uid string) *APIError {
	return &APIError{
		Code:     ErrCodeDataIntegrity,
		Message:  fmt.Sprintf("ユーザー情報の整合性が失われています: %s", uid),
		Category: "system",
		Action:   "管理者に連絡してください。",
		kind:     ErrDataIntegrity,
	}
}

// NewValidationError は入力値エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
		kind:     ErrValidation,
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %s", eventID),
		Category: "event",
		Action:   "イベントIDを確認してください。",
		kind:     ErrNotFound,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
		kind:     ErrNotFound,
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
		kind:     ErrConflict,
	}
}

// NewAuthUpstreamError は認証判定中のIdP呼び出し失敗エラーを生成する。
// どのIdPで失敗したかはメッセージに含めない。
func NewAuthUpstreamError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityProviderError,
		Message:  "認証プロバイダーとの通信に失敗しました",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
		kind:     ErrUpstream,
	}
}

// NewIdentityProviderError は外部IdPの呼び出し失敗エラーを生成する。
func NewIdentityProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeIdentityProviderError,
		Message:  fmt.Sprintf("認証プロバイダーとの通信に失敗しました: %s", provider),
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
		kind:     ErrUpstream,
	}
}
