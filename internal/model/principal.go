package model

// Platform はユーザーがどの認証方式でログインしているかを表す。
type Platform int

const (
	// PlatformNone はゲスト（未ログイン）を表す。
	PlatformNone Platform = iota
	// PlatformDiscord はDiscordのOAuth2ログインを表す。
	PlatformDiscord
	// PlatformFirebase はメールアドレスとパスワードによるログインを表す。
	PlatformFirebase
)

// String はログやレスポンスに使うプラットフォーム名を返す。
func (p Platform) String() string {
	switch p {
	case PlatformDiscord:
		return "discord"
	case PlatformFirebase:
		return "firebase"
	default:
		return "guest"
	}
}

// Principal は認可ミドルウェアが解決したリクエストの主体。
// ゲストの場合UserはnilでPlatformはPlatformNone。
type Principal struct {
	User     *User
	Platform Platform
}

// Guest はゲストのPrincipalを返す。
func Guest() Principal {
	return Principal{}
}

// IsGuest はゲストかどうかを返す。
func (p Principal) IsGuest() bool {
	return p.User == nil
}
