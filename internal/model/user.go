// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// User はサービス利用ユーザーを表す。
// SocialIDはDiscordログインで作成されたユーザーのみ保持する。
type User struct {
	UID       string
	Username  string
	Email     *string
	Timezone  *string
	SocialID  *string
	CreatedAt time.Time
}

// Session はサーバーサイドセッションを表す。
// Dataにはプロバイダーのトークンやstateなど任意のJSON値を保持する。
type Session struct {
	ID        string
	Data      map[string]json.RawMessage
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Get はセッションからキーに対応する値をデコードする。
// キーが存在しない場合はfalseを返す。
func (s *Session) Get(key string, v any) (bool, error) {
	raw, ok := s.Data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

// Set はセッションにキーと値を格納する。
func (s *Session) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if s.Data == nil {
		s.Data = make(map[string]json.RawMessage)
	}
	s.Data[key] = raw
	return nil
}

// Delete はセッションからキーを削除する。
func (s *Session) Delete(key string) {
	delete(s.Data, key)
}
