package model

import "time"

// Event はユーザーが作成するイベントを表す。
// AccessCodeが設定されている場合、参加には一致するコードが必要。
type Event struct {
	ID               string
	Name             string
	OwnerUID         string
	StartTime        time.Time
	EndTime          time.Time
	LongDescription  string
	ShortDescription *string
	AccessCode       *string
}

// IsOwnedBy は指定ユーザーがイベントの所有者かどうかを返す。
func (e *Event) IsOwnedBy(uid string) bool {
	return e.OwnerUID == uid
}

// RequiresAccessCode は参加コードが設定されているかを返す。
func (e *Event) RequiresAccessCode() bool {
	return e.AccessCode != nil && *e.AccessCode != ""
}
