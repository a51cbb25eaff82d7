// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/eventinator/internal/database"
	"github.com/hitoshi/eventinator/internal/model"
)

// DB はリポジトリが利用する永続化ゲートウェイのインターフェース。
// database.Gatewayが実装する。
type DB interface {
	database.Executor
	WithTx(ctx context.Context, fn func(tx database.Executor) error) error
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定uidのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, uid string) (*model.User, error)

	// FindBySocialID はDiscordのユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
	FindBySocialID(ctx context.Context, socialID string) (*model.User, error)

	// Create はユーザーを作成する。email・social_idの重複はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateUsername はユーザー名を更新する。
	UpdateUsername(ctx context.Context, uid, username string) error

	// UpdateTimezone はタイムゾーンを更新する。
	UpdateTimezone(ctx context.Context, uid, tz string) error

	// DeleteCascade はユーザーと所有イベント、関連する参加情報を同一トランザクションで削除する。
	DeleteCascade(ctx context.Context, uid string) error
}

// EventRepository はイベントと参加情報の永続化インターフェース。
type EventRepository interface {
	// CreateWithOwnerMembership はイベントと所有者の参加情報を同一トランザクションで作成する。
	CreateWithOwnerMembership(ctx context.Context, event *model.Event) error

	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, eventID string) (*model.Event, error)

	// DeleteWithMemberships はイベント行をロックしてauthorizeで検証した後、
	// 参加情報、イベントの順に同一トランザクションで削除する。
	// イベントが存在しない場合はErrNotFoundを返す。
	DeleteWithMemberships(ctx context.Context, eventID string, authorize func(*model.Event) error) error

	// AddMember は参加情報を追加する。既に参加済みの場合はfalseを返す。
	AddMember(ctx context.Context, uid, eventID string) (bool, error)

	// RemoveMember は参加情報を削除し、削除件数を返す。
	RemoveMember(ctx context.Context, uid, eventID string) (int64, error)

	// IsMember は参加済みかどうかを返す。
	IsMember(ctx context.Context, uid, eventID string) (bool, error)

	// ListByOwner は指定ユーザーが所有するイベントを開始時刻順に返す。
	ListByOwner(ctx context.Context, uid string) ([]*model.Event, error)

	// ListByMember は指定ユーザーが参加しているイベントを開始時刻順に返す。
	ListByMember(ctx context.Context, uid string) ([]*model.Event, error)

	// ListMembers はイベントの参加者を返す。
	ListMembers(ctx context.Context, eventID string) ([]*model.User, error)
}

// SessionRepository はサーバーサイドセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Update はセッションのデータと有効期限を更新する。
	Update(ctx context.Context, session *model.Session) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
