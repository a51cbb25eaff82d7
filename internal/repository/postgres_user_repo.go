package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/eventinator/internal/database"
	"github.com/hitoshi/eventinator/internal/model"
)

const userColumns = `uid, username, email, tz, discord_id, created_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var user model.User
	var email, tz, discordID sql.NullString
	if err := s.Scan(&user.UID, &user.Username, &email, &tz, &discordID, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.Email = nullString(email)
	user.Timezone = nullString(tz)
	user.SocialID = nullString(discordID)
	return &user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	row, err := r.db.FetchOne(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定uidのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, uid string) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE uid = $1`, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindBySocialID はDiscordのユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindBySocialID(ctx context.Context, socialID string) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE discord_id = $1`, socialID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by social ID: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.Execute(ctx,
		`INSERT INTO users (uid, username, email, tz, discord_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.UID, user.Username, user.Email, user.Timezone, user.SocialID, user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert user: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateUsername はユーザー名を更新する。
func (r *PostgresUserRepo) UpdateUsername(ctx context.Context, uid, username string) error {
	return r.updateColumn(ctx, `UPDATE users SET username = $2 WHERE uid = $1`, uid, username)
}

// UpdateTimezone はタイムゾーンを更新する。
func (r *PostgresUserRepo) UpdateTimezone(ctx context.Context, uid, tz string) error {
	return r.updateColumn(ctx, `UPDATE users SET tz = $2 WHERE uid = $1`, uid, tz)
}

func (r *PostgresUserRepo) updateColumn(ctx context.Context, query, uid, value string) error {
	affected, err := r.db.Execute(ctx, query, uid, value)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to update user %s: %w", uid, ErrNotFound)
	}
	return nil
}

// DeleteCascade はユーザーを削除する。
// 削除順序: 所有イベントの参加情報 → 本人の参加情報 → 所有イベント → ユーザー
func (r *PostgresUserRepo) DeleteCascade(ctx context.Context, uid string) error {
	return r.db.WithTx(ctx, func(tx database.Executor) error {
		if _, err := tx.Execute(ctx,
			`DELETE FROM users_events
			 WHERE event_id IN (SELECT event_id FROM events WHERE event_owner = $1)`,
			uid,
		); err != nil {
			return fmt.Errorf("failed to delete memberships of owned events: %w", err)
		}

		if _, err := tx.Execute(ctx, `DELETE FROM users_events WHERE uid = $1`, uid); err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}

		if _, err := tx.Execute(ctx, `DELETE FROM events WHERE event_owner = $1`, uid); err != nil {
			return fmt.Errorf("failed to delete owned events: %w", err)
		}

		affected, err := tx.Execute(ctx, `DELETE FROM users WHERE uid = $1`, uid)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("failed to delete user %s: %w", uid, ErrNotFound)
		}
		return nil
	})
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
