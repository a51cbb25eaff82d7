package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/eventinator/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

func encodeSessionData(session *model.Session) ([]byte, error) {
	if len(session.Data) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(session.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session data: %w", err)
	}
	return data, nil
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	data, err := encodeSessionData(session)
	if err != nil {
		return err
	}
	_, err = r.db.Execute(ctx,
		`INSERT INTO sessions (id, data, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, string(data), session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	row, err := r.db.FetchOne(ctx,
		`SELECT id, data, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	session := &model.Session{}
	var data []byte
	err = row.Scan(&session.ID, &data, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if err := json.Unmarshal(data, &session.Data); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	return session, nil
}

// Update はセッションのデータと有効期限を更新する。
func (r *PostgresSessionRepo) Update(ctx context.Context, session *model.Session) error {
	data, err := encodeSessionData(session)
	if err != nil {
		return err
	}
	affected, err := r.db.Execute(ctx,
		`UPDATE sessions SET data = $2, expires_at = $3 WHERE id = $1`,
		session.ID, string(data), session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to update session: %w", ErrNotFound)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.Execute(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	affected, err := r.db.Execute(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return affected, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
