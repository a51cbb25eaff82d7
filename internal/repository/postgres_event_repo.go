package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/eventinator/internal/database"
	"github.com/hitoshi/eventinator/internal/model"
)

const eventColumns = `e.event_id, e.event_name, e.event_owner, e.start_time, e.end_time, e.long_desc, e.short_desc, e.passcode`

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

func scanEvent(s rowScanner) (*model.Event, error) {
	var event model.Event
	var shortDesc, passcode sql.NullString
	err := s.Scan(
		&event.ID, &event.Name, &event.OwnerUID,
		&event.StartTime, &event.EndTime,
		&event.LongDescription, &shortDesc, &passcode,
	)
	if err != nil {
		return nil, err
	}
	event.ShortDescription = nullString(shortDesc)
	event.AccessCode = nullString(passcode)
	return &event, nil
}

// CreateWithOwnerMembership はイベントと所有者の参加情報を同一トランザクションで作成する。
func (r *PostgresEventRepo) CreateWithOwnerMembership(ctx context.Context, event *model.Event) error {
	return r.db.WithTx(ctx, func(tx database.Executor) error {
		_, err := tx.Execute(ctx,
			`INSERT INTO events (event_id, event_name, event_owner, start_time, end_time, long_desc, short_desc, passcode)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			event.ID, event.Name, event.OwnerUID, event.StartTime, event.EndTime,
			event.LongDescription, event.ShortDescription, event.AccessCode,
		)
		if err != nil {
			if verr := valueTooLong(err); verr != nil {
				return fmt.Errorf("failed to insert event: %w", verr)
			}
			return fmt.Errorf("failed to insert event: %w", err)
		}

		_, err = tx.Execute(ctx,
			`INSERT INTO users_events (uid, event_id) VALUES ($1, $2)`,
			event.OwnerUID, event.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert owner membership: %w", err)
		}
		return nil
	})
}

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, eventID string) (*model.Event, error) {
	row, err := r.db.FetchOne(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return event, nil
}

// DeleteWithMemberships はイベント行をFOR UPDATEでロックし、authorizeで検証した後に
// 参加情報 → イベントの順に削除する。
func (r *PostgresEventRepo) DeleteWithMemberships(ctx context.Context, eventID string, authorize func(*model.Event) error) error {
	return r.db.WithTx(ctx, func(tx database.Executor) error {
		row, err := tx.FetchOne(ctx,
			`SELECT `+eventColumns+` FROM events e WHERE e.event_id = $1 FOR UPDATE`,
			eventID,
		)
		if err != nil {
			return fmt.Errorf("failed to lock event: %w", err)
		}
		event, err := scanEvent(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock event: %w", err)
		}

		if authorize != nil {
			if err := authorize(event); err != nil {
				return err
			}
		}

		if _, err := tx.Execute(ctx, `DELETE FROM users_events WHERE event_id = $1`, eventID); err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}
		if _, err := tx.Execute(ctx, `DELETE FROM events WHERE event_id = $1`, eventID); err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		return nil
	})
}

// AddMember は参加情報を追加する。既に参加済みの場合はfalseを返す。
// イベントが同時に削除された場合はErrNotFoundを返す。
func (r *PostgresEventRepo) AddMember(ctx context.Context, uid, eventID string) (bool, error) {
	affected, err := r.db.Execute(ctx,
		`INSERT INTO users_events (uid, event_id) VALUES ($1, $2)
		 ON CONFLICT (uid, event_id) DO NOTHING`,
		uid, eventID,
	)
	if isForeignKeyViolation(err) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to add member: %w", err)
	}
	return affected > 0, nil
}

// RemoveMember は参加情報を削除し、削除件数を返す。
func (r *PostgresEventRepo) RemoveMember(ctx context.Context, uid, eventID string) (int64, error) {
	affected, err := r.db.Execute(ctx,
		`DELETE FROM users_events WHERE uid = $1 AND event_id = $2`,
		uid, eventID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove member: %w", err)
	}
	return affected, nil
}

// IsMember は参加済みかどうかを返す。
func (r *PostgresEventRepo) IsMember(ctx context.Context, uid, eventID string) (bool, error) {
	row, err := r.db.FetchOne(ctx,
		`SELECT EXISTS (SELECT 1 FROM users_events WHERE uid = $1 AND event_id = $2)`,
		uid, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// ListByOwner は指定ユーザーが所有するイベントを開始時刻順に返す。
func (r *PostgresEventRepo) ListByOwner(ctx context.Context, uid string) ([]*model.Event, error) {
	return r.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events e
		 WHERE e.event_owner = $1
		 ORDER BY e.start_time, e.event_id`,
		uid,
	)
}

// ListByMember は指定ユーザーが参加しているイベントを開始時刻順に返す。
func (r *PostgresEventRepo) ListByMember(ctx context.Context, uid string) ([]*model.Event, error) {
	return r.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events e
		 JOIN users_events ue ON ue.event_id = e.event_id
		 WHERE ue.uid = $1
		 ORDER BY e.start_time, e.event_id`,
		uid,
	)
}

func (r *PostgresEventRepo) listEvents(ctx context.Context, query, uid string) ([]*model.Event, error) {
	rows, err := r.db.FetchAll(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*model.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// ListMembers はイベントの参加者を参加順に返す。
func (r *PostgresEventRepo) ListMembers(ctx context.Context, eventID string) ([]*model.User, error) {
	rows, err := r.db.FetchAll(ctx,
		`SELECT u.uid, u.username, u.email, u.tz, u.discord_id, u.created_at
		 FROM users u
		 JOIN users_events ue ON ue.uid = u.uid
		 WHERE ue.event_id = $1
		 ORDER BY ue.joined_at, u.uid`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return users, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
