// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/eventinator/internal/model"
	"github.com/hitoshi/eventinator/internal/repository"
)

// EventLister はユーザーに関係するイベント一覧の取得インターフェース。
type EventLister interface {
	ListOwned(ctx context.Context, uid string) ([]*model.Event, error)
	ListJoined(ctx context.Context, uid string) ([]*model.Event, error)
}

// RemoteAccountDeleter はIdP上のアカウント削除インターフェース。
type RemoteAccountDeleter interface {
	DeleteAccount(ctx context.Context, uid string) error
}

// Dashboard はユーザーの所有イベントと参加イベントをまとめたもの。
type Dashboard struct {
	User     *model.User
	Platform model.Platform
	Owned    []*model.Event
	Joined   []*model.Event
}

// Service はユーザー管理のサービス層。
// タイムゾーン設定、ダッシュボード、退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	events   EventLister
	remote   RemoteAccountDeleter
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// remoteがnilの場合、パスワード認証ユーザーの退会でもIdP側は削除しない。
func NewService(
	userRepo repository.UserRepository,
	events EventLister,
	remote RemoteAccountDeleter,
) *Service {
	return &Service{
		userRepo: userRepo,
		events:   events,
		remote:   remote,
		logger:   slog.Default(),
	}
}

// offsetPattern は "+09", "+0900", "-05:30" のようなUTCオフセット表記。
var offsetPattern = regexp.MustCompile(`^([+-])(\d{2}):?(\d{2})?$`)

// NormalizeTimezone はIANAタイムゾーン名またはUTCオフセットを
// time.LoadLocationで読み込めるタイムゾーン名に変換する。
// 整数時間のオフセットはEtc/GMT形式に変換する（符号は反転する）。
func NormalizeTimezone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", model.NewValidationError("Timezone: required")
	}

	if m := offsetPattern.FindStringSubmatch(raw); m != nil {
		hours, _ := strconv.Atoi(m[2])
		if m[3] != "" && m[3] != "00" {
			return "", model.NewValidationError("Timezone: whole hour offset required")
		}
		if hours == 0 {
			return "Etc/GMT", nil
		}
		// Etc/GMT-14 (UTC+14) から Etc/GMT+12 (UTC-12) まで
		if (m[1] == "+" && hours > 14) || (m[1] == "-" && hours > 12) {
			return "", model.NewValidationError("Timezone: offset out of range")
		}
		sign := "-"
		if m[1] == "-" {
			sign = "+"
		}
		return "Etc/GMT" + sign + strconv.Itoa(hours), nil
	}

	if _, err := time.LoadLocation(raw); err != nil || strings.EqualFold(raw, "local") {
		return "", model.NewValidationError("Timezone: unknown zone")
	}
	return raw, nil
}

// SetTimezone はユーザーのタイムゾーンを設定し、保存したタイムゾーン名を返す。
func (s *Service) SetTimezone(ctx context.Context, user *model.User, raw string) (string, error) {
	tz, err := NormalizeTimezone(raw)
	if err != nil {
		return "", err
	}
	if err := s.userRepo.UpdateTimezone(ctx, user.UID, tz); err != nil {
		return "", fmt.Errorf("タイムゾーンの更新に失敗しました: %w", err)
	}
	user.Timezone = &tz
	return tz, nil
}

// Dashboard は所有イベントと参加イベントを並行して取得する。
func (s *Service) Dashboard(ctx context.Context, p model.Principal) (*Dashboard, error) {
	if p.IsGuest() {
		return nil, model.NewUnauthenticatedError()
	}

	d := &Dashboard{User: p.User, Platform: p.Platform}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		owned, err := s.events.ListOwned(gctx, p.User.UID)
		d.Owned = owned
		return err
	})
	g.Go(func() error {
		joined, err := s.events.ListJoined(gctx, p.User.UID)
		d.Joined = joined
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ダッシュボードの取得に失敗しました: %w", err)
	}
	return d, nil
}

// DeleteAccount はユーザーの退会処理を実行する。
// 所有イベント、その参加情報、自身の参加情報、ユーザーを同一トランザクションで削除する。
// パスワード認証ユーザーはIdP上のアカウントも削除するが、失敗してもエラーにしない。
func (s *Service) DeleteAccount(ctx context.Context, p model.Principal) error {
	if p.IsGuest() {
		return model.NewUnauthenticatedError()
	}
	uid := p.User.UID

	s.logger.Info("退会処理を開始します",
		slog.String("user_id", uid),
		slog.String("platform", p.Platform.String()),
	)

	if err := s.userRepo.DeleteCascade(ctx, uid); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	if p.Platform == model.PlatformFirebase && s.remote != nil {
		if err := s.remote.DeleteAccount(ctx, uid); err != nil {
			s.logger.Error("IdPアカウントの削除に失敗しました",
				slog.String("user_id", uid),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("退会処理が完了しました",
		slog.String("user_id", uid),
	)
	return nil
}
