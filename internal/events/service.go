// Package events はイベントの作成・参加・脱退・削除と一覧取得のドメインロジックを提供する。
//
// 所有と参加は独立した関係として扱う。作成者は作成時に参加者にもなるが、
// 脱退しても所有者のままで、削除できるのは所有者だけである。
package events

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/eventinator/internal/idgen"
	"github.com/hitoshi/eventinator/internal/model"
	"github.com/hitoshi/eventinator/internal/repository"
	"github.com/hitoshi/eventinator/internal/security"
)

// 操作名（メトリクスのラベル）
const (
	OpCreate = "create"
	OpJoin   = "join"
	OpLeave  = "leave"
	OpDelete = "delete"
)

// IDGenerator はイベントIDを生成する。
type IDGenerator interface {
	NewID() string
}

// OperationRecorder はイベント操作の結果を記録する。
type OperationRecorder interface {
	RecordEventOperation(operation, result string)
}

// 保存時の最大文字数（events テーブルの列幅と同じ）
const (
	MaxNameLength             = 25
	MaxLongDescriptionLength  = 5000
	MaxShortDescriptionLength = 75
	MaxAccessCodeLength       = 8
)

// CreateEventInput はイベント作成の入力。
// 名前と説明文の上限はサニタイズ後の値にも再度適用する。
type CreateEventInput struct {
	Name             string    `json:"name" validate:"required,max=25"`
	StartTime        time.Time `json:"start_time" validate:"required"`
	EndTime          time.Time `json:"end_time" validate:"required,gtefield=StartTime"`
	LongDescription  string    `json:"long_description" validate:"max=5000"`
	ShortDescription *string   `json:"short_description" validate:"omitempty,max=75"`
	AccessCode       *string   `json:"access_code" validate:"omitempty,max=8"`
}

// Service はイベント管理のサービス層。
type Service struct {
	repo      repository.EventRepository
	ids       IDGenerator
	sanitizer security.ContentSanitizerService
	recorder  OperationRecorder
	validate  *validator.Validate
}

// NewService はServiceの新しいインスタンスを生成する。recorderはnilでもよい。
func NewService(
	repo repository.EventRepository,
	ids IDGenerator,
	sanitizer security.ContentSanitizerService,
	recorder OperationRecorder,
) *Service {
	return &Service{
		repo:      repo,
		ids:       ids,
		sanitizer: sanitizer,
		recorder:  recorder,
		validate:  validator.New(),
	}
}

func (s *Service) record(op string, err error) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordEventOperation(op, operationResult(err))
}

// operationResult はエラーをメトリクスの結果ラベルに変換する。
func operationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

// Create はイベントを作成し、作成者を参加者として登録する。
func (s *Service) Create(ctx context.Context, owner *model.User, in CreateEventInput) (event *model.Event, err error) {
	defer func() { s.record(OpCreate, err) }()

	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewValidationError(validationReason(err))
	}

	name := s.sanitizer.PlainText(in.Name)
	if name == "" {
		return nil, model.NewValidationError("Name: required")
	}

	event = &model.Event{
		ID:              s.ids.NewID(),
		Name:            name,
		OwnerUID:        owner.UID,
		StartTime:       in.StartTime.UTC(),
		EndTime:         in.EndTime.UTC(),
		LongDescription: s.sanitizer.Sanitize(in.LongDescription),
		AccessCode:      emptyToNil(in.AccessCode),
	}
	if in.ShortDescription != nil {
		short := s.sanitizer.PlainText(*in.ShortDescription)
		event.ShortDescription = emptyToNil(&short)
	}
	if err := checkStoredLengths(event); err != nil {
		return nil, err
	}

	if err := s.repo.CreateWithOwnerMembership(ctx, event); err != nil {
		return nil, fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	return event, nil
}

// checkStoredLengths はサニタイズ後の値が列幅に収まるか確認する。
func checkStoredLengths(e *model.Event) error {
	if utf8.RuneCountInString(e.Name) > MaxNameLength {
		return model.NewValidationError(fmt.Sprintf("Name: max=%d", MaxNameLength))
	}
	if utf8.RuneCountInString(e.LongDescription) > MaxLongDescriptionLength {
		return model.NewValidationError(fmt.Sprintf("LongDescription: max=%d", MaxLongDescriptionLength))
	}
	if e.ShortDescription != nil && utf8.RuneCountInString(*e.ShortDescription) > MaxShortDescriptionLength {
		return model.NewValidationError(fmt.Sprintf("ShortDescription: max=%d", MaxShortDescriptionLength))
	}
	if e.AccessCode != nil && utf8.RuneCountInString(*e.AccessCode) > MaxAccessCodeLength {
		return model.NewValidationError(fmt.Sprintf("AccessCode: max=%d", MaxAccessCodeLength))
	}
	return nil
}

// Get は指定IDのイベントを返す。
func (s *Service) Get(ctx context.Context, eventID string) (*model.Event, error) {
	if !idgen.Valid(eventID) {
		return nil, model.NewEventNotFoundError(eventID)
	}
	event, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}
	return event, nil
}

// Join はユーザーをイベントに参加させる。参加済みの場合は何もせずfalseを返す。
// 参加コードが設定されたイベントでは一致するコードが必要。
func (s *Service) Join(ctx context.Context, user *model.User, eventID, accessCode string) (joined bool, err error) {
	defer func() { s.record(OpJoin, err) }()

	event, err := s.Get(ctx, eventID)
	if err != nil {
		return false, err
	}

	if event.RequiresAccessCode() && !event.IsOwnedBy(user.UID) {
		if subtle.ConstantTimeCompare([]byte(*event.AccessCode), []byte(accessCode)) != 1 {
			return false, model.NewAccessCodeError(eventID)
		}
	}

	joined, err = s.repo.AddMember(ctx, user.UID, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		// 参加処理中に削除された
		return false, model.NewEventNotFoundError(eventID)
	}
	if err != nil {
		return false, fmt.Errorf("イベントへの参加に失敗しました: %w", err)
	}
	return joined, nil
}

// Leave はユーザーをイベントから脱退させる。参加していない場合はfalseを返す。
// 所有者が脱退しても所有権は変わらない。
func (s *Service) Leave(ctx context.Context, user *model.User, eventID string) (left bool, err error) {
	defer func() { s.record(OpLeave, err) }()

	if !idgen.Valid(eventID) {
		return false, nil
	}
	n, err := s.repo.RemoveMember(ctx, user.UID, eventID)
	if err != nil {
		return false, fmt.Errorf("イベントからの脱退に失敗しました: %w", err)
	}
	return n > 0, nil
}

// IsMember はユーザーがイベントに参加しているかを返す。ゲストは常にfalse。
func (s *Service) IsMember(ctx context.Context, user *model.User, eventID string) (bool, error) {
	if user == nil || !idgen.Valid(eventID) {
		return false, nil
	}
	ok, err := s.repo.IsMember(ctx, user.UID, eventID)
	if err != nil {
		return false, fmt.Errorf("参加状況の取得に失敗しました: %w", err)
	}
	return ok, nil
}

// Delete はイベントと全参加情報を削除する。所有者のみ実行できる。
func (s *Service) Delete(ctx context.Context, user *model.User, eventID string) (err error) {
	defer func() { s.record(OpDelete, err) }()

	if !idgen.Valid(eventID) {
		return model.NewEventNotFoundError(eventID)
	}

	err = s.repo.DeleteWithMemberships(ctx, eventID, func(e *model.Event) error {
		if !e.IsOwnedBy(user.UID) {
			return model.NewOwnerOnlyError(eventID)
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewEventNotFoundError(eventID)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if err != nil {
		return fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}
	return nil
}

// ListOwned はユーザーが所有するイベントを開始時刻順に返す。
func (s *Service) ListOwned(ctx context.Context, uid string) ([]*model.Event, error) {
	events, err := s.repo.ListByOwner(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("所有イベントの取得に失敗しました: %w", err)
	}
	return nonNil(events), nil
}

// ListJoined はユーザーが参加しているイベントを開始時刻順に返す。
func (s *Service) ListJoined(ctx context.Context, uid string) ([]*model.Event, error) {
	events, err := s.repo.ListByMember(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("参加イベントの取得に失敗しました: %w", err)
	}
	return nonNil(events), nil
}

// ListMembers はイベントの参加者を返す。参加者がいない場合は空のスライスを返す。
func (s *Service) ListMembers(ctx context.Context, eventID string) ([]*model.User, error) {
	if !idgen.Valid(eventID) {
		return []*model.User{}, nil
	}
	members, err := s.repo.ListMembers(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if members == nil {
		return []*model.User{}, nil
	}
	return members, nil
}

// MemberUsernames はイベント参加者のユーザー名を返す。
func (s *Service) MemberUsernames(ctx context.Context, eventID string) ([]string, error) {
	members, err := s.ListMembers(ctx, eventID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Username
	}
	return names, nil
}

func nonNil(events []*model.Event) []*model.Event {
	if events == nil {
		return []*model.Event{}
	}
	return events
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// validationReason は最初の検証エラーを "Field: tag" の形式で返す。
func validationReason(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return ve[0].Field() + ": " + ve[0].Tag()
	}
	return err.Error()
}
