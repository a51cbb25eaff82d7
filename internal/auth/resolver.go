package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/eventinator/internal/model"
	"github.com/hitoshi/eventinator/internal/repository"
)

// IDGenerator はユーザーIDを生成する。
type IDGenerator interface {
	NewID() string
}

// ResolutionRecorder はID解決の結果を記録する。
type ResolutionRecorder interface {
	RecordIdentityResolution(platform, result string)
}

// SignUpInput はパスワード認証での新規登録内容。
type SignUpInput struct {
	Username string `json:"username" validate:"required,max=25"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// Resolver はIdPで確認した本人情報をローカルのユーザーに対応付ける。
type Resolver struct {
	users     repository.UserRepository
	ids       IDGenerator
	password  PasswordProvider
	offloader *Offloader
	recorder  ResolutionRecorder
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewResolver はResolverを生成する。recorderはnilでもよい。
func NewResolver(
	users repository.UserRepository,
	ids IDGenerator,
	password PasswordProvider,
	offloader *Offloader,
	recorder ResolutionRecorder,
) *Resolver {
	return &Resolver{
		users:     users,
		ids:       ids,
		password:  password,
		offloader: offloader,
		recorder:  recorder,
		validate:  validator.New(),
		logger:    slog.Default(),
		now:       time.Now,
	}
}

func (r *Resolver) record(platform model.Platform, result string) {
	if r.recorder != nil {
		r.recorder.RecordIdentityResolution(platform.String(), result)
	}
}

// ResolveSocial はDiscordのプロフィールに対応するユーザーを返す。
// 未登録の場合は作成し、登録済みでユーザー名が変わっている場合はDiscord側の名前で更新する。
func (r *Resolver) ResolveSocial(ctx context.Context, profile *SocialProfile) (*model.User, error) {
	user, err := r.users.FindBySocialID(ctx, profile.ID)
	if err != nil {
		r.record(model.PlatformDiscord, "error")
		return nil, fmt.Errorf("failed to resolve discord user: %w", err)
	}

	if user == nil {
		user, err = r.createSocialUser(ctx, profile)
		if err != nil {
			r.record(model.PlatformDiscord, "error")
			return nil, err
		}
		r.record(model.PlatformDiscord, "created")
		return user, nil
	}

	if user.Username != profile.Username {
		if err := r.users.UpdateUsername(ctx, user.UID, profile.Username); err != nil {
			r.record(model.PlatformDiscord, "error")
			return nil, fmt.Errorf("failed to sync username: %w", err)
		}
		user.Username = profile.Username
		r.record(model.PlatformDiscord, "username_synced")
		return user, nil
	}

	r.record(model.PlatformDiscord, "existing")
	return user, nil
}

func (r *Resolver) createSocialUser(ctx context.Context, profile *SocialProfile) (*model.User, error) {
	socialID := profile.ID
	user := &model.User{
		UID:       r.ids.NewID(),
		Username:  profile.Username,
		SocialID:  &socialID,
		CreatedAt: r.now(),
	}

	err := r.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		// 同じDiscordアカウントの初回ログインが並行した場合は先に作られた行を使う
		existing, findErr := r.users.FindBySocialID(ctx, profile.ID)
		if findErr != nil {
			return nil, fmt.Errorf("failed to resolve discord user: %w", findErr)
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create discord user: %w", err)
	}

	r.logger.InfoContext(ctx, "user created",
		slog.String("user_id", user.UID),
		slog.String("platform", model.PlatformDiscord.String()),
	)
	return user, nil
}

// ResolvePassword は検証済みセッションCookieのuidに対応するユーザーを返す。
// 行が存在しない場合はデータ整合性エラーとする。
func (r *Resolver) ResolvePassword(ctx context.Context, claims *PasswordClaims) (*model.User, error) {
	user, err := r.users.FindByID(ctx, claims.UID)
	if err != nil {
		r.record(model.PlatformFirebase, "error")
		return nil, fmt.Errorf("failed to resolve firebase user: %w", err)
	}
	if user == nil {
		r.logger.ErrorContext(ctx, "verified session references missing user",
			slog.String("user_id", claims.UID),
			slog.String("platform", model.PlatformFirebase.String()),
		)
		r.record(model.PlatformFirebase, "integrity_error")
		return nil, model.NewDataIntegrityError(claims.UID)
	}

	r.record(model.PlatformFirebase, "existing")
	return user, nil
}

// SignUp はFirebaseのアカウントを作成し、続けてローカルのユーザーを作成する。
// ローカルの作成に失敗した場合はFirebaseのアカウントを削除する。
func (r *Resolver) SignUp(ctx context.Context, in SignUpInput) (*model.User, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, model.NewValidationError(validationReason(err))
	}

	uid := r.ids.NewID()
	err := r.offloader.Do(ctx, ProviderFirebase, func(ctx context.Context) error {
		return r.password.CreateAccount(ctx, NewAccount{
			UID:         uid,
			DisplayName: in.Username,
			Email:       in.Email,
			Password:    in.Password,
		})
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		r.logger.ErrorContext(ctx, "firebase account creation failed", slog.String("error", err.Error()))
		return nil, model.NewIdentityProviderError(ProviderFirebase)
	}

	email := in.Email
	user := &model.User{
		UID:       uid,
		Username:  in.Username,
		Email:     &email,
		CreatedAt: r.now(),
	}
	if err := r.users.Create(ctx, user); err != nil {
		r.rollbackAccount(ctx, uid)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.InfoContext(ctx, "user created",
		slog.String("user_id", uid),
		slog.String("platform", model.PlatformFirebase.String()),
	)
	r.record(model.PlatformFirebase, "created")
	return user, nil
}

func (r *Resolver) rollbackAccount(ctx context.Context, uid string) {
	err := r.offloader.Do(context.WithoutCancel(ctx), ProviderFirebase, func(ctx context.Context) error {
		return r.password.DeleteAccount(ctx, uid)
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to roll back firebase account",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
	}
}

// validationReason はバリデーションエラーから最初の項目名と規則を取り出す。
func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("%s: %s", fe.Field(), fe.Tag())
	}
	return err.Error()
}
