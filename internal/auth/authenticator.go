package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/hitoshi/eventinator/internal/model"
)

// SocialChecker はソーシャルログインの状態確認。
type SocialChecker interface {
	CheckLoggedIn(r *http.Request) (*oauth2.Token, bool)
	Profile(ctx context.Context, r *http.Request) (*SocialProfile, error)
}

// PasswordChecker はパスワードログインの状態確認。
type PasswordChecker interface {
	CheckLoggedIn(ctx context.Context, r *http.Request) (*PasswordClaims, bool)
}

// IdentityResolver はIdPの本人情報をローカルユーザーに解決する。
type IdentityResolver interface {
	ResolveSocial(ctx context.Context, profile *SocialProfile) (*model.User, error)
	ResolvePassword(ctx context.Context, claims *PasswordClaims) (*model.User, error)
}

// AuthCheckRecorder は認証判定の結果を記録する。
type AuthCheckRecorder interface {
	RecordAuthCheck(outcome string)
}

// Authenticator はリクエストの認証主体を決定する。
// Discord、パスワードの順に確認し、最初に成功したものを採用する。
type Authenticator struct {
	social   SocialChecker
	password PasswordChecker
	resolver IdentityResolver
	recorder AuthCheckRecorder
	logger   *slog.Logger
}

// NewAuthenticator はAuthenticatorを生成する。recorderはnilでもよい。
func NewAuthenticator(social SocialChecker, password PasswordChecker, resolver IdentityResolver, recorder AuthCheckRecorder) *Authenticator {
	return &Authenticator{
		social:   social,
		password: password,
		resolver: resolver,
		recorder: recorder,
		logger:   slog.Default(),
	}
}

// Authenticate はリクエストの認証主体を返す。
// どちらのIdPでも確認できない場合は未認証エラーを返し、どのIdPで失敗したかは含めない。
// IdPへの問い合わせ自体が失敗した場合はErrUpstreamのエラーを返す。
// ローカルDBの障害やデータ整合性エラーはそのまま返す。
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (model.Principal, error) {
	if _, ok := a.social.CheckLoggedIn(r); ok {
		profile, err := a.social.Profile(ctx, r)
		switch {
		case err == nil:
			user, err := a.resolver.ResolveSocial(ctx, profile)
			if err != nil {
				a.recordCheck("error")
				return model.Principal{}, err
			}
			a.recordCheck(model.PlatformDiscord.String())
			return model.Principal{User: user, Platform: model.PlatformDiscord}, nil
		case errors.Is(err, ErrTokenRejected), errors.Is(err, model.ErrUnauthenticated):
			// トークンが無効な場合のみパスワード認証を確認する
			a.logger.DebugContext(ctx, "discord session not usable", slog.String("error", err.Error()))
		default:
			a.logger.WarnContext(ctx, "identity provider call failed during authentication",
				slog.String("error", err.Error()),
			)
			a.recordCheck("error")
			return model.Principal{}, model.NewAuthUpstreamError()
		}
	}

	if claims, ok := a.password.CheckLoggedIn(ctx, r); ok {
		user, err := a.resolver.ResolvePassword(ctx, claims)
		if err != nil {
			a.recordCheck("error")
			return model.Principal{}, err
		}
		a.recordCheck(model.PlatformFirebase.String())
		return model.Principal{User: user, Platform: model.PlatformFirebase}, nil
	}

	a.recordCheck("unauthenticated")
	return model.Principal{}, model.NewUnauthenticatedError()
}

// AuthenticateOptional はAuthenticateと同様だが、未認証の場合はゲストを返す。
func (a *Authenticator) AuthenticateOptional(ctx context.Context, r *http.Request) (model.Principal, error) {
	p, err := a.Authenticate(ctx, r)
	if errors.Is(err, model.ErrUnauthenticated) {
		return model.Guest(), nil
	}
	return p, err
}

func (a *Authenticator) recordCheck(outcome string) {
	if a.recorder != nil {
		a.recorder.RecordAuthCheck(outcome)
	}
}
