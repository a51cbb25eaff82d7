package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/hitoshi/eventinator/internal/model"
)

const signInWithPasswordURL = "https://identitytoolkit.googleapis.com/v1/accounts:signInWithPassword"

// ProviderFirebase はメトリクスやログで使うプロバイダー名。
const ProviderFirebase = "firebase"

// FirebaseAuthClient はFirebase Admin SDKのうち使用するメソッド。
// *fbauth.Client が満たす。
type FirebaseAuthClient interface {
	CreateUser(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
	VerifySessionCookieAndCheckRevoked(ctx context.Context, sessionCookie string) (*fbauth.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
	DeleteUser(ctx context.Context, uid string) error
}

var _ FirebaseAuthClient = (*fbauth.Client)(nil)

// NewFirebaseAuthClient はサービスアカウントの認証情報ファイルからAdmin SDKのクライアントを生成する。
func NewFirebaseAuthClient(ctx context.Context, credentialsFile, projectID string) (*fbauth.Client, error) {
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth: %w", err)
	}
	return client, nil
}

// FirebaseConfig はFirebaseProviderの設定。
type FirebaseConfig struct {
	WebAPIKey  string
	SessionTTL time.Duration
	// SignInURL が空の場合は本番のIdentity Toolkitを使う。
	SignInURL  string
	HTTPClient *http.Client
}

// PasswordClaims は検証済みのセッションCookieから得られる情報。
type PasswordClaims struct {
	UID string
}

// NewAccount はパスワード認証アカウントの作成内容。
type NewAccount struct {
	UID         string
	DisplayName string
	Email       string
	Password    string
}

// FirebaseProvider はFirebase Authenticationを使ったメールアドレス・パスワード認証を行う。
type FirebaseProvider struct {
	client     FirebaseAuthClient
	config     FirebaseConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFirebaseProvider はFirebaseProviderを生成する。
func NewFirebaseProvider(client FirebaseAuthClient, cfg FirebaseConfig) *FirebaseProvider {
	if cfg.SignInURL == "" {
		cfg.SignInURL = signInWithPasswordURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FirebaseProvider{
		client:     client,
		config:     cfg,
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// CreateAccount はFirebase上にアカウントを作成する。
func (p *FirebaseProvider) CreateAccount(ctx context.Context, acct NewAccount) error {
	params := (&fbauth.UserToCreate{}).
		UID(acct.UID).
		Email(acct.Email).
		Password(acct.Password).
		DisplayName(acct.DisplayName)

	if _, err := p.client.CreateUser(ctx, params); err != nil {
		if fbauth.IsEmailAlreadyExists(err) {
			return model.NewEmailTakenError()
		}
		return fmt.Errorf("failed to create firebase user: %w", err)
	}
	return nil
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	IDToken string `json:"idToken"`
	LocalID string `json:"localId"`
}

// SignIn はメールアドレスとパスワードでサインインし、IDトークンを返す。
// 認証情報が拒否された場合は空文字とnilを返す。
func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (string, error) {
	payload, err := json.Marshal(signInRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode sign-in request: %w", err)
	}

	endpoint := p.config.SignInURL + "?key=" + url.QueryEscape(p.config.WebAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign-in request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read sign-in response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("sign-in failed with status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		// 誤ったパスワード・存在しないメールアドレスなど
		return "", nil
	}

	var out signInResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse sign-in response: %w", err)
	}
	return out.IDToken, nil
}

// CreateSessionCookie はIDトークンからセッションCookieを発行する。
// 発行に失敗した場合はfalseを返す。
func (p *FirebaseProvider) CreateSessionCookie(ctx context.Context, idToken string) (string, bool) {
	cookie, err := p.client.SessionCookie(ctx, idToken, p.config.SessionTTL)
	if err != nil {
		p.logger.WarnContext(ctx, "session cookie creation failed", slog.String("error", err.Error()))
		return "", false
	}
	return cookie, true
}

// VerifySessionCookie はセッションCookieを失効確認付きで検証する。
// 不正・失効・ユーザー削除済みの場合はfalseを返す。
func (p *FirebaseProvider) VerifySessionCookie(ctx context.Context, cookie string) (*PasswordClaims, bool) {
	token, err := p.client.VerifySessionCookieAndCheckRevoked(ctx, cookie)
	if err != nil {
		switch {
		case fbauth.IsSessionCookieInvalid(err), fbauth.IsSessionCookieRevoked(err), fbauth.IsUserNotFound(err):
			p.logger.DebugContext(ctx, "session cookie rejected", slog.String("error", err.Error()))
		default:
			p.logger.WarnContext(ctx, "session cookie verification failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	return &PasswordClaims{UID: token.UID}, true
}

// Revoke はユーザーのリフレッシュトークンを失効させる。発行済みセッションCookieも無効になる。
func (p *FirebaseProvider) Revoke(ctx context.Context, uid string) error {
	if err := p.client.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("failed to revoke firebase tokens: %w", err)
	}
	return nil
}

// DeleteAccount はFirebase上のアカウントを削除する。存在しない場合は何もしない。
func (p *FirebaseProvider) DeleteAccount(ctx context.Context, uid string) error {
	if err := p.client.DeleteUser(ctx, uid); err != nil {
		if fbauth.IsUserNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete firebase user: %w", err)
	}
	return nil
}
