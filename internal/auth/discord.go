package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// Discordのエンドポイント
const (
	discordAuthURL    = "https://discord.com/oauth2/authorize"
	discordTokenURL   = "https://discord.com/api/oauth2/token"
	discordAPIBaseURL = "https://discord.com/api/v10"
)

// ProviderDiscord はメトリクスやログで使うプロバイダー名。
const ProviderDiscord = "discord"

// ErrTokenRejected はDiscordがアクセストークンを受け付けなかったことを示す。
var ErrTokenRejected = errors.New("discord rejected access token")

// DiscordConfig はDiscord OAuth2の設定。
// AuthURL・TokenURL・APIBaseURLが空の場合は本番のエンドポイントを使う。
type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	HTTPClient   *http.Client
}

// SocialProfile はDiscordから取得したユーザー情報。
type SocialProfile struct {
	ID       string
	Username string
	Email    string
}

// DiscordProvider はDiscordのOAuth2認可コードフローとプロフィール取得を行う。
type DiscordProvider struct {
	oauth      *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewDiscordProvider はDiscordProviderを生成する。
func NewDiscordProvider(cfg DiscordConfig) *DiscordProvider {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = discordAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = discordTokenURL
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = discordAPIBaseURL
	}

	return &DiscordProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"identify", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: apiBase,
		httpClient: cfg.HTTPClient,
	}
}

// withClient はテスト用などに指定されたHTTPクライアントをoauth2に渡す。
func (p *DiscordProvider) withClient(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthorizationURL はDiscordの認可URLを生成する。
func (p *DiscordProvider) AuthorizationURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange は認可コードをトークンに交換する。
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.oauth.Exchange(p.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange discord code: %w", err)
	}
	return token, nil
}

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// FetchProfile は /users/@me を取得する。
// 期限切れトークンはoauth2が自動で更新し、更新後のトークンをonRefreshに渡す。
func (p *DiscordProvider) FetchProfile(ctx context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token)) (*SocialProfile, error) {
	ctx = p.withClient(ctx)
	ts := &notifyingTokenSource{
		src:       p.oauth.TokenSource(ctx, token),
		current:   token,
		onRefresh: onRefresh,
	}
	client := oauth2.NewClient(ctx, ts)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		// リフレッシュトークンが拒否された場合はログインし直すしかない
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return nil, ErrTokenRejected
		}
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenRejected
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var u discordUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("empty id in profile response")
	}

	return &SocialProfile{ID: u.ID, Username: u.Username, Email: u.Email}, nil
}

// notifyingTokenSource はトークンが更新されたときにコールバックを呼ぶTokenSource。
type notifyingTokenSource struct {
	src       oauth2.TokenSource
	mu        sync.Mutex
	current   *oauth2.Token
	onRefresh func(*oauth2.Token)
}

func (s *notifyingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || t.AccessToken != s.current.AccessToken {
		s.current = t
		if s.onRefresh != nil {
			s.onRefresh(t)
		}
	}
	return t, nil
}
