package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/hitoshi/eventinator/internal/model"
)

type mockSocialChecker struct {
	loggedIn bool
	profile  *SocialProfile
	err      error
	profileN int
}

func (m *mockSocialChecker) CheckLoggedIn(_ *http.Request) (*oauth2.Token, bool) {
	if !m.loggedIn {
		return nil, false
	}
	return &oauth2.Token{AccessToken: "a"}, true
}

func (m *mockSocialChecker) Profile(_ context.Context, _ *http.Request) (*SocialProfile, error) {
	m.profileN++
	return m.profile, m.err
}

type mockPasswordChecker struct {
	claims *PasswordClaims
	calls  int
}

func (m *mockPasswordChecker) CheckLoggedIn(_ context.Context, _ *http.Request) (*PasswordClaims, bool) {
	m.calls++
	return m.claims, m.claims != nil
}

type mockIdentityResolver struct {
	resolveSocialFn   func(ctx context.Context, profile *SocialProfile) (*model.User, error)
	resolvePasswordFn func(ctx context.Context, claims *PasswordClaims) (*model.User, error)
}

func (m *mockIdentityResolver) ResolveSocial(ctx context.Context, profile *SocialProfile) (*model.User, error) {
	if m.resolveSocialFn != nil {
		return m.resolveSocialFn(ctx, profile)
	}
	return &model.User{UID: "100", Username: profile.Username}, nil
}

func (m *mockIdentityResolver) ResolvePassword(ctx context.Context, claims *PasswordClaims) (*model.User, error) {
	if m.resolvePasswordFn != nil {
		return m.resolvePasswordFn(ctx, claims)
	}
	return &model.User{UID: claims.UID}, nil
}

type checkRecorder struct {
	outcomes []string
}

func (c *checkRecorder) RecordAuthCheck(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

var _ SocialChecker = (*SocialAdapter)(nil)
var _ PasswordChecker = (*PasswordAdapter)(nil)
var _ IdentityResolver = (*Resolver)(nil)

func TestAuthenticate_SocialWinsFirst(t *testing.T) {
	social := &mockSocialChecker{loggedIn: true, profile: &SocialProfile{ID: "999", Username: "alice"}}
	password := &mockPasswordChecker{claims: &PasswordClaims{UID: "101"}}
	a := NewAuthenticator(social, password, &mockIdentityResolver{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p, err := a.Authenticate(req.Context(), req)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if p.Platform != model.PlatformDiscord || p.User.UID != "100" {
		t.Errorf("principal = %+v, want discord user 100", p)
	}
	if password.calls != 0 {
		t.Error("password adapter should not be checked after social success")
	}
}

func TestAuthenticate_FallsBackToPassword(t *testing.T) {
	tests := []struct {
		name   string
		social *mockSocialChecker
	}{
		{"social not logged in", &mockSocialChecker{}},
		{"social profile fetch fails", &mockSocialChecker{loggedIn: true, err: ErrTokenRejected}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			password := &mockPasswordChecker{claims: &PasswordClaims{UID: "101"}}
			a := NewAuthenticator(tt.social, password, &mockIdentityResolver{}, nil)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			p, err := a.Authenticate(req.Context(), req)
			if err != nil {
				t.Fatalf("Authenticate returned error: %v", err)
			}
			if p.Platform != model.PlatformFirebase || p.User.UID != "101" {
				t.Errorf("principal = %+v, want firebase user 101", p)
			}
		})
	}
}

func TestAuthenticate_NeitherAdapter_Unauthenticated(t *testing.T) {
	rec := &checkRecorder{}
	a := NewAuthenticator(&mockSocialChecker{}, &mockPasswordChecker{}, &mockIdentityResolver{}, rec)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := a.Authenticate(req.Context(), req)
	if !errors.Is(err, model.ErrUnauthenticated) {
		t.Fatalf("error = %v, want ErrUnauthenticated", err)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthenticated {
		t.Errorf("error = %v, want UNAUTHENTICATED", err)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "unauthenticated" {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

func TestAuthenticate_DataIntegrityIsNotUnauthenticated(t *testing.T) {
	resolver := &mockIdentityResolver{
		resolvePasswordFn: func(_ context.Context, claims *PasswordClaims) (*model.User, error) {
			return nil, model.NewDataIntegrityError(claims.UID)
		},
	}
	a := NewAuthenticator(&mockSocialChecker{}, &mockPasswordChecker{claims: &PasswordClaims{UID: "200"}}, resolver, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := a.Authenticate(req.Context(), req)
	if !errors.Is(err, model.ErrDataIntegrity) {
		t.Errorf("error = %v, want ErrDataIntegrity", err)
	}

	// ゲスト許可でも整合性エラーはゲストに変換しない
	_, err = a.AuthenticateOptional(req.Context(), req)
	if !errors.Is(err, model.ErrDataIntegrity) {
		t.Errorf("optional error = %v, want ErrDataIntegrity", err)
	}
}

func TestAuthenticateOptional_Guest(t *testing.T) {
	a := NewAuthenticator(&mockSocialChecker{}, &mockPasswordChecker{}, &mockIdentityResolver{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p, err := a.AuthenticateOptional(req.Context(), req)
	if err != nil {
		t.Fatalf("AuthenticateOptional returned error: %v", err)
	}
	if !p.IsGuest() || p.Platform != model.PlatformNone {
		t.Errorf("principal = %+v, want guest", p)
	}
}

// Discordの障害はログアウト扱いにせず、IdP名を含まない上流エラーとして返す
func TestAuthenticate_SocialProviderFailure_IsUpstreamError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"server error", errors.New("profile fetch failed with status 503")},
		{"timeout", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &checkRecorder{}
			social := &mockSocialChecker{loggedIn: true, err: tt.err}
			password := &mockPasswordChecker{}
			a := NewAuthenticator(social, password, &mockIdentityResolver{}, rec)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			_, err := a.Authenticate(req.Context(), req)
			if !errors.Is(err, model.ErrUpstream) {
				t.Fatalf("error = %v, want ErrUpstream", err)
			}
			if errors.Is(err, model.ErrUnauthenticated) {
				t.Error("provider failure should not look like a logged-out user")
			}
			if strings.Contains(strings.ToLower(err.Error()), "discord") {
				t.Errorf("error message leaks provider name: %v", err)
			}
			if password.calls != 0 {
				t.Errorf("password checker called %d times, want 0", password.calls)
			}
			if len(rec.outcomes) != 1 || rec.outcomes[0] != "error" {
				t.Errorf("outcomes = %v, want [error]", rec.outcomes)
			}

			// ゲスト許可のルートでもゲストにはしない
			if _, err := a.AuthenticateOptional(req.Context(), req); !errors.Is(err, model.ErrUpstream) {
				t.Errorf("AuthenticateOptional error = %v, want ErrUpstream", err)
			}
		})
	}
}

func TestAuthenticate_SocialResolveError_Propagates(t *testing.T) {
	dbErr := errors.New("connection refused")
	resolver := &mockIdentityResolver{
		resolveSocialFn: func(_ context.Context, _ *SocialProfile) (*model.User, error) {
			return nil, dbErr
		},
	}
	social := &mockSocialChecker{loggedIn: true, profile: &SocialProfile{ID: "999", Username: "alice"}}
	a := NewAuthenticator(social, &mockPasswordChecker{}, resolver, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := a.Authenticate(req.Context(), req); !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want %v", err, dbErr)
	}
}
