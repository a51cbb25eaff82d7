package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/hitoshi/eventinator/internal/model"
)

func TestSocialAdapter_CheckLoggedIn(t *testing.T) {
	sessions := newMemorySessions()
	a := NewSocialAdapter(&mockDiscord{}, sessions, testOffloader())

	// セッションなし
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := a.CheckLoggedIn(req); ok {
		t.Error("CheckLoggedIn without session should be false")
	}

	req = sessions.withToken(t, "sess", &oauth2.Token{AccessToken: "tok"})
	token, ok := a.CheckLoggedIn(req)
	if !ok || token.AccessToken != "tok" {
		t.Errorf("CheckLoggedIn = (%v, %v), want tok", token, ok)
	}
}

func TestSocialAdapter_LoginURL_StoresState(t *testing.T) {
	sessions := newMemorySessions()
	a := NewSocialAdapter(&mockDiscord{}, sessions, testOffloader())

	req := httptest.NewRequest(http.MethodGet, "/auth/discord/login", nil)
	w := httptest.NewRecorder()
	loginURL, err := a.LoginURL(req.Context(), w, req)
	if err != nil {
		t.Fatalf("LoginURL returned error: %v", err)
	}

	u, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatal("state should be set")
	}

	var stored string
	if ok, _ := sessions.sessions["new-session"].Get(sessionKeyState, &stored); !ok || stored != state {
		t.Errorf("stored state = %q, want %q", stored, state)
	}
}

func TestSocialAdapter_HandleCallback(t *testing.T) {
	newReq := func(sessions *memorySessions, query string) *http.Request {
		s := &model.Session{ID: "sess"}
		s.Set(sessionKeyState, "good-state")
		sessions.sessions["sess"] = s
		req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?"+query, nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess"})
		return req
	}

	tests := []struct {
		name   string
		query  string
		wantOK bool
	}{
		{"success", "code=abc&state=good-state", true},
		{"user declined", "error=access_denied&state=good-state", false},
		{"state mismatch", "code=abc&state=evil", false},
		{"missing code", "state=good-state", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := newMemorySessions()
			a := NewSocialAdapter(&mockDiscord{}, sessions, testOffloader())

			req := newReq(sessions, tt.query)
			ok, err := a.HandleCallback(req.Context(), req)
			if err != nil {
				t.Fatalf("HandleCallback returned error: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("HandleCallback = %v, want %v", ok, tt.wantOK)
			}

			var token oauth2.Token
			stored, _ := sessions.sessions["sess"].Get(sessionKeyToken, &token)
			if stored != tt.wantOK {
				t.Errorf("token stored = %v, want %v", stored, tt.wantOK)
			}
			if tt.wantOK && token.AccessToken != "access-abc" {
				t.Errorf("AccessToken = %q, want access-abc", token.AccessToken)
			}
		})
	}
}

func TestSocialAdapter_HandleCallback_ExchangeFailure(t *testing.T) {
	sessions := newMemorySessions()
	discord := &mockDiscord{
		exchangeFn: func(_ context.Context, _ string) (*oauth2.Token, error) {
			return nil, errors.New("invalid_grant")
		},
	}
	a := NewSocialAdapter(discord, sessions, testOffloader())

	s := &model.Session{ID: "sess"}
	s.Set(sessionKeyState, "st")
	sessions.sessions["sess"] = s
	req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=abc&state=st", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess"})

	ok, err := a.HandleCallback(req.Context(), req)
	if ok || !errors.Is(err, model.ErrUpstream) {
		t.Errorf("HandleCallback = (%v, %v), want (false, ErrUpstream)", ok, err)
	}
}

func TestSocialAdapter_Profile_PersistsRefreshedToken(t *testing.T) {
	sessions := newMemorySessions()
	discord := &mockDiscord{
		fetchProfileFn: func(_ context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token)) (*SocialProfile, error) {
			onRefresh(&oauth2.Token{AccessToken: "refreshed", RefreshToken: token.RefreshToken})
			return &SocialProfile{ID: "999", Username: "alice"}, nil
		},
	}
	a := NewSocialAdapter(discord, sessions, testOffloader())

	req := sessions.withToken(t, "sess", &oauth2.Token{AccessToken: "old", RefreshToken: "r"})
	profile, err := a.Profile(req.Context(), req)
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if profile.ID != "999" {
		t.Errorf("profile.ID = %q, want 999", profile.ID)
	}

	var token oauth2.Token
	sessions.sessions["sess"].Get(sessionKeyToken, &token)
	if token.AccessToken != "refreshed" {
		t.Errorf("stored AccessToken = %q, want refreshed", token.AccessToken)
	}
	if sessions.saved == 0 {
		t.Error("session should be saved after refresh")
	}
}

func TestSocialAdapter_Logout_DestroysSession(t *testing.T) {
	sessions := newMemorySessions()
	a := NewSocialAdapter(&mockDiscord{}, sessions, testOffloader())

	req := sessions.withToken(t, "sess", &oauth2.Token{AccessToken: "tok"})
	w := httptest.NewRecorder()
	if err := a.Logout(req.Context(), w, req); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, ok := sessions.sessions["sess"]; ok {
		t.Error("session should be destroyed")
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "session_id=") {
		t.Error("session cookie should be cleared")
	}
}
