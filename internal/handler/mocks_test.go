package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/eventinator/internal/auth"
	"github.com/hitoshi/eventinator/internal/events"
	"github.com/hitoshi/eventinator/internal/idgen"
	"github.com/hitoshi/eventinator/internal/middleware"
	"github.com/hitoshi/eventinator/internal/model"
	"github.com/hitoshi/eventinator/internal/repository"
	"github.com/hitoshi/eventinator/internal/security"
	"github.com/hitoshi/eventinator/internal/user"
)

// --- 認証 ---

// testAuthCookie はテスト用の認証Cookie名。値がユーザーのuid。
const testAuthCookie = "test_uid"

// cookieAuthenticator はCookieのuidでユーザーを引くテスト用Authenticator。
type cookieAuthenticator struct {
	users map[string]*model.User
}

func (a *cookieAuthenticator) Authenticate(_ context.Context, r *http.Request) (model.Principal, error) {
	c, err := r.Cookie(testAuthCookie)
	if err != nil {
		return model.Principal{}, model.NewUnauthenticatedError()
	}
	u, ok := a.users[c.Value]
	if !ok {
		return model.Principal{}, model.NewUnauthenticatedError()
	}
	return model.Principal{User: u, Platform: model.PlatformFirebase}, nil
}

func (a *cookieAuthenticator) AuthenticateOptional(ctx context.Context, r *http.Request) (model.Principal, error) {
	p, err := a.Authenticate(ctx, r)
	if err != nil {
		return model.Guest(), nil
	}
	return p, nil
}

var _ middleware.Authenticator = (*cookieAuthenticator)(nil)

type noSessionLoader struct{}

func (noSessionLoader) Load(context.Context, *http.Request) (*model.Session, error) {
	return nil, nil
}

type mockAuthService struct {
	discordLoginURLFn func(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error)
	discordCallbackFn func(ctx context.Context, r *http.Request) (*model.User, error)
	passwordLoginFn   func(ctx context.Context, w http.ResponseWriter, email, password string) error
	signUpFn          func(ctx context.Context, w http.ResponseWriter, in auth.SignUpInput) (*model.User, error)
	logoutFn          func(ctx context.Context, w http.ResponseWriter, r *http.Request, p model.Principal) error
	forgotten         []string
}

func (m *mockAuthService) DiscordLoginURL(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error) {
	if m.discordLoginURLFn != nil {
		return m.discordLoginURLFn(ctx, w, r)
	}
	return "https://discord.com/oauth2/authorize?state=s", nil
}

func (m *mockAuthService) DiscordCallback(ctx context.Context, r *http.Request) (*model.User, error) {
	if m.discordCallbackFn != nil {
		return m.discordCallbackFn(ctx, r)
	}
	return nil, nil
}

func (m *mockAuthService) PasswordLogin(ctx context.Context, w http.ResponseWriter, email, password string) error {
	if m.passwordLoginFn != nil {
		return m.passwordLoginFn(ctx, w, email, password)
	}
	return nil
}

func (m *mockAuthService) SignUp(ctx context.Context, w http.ResponseWriter, in auth.SignUpInput) (*model.User, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, w, in)
	}
	return &model.User{UID: "new", Username: in.Username, Email: &in.Email}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request, p model.Principal) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, w, r, p)
	}
	return nil
}

func (m *mockAuthService) ForgetCredentials(_ context.Context, _ http.ResponseWriter, _ *http.Request, p model.Principal) error {
	m.forgotten = append(m.forgotten, p.User.UID)
	return nil
}

var (
	_ AuthServiceInterface = (*mockAuthService)(nil)
	_ AuthServiceInterface = (*auth.Service)(nil)
	_ CredentialForgetter  = (*auth.Service)(nil)
)

// --- ユーザー ---

type mockUserService struct {
	dashboardFn     func(ctx context.Context, p model.Principal) (*user.Dashboard, error)
	setTimezoneFn   func(ctx context.Context, u *model.User, raw string) (string, error)
	deleteAccountFn func(ctx context.Context, p model.Principal) error
}

func (m *mockUserService) Dashboard(ctx context.Context, p model.Principal) (*user.Dashboard, error) {
	if m.dashboardFn != nil {
		return m.dashboardFn(ctx, p)
	}
	return &user.Dashboard{User: p.User, Platform: p.Platform}, nil
}

func (m *mockUserService) SetTimezone(ctx context.Context, u *model.User, raw string) (string, error) {
	if m.setTimezoneFn != nil {
		return m.setTimezoneFn(ctx, u, raw)
	}
	return user.NormalizeTimezone(raw)
}

func (m *mockUserService) DeleteAccount(ctx context.Context, p model.Principal) error {
	if m.deleteAccountFn != nil {
		return m.deleteAccountFn(ctx, p)
	}
	return nil
}

var (
	_ UserServiceInterface  = (*user.Service)(nil)
	_ EventServiceInterface = (*events.Service)(nil)
	_ CalendarExporter      = (*events.CalendarExporter)(nil)
)

// --- イベント（インメモリリポジトリ） ---

type memoryEventRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User
	events  map[string]*model.Event
	members map[string]map[string]bool // eventID -> uid
}

func newMemoryEventRepo(users map[string]*model.User) *memoryEventRepo {
	return &memoryEventRepo{
		users:   users,
		events:  make(map[string]*model.Event),
		members: make(map[string]map[string]bool),
	}
}

func (m *memoryEventRepo) CreateWithOwnerMembership(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	m.members[e.ID] = map[string]bool{e.OwnerUID: true}
	return nil
}

func (m *memoryEventRepo) FindByID(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[id], nil
}

func (m *memoryEventRepo) DeleteWithMemberships(_ context.Context, id string, authorize func(*model.Event) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	if authorize != nil {
		if err := authorize(e); err != nil {
			return err
		}
	}
	delete(m.members, id)
	delete(m.events, id)
	return nil
}

func (m *memoryEventRepo) AddMember(_ context.Context, uid, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return false, repository.ErrNotFound
	}
	if m.members[id][uid] {
		return false, nil
	}
	m.members[id][uid] = true
	return true, nil
}

func (m *memoryEventRepo) RemoveMember(_ context.Context, uid, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.members[id][uid] {
		return 0, nil
	}
	delete(m.members[id], uid)
	return 1, nil
}

func (m *memoryEventRepo) IsMember(_ context.Context, uid, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[id][uid], nil
}

func (m *memoryEventRepo) ListByOwner(_ context.Context, uid string) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Event
	for _, e := range m.events {
		if e.OwnerUID == uid {
			out = append(out, e)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *memoryEventRepo) ListByMember(_ context.Context, uid string) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Event
	for id, set := range m.members {
		if set[uid] {
			out = append(out, m.events[id])
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *memoryEventRepo) ListMembers(_ context.Context, id string) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for uid := range m.members[id] {
		out = append(out, m.users[uid])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func sortByStart(events []*model.Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].StartTime.Before(events[j].StartTime) })
}

var _ repository.EventRepository = (*memoryEventRepo)(nil)

// --- テスト用ルーター ---

type testEnv struct {
	router  http.Handler
	repo    *memoryEventRepo
	auth    *mockAuthService
	users   *mockUserService
	userMap map[string]*model.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userMap := map[string]*model.User{
		"100": {UID: "100", Username: "alice"},
		"101": {UID: "101", Username: "bob"},
	}
	repo := newMemoryEventRepo(userMap)
	sanitizer := security.NewContentSanitizer()
	eventService := events.NewService(repo, idgen.New(), sanitizer, nil)

	env := &testEnv{
		repo:    repo,
		auth:    &mockAuthService{},
		users:   &mockUserService{},
		userMap: userMap,
	}

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	env.router = NewRouter(&RouterDeps{
		Logger:              discardLogger(),
		SessionLoader:       noSessionLoader{},
		Authenticator:       &cookieAuthenticator{users: userMap},
		CORSAllowedOrigin:   "http://localhost:3000",
		RateLimiter:         limiter,
		AuthService:         env.auth,
		AuthConfig:          AuthHandlerConfig{BaseURL: "http://localhost:3000"},
		EventService:        eventService,
		UserService:         env.users,
		JoinedEvents:        eventService,
		Calendar:            events.NewCalendarExporter("http://localhost:3000", sanitizer),
		CredentialForgetter: env.auth,
	})
	return env
}

// do はuidのユーザーとしてリクエストを送る。uidが空ならゲスト。
func (e *testEnv) do(method, path, uid, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req.AddCookie(&http.Cookie{Name: testAuthCookie, Value: uid})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
