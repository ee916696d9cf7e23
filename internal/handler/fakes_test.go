package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/googlelogin/internal/auth"
	"github.com/hitoshi/googlelogin/internal/metrics"
	"github.com/hitoshi/googlelogin/internal/middleware"
	"github.com/hitoshi/googlelogin/internal/model"
	"github.com/hitoshi/googlelogin/internal/session"
	"github.com/hitoshi/googlelogin/internal/user"
	"github.com/hitoshi/googlelogin/internal/view"
)

// --- インメモリのストア ---

// memUserRepo はrepository.UserRepositoryのインメモリ実装。
type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User

	upsertErr error
	listErr   error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]*model.User)}
}

func (m *memUserRepo) Upsert(ctx context.Context, externalID string, fields model.UserFields) (*model.User, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, u := range m.users {
		if u.ExternalID == externalID {
			u.Email = fields.Email
			u.DisplayName = fields.DisplayName
			u.AvatarURL = fields.AvatarURL
			u.UpdatedAt = now
			cp := *u
			return &cp, nil
		}
	}

	m.nextID++
	u := &model.User{
		ID:          m.nextID,
		ExternalID:  externalID,
		Email:       fields.Email,
		DisplayName: fields.DisplayName,
		AvatarURL:   fields.AvatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	// 作成順に採番しているためID降順が新しい順になる
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memUserRepo) delete(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *memUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// memSessionRepo はrepository.SessionRepositoryのインメモリ実装。
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	createErr error
	deleteErr error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *memSessionRepo) Create(ctx context.Context, s *model.Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Expired(time.Now()) {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// --- モック ---

// mockProvider はauth.IdentityProviderのモック。
type mockProvider struct {
	completeFn func(ctx context.Context, params auth.CallbackParams) (*model.ExternalProfile, error)
}

func (m *mockProvider) BeginHandshake(state, verifier string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("code_challenge", "challenge-of-"+verifier)
	return "https://idp.example.test/authorize?" + q.Encode()
}

func (m *mockProvider) CompleteHandshake(ctx context.Context, params auth.CallbackParams) (*model.ExternalProfile, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, params)
	}
	if params.ExpectedState == "" || params.State != params.ExpectedState {
		return nil, fmt.Errorf("%w: state mismatch", auth.ErrHandshakeFailed)
	}
	if params.Code == "" || params.Verifier == "" {
		return nil, fmt.Errorf("%w: missing code or verifier", auth.ErrHandshakeFailed)
	}
	return &model.ExternalProfile{
		Subject:     "google-" + params.Code,
		Email:       params.Code + "@example.com",
		DisplayName: "User " + params.Code,
	}, nil
}

// mockHealthChecker はHealthCheckerのモック。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// panicRenderer は描画時にpanicするPageRenderer。
type panicRenderer struct{}

func (panicRenderer) Render(w http.ResponseWriter, status int, page string, data any) error {
	panic("template exploded")
}

// --- テスト環境 ---

type testEnv struct {
	users    *memUserRepo
	sessions *memSessionRepo
	provider *mockProvider
	logs     *bytes.Buffer
	router   http.Handler
}

type envOption func(*RouterDeps)

func withDevLogin() envOption {
	return func(d *RouterDeps) { d.DevLoginEnabled = true }
}

func withRateLimiter(rl *middleware.RateLimiter) envOption {
	return func(d *RouterDeps) { d.RateLimiter = rl }
}

func withMetrics(c metrics.MetricsCollector) envOption {
	return func(d *RouterDeps) { d.Metrics = c }
}

func withGatherer(g prometheus.Gatherer) envOption {
	return func(d *RouterDeps) { d.Gatherer = g }
}

func withRenderer(r PageRenderer) envOption {
	return func(d *RouterDeps) { d.Renderer = r }
}

func withHealthChecker(h HealthChecker) envOption {
	return func(d *RouterDeps) { d.HealthChecker = h }
}

// newTestEnv は実際のサービス層とインメモリのストアを組み合わせたルーターを構築する。
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		users:    newMemUserRepo(),
		sessions: newMemSessionRepo(),
		provider: &mockProvider{},
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	renderer, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	manager, err := session.NewManager(env.sessions, session.Config{
		Secret: []byte(strings.Repeat("s", session.MinSecretLength)),
		MaxAge: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	userService := user.NewService(env.users, nil)
	authService := auth.NewService(env.provider, userService, manager)

	deps := &RouterDeps{
		Logger:        logger,
		Boundary:      middleware.NewErrorBoundary(renderer, logger),
		AuthService:   authService,
		Sessions:      manager,
		Users:         userService,
		Renderer:      renderer,
		HealthChecker: &mockHealthChecker{},
	}
	for _, opt := range opts {
		opt(deps)
	}

	env.router = NewRouter(deps)
	return env
}

// findCookie はレスポンスのSet-Cookieから指定名のCookieを探す。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var errStoreDown = errors.New("store unavailable")
