package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/googlelogin/internal/metrics"
	"github.com/hitoshi/googlelogin/internal/middleware"
	"github.com/hitoshi/googlelogin/internal/model"
)

// SessionStore はセッションの解決と破棄を行うインターフェース。
type SessionStore interface {
	middleware.SessionResolver
	SessionTerminator
}

// UserService はセッションのユーザー解決とダッシュボードの一覧取得を行うインターフェース。
type UserService interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	UserLister
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger      *slog.Logger
	Metrics     metrics.MetricsCollector
	Boundary    *middleware.ErrorBoundary
	RateLimiter *middleware.RateLimiter

	// 認証
	AuthService     LoginService
	AuthConfig      AuthHandlerConfig
	Sessions        SessionStore
	DevLoginEnabled bool

	// ページ
	Users    UserService
	Renderer PageRenderer

	// 運用
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer
}

// appHandler はエラーを返すハンドラー。返されたエラーはErrorBoundaryが応答に変換する。
type appHandler func(w http.ResponseWriter, r *http.Request) error

func handle(boundary *middleware.ErrorBoundary, h appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			boundary.Handle(w, r, err)
		}
	}
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → Session
//
// /health と /metrics はセッション解決の外に配置する。
// /auth/* と /dev-login にはIP単位のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	boundary := deps.Boundary
	if boundary == nil {
		boundary = middleware.NewErrorBoundary(nil, deps.Logger)
	}

	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(deps.Logger, collector))
	r.Use(middleware.NewRecoveryMiddleware(boundary))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.NotFound(handle(boundary, func(w http.ResponseWriter, r *http.Request) error {
		return model.NewNotFoundError(r.URL.Path)
	}))
	r.MethodNotAllowed(handle(boundary, func(w http.ResponseWriter, r *http.Request) error {
		return model.NewMethodNotAllowedError(r.Method)
	}))

	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions, collector, deps.AuthConfig)
	pageHandler := NewPageHandler(deps.Users, deps.Renderer, deps.DevLoginEnabled)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- セッションを解決するルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Sessions, deps.Users, boundary))

		r.Get("/", handle(boundary, pageHandler.Home))
		r.Get("/login", handle(boundary, pageHandler.Login))
		r.Get("/logout", handle(boundary, authHandler.Logout))

		r.With(middleware.RequireAuthenticated).Get("/dashboard", handle(boundary, pageHandler.Dashboard))

		// ハンドシェイクと開発用ログイン（レート制限あり）
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware(boundary))
			}

			r.Get("/auth/provider", handle(boundary, authHandler.Begin))
			r.Get("/auth/provider/callback", handle(boundary, authHandler.Callback))

			if deps.DevLoginEnabled {
				r.Get("/dev-login", handle(boundary, authHandler.DevLogin))
			}
		})
	})

	return r
}
