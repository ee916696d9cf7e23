// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/googlelogin/internal/auth"
	"github.com/hitoshi/googlelogin/internal/metrics"
	"github.com/hitoshi/googlelogin/internal/middleware"
	"github.com/hitoshi/googlelogin/internal/model"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthVerifierCookie = "oauth_verifier"

	// handshakeCookieMaxAge はハンドシェイク用Cookieの有効期間（秒）。
	handshakeCookieMaxAge = 600
)

// LoginService は認証ハンドラーが必要とするサービスインターフェース。
type LoginService interface {
	BeginLogin() (*auth.LoginRedirect, error)
	CompleteLogin(ctx context.Context, w http.ResponseWriter, params auth.CallbackParams) (*model.User, error)
	DevLogin(ctx context.Context, w http.ResponseWriter) (*model.User, error)
}

// SessionTerminator はセッションを破棄するインターフェース。
// Terminateはログアウト時、Revokeは再ログイン時の古いセッションの削除に使う。
type SessionTerminator interface {
	Terminate(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	Revoke(ctx context.Context, r *http.Request) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はログイン・ログアウト関連のHTTPハンドラー。
type AuthHandler struct {
	service  LoginService
	sessions SessionTerminator
	metrics  metrics.MetricsCollector
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service LoginService, sessions SessionTerminator, collector metrics.MetricsCollector, config AuthHandlerConfig) *AuthHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		metrics:  collector,
		config:   config,
	}
}

// Begin はGoogleとのハンドシェイクを開始する。
// GET /auth/provider
func (h *AuthHandler) Begin(w http.ResponseWriter, r *http.Request) error {
	redirect, err := h.service.BeginLogin()
	if err != nil {
		return err
	}

	// stateとPKCE verifierをCookieに保存（コールバックで照合する）
	http.SetCookie(w, h.handshakeCookie(oauthStateCookie, redirect.State, handshakeCookieMaxAge))
	http.SetCookie(w, h.handshakeCookie(oauthVerifierCookie, redirect.Verifier, handshakeCookieMaxAge))

	http.Redirect(w, r, redirect.URL, http.StatusFound)
	return nil
}

// Callback はGoogleからのコールバックを処理する。
// ハンドシェイクの失敗は/loginへのリダイレクトとし、それ以外のエラーはErrorBoundaryへ渡す。
// GET /auth/provider/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()
	params := auth.CallbackParams{
		Code:          query.Get("code"),
		State:         query.Get("state"),
		Error:         query.Get("error"),
		ExpectedState: cookieValue(r, oauthStateCookie),
		Verifier:      cookieValue(r, oauthVerifierCookie),
	}

	// ハンドシェイク用Cookieは結果によらず削除する
	http.SetCookie(w, h.handshakeCookie(oauthStateCookie, "", -1))
	http.SetCookie(w, h.handshakeCookie(oauthVerifierCookie, "", -1))

	user, err := h.service.CompleteLogin(r.Context(), w, params)
	if err != nil {
		if errors.Is(err, auth.ErrHandshakeFailed) {
			h.metrics.RecordLogin(metrics.LoginOutcomeHandshakeFailed)
			slog.Warn("login handshake failed",
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			)
			http.Redirect(w, r, "/login", http.StatusFound)
			return nil
		}
		h.metrics.RecordLogin(metrics.LoginOutcomeError)
		return err
	}

	h.revokePrevious(r)
	h.metrics.RecordLogin(metrics.LoginOutcomeSuccess)
	slog.Debug("login completed", slog.Int64("user_id", user.ID))
	http.Redirect(w, r, "/dashboard", http.StatusFound)
	return nil
}

// DevLogin はハンドシェイクを行わずに開発用ユーザーでログインする。
// DEV_LOGIN_ENABLEDが有効な場合のみルーティングされる。
// GET /dev-login
func (h *AuthHandler) DevLogin(w http.ResponseWriter, r *http.Request) error {
	if _, err := h.service.DevLogin(r.Context(), w); err != nil {
		h.metrics.RecordLogin(metrics.LoginOutcomeError)
		return err
	}

	h.revokePrevious(r)
	h.metrics.RecordLogin(metrics.LoginOutcomeDev)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
	return nil
}

// Logout はセッションを破棄してトップページへリダイレクトする。
// ストアの障害時はCookieを残したままErrorBoundaryへ渡す。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) error {
	if err := h.sessions.Terminate(r.Context(), w, r); err != nil {
		return err
	}

	h.metrics.RecordLogout()
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// revokePrevious はリクエストが持っていた古いセッションを削除する。
// 新しいセッションは発行済みのため、失敗してもログインは継続する。
func (h *AuthHandler) revokePrevious(r *http.Request) {
	if err := h.sessions.Revoke(r.Context(), r); err != nil {
		slog.Warn("failed to revoke previous session",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
	}
}

func (h *AuthHandler) handshakeCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth/provider",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
