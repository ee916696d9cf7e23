package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/googlelogin/internal/middleware"
	"github.com/hitoshi/googlelogin/internal/model"
	"github.com/hitoshi/googlelogin/internal/view"
)

// UserLister はダッシュボードに表示するユーザー一覧を返すインターフェース。
type UserLister interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// PageRenderer はHTMLページを描画するインターフェース。
type PageRenderer interface {
	Render(w http.ResponseWriter, status int, page string, data any) error
}

// PageHandler はHTMLページのハンドラー。
type PageHandler struct {
	users           UserLister
	renderer        PageRenderer
	devLoginEnabled bool
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(users UserLister, renderer PageRenderer, devLoginEnabled bool) *PageHandler {
	return &PageHandler{
		users:           users,
		renderer:        renderer,
		devLoginEnabled: devLoginEnabled,
	}
}

// Home はトップページを表示する。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) error {
	user, _ := middleware.UserFromContext(r.Context())
	return h.renderer.Render(w, http.StatusOK, view.PageHome, view.HomeData{CurrentUser: user})
}

// Login はログインページを表示する。
// GET /login
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) error {
	user, _ := middleware.UserFromContext(r.Context())
	return h.renderer.Render(w, http.StatusOK, view.PageLogin, view.LoginData{
		CurrentUser:     user,
		DevLoginEnabled: h.devLoginEnabled,
	})
}

// Dashboard はログイン中のユーザーに全ユーザーの一覧を表示する。
// RequireAuthenticatedの内側でのみ使用する。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) error {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return model.NewUnauthorizedError()
	}

	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	return h.renderer.Render(w, http.StatusOK, view.PageDashboard, view.DashboardData{
		CurrentUser: user,
		Users:       users,
	})
}
