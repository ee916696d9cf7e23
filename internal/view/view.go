// Package view は埋め込みテンプレートによるHTMLページの描画を提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/hitoshi/googlelogin/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページ名
const (
	PageHome      = "home"
	PageLogin     = "login"
	PageDashboard = "dashboard"
	PageError     = "error"
)

var pageNames = []string{PageHome, PageLogin, PageDashboard, PageError}

// HomeData はホームページの描画データ。
type HomeData struct {
	CurrentUser *model.User
}

// LoginData はログインページの描画データ。
type LoginData struct {
	CurrentUser     *model.User
	DevLoginEnabled bool
}

// DashboardData はダッシュボードの描画データ。Usersは新しい順に並んでいる。
type DashboardData struct {
	CurrentUser *model.User
	Users       []*model.User
}

// ErrorData はエラーページの描画データ。
type ErrorData struct {
	CurrentUser *model.User
	Status      int
	Code        string
	Message     string
	Action      string
}

// Renderer はページごとにパース済みのテンプレートを保持する。
// 生成後は読み取り専用のため並行利用してよい。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer は埋め込みテンプレートをすべてパースしてRendererを生成する。
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"displayName": displayName,
		"formatTime":  formatTime,
		"isoTime":     isoTime,
		"statusText":  http.StatusText,
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New("layout").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{pages: pages}, nil
}

// Render はページをバッファへ描画し、成功した場合のみレスポンスへ書き込む。
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data any) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page: %s", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderError はエラーページを描画する。
func (r *Renderer) RenderError(w http.ResponseWriter, status int, apiErr *model.APIError) error {
	return r.Render(w, status, PageError, ErrorData{
		Status:  status,
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Action:  apiErr.Action,
	})
}

func displayName(u *model.User) string {
	if u == nil {
		return ""
	}
	if name := u.DisplayNameOrEmpty(); name != "" {
		return name
	}
	if email := u.EmailOrEmpty(); email != "" {
		return email
	}
	return fmt.Sprintf("user #%d", u.ID)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
