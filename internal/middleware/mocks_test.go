package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/googlelogin/internal/model"
)

// --- モック ---

type mockResolver struct {
	resolveFn func(ctx context.Context, r *http.Request) (*model.Session, error)
}

func (m *mockResolver) Resolve(ctx context.Context, r *http.Request) (*model.Session, error) {
	return m.resolveFn(ctx, r)
}

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id int64) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}

// mockRenderer はエラーページの代わりにステータスとコードをHTMLで書き込む。
type mockRenderer struct {
	err   error
	calls int
}

func (m *mockRenderer) RenderError(w http.ResponseWriter, status int, apiErr *model.APIError) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<main data-page="error">%s: %s</main>`, apiErr.Code, apiErr.Message)
	return nil
}
