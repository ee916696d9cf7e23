// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/googlelogin/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// SessionResolver はリクエストから有効なセッションを解決するインターフェース。
// 匿名の場合はnil, nilを返す。
type SessionResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*model.Session, error)
}

// UserFinder はユーザーの検索に必要なインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// NewSessionMiddleware はリクエストごとにセッションからユーザーを引き直し、
// 見つかった場合はリクエストコンテキストに注入するミドルウェアを返す。
// セッションが指すユーザーが存在しない場合は匿名として扱う。
// ストアの障害はErrorBoundaryへ渡す。
func NewSessionMiddleware(resolver SessionResolver, users UserFinder, boundary *ErrorBoundary) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				boundary.Handle(w, r, err)
				return
			}
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.FindByID(r.Context(), session.UserID)
			if err != nil {
				boundary.Handle(w, r, err)
				return
			}
			if user == nil {
				slog.Debug("session refers to missing user",
					slog.Int64("user_id", session.UserID),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRequestUserID(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// RequireAuthenticated は認証済みユーザーがいない場合に/loginへリダイレクトする。
// NewSessionMiddlewareより内側に配置する。
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
