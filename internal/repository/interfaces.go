// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/googlelogin/internal/model"
)

// ErrEmailConflict は別のexternal_idのユーザーが同じメールアドレスを使用している場合のエラー。
// ストア側の一意制約違反であり、サーバーエラーとして扱う。
var ErrEmailConflict = errors.New("email already belongs to another user")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Upsert はexternal_idをキーにユーザーを作成または更新し、現在の行を返す。
	// 既存ユーザーの場合はプロフィール項目のみを更新し、idとcreated_atは変更しない。
	// 同一external_idへの同時実行でも行は重複しない。
	Upsert(ctx context.Context, externalID string, fields model.UserFields) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// ListAll は全ユーザーをcreated_at降順で返す。
	ListAll(ctx context.Context) ([]*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。書き込みが確定してから戻る。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}
