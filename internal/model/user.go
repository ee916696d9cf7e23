// Package model はドメインモデルを定義する。
package model

import "time"

// User はGoogleでログインしたローカルユーザーを表す。
// ID と ExternalID、CreatedAt は作成後に変更されない。
type User struct {
	ID          int64
	ExternalID  string
	Email       *string
	DisplayName *string
	AvatarURL   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserFields はログインのたびにIdPの値で上書きされるプロフィール項目。
// nilはNULLとして保存される。
type UserFields struct {
	Email       *string
	DisplayName *string
	AvatarURL   *string
}

// EmailOrEmpty はメールアドレスを返す。未設定の場合は空文字列。
func (u *User) EmailOrEmpty() string {
	return deref(u.Email)
}

// DisplayNameOrEmpty は表示名を返す。未設定の場合は空文字列。
func (u *User) DisplayNameOrEmpty() string {
	return deref(u.DisplayName)
}

// AvatarURLOrEmpty はアバターURLを返す。未設定の場合は空文字列。
func (u *User) AvatarURLOrEmpty() string {
	return deref(u.AvatarURL)
}

// ExternalProfile はIdPから受け取ったプロフィール。
// Subject以外は省略されうる。
type ExternalProfile struct {
	Subject     string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Session はユーザーのログインセッションを表す。
// ユーザー本体ではなくUserIDのみを保持する。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// StringPtr は空文字列をnilとして扱うポインタを返す。
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
