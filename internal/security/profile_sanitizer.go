// Package security はアプリケーションのセキュリティ機能を提供する。
//
// IdPから受け取ったプロフィール値は信頼せず、保存前にここで無害化する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxDisplayNameLength は保存する表示名の最大文字数。
const maxDisplayNameLength = 200

// ProfileSanitizer はプロフィール値の無害化を行う。
// bluemondayのポリシーはスレッドセーフであり、インスタンスは共有してよい。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerを生成する。
// StrictPolicyを使用し、すべてのタグを除去してテキストのみを残す。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{policy: bluemonday.StrictPolicy()}
}

// DisplayName は表示名からマークアップを除去し、空白を正規化する。
// 結果が空の場合は空文字列を返す。
func (s *ProfileSanitizer) DisplayName(raw string) string {
	text := s.policy.Sanitize(raw)
	// StrictPolicyは&などを実体参照にするため、テンプレートでの二重エスケープを避けて戻す
	text = html.UnescapeString(text)
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > maxDisplayNameLength {
		runes := []rune(text)
		text = string(runes[:maxDisplayNameLength])
	}
	return text
}

// Email はメールアドレスの前後の空白を除去する。
// @を含まない値は不正として空文字列を返す。
func (s *ProfileSanitizer) Email(raw string) string {
	email := strings.TrimSpace(raw)
	if !strings.Contains(email, "@") || strings.ContainsAny(email, " <>\"") {
		return ""
	}
	return email
}

// AvatarURL は公開ホストを指す絶対httpsURLのみを通過させる。
func (s *ProfileSanitizer) AvatarURL(raw string) string {
	u := strings.TrimSpace(raw)
	if err := ValidatePublicHTTPSURL(u); err != nil {
		return ""
	}
	return u
}
