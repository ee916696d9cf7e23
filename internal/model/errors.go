package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法、HTTPステータスを含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
	Status   int    // HTTPステータスコード。0の場合は500として扱う
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// HTTPStatus はエラーに対応するHTTPステータスコードを返す。
func (e *APIError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// IsClientError はクライアント起因のエラー（4xx）かどうかを返す。
// クライアント起因のエラーのみ実際のメッセージを表示してよい。
func (e *APIError) IsClientError() bool {
	s := e.HTTPStatus()
	return s >= 400 && s < 500
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
		Status:   http.StatusUnauthorized,
	}
}

// NewNotFoundError はページが見つからない場合のエラーを生成する。
func NewNotFoundError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("ページが見つかりません: %s", path),
		Category: "validation",
		Action:   "URLを確認してください。",
		Status:   http.StatusNotFound,
	}
}

// NewMethodNotAllowedError は許可されていないHTTPメソッドの場合のエラーを生成する。
func NewMethodNotAllowedError(method string) *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  fmt.Sprintf("このメソッドは許可されていません: %s", method),
		Category: "validation",
		Action:   "GETでアクセスしてください。",
		Status:   http.StatusMethodNotAllowed,
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
		Status:   http.StatusTooManyRequests,
	}
}

// NewInternalError は内部エラーの汎用メッセージを生成する。
// 詳細はログのみに記録し、クライアントには返さない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Status:   http.StatusInternalServerError,
	}
}
