// Package auth はIdPとのハンドシェイクとログイン処理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/hitoshi/googlelogin/internal/model"
)

// ErrHandshakeFailed はIdPとのハンドシェイクが拒否または失敗したことを表す。
// システム障害とは区別され、呼び出し側はログイン画面へのリダイレクトで扱う。
var ErrHandshakeFailed = errors.New("identity provider handshake failed")

// CallbackParams はコールバックで受け取ったパラメータと、開始時に保存した値。
type CallbackParams struct {
	Code          string
	State         string
	Error         string
	ExpectedState string // 開始時にCookieへ保存したstate
	Verifier      string // 開始時にCookieへ保存したPKCE verifier
}

// IdentityProvider は外部IdPとのハンドシェイクを抽象化する。
type IdentityProvider interface {
	// BeginHandshake はIdPの認可URLを返す。
	// スコープは openid, email, profile で、PKCEのS256チャレンジを付与する。
	BeginHandshake(state, verifier string) string
	// CompleteHandshake は認可コードを交換し、検証済みのプロフィールを返す。
	// IdP側の拒否や不正な応答はErrHandshakeFailedをラップして返す。
	CompleteHandshake(ctx context.Context, params CallbackParams) (*model.ExternalProfile, error)
}

// NewState はCSRF対策用のランダムなstateを生成する。
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewVerifier はPKCEのcode verifierを生成する。
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

func handshakeError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrHandshakeFailed, fmt.Sprintf(format, args...))
}
