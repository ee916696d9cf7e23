// Package session はCookieとセッションストアを対応付けるセッション管理を提供する。
//
// Cookieにはセッションのみを格納し、ユーザー情報はリクエストごとにストアから引き直す。
package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/googlelogin/internal/model"
	"github.com/hitoshi/googlelogin/internal/repository"
)

// CookieName はセッションCookieの名前。
const CookieName = "session_id"

// MinSecretLength は署名鍵に要求する最小バイト数。
const MinSecretLength = 32

// Config はセッション管理の設定。
type Config struct {
	Secret []byte
	MaxAge time.Duration
	Secure bool
	Domain string
}

// Manager はセッションの発行、解決、破棄を行う。
// 状態はストアのみが持つため、複数インスタンスで共有してよい。
type Manager struct {
	repo repository.SessionRepository
	cfg  Config
	now  func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(repo repository.SessionRepository, cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("session max age must be positive")
	}
	return &Manager{repo: repo, cfg: cfg, now: time.Now}, nil
}

// Establish はユーザーのセッションを作成し、署名付きCookieを設定する。
// Cookieはストアへの書き込みが完了した後にのみ設定する。
// 書き込みに失敗した場合はレスポンスに何も書かずにエラーを返す。
func (m *Manager) Establish(ctx context.Context, w http.ResponseWriter, userID int64) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	s := &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(m.cfg.MaxAge),
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	http.SetCookie(w, m.cookie(m.sign(id), int(m.cfg.MaxAge/time.Second)))
	return s, nil
}

// Resolve はリクエストのCookieから有効なセッションを取得する。
// Cookieがない、署名が不正、期限切れ、未知のIDのいずれの場合もnil, nilを返す。
func (m *Manager) Resolve(ctx context.Context, r *http.Request) (*model.Session, error) {
	id, ok := m.sessionID(r)
	if !ok {
		return nil, nil
	}

	s, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if s == nil || s.Expired(m.now()) {
		return nil, nil
	}
	return s, nil
}

// Terminate はセッションを破棄し、Cookieを削除する。
// ストアからの削除に失敗した場合はCookieを残したままエラーを返す。
func (m *Manager) Terminate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if id, ok := m.sessionID(r); ok {
		if err := m.repo.DeleteByID(ctx, id); err != nil {
			return fmt.Errorf("failed to terminate session: %w", err)
		}
		slog.Debug("session terminated")
	}

	http.SetCookie(w, m.cookie("", -1))
	return nil
}

// Revoke はリクエストのCookieが指すセッションをストアから削除する。
// Cookieには触れない。再ログインで新しいセッションを発行した後、古い行を残さないために使う。
func (m *Manager) Revoke(ctx context.Context, r *http.Request) error {
	id, ok := m.sessionID(r)
	if !ok {
		return nil
	}
	if err := m.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// sessionID は署名を検証したうえでCookieからセッションIDを取り出す。
func (m *Manager) sessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return m.verify(c.Value)
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Domain:   m.cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// sign は "<id>.<base64url(HMAC-SHA256(secret, id))>" 形式の値を返す。
func (m *Manager) sign(id string) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(m.mac(id))
}

func (m *Manager) verify(value string) (string, bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 || i == len(value)-1 {
		return "", false
	}
	id, encoded := value[:i], value[i+1:]

	sig, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(sig, m.mac(id)) {
		return "", false
	}
	return id, true
}

func (m *Manager) mac(id string) []byte {
	h := hmac.New(sha256.New, m.cfg.Secret)
	h.Write([]byte(id))
	return h.Sum(nil)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
