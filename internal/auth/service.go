package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/googlelogin/internal/model"
)

// DevUserSubject は開発用ログインで使用する固定ユーザーのexternal ID。
const DevUserSubject = "dev-login-user"

// ProfileStore はプロフィールからユーザーを作成または更新するインターフェース。
type ProfileStore interface {
	UpsertFromProfile(ctx context.Context, profile *model.ExternalProfile) (*model.User, error)
}

// SessionEstablisher はユーザーのセッションを発行するインターフェース。
type SessionEstablisher interface {
	Establish(ctx context.Context, w http.ResponseWriter, userID int64) (*model.Session, error)
}

// Service はログインのビジネスロジックを提供する。
// プロフィール取得、ユーザーの保存、セッション発行の順で処理する。
type Service struct {
	provider IdentityProvider
	users    ProfileStore
	sessions SessionEstablisher
}

// NewService はServiceを生成する。
func NewService(provider IdentityProvider, users ProfileStore, sessions SessionEstablisher) *Service {
	return &Service{
		provider: provider,
		users:    users,
		sessions: sessions,
	}
}

// LoginRedirect はハンドシェイク開始時に必要な値をまとめたもの。
type LoginRedirect struct {
	URL      string
	State    string
	Verifier string
}

// BeginLogin はstateとPKCE verifierを生成し、IdPの認可URLを返す。
func (s *Service) BeginLogin() (*LoginRedirect, error) {
	state, err := NewState()
	if err != nil {
		return nil, err
	}
	verifier := NewVerifier()

	return &LoginRedirect{
		URL:      s.provider.BeginHandshake(state, verifier),
		State:    state,
		Verifier: verifier,
	}, nil
}

// CompleteLogin はハンドシェイクを完了し、ユーザーを保存してセッションを発行する。
// ハンドシェイク失敗はErrHandshakeFailedをラップして返し、セッションは変更しない。
func (s *Service) CompleteLogin(ctx context.Context, w http.ResponseWriter, params CallbackParams) (*model.User, error) {
	profile, err := s.provider.CompleteHandshake(ctx, params)
	if err != nil {
		if errors.Is(err, ErrHandshakeFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to complete handshake: %w", err)
	}

	return s.login(ctx, w, profile)
}

// DevLogin はハンドシェイクを省略し、固定の開発用ユーザーでセッションを発行する。
func (s *Service) DevLogin(ctx context.Context, w http.ResponseWriter) (*model.User, error) {
	return s.login(ctx, w, &model.ExternalProfile{
		Subject:     DevUserSubject,
		Email:       "dev@example.com",
		DisplayName: "Dev User",
	})
}

func (s *Service) login(ctx context.Context, w http.ResponseWriter, profile *model.ExternalProfile) (*model.User, error) {
	user, err := s.users.UpsertFromProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	if _, err := s.sessions.Establish(ctx, w, user.ID); err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	slog.Info("user logged in", slog.Int64("user_id", user.ID))
	return user, nil
}
