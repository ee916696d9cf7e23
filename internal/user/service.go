// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/googlelogin/internal/model"
	"github.com/hitoshi/googlelogin/internal/repository"
	"github.com/hitoshi/googlelogin/internal/security"
)

// Service はユーザー管理のサービス層。
// IdPのプロフィールをローカルの項目へ変換し、ユーザーストアへ反映する。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer *security.ProfileSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer *security.ProfileSanitizer) *Service {
	if sanitizer == nil {
		sanitizer = security.NewProfileSanitizer()
	}
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
	}
}

// Normalize は外部プロフィールを保存用の項目へ変換する。
// 無害化の結果が空になった項目はNULLとして扱う。
func (s *Service) Normalize(profile *model.ExternalProfile) model.UserFields {
	return model.UserFields{
		Email:       model.StringPtr(s.sanitizer.Email(profile.Email)),
		DisplayName: model.StringPtr(s.sanitizer.DisplayName(profile.DisplayName)),
		AvatarURL:   model.StringPtr(s.sanitizer.AvatarURL(profile.AvatarURL)),
	}
}

// UpsertFromProfile は外部プロフィールでユーザーを作成または更新する。
// プロフィール項目はIdPの値を正とし、ログインのたびに上書きする。
func (s *Service) UpsertFromProfile(ctx context.Context, profile *model.ExternalProfile) (*model.User, error) {
	if profile == nil || profile.Subject == "" {
		return nil, fmt.Errorf("外部プロフィールのsubjectが空です")
	}

	u, err := s.userRepo.Upsert(ctx, profile.Subject, s.Normalize(profile))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの保存に失敗しました: %w", err)
	}

	slog.Info("ユーザーを保存しました",
		slog.Int64("user_id", u.ID),
		slog.Bool("created", u.CreatedAt.Equal(u.UpdatedAt)),
	)
	return u, nil
}

// FindByID は指定IDのユーザーを取得する。存在しない場合はnilを返す。
func (s *Service) FindByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return u, nil
}

// ListUsers は全ユーザーを新しい順に返す。
func (s *Service) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}
