// Package user はユーザープロフィールと退会のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/repository"
	"github.com/hitoshi/gastos/internal/security"
)

// MaxAvatarSize はアバター画像（data URL）の最大文字数。
const MaxAvatarSize = 2 * 1024 * 1024

// RecordDeleter は家計レコードの一括削除インターフェース。
type RecordDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// GuardForgetter はセッションに紐づくPIN入力状態を破棄する。
type GuardForgetter interface {
	Forget(sessionID string)
}

// Service はユーザー管理のサービス層。
// プロフィール更新と退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo      repository.UserRepository
	sessionRepo   repository.SessionRepository
	recordDeleter RecordDeleter
	sanitizer     security.TextSanitizerService
	guards        GuardForgetter
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	recordDeleter RecordDeleter,
	sanitizer security.TextSanitizerService,
	guards GuardForgetter,
) *Service {
	return &Service{
		userRepo:      userRepo,
		sessionRepo:   sessionRepo,
		recordDeleter: recordDeleter,
		sanitizer:     sanitizer,
		guards:        guards,
	}
}

// ProfileInput はプロフィール更新の入力。nilのフィールドは変更しない。
type ProfileInput struct {
	Name        *string
	Phone       *string
	AvatarImage *string
}

// UpdateProfile は名前・電話番号・アバター画像を更新する。
// アバター画像はdata:image/で始まるdata URLか空文字列（削除）でなければならない。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if in.Name != nil {
		name := s.sanitizer.Clean(*in.Name)
		if name == "" {
			return nil, model.NewInvalidProfileError("名前が空です")
		}
		user.Name = name
	}
	if in.Phone != nil {
		user.Phone = s.sanitizer.Clean(*in.Phone)
	}
	if in.AvatarImage != nil {
		avatar := *in.AvatarImage
		if avatar != "" && !strings.HasPrefix(avatar, "data:image/") {
			return nil, model.NewInvalidProfileError("アバター画像はdata URLで指定してください")
		}
		if len(avatar) > MaxAvatarSize {
			return nil, model.NewInvalidProfileError("アバター画像が大きすぎます")
		}
		user.AvatarImage = avatar
	}
	user.UpdatedAt = time.Now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: records → sessions → user（+ CASCADE: pin_credentials, preferences）
// 現在のセッションのPIN入力状態も破棄する。
func (s *Service) Withdraw(ctx context.Context, userID, sessionID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. 家計レコードを削除
	if s.recordDeleter != nil {
		if err := s.recordDeleter.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("家計レコードの削除に失敗しました: %w", err)
		}
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}
	if s.guards != nil && sessionID != "" {
		s.guards.Forget(sessionID)
	}

	// 3. ユーザーを削除（pin_credentials, preferencesはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
