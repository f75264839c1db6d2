package user

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/repository"
)

// PreferencesService はガイドツアー完了・インストール案内非表示・テーマの設定を管理する。
type PreferencesService struct {
	repo repository.PreferencesRepository
}

// NewPreferencesService はPreferencesServiceを生成する。
func NewPreferencesService(repo repository.PreferencesRepository) *PreferencesService {
	return &PreferencesService{repo: repo}
}

// PreferencesInput は設定の更新入力。nilのフィールドは変更しない。
type PreferencesInput struct {
	TourDone         *bool
	InstallDismissed *bool
	Theme            *string
}

// Get はユーザーの設定を返す。未保存の場合は既定値を返す。
func (s *PreferencesService) Get(ctx context.Context, userID string) (*model.Preferences, error) {
	prefs, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}
	if prefs == nil {
		return model.DefaultPreferences(userID), nil
	}
	return prefs, nil
}

// Update は指定されたフィールドのみ設定を更新して保存する。
func (s *PreferencesService) Update(ctx context.Context, userID string, in PreferencesInput) (*model.Preferences, error) {
	if in.Theme != nil && !model.Theme(*in.Theme).Valid() {
		return nil, model.NewInvalidPreferencesError(*in.Theme)
	}

	prefs, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.TourDone != nil {
		prefs.TourDone = *in.TourDone
	}
	if in.InstallDismissed != nil {
		prefs.InstallDismissed = *in.InstallDismissed
	}
	if in.Theme != nil {
		prefs.Theme = model.Theme(*in.Theme)
	}
	prefs.UpdatedAt = time.Now()

	if err := s.repo.Upsert(ctx, prefs); err != nil {
		return nil, fmt.Errorf("設定の保存に失敗しました: %w", err)
	}
	return prefs, nil
}
