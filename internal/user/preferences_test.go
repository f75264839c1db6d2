package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/gastos/internal/model"
)

type mockPreferencesRepo struct {
	stored  *model.Preferences
	upserts int
}

func (m *mockPreferencesRepo) FindByUserID(ctx context.Context, userID string) (*model.Preferences, error) {
	if m.stored == nil {
		return nil, nil
	}
	p := *m.stored
	return &p, nil
}

func (m *mockPreferencesRepo) Upsert(ctx context.Context, prefs *model.Preferences) error {
	p := *prefs
	m.stored = &p
	m.upserts++
	return nil
}

func boolPtr(b bool) *bool { return &b }

// TestPreferencesService_GetDefaults は未保存ユーザーに既定値を返すことを検証する。
func TestPreferencesService_GetDefaults(t *testing.T) {
	svc := NewPreferencesService(&mockPreferencesRepo{})

	prefs, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if prefs.Theme != model.ThemeLight || prefs.TourDone || prefs.InstallDismissed {
		t.Errorf("prefs = %+v, want defaults", prefs)
	}
}

// TestPreferencesService_UpdatePartial は指定フィールドのみ更新されることを検証する。
func TestPreferencesService_UpdatePartial(t *testing.T) {
	repo := &mockPreferencesRepo{}
	svc := NewPreferencesService(repo)

	if _, err := svc.Update(context.Background(), "user-1", PreferencesInput{Theme: strPtr("dark")}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	prefs, err := svc.Update(context.Background(), "user-1", PreferencesInput{TourDone: boolPtr(true)})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if prefs.Theme != model.ThemeDark || !prefs.TourDone || prefs.InstallDismissed {
		t.Errorf("prefs = %+v", prefs)
	}
	if repo.upserts != 2 {
		t.Errorf("upserts = %d, want 2", repo.upserts)
	}
}

// TestPreferencesService_InvalidTheme は未定義のテーマがINVALID_PREFERENCESになることを検証する。
func TestPreferencesService_InvalidTheme(t *testing.T) {
	repo := &mockPreferencesRepo{}
	svc := NewPreferencesService(repo)

	_, err := svc.Update(context.Background(), "user-1", PreferencesInput{Theme: strPtr("sepia")})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidPreferences {
		t.Fatalf("expected INVALID_PREFERENCES, got %v", err)
	}
	if repo.upserts != 0 {
		t.Error("invalid preferences should not be saved")
	}
}
