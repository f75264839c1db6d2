package user

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/security"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn      func(ctx context.Context, id string) (*model.User, error)
	updateProfileFn func(ctx context.Context, user *model.User) error
	deleteByIDFn    func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	return nil
}
func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) MarkUnlocked(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}
func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type mockRecordRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockRecordRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

type mockForgetter struct {
	forgotten []string
}

func (m *mockForgetter) Forget(sessionID string) {
	m.forgotten = append(m.forgotten, sessionID)
}

func existingUser() *mockUserRepo {
	return &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "Ana", Phone: "555", Email: "ana@gmail.com"}, nil
		},
	}
}

func strPtr(s string) *string { return &s }

// --- テスト ---

// TestService_Withdraw は退会処理が全関連データを削除することを検証する。
func TestService_Withdraw(t *testing.T) {
	var order []string

	userRepo := existingUser()
	userRepo.deleteByIDFn = func(ctx context.Context, id string) error {
		order = append(order, "user")
		return nil
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			order = append(order, "sessions")
			return nil
		},
	}
	recordRepo := &mockRecordRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			order = append(order, "records")
			return nil
		},
	}
	guards := &mockForgetter{}

	svc := NewService(userRepo, sessionRepo, recordRepo, security.NewTextSanitizer(), guards)

	err := svc.Withdraw(context.Background(), "user-1", "session-1")
	if err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	want := []string{"records", "sessions", "user"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("delete order = %v, want %v", order, want)
	}
	if len(guards.forgotten) != 1 || guards.forgotten[0] != "session-1" {
		t.Errorf("forgotten = %v, want [session-1]", guards.forgotten)
	}
}

// TestService_Withdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, nil, nil, security.NewTextSanitizer(), nil)

	err := svc.Withdraw(context.Background(), "nonexistent-user", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

// TestService_Withdraw_StopsOnRecordError はレコード削除失敗時にユーザーを削除しないことを検証する。
func TestService_Withdraw_StopsOnRecordError(t *testing.T) {
	userRepo := existingUser()
	userRepo.deleteByIDFn = func(ctx context.Context, id string) error {
		t.Error("user should not be deleted")
		return nil
	}
	recordRepo := &mockRecordRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return errors.New("db down")
		},
	}

	svc := NewService(userRepo, nil, recordRepo, security.NewTextSanitizer(), nil)
	if err := svc.Withdraw(context.Background(), "user-1", ""); err == nil {
		t.Fatal("expected error")
	}
}

// TestService_UpdateProfile はプロフィール更新でテキストがサニタイズされることを検証する。
func TestService_UpdateProfile(t *testing.T) {
	var saved *model.User
	userRepo := existingUser()
	userRepo.updateProfileFn = func(ctx context.Context, user *model.User) error {
		saved = user
		return nil
	}
	svc := NewService(userRepo, nil, nil, security.NewTextSanitizer(), nil)

	user, err := svc.UpdateProfile(context.Background(), "user-1", ProfileInput{
		Name:        strPtr("  <b>Ana María</b> "),
		AvatarImage: strPtr("data:image/png;base64,iVBORw0KGgo="),
	})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if saved != user {
		t.Fatal("expected updated user to be saved")
	}
	if user.Name != "Ana María" {
		t.Errorf("Name = %q, want sanitized name", user.Name)
	}
	if user.Phone != "555" {
		t.Errorf("Phone = %q, nil field should be unchanged", user.Phone)
	}
	if !strings.HasPrefix(user.AvatarImage, "data:image/png") {
		t.Errorf("AvatarImage = %q", user.AvatarImage)
	}
}

// TestService_UpdateProfile_Invalid は不正なプロフィール入力がINVALID_PROFILEになることを検証する。
func TestService_UpdateProfile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   ProfileInput
	}{
		{"空の名前", ProfileInput{Name: strPtr("<script></script>")}},
		{"data URL以外のアバター", ProfileInput{AvatarImage: strPtr("https://example.com/a.png")}},
		{"大きすぎるアバター", ProfileInput{AvatarImage: strPtr("data:image/png;base64," + strings.Repeat("A", MaxAvatarSize))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userRepo := existingUser()
			userRepo.updateProfileFn = func(ctx context.Context, user *model.User) error {
				t.Error("UpdateProfile should not be called")
				return nil
			}
			svc := NewService(userRepo, nil, nil, security.NewTextSanitizer(), nil)

			_, err := svc.UpdateProfile(context.Background(), "user-1", tt.in)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidProfile {
				t.Errorf("expected INVALID_PROFILE, got %v", err)
			}
		})
	}
}

// TestService_UpdateProfile_ClearAvatar は空文字列でアバター画像を削除できることを検証する。
func TestService_UpdateProfile_ClearAvatar(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "Ana", AvatarImage: "data:image/png;base64,AAAA"}, nil
		},
	}
	svc := NewService(userRepo, nil, nil, security.NewTextSanitizer(), nil)

	user, err := svc.UpdateProfile(context.Background(), "user-1", ProfileInput{AvatarImage: strPtr("")})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if user.AvatarImage != "" {
		t.Errorf("AvatarImage = %q, want empty", user.AvatarImage)
	}
}
