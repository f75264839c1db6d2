package pin

import (
	"context"
	"errors"

	"github.com/hitoshi/gastos/internal/repository"
)

// userCredentials はPinCredentialRepositoryを1ユーザー分のCredentialStoreとして扱うアダプター。
type userCredentials struct {
	repo   repository.PinCredentialRepository
	userID string
}

// UserCredentials は指定ユーザーのPINクレデンシャルを読み書きするCredentialStoreを返す。
func UserCredentials(repo repository.PinCredentialRepository, userID string) CredentialStore {
	return &userCredentials{repo: repo, userID: userID}
}

func (s *userCredentials) Load(ctx context.Context) (string, error) {
	return s.repo.FindHash(ctx, s.userID)
}

func (s *userCredentials) Save(ctx context.Context, hash string) error {
	err := s.repo.Create(ctx, s.userID, hash)
	if errors.Is(err, repository.ErrPinAlreadyExists) {
		return ErrCredentialExists
	}
	return err
}
