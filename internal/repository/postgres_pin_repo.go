package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresPinCredentialRepo はPostgreSQLを使用したPINクレデンシャルリポジトリ。
type PostgresPinCredentialRepo struct {
	db *sql.DB
}

// NewPostgresPinCredentialRepo はPostgresPinCredentialRepoを生成する。
func NewPostgresPinCredentialRepo(db *sql.DB) *PostgresPinCredentialRepo {
	return &PostgresPinCredentialRepo{db: db}
}

// FindHash はユーザーのPINハッシュを返す。未作成の場合は空文字列を返す。
func (r *PostgresPinCredentialRepo) FindHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT pin_hash FROM pin_credentials WHERE user_id = $1`,
		userID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find pin credential: %w", err)
	}
	return hash, nil
}

// Create はPINハッシュを保存する。既に存在する場合はErrPinAlreadyExistsを返す。
func (r *PostgresPinCredentialRepo) Create(ctx context.Context, userID, pinHash string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pin_credentials (user_id, pin_hash, created_at) VALUES ($1, $2, $3)`,
		userID, pinHash, time.Now().UTC(),
	)
	if isUniqueViolation(err) {
		return ErrPinAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create pin credential: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PinCredentialRepository = (*PostgresPinCredentialRepo)(nil)
