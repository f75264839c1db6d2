package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/gastos/internal/model"
)

// PostgresPreferencesRepo はPostgreSQLを使用した表示設定リポジトリ。
type PostgresPreferencesRepo struct {
	db *sql.DB
}

// NewPostgresPreferencesRepo はPostgresPreferencesRepoを生成する。
func NewPostgresPreferencesRepo(db *sql.DB) *PostgresPreferencesRepo {
	return &PostgresPreferencesRepo{db: db}
}

// FindByUserID はユーザーの設定を取得する。未保存の場合はnilを返す。
func (r *PostgresPreferencesRepo) FindByUserID(ctx context.Context, userID string) (*model.Preferences, error) {
	prefs := &model.Preferences{}
	var theme string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, tour_done, install_dismissed, theme, updated_at
		 FROM preferences WHERE user_id = $1`,
		userID,
	).Scan(&prefs.UserID, &prefs.TourDone, &prefs.InstallDismissed, &theme, &prefs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find preferences: %w", err)
	}
	prefs.Theme = model.Theme(theme)
	return prefs, nil
}

// Upsert は設定を冪等に保存する。
// UNIQUE(user_id)制約を利用したINSERT ON CONFLICTで実装する。
func (r *PostgresPreferencesRepo) Upsert(ctx context.Context, prefs *model.Preferences) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO preferences (user_id, tour_done, install_dismissed, theme, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		   tour_done = EXCLUDED.tour_done,
		   install_dismissed = EXCLUDED.install_dismissed,
		   theme = EXCLUDED.theme,
		   updated_at = EXCLUDED.updated_at`,
		prefs.UserID, prefs.TourDone, prefs.InstallDismissed, string(prefs.Theme), prefs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PreferencesRepository = (*PostgresPreferencesRepo)(nil)
