// Package repository はデータ永続化のインターフェースを定義する。
// 呼び出し側は生のキー文字列ではなく、エンティティごとの型付き操作を通して保存領域にアクセスする。
package repository

import (
	"context"

	"github.com/hitoshi/gastos/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile は名前・電話番号・アバター画像を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、pin_credentials、preferences、recordsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// MarkUnlocked はPINによるロック解除済みとしてセッションを更新する。
	MarkUnlocked(ctx context.Context, id string) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// PinCredentialRepository はPINクレデンシャルの永続化インターフェース。
// PINは作成後に変更されず、ユーザー削除時にのみ消える。
type PinCredentialRepository interface {
	// FindHash はユーザーのPINハッシュを返す。未作成の場合は空文字列を返す。
	FindHash(ctx context.Context, userID string) (string, error)

	// Create はPINハッシュを保存する。既に存在する場合はErrPinAlreadyExistsを返す。
	Create(ctx context.Context, userID, pinHash string) error
}

// PreferencesRepository はユーザー表示設定の永続化インターフェース。
type PreferencesRepository interface {
	// FindByUserID はユーザーの設定を取得する。未保存の場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Preferences, error)

	// Upsert は設定を冪等に保存する。
	Upsert(ctx context.Context, prefs *model.Preferences) error
}

// RecordRepository は家計レコードの永続化インターフェース。
// 種類ごとのデータはJSONBとして保存する。
type RecordRepository interface {
	// ListByUser はユーザーの指定種類のレコードを作成日時の降順で返す。
	ListByUser(ctx context.Context, userID string, kind model.RecordKind) ([]*model.Record, error)

	// ListByKind は全ユーザーの指定種類のレコードを返す。バッチ処理用。
	ListByKind(ctx context.Context, kind model.RecordKind) ([]*model.Record, error)

	// FindByID はユーザーの指定レコードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID string, kind model.RecordKind, id string) (*model.Record, error)

	// Create はレコードを作成する。
	Create(ctx context.Context, record *model.Record) error

	// Update はレコードのデータを上書きする。対象が無い場合はErrRecordNotFoundを返す。
	Update(ctx context.Context, record *model.Record) error

	// CreateWithUpdate はレコード作成と別レコードの更新を同一トランザクションで行う。
	CreateWithUpdate(ctx context.Context, create *model.Record, update *model.Record) error

	// Delete はレコードを削除する。対象が無い場合はErrRecordNotFoundを返す。
	Delete(ctx context.Context, userID string, kind model.RecordKind, id string) error

	// DeleteByUserID はユーザーの全レコードを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
