package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/gastos/internal/model"
)

// PostgresRecordRepo はPostgreSQLを使用した家計レコードリポジトリ。
type PostgresRecordRepo struct {
	db *sql.DB
}

// NewPostgresRecordRepo はPostgresRecordRepoを生成する。
func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

const recordColumns = `id, user_id, kind, data, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.Record, error) {
	rec := &model.Record{}
	var kind string
	if err := row.Scan(&rec.ID, &rec.UserID, &kind, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Kind = model.RecordKind(kind)
	return rec, nil
}

func (r *PostgresRecordRepo) queryRecords(ctx context.Context, query string, args ...any) ([]*model.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// ListByUser はユーザーの指定種類のレコードを作成日時の降順で返す。
func (r *PostgresRecordRepo) ListByUser(ctx context.Context, userID string, kind model.RecordKind) ([]*model.Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE user_id = $1 AND kind = $2
		 ORDER BY created_at DESC, id`,
		userID, string(kind),
	)
}

// ListByKind は全ユーザーの指定種類のレコードを返す。バッチ処理用。
func (r *PostgresRecordRepo) ListByKind(ctx context.Context, kind model.RecordKind) ([]*model.Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE kind = $1 ORDER BY user_id, created_at`,
		string(kind),
	)
}

// FindByID はユーザーの指定レコードを取得する。見つからない場合はnilを返す。
func (r *PostgresRecordRepo) FindByID(ctx context.Context, userID string, kind model.RecordKind, id string) (*model.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1 AND user_id = $2 AND kind = $3`,
		id, userID, string(kind),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}
	return rec, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, ex execer, rec *model.Record) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UserID, string(rec.Kind), rec.Data, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func updateRecord(ctx context.Context, ex execer, rec *model.Record) error {
	result, err := ex.ExecContext(ctx,
		`UPDATE records SET data = $4, updated_at = $5
		 WHERE id = $1 AND user_id = $2 AND kind = $3`,
		rec.ID, rec.UserID, string(rec.Kind), rec.Data, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Create はレコードを作成する。
func (r *PostgresRecordRepo) Create(ctx context.Context, record *model.Record) error {
	return insertRecord(ctx, r.db, record)
}

// Update はレコードのデータを上書きする。対象が無い場合はErrRecordNotFoundを返す。
func (r *PostgresRecordRepo) Update(ctx context.Context, record *model.Record) error {
	return updateRecord(ctx, r.db, record)
}

// CreateWithUpdate はレコード作成と別レコードの更新を同一トランザクションで行う。
func (r *PostgresRecordRepo) CreateWithUpdate(ctx context.Context, create *model.Record, update *model.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRecord(ctx, tx, create); err != nil {
		return err
	}
	if err := updateRecord(ctx, tx, update); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete はレコードを削除する。対象が無い場合はErrRecordNotFoundを返す。
func (r *PostgresRecordRepo) Delete(ctx context.Context, userID string, kind model.RecordKind, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE id = $1 AND user_id = $2 AND kind = $3`,
		id, userID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// DeleteByUserID はユーザーの全レコードを削除する。
func (r *PostgresRecordRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user records: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RecordRepository = (*PostgresRecordRepo)(nil)
