package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/repository"
)

// encodeRecord は値をJSONエンコードしてrecordsテーブルの行を組み立てる。
func encodeRecord(userID string, kind model.RecordKind, id string, v any) (*model.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	now := time.Now()
	return &model.Record{
		ID:        id,
		UserID:    userID,
		Kind:      kind,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func decodeRecord[T any](rec *model.Record) (T, error) {
	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s %s: %w", rec.Kind, rec.ID, err)
	}
	return v, nil
}

// listRecords はユーザーの指定種類のレコードを全てデコードして返す。
func listRecords[T any](ctx context.Context, repo repository.RecordRepository, userID string, kind model.RecordKind) ([]T, error) {
	recs, err := repo.ListByUser(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("%sの一覧取得に失敗しました: %w", kind, err)
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := decodeRecord[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// findRecord はユーザーの指定レコードをデコードして返す。見つからない場合はRECORD_NOT_FOUNDを返す。
func findRecord[T any](ctx context.Context, repo repository.RecordRepository, userID string, kind model.RecordKind, id string) (T, error) {
	var zero T
	rec, err := repo.FindByID(ctx, userID, kind, id)
	if err != nil {
		return zero, fmt.Errorf("%sの取得に失敗しました: %w", kind, err)
	}
	if rec == nil {
		return zero, model.NewRecordNotFoundError(kind, id)
	}
	return decodeRecord[T](rec)
}

func createRecord(ctx context.Context, repo repository.RecordRepository, userID string, kind model.RecordKind, id string, v any) error {
	rec, err := encodeRecord(userID, kind, id, v)
	if err != nil {
		return err
	}
	if err := repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("%sの作成に失敗しました: %w", kind, err)
	}
	return nil
}

func updateRecord(ctx context.Context, repo repository.RecordRepository, userID string, kind model.RecordKind, id string, v any) error {
	rec, err := encodeRecord(userID, kind, id, v)
	if err != nil {
		return err
	}
	if err := repo.Update(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return model.NewRecordNotFoundError(kind, id)
		}
		return fmt.Errorf("%sの更新に失敗しました: %w", kind, err)
	}
	return nil
}

func deleteRecord(ctx context.Context, repo repository.RecordRepository, userID string, kind model.RecordKind, id string) error {
	if err := repo.Delete(ctx, userID, kind, id); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return model.NewRecordNotFoundError(kind, id)
		}
		return fmt.Errorf("%sの削除に失敗しました: %w", kind, err)
	}
	return nil
}
