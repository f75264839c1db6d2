package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/gastos/internal/model"
)

// ReminderInput はリマインダーの作成・更新入力。
type ReminderInput struct {
	Title string
	Date  time.Time
	Type  model.ReminderType
}

func (s *Service) validateReminder(in *ReminderInput) error {
	in.Title = s.sanitizer.Clean(in.Title)
	if in.Title == "" {
		return model.NewInvalidRecordError("タイトルが空です")
	}
	if in.Date.IsZero() {
		return model.NewInvalidRecordError("日付を指定してください")
	}
	switch in.Type {
	case model.ReminderTypeExpense, model.ReminderTypeCard, model.ReminderTypeIncome:
		return nil
	default:
		return model.NewInvalidRecordError("種別には expense、card、income のいずれかを指定してください")
	}
}

// ListReminders はユーザーのリマインダー一覧を返す。
func (s *Service) ListReminders(ctx context.Context, userID string) ([]model.Reminder, error) {
	return listRecords[model.Reminder](ctx, s.records, userID, model.RecordKindReminder)
}

// GetReminder はリマインダーを1件返す。
func (s *Service) GetReminder(ctx context.Context, userID, id string) (*model.Reminder, error) {
	r, err := findRecord[model.Reminder](ctx, s.records, userID, model.RecordKindReminder, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReminder はリマインダーを作成する。
func (s *Service) CreateReminder(ctx context.Context, userID string, in ReminderInput) (*model.Reminder, error) {
	if err := s.validateReminder(&in); err != nil {
		return nil, err
	}
	r := model.Reminder{
		ID:    uuid.New().String(),
		Title: in.Title,
		Date:  in.Date,
		Type:  in.Type,
	}
	if err := createRecord(ctx, s.records, userID, model.RecordKindReminder, r.ID, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateReminder はリマインダーを更新する。日付が変わった場合は通知済みフラグを戻す。
func (s *Service) UpdateReminder(ctx context.Context, userID, id string, in ReminderInput) (*model.Reminder, error) {
	if err := s.validateReminder(&in); err != nil {
		return nil, err
	}
	r, err := findRecord[model.Reminder](ctx, s.records, userID, model.RecordKindReminder, id)
	if err != nil {
		return nil, err
	}
	if !r.Date.Equal(in.Date) {
		r.Notified = false
	}
	r.Title, r.Date, r.Type = in.Title, in.Date, in.Type
	if err := updateRecord(ctx, s.records, userID, model.RecordKindReminder, id, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteReminder はリマインダーを削除する。
func (s *Service) DeleteReminder(ctx context.Context, userID, id string) error {
	return deleteRecord(ctx, s.records, userID, model.RecordKindReminder, id)
}

// DueReminder は通知対象のリマインダーと所有ユーザーの組。
type DueReminder struct {
	UserID   string
	Reminder model.Reminder
}

// DueReminders は全ユーザーのうち、now以降window以内に期日を迎える未通知のリマインダーを返す。
func (s *Service) DueReminders(ctx context.Context, now time.Time, window time.Duration) ([]DueReminder, error) {
	recs, err := s.records.ListByKind(ctx, model.RecordKindReminder)
	if err != nil {
		return nil, fmt.Errorf("リマインダーの取得に失敗しました: %w", err)
	}

	deadline := now.Add(window)
	var due []DueReminder
	for _, rec := range recs {
		r, err := decodeRecord[model.Reminder](rec)
		if err != nil {
			return nil, err
		}
		if r.Notified || r.Date.Before(now) || r.Date.After(deadline) {
			continue
		}
		due = append(due, DueReminder{UserID: rec.UserID, Reminder: r})
	}
	return due, nil
}

// MarkReminderNotified はリマインダーを通知済みにする。
func (s *Service) MarkReminderNotified(ctx context.Context, userID, id string) error {
	r, err := findRecord[model.Reminder](ctx, s.records, userID, model.RecordKindReminder, id)
	if err != nil {
		return err
	}
	r.Notified = true
	return updateRecord(ctx, s.records, userID, model.RecordKindReminder, id, r)
}
