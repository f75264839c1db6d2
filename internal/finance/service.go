// Package finance は支出・収入・カード・リマインダーの家計レコード管理と集計を提供する。
package finance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/repository"
	"github.com/hitoshi/gastos/internal/security"
)

// Service は家計レコードのサービス層。
// レコードは種類ごとの構造体をJSONとしてrecordsテーブルに保存する。
type Service struct {
	records   repository.RecordRepository
	sanitizer security.TextSanitizerService
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(records repository.RecordRepository, sanitizer security.TextSanitizerService) *Service {
	return &Service{
		records:   records,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// ExpenseInput は支出の作成・更新入力。
type ExpenseInput struct {
	Name     string
	Amount   decimal.Decimal
	Category string
	Type     model.ExpenseType
	Date     *time.Time
}

func (s *Service) validateExpense(in *ExpenseInput) error {
	in.Name = s.sanitizer.Clean(in.Name)
	in.Category = s.sanitizer.Clean(in.Category)
	if in.Name == "" {
		return model.NewInvalidRecordError("名前が空です")
	}
	if !in.Amount.IsPositive() {
		return model.NewInvalidRecordError("金額は0より大きい値を指定してください")
	}
	if in.Type != model.ExpenseTypeFixed && in.Type != model.ExpenseTypeVariable {
		return model.NewInvalidRecordError("種別には fixed または variable を指定してください")
	}
	return nil
}

// ListExpenses はユーザーの支出一覧を返す。typが空でなければその種別のみ返す。
func (s *Service) ListExpenses(ctx context.Context, userID string, typ model.ExpenseType) ([]model.Expense, error) {
	expenses, err := listRecords[model.Expense](ctx, s.records, userID, model.RecordKindExpense)
	if err != nil {
		return nil, err
	}
	if typ == "" {
		return expenses, nil
	}
	filtered := make([]model.Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.Type == typ {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// GetExpense は支出を1件返す。
func (s *Service) GetExpense(ctx context.Context, userID, id string) (*model.Expense, error) {
	e, err := findRecord[model.Expense](ctx, s.records, userID, model.RecordKindExpense, id)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateExpense は支払い待ちの支出を作成する。日付の省略時は現在時刻を使う。
func (s *Service) CreateExpense(ctx context.Context, userID string, in ExpenseInput) (*model.Expense, error) {
	if err := s.validateExpense(&in); err != nil {
		return nil, err
	}
	e := model.Expense{
		ID:       uuid.New().String(),
		Name:     in.Name,
		Amount:   in.Amount,
		Category: in.Category,
		Type:     in.Type,
		Status:   model.ExpenseStatusPending,
		Date:     s.dateOrNow(in.Date),
	}
	if err := createRecord(ctx, s.records, userID, model.RecordKindExpense, e.ID, e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateExpense は支出の名前・金額・カテゴリ・種別を更新する。支払い状態は変更しない。
func (s *Service) UpdateExpense(ctx context.Context, userID, id string, in ExpenseInput) (*model.Expense, error) {
	if err := s.validateExpense(&in); err != nil {
		return nil, err
	}
	e, err := findRecord[model.Expense](ctx, s.records, userID, model.RecordKindExpense, id)
	if err != nil {
		return nil, err
	}
	e.Name, e.Amount, e.Category, e.Type = in.Name, in.Amount, in.Category, in.Type
	if in.Date != nil {
		e.Date = *in.Date
	}
	if err := updateRecord(ctx, s.records, userID, model.RecordKindExpense, id, e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateExpenseStatus は支出の支払い状態を更新する。
func (s *Service) UpdateExpenseStatus(ctx context.Context, userID, id string, status model.ExpenseStatus) (*model.Expense, error) {
	if status != model.ExpenseStatusPending && status != model.ExpenseStatusPaid {
		return nil, model.NewInvalidRecordError("状態には pending または paid を指定してください")
	}
	e, err := findRecord[model.Expense](ctx, s.records, userID, model.RecordKindExpense, id)
	if err != nil {
		return nil, err
	}
	e.Status = status
	if err := updateRecord(ctx, s.records, userID, model.RecordKindExpense, id, e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteExpense は支出を削除する。
func (s *Service) DeleteExpense(ctx context.Context, userID, id string) error {
	return deleteRecord(ctx, s.records, userID, model.RecordKindExpense, id)
}

// IncomeInput は収入の作成・更新入力。
type IncomeInput struct {
	Name     string
	Amount   decimal.Decimal
	Date     *time.Time
	Received bool
}

func (s *Service) validateIncome(in *IncomeInput) error {
	in.Name = s.sanitizer.Clean(in.Name)
	if in.Name == "" {
		return model.NewInvalidRecordError("名前が空です")
	}
	if !in.Amount.IsPositive() {
		return model.NewInvalidRecordError("金額は0より大きい値を指定してください")
	}
	return nil
}

// ListIncomes はユーザーの収入一覧を返す。
func (s *Service) ListIncomes(ctx context.Context, userID string) ([]model.Income, error) {
	return listRecords[model.Income](ctx, s.records, userID, model.RecordKindIncome)
}

// GetIncome は収入を1件返す。
func (s *Service) GetIncome(ctx context.Context, userID, id string) (*model.Income, error) {
	i, err := findRecord[model.Income](ctx, s.records, userID, model.RecordKindIncome, id)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// CreateIncome は収入を作成する。
func (s *Service) CreateIncome(ctx context.Context, userID string, in IncomeInput) (*model.Income, error) {
	if err := s.validateIncome(&in); err != nil {
		return nil, err
	}
	i := model.Income{
		ID:       uuid.New().String(),
		Name:     in.Name,
		Amount:   in.Amount,
		Date:     s.dateOrNow(in.Date),
		Received: in.Received,
	}
	if err := createRecord(ctx, s.records, userID, model.RecordKindIncome, i.ID, i); err != nil {
		return nil, err
	}
	return &i, nil
}

// UpdateIncome は収入を更新する。
func (s *Service) UpdateIncome(ctx context.Context, userID, id string, in IncomeInput) (*model.Income, error) {
	if err := s.validateIncome(&in); err != nil {
		return nil, err
	}
	i, err := findRecord[model.Income](ctx, s.records, userID, model.RecordKindIncome, id)
	if err != nil {
		return nil, err
	}
	i.Name, i.Amount, i.Received = in.Name, in.Amount, in.Received
	if in.Date != nil {
		i.Date = *in.Date
	}
	if err := updateRecord(ctx, s.records, userID, model.RecordKindIncome, id, i); err != nil {
		return nil, err
	}
	return &i, nil
}

// DeleteIncome は収入を削除する。
func (s *Service) DeleteIncome(ctx context.Context, userID, id string) error {
	return deleteRecord(ctx, s.records, userID, model.RecordKindIncome, id)
}

func (s *Service) dateOrNow(d *time.Time) time.Time {
	if d != nil && !d.IsZero() {
		return *d
	}
	return s.now().UTC()
}

// cleanShort は短い自由記述（カード締め日など）を整形する。
func (s *Service) cleanShort(v string) string {
	return strings.TrimSpace(s.sanitizer.Clean(v))
}
