package finance

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/repository"
	"github.com/hitoshi/gastos/internal/security"
)

// --- モック ---

// memRecordRepo は挿入順を保持するインメモリのRecordRepository。
// ListByUserは本番実装と同じく新しい順で返す。
type memRecordRepo struct {
	mu      sync.Mutex
	records []*model.Record

	createWithUpdateErr error
}

func (m *memRecordRepo) index(userID string, kind model.RecordKind, id string) int {
	return slices.IndexFunc(m.records, func(r *model.Record) bool {
		return r.ID == id && r.UserID == userID && r.Kind == kind
	})
}

func (m *memRecordRepo) ListByUser(ctx context.Context, userID string, kind model.RecordKind) ([]*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Record
	for i := len(m.records) - 1; i >= 0; i-- {
		if r := m.records[i]; r.UserID == userID && r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecordRepo) ListByKind(ctx context.Context, kind model.RecordKind) ([]*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Record
	for _, r := range m.records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecordRepo) FindByID(ctx context.Context, userID string, kind model.RecordKind, id string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(userID, kind, id); i >= 0 {
		return m.records[i], nil
	}
	return nil, nil
}

func (m *memRecordRepo) Create(ctx context.Context, record *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memRecordRepo) Update(ctx context.Context, record *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(record.UserID, record.Kind, record.ID)
	if i < 0 {
		return repository.ErrRecordNotFound
	}
	m.records[i].Data = record.Data
	return nil
}

func (m *memRecordRepo) CreateWithUpdate(ctx context.Context, create *model.Record, update *model.Record) error {
	if m.createWithUpdateErr != nil {
		return m.createWithUpdateErr
	}
	if err := m.Update(ctx, update); err != nil {
		return err
	}
	return m.Create(ctx, create)
}

func (m *memRecordRepo) Delete(ctx context.Context, userID string, kind model.RecordKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(userID, kind, id)
	if i < 0 {
		return repository.ErrRecordNotFound
	}
	m.records = slices.Delete(m.records, i, i+1)
	return nil
}

func (m *memRecordRepo) DeleteByUserID(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = slices.DeleteFunc(m.records, func(r *model.Record) bool { return r.UserID == userID })
	return nil
}

var _ repository.RecordRepository = (*memRecordRepo)(nil)

func newTestService() (*Service, *memRecordRepo) {
	repo := &memRecordRepo{}
	return NewService(repo, security.NewTextSanitizer()), repo
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- 支出 ---

// TestCreateExpense_DefaultsToPending は支出が支払い待ちで作成され、テキストがサニタイズされることを検証する。
func TestCreateExpense_DefaultsToPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	e, err := svc.CreateExpense(ctx, "user-1", ExpenseInput{
		Name:     "<b>Renta</b>",
		Amount:   dec("8000"),
		Category: "Vivienda",
		Type:     model.ExpenseTypeFixed,
	})
	if err != nil {
		t.Fatalf("CreateExpense returned error: %v", err)
	}
	if e.ID == "" || e.Status != model.ExpenseStatusPending || e.Date.IsZero() {
		t.Errorf("expense = %+v", e)
	}
	if e.Name != "Renta" {
		t.Errorf("Name = %q, want sanitized", e.Name)
	}

	got, err := svc.GetExpense(ctx, "user-1", e.ID)
	if err != nil {
		t.Fatalf("GetExpense returned error: %v", err)
	}
	if !got.Amount.Equal(dec("8000")) || got.Category != "Vivienda" {
		t.Errorf("stored expense = %+v", got)
	}
}

// TestCreateExpense_Validation は不正な支出入力がINVALID_RECORDになることを検証する。
func TestCreateExpense_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   ExpenseInput
	}{
		{"空の名前", ExpenseInput{Name: " ", Amount: dec("1"), Type: model.ExpenseTypeFixed}},
		{"0円", ExpenseInput{Name: "Luz", Amount: decimal.Zero, Type: model.ExpenseTypeFixed}},
		{"負の金額", ExpenseInput{Name: "Luz", Amount: dec("-5"), Type: model.ExpenseTypeFixed}},
		{"未定義の種別", ExpenseInput{Name: "Luz", Amount: dec("5"), Type: "monthly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService()
			_, err := svc.CreateExpense(context.Background(), "user-1", tt.in)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidRecord)
			if len(repo.records) != 0 {
				t.Error("invalid expense should not be stored")
			}
		})
	}
}

// TestListExpenses_FilterByType は種別で支出を絞り込めることを検証する。
func TestListExpenses_FilterByType(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.CreateExpense(ctx, "user-1", ExpenseInput{Name: "Renta", Amount: dec("8000"), Type: model.ExpenseTypeFixed})
	svc.CreateExpense(ctx, "user-1", ExpenseInput{Name: "Gasolina", Amount: dec("600"), Type: model.ExpenseTypeVariable})
	svc.CreateExpense(ctx, "user-2", ExpenseInput{Name: "Otro", Amount: dec("1"), Type: model.ExpenseTypeFixed})

	all, err := svc.ListExpenses(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("ListExpenses returned error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}

	fixed, _ := svc.ListExpenses(ctx, "user-1", model.ExpenseTypeFixed)
	if len(fixed) != 1 || fixed[0].Name != "Renta" {
		t.Errorf("fixed = %+v", fixed)
	}
}

// TestUpdateExpense_KeepsStatus は支出の更新で支払い状態が維持されることを検証する。
func TestUpdateExpense_KeepsStatus(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	e, _ := svc.CreateExpense(ctx, "user-1", ExpenseInput{Name: "Luz", Amount: dec("300"), Type: model.ExpenseTypeFixed})
	if _, err := svc.UpdateExpenseStatus(ctx, "user-1", e.ID, model.ExpenseStatusPaid); err != nil {
		t.Fatalf("UpdateExpenseStatus returned error: %v", err)
	}

	updated, err := svc.UpdateExpense(ctx, "user-1", e.ID, ExpenseInput{Name: "Luz CFE", Amount: dec("350.50"), Category: "Servicios", Type: model.ExpenseTypeFixed})
	if err != nil {
		t.Fatalf("UpdateExpense returned error: %v", err)
	}
	if updated.Status != model.ExpenseStatusPaid {
		t.Errorf("Status = %q, want paid", updated.Status)
	}
	if updated.Name != "Luz CFE" || !updated.Amount.Equal(dec("350.5")) || !updated.Date.Equal(e.Date) {
		t.Errorf("updated = %+v", updated)
	}
}

// TestUpdateExpenseStatus_Invalid は未定義の状態と存在しない支出がエラーになることを検証する。
func TestUpdateExpenseStatus_Invalid(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.UpdateExpenseStatus(ctx, "user-1", "missing", model.ExpenseStatusPaid)
	assertAPIErrorCode(t, err, model.ErrCodeRecordNotFound)

	e, _ := svc.CreateExpense(ctx, "user-1", ExpenseInput{Name: "Luz", Amount: dec("300"), Type: model.ExpenseTypeFixed})
	_, err = svc.UpdateExpenseStatus(ctx, "user-1", e.ID, "refunded")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRecord)
}

// TestExpense_OtherUsersRecordsAreInvisible は他ユーザーのレコードを取得・削除できないことを検証する。
func TestExpense_OtherUsersRecordsAreInvisible(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	e, _ := svc.CreateExpense(ctx, "user-1", ExpenseInput{Name: "Luz", Amount: dec("300"), Type: model.ExpenseTypeFixed})

	_, err := svc.GetExpense(ctx, "user-2", e.ID)
	assertAPIErrorCode(t, err, model.ErrCodeRecordNotFound)

	err = svc.DeleteExpense(ctx, "user-2", e.ID)
	assertAPIErrorCode(t, err, model.ErrCodeRecordNotFound)

	if err := svc.DeleteExpense(ctx, "user-1", e.ID); err != nil {
		t.Fatalf("DeleteExpense returned error: %v", err)
	}
}

// --- 収入 ---

func TestIncomeCRUD(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	i, err := svc.CreateIncome(ctx, "user-1", IncomeInput{Name: "Salario", Amount: dec("25000"), Date: &date, Received: true})
	if err != nil {
		t.Fatalf("CreateIncome returned error: %v", err)
	}
	if !i.Date.Equal(date) || !i.Received {
		t.Errorf("income = %+v", i)
	}

	updated, err := svc.UpdateIncome(ctx, "user-1", i.ID, IncomeInput{Name: "Salario", Amount: dec("26000")})
	if err != nil {
		t.Fatalf("UpdateIncome returned error: %v", err)
	}
	if !updated.Amount.Equal(dec("26000")) || updated.Received || !updated.Date.Equal(date) {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := svc.CreateIncome(ctx, "user-1", IncomeInput{Name: "", Amount: dec("1")}); err == nil {
		t.Error("expected error for empty name")
	}

	if err := svc.DeleteIncome(ctx, "user-1", i.ID); err != nil {
		t.Fatalf("DeleteIncome returned error: %v", err)
	}
	list, _ := svc.ListIncomes(ctx, "user-1")
	if len(list) != 0 {
		t.Errorf("incomes = %+v, want empty", list)
	}
}

// --- カード ---

// TestCreateCard_ComputesAvailable は利用可能額が限度額-負債で計算されることを検証する。
func TestCreateCard_ComputesAvailable(t *testing.T) {
	svc, _ := newTestService()

	c, err := svc.CreateCard(context.Background(), "user-1", CardInput{
		Name: "Visa Principal", Type: model.CardTypeCredit, Limit: dec("50000"), Debt: dec("15000"), CutDate: "15", PayDate: "10", Logo: "💳",
	})
	if err != nil {
		t.Fatalf("CreateCard returned error: %v", err)
	}
	if !c.Available.Equal(dec("35000")) {
		t.Errorf("Available = %s, want 35000", c.Available)
	}

	_, err = svc.CreateCard(context.Background(), "user-1", CardInput{Name: "X", Type: "prepaid", Limit: dec("1")})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRecord)
}

// TestAddCardTransaction_UpdatesDebtAndAvailable はカード利用で負債が増え利用可能額が減ることを検証する。
func TestAddCardTransaction_UpdatesDebtAndAvailable(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c, _ := svc.CreateCard(ctx, "user-1", CardInput{Name: "Visa", Type: model.CardTypeCredit, Limit: dec("50000"), Debt: dec("15000")})

	tx, card, err := svc.AddCardTransaction(ctx, "user-1", c.ID, CardTransactionInput{Description: "Amazon", Amount: dec("1200.75")})
	if err != nil {
		t.Fatalf("AddCardTransaction returned error: %v", err)
	}
	if tx.CardID != c.ID || tx.Description != "Amazon" {
		t.Errorf("tx = %+v", tx)
	}
	if !card.Debt.Equal(dec("16200.75")) || !card.Available.Equal(dec("33799.25")) {
		t.Errorf("card debt=%s available=%s", card.Debt, card.Available)
	}

	stored, _ := svc.GetCard(ctx, "user-1", c.ID)
	if !stored.Debt.Equal(card.Debt) || !stored.Available.Equal(card.Available) {
		t.Errorf("stored card = %+v", stored)
	}
	txs, _ := svc.ListCardTransactions(ctx, "user-1", c.ID)
	if len(txs) != 1 {
		t.Errorf("len(txs) = %d, want 1", len(txs))
	}
}

// TestAddCardTransaction_Errors はカード利用登録の失敗時に何も保存されないことを検証する。
func TestAddCardTransaction_Errors(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	c, _ := svc.CreateCard(ctx, "user-1", CardInput{Name: "Visa", Type: model.CardTypeCredit, Limit: dec("1000")})

	_, _, err := svc.AddCardTransaction(ctx, "user-1", "missing", CardTransactionInput{Description: "x", Amount: dec("1")})
	assertAPIErrorCode(t, err, model.ErrCodeRecordNotFound)

	_, _, err = svc.AddCardTransaction(ctx, "user-1", c.ID, CardTransactionInput{Description: "x", Amount: dec("0")})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRecord)

	repo.createWithUpdateErr = errors.New("tx aborted")
	if _, _, err := svc.AddCardTransaction(ctx, "user-1", c.ID, CardTransactionInput{Description: "x", Amount: dec("1")}); err == nil {
		t.Fatal("expected error when transaction fails")
	}
	stored, _ := svc.GetCard(ctx, "user-1", c.ID)
	if !stored.Debt.IsZero() {
		t.Errorf("debt = %s, want unchanged", stored.Debt)
	}
}

// TestDeleteCard_RemovesTransactions はカード削除で利用履歴も削除されることを検証する。
func TestDeleteCard_RemovesTransactions(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	c, _ := svc.CreateCard(ctx, "user-1", CardInput{Name: "Visa", Type: model.CardTypeCredit, Limit: dec("1000")})
	other, _ := svc.CreateCard(ctx, "user-1", CardInput{Name: "Débito", Type: model.CardTypeDebit, Limit: dec("500")})
	svc.AddCardTransaction(ctx, "user-1", c.ID, CardTransactionInput{Description: "a", Amount: dec("1")})
	svc.AddCardTransaction(ctx, "user-1", other.ID, CardTransactionInput{Description: "b", Amount: dec("1")})

	if err := svc.DeleteCard(ctx, "user-1", c.ID); err != nil {
		t.Fatalf("DeleteCard returned error: %v", err)
	}
	if len(repo.records) != 2 {
		t.Errorf("records left = %d, want 2 (other card and its transaction)", len(repo.records))
	}
}

// --- リマインダー ---

func TestReminders_DueAndNotified(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	soon, _ := svc.CreateReminder(ctx, "user-1", ReminderInput{Title: "Pagar renta", Date: now.Add(20 * time.Hour), Type: model.ReminderTypeExpense})
	svc.CreateReminder(ctx, "user-2", ReminderInput{Title: "Corte tarjeta", Date: now.Add(48 * time.Hour), Type: model.ReminderTypeCard})
	svc.CreateReminder(ctx, "user-2", ReminderInput{Title: "Vencido", Date: now.Add(-time.Hour), Type: model.ReminderTypeIncome})

	due, err := svc.DueReminders(ctx, now, 24*time.Hour)
	if err != nil {
		t.Fatalf("DueReminders returned error: %v", err)
	}
	if len(due) != 1 || due[0].UserID != "user-1" || due[0].Reminder.ID != soon.ID {
		t.Fatalf("due = %+v", due)
	}

	if err := svc.MarkReminderNotified(ctx, "user-1", soon.ID); err != nil {
		t.Fatalf("MarkReminderNotified returned error: %v", err)
	}
	due, _ = svc.DueReminders(ctx, now, 24*time.Hour)
	if len(due) != 0 {
		t.Errorf("notified reminder should not be due again: %+v", due)
	}

	moved, err := svc.UpdateReminder(ctx, "user-1", soon.ID, ReminderInput{Title: "Pagar renta", Date: now.Add(22 * time.Hour), Type: model.ReminderTypeExpense})
	if err != nil {
		t.Fatalf("UpdateReminder returned error: %v", err)
	}
	if moved.Notified {
		t.Error("changing the date should reset the notified flag")
	}
}

func TestCreateReminder_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateReminder(ctx, "user-1", ReminderInput{Title: "x", Type: model.ReminderTypeCard})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRecord)

	_, err = svc.CreateReminder(ctx, "user-1", ReminderInput{Title: "x", Date: time.Now(), Type: "birthday"})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRecord)
}

// --- ダッシュボード ---

// TestDashboard_Totals は集計値と最近の支出の件数を検証する。
func TestDashboard_Totals(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	amounts := []string{"8000", "1500", "800", "600", "500", "250.25"}
	for i, a := range amounts {
		e, _ := svc.CreateExpense(ctx, "user-1", ExpenseInput{Name: "gasto", Amount: dec(a), Type: model.ExpenseTypeVariable})
		if i%2 == 1 {
			svc.UpdateExpenseStatus(ctx, "user-1", e.ID, model.ExpenseStatusPaid)
		}
	}
	svc.CreateIncome(ctx, "user-1", IncomeInput{Name: "Salario", Amount: dec("25000"), Received: true})
	svc.CreateIncome(ctx, "user-1", IncomeInput{Name: "Freelance", Amount: dec("5000")})
	svc.CreateCard(ctx, "user-1", CardInput{Name: "Visa", Type: model.CardTypeCredit, Limit: dec("50000"), Debt: dec("15000")})
	svc.CreateCard(ctx, "user-1", CardInput{Name: "Débito", Type: model.CardTypeDebit, Limit: dec("10000")})

	d, err := svc.Dashboard(ctx, "user-1")
	if err != nil {
		t.Fatalf("Dashboard returned error: %v", err)
	}
	// 支払い済み: 1500 + 600 + 250.25
	if !d.TotalSpent.Equal(dec("2350.25")) {
		t.Errorf("TotalSpent = %s, want 2350.25", d.TotalSpent)
	}
	if !d.TotalIncome.Equal(dec("30000")) {
		t.Errorf("TotalIncome = %s, want 30000", d.TotalIncome)
	}
	if !d.TotalDebt.Equal(dec("15000")) || !d.TotalAvailable.Equal(dec("45000")) {
		t.Errorf("TotalDebt = %s, TotalAvailable = %s", d.TotalDebt, d.TotalAvailable)
	}
	if len(d.Recent) != 5 {
		t.Errorf("len(Recent) = %d, want 5", len(d.Recent))
	}
}

// TestDashboard_Empty は記録の無いユーザーで0とからの一覧を返すことを検証する。
func TestDashboard_Empty(t *testing.T) {
	svc, _ := newTestService()

	d, err := svc.Dashboard(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Dashboard returned error: %v", err)
	}
	if !d.TotalSpent.IsZero() || !d.TotalIncome.IsZero() || !d.TotalDebt.IsZero() || !d.TotalAvailable.IsZero() {
		t.Errorf("dashboard = %+v, want zeros", d)
	}
	if d.Recent == nil || len(d.Recent) != 0 {
		t.Errorf("Recent = %#v, want empty slice", d.Recent)
	}
}
