package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/gastos/internal/finance"
	"github.com/hitoshi/gastos/internal/model"
)

// FinanceServiceInterface は家計ハンドラーが必要とするサービスインターフェース。
type FinanceServiceInterface interface {
	ListExpenses(ctx context.Context, userID string, typ model.ExpenseType) ([]model.Expense, error)
	GetExpense(ctx context.Context, userID, id string) (*model.Expense, error)
	CreateExpense(ctx context.Context, userID string, in finance.ExpenseInput) (*model.Expense, error)
	UpdateExpense(ctx context.Context, userID, id string, in finance.ExpenseInput) (*model.Expense, error)
	UpdateExpenseStatus(ctx context.Context, userID, id string, status model.ExpenseStatus) (*model.Expense, error)
	DeleteExpense(ctx context.Context, userID, id string) error

	ListIncomes(ctx context.Context, userID string) ([]model.Income, error)
	GetIncome(ctx context.Context, userID, id string) (*model.Income, error)
	CreateIncome(ctx context.Context, userID string, in finance.IncomeInput) (*model.Income, error)
	UpdateIncome(ctx context.Context, userID, id string, in finance.IncomeInput) (*model.Income, error)
	DeleteIncome(ctx context.Context, userID, id string) error

	ListCards(ctx context.Context, userID string) ([]model.Card, error)
	GetCard(ctx context.Context, userID, id string) (*model.Card, error)
	CreateCard(ctx context.Context, userID string, in finance.CardInput) (*model.Card, error)
	UpdateCard(ctx context.Context, userID, id string, in finance.CardInput) (*model.Card, error)
	DeleteCard(ctx context.Context, userID, id string) error
	ListCardTransactions(ctx context.Context, userID, cardID string) ([]model.CardTransaction, error)
	AddCardTransaction(ctx context.Context, userID, cardID string, in finance.CardTransactionInput) (*model.CardTransaction, *model.Card, error)

	ListReminders(ctx context.Context, userID string) ([]model.Reminder, error)
	GetReminder(ctx context.Context, userID, id string) (*model.Reminder, error)
	CreateReminder(ctx context.Context, userID string, in finance.ReminderInput) (*model.Reminder, error)
	UpdateReminder(ctx context.Context, userID, id string, in finance.ReminderInput) (*model.Reminder, error)
	DeleteReminder(ctx context.Context, userID, id string) error

	Dashboard(ctx context.Context, userID string) (*model.Dashboard, error)
}

// FinanceHandler は支出・収入・カード・リマインダー・ダッシュボードのHTTPハンドラー。
// PINでロック解除済みのセッションからのみ呼び出される。
type FinanceHandler struct {
	service FinanceServiceInterface
}

// NewFinanceHandler はFinanceHandlerを生成する。
func NewFinanceHandler(service FinanceServiceInterface) *FinanceHandler {
	return &FinanceHandler{service: service}
}

// dateValue は "2006-01-02" 形式とRFC3339形式の両方を受け付ける日付。
type dateValue struct {
	time.Time
}

// UnmarshalJSON は日付文字列を解析する。空文字列とnullはゼロ値とする。
func (d *dateValue) UnmarshalJSON(b []byte) error {
	var s string
	if string(b) == "null" {
		return nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid date: %q", s)
}

// ptr は日付が指定されていればそのポインタを、未指定ならnilを返す。
func (d dateValue) ptr() *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

type expenseRequest struct {
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Type     string          `json:"type"`
	Date     dateValue       `json:"date"`
}

func (req expenseRequest) input() finance.ExpenseInput {
	return finance.ExpenseInput{
		Name:     req.Name,
		Amount:   req.Amount,
		Category: req.Category,
		Type:     model.ExpenseType(req.Type),
		Date:     req.Date.ptr(),
	}
}

type expenseStatusRequest struct {
	Status string `json:"status"`
}

type incomeRequest struct {
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Date     dateValue       `json:"date"`
	Received bool            `json:"received"`
}

func (req incomeRequest) input() finance.IncomeInput {
	return finance.IncomeInput{
		Name:     req.Name,
		Amount:   req.Amount,
		Date:     req.Date.ptr(),
		Received: req.Received,
	}
}

type cardRequest struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Limit   decimal.Decimal `json:"limit"`
	Debt    decimal.Decimal `json:"debt"`
	CutDate string          `json:"cutDate"`
	PayDate string          `json:"payDate"`
	Logo    string          `json:"logo"`
}

func (req cardRequest) input() finance.CardInput {
	return finance.CardInput{
		Name:    req.Name,
		Type:    model.CardType(req.Type),
		Limit:   req.Limit,
		Debt:    req.Debt,
		CutDate: req.CutDate,
		PayDate: req.PayDate,
		Logo:    req.Logo,
	}
}

type cardTransactionRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        dateValue       `json:"date"`
}

// cardTransactionResponse は登録した利用履歴と更新後のカード。
type cardTransactionResponse struct {
	Transaction *model.CardTransaction `json:"transaction"`
	Card        *model.Card            `json:"card"`
}

type reminderRequest struct {
	Title string    `json:"title"`
	Date  dateValue `json:"date"`
	Type  string    `json:"type"`
}

func (req reminderRequest) input() finance.ReminderInput {
	return finance.ReminderInput{
		Title: req.Title,
		Date:  req.Date.Time,
		Type:  model.ReminderType(req.Type),
	}
}

// --- 支出 ---

// ListExpenses は支出一覧を返す。?type=fixed|variable で絞り込める。
// GET /api/expenses
func (h *FinanceHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	typ := model.ExpenseType(r.URL.Query().Get("type"))
	if typ != "" && typ != model.ExpenseTypeFixed && typ != model.ExpenseTypeVariable {
		handleServiceError(w, model.NewInvalidRecordError("種別には fixed または variable を指定してください"))
		return
	}
	expenses, err := h.service.ListExpenses(r.Context(), userID, typ)
	respond(w, http.StatusOK, expenses, err)
}

// GetExpense は支出を返す。
// GET /api/expenses/{id}
func (h *FinanceHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	e, err := h.service.GetExpense(r.Context(), userID, chi.URLParam(r, "id"))
	respond(w, http.StatusOK, e, err)
}

// CreateExpense は支出を作成する。
// POST /api/expenses
func (h *FinanceHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.service.CreateExpense(r.Context(), userID, req.input())
	respond(w, http.StatusCreated, e, err)
}

// UpdateExpense は支出を更新する。
// PUT /api/expenses/{id}
func (h *FinanceHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.service.UpdateExpense(r.Context(), userID, chi.URLParam(r, "id"), req.input())
	respond(w, http.StatusOK, e, err)
}

// UpdateExpenseStatus は支出の支払い状態を更新する。
// PUT /api/expenses/{id}/status
func (h *FinanceHandler) UpdateExpenseStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req expenseStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.service.UpdateExpenseStatus(r.Context(), userID, chi.URLParam(r, "id"), model.ExpenseStatus(req.Status))
	respond(w, http.StatusOK, e, err)
}

// DeleteExpense は支出を削除する。
// DELETE /api/expenses/{id}
func (h *FinanceHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	respondNoContent(w, h.service.DeleteExpense(r.Context(), userID, chi.URLParam(r, "id")))
}

// --- 収入 ---

// ListIncomes は収入一覧を返す。
// GET /api/incomes
func (h *FinanceHandler) ListIncomes(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	incomes, err := h.service.ListIncomes(r.Context(), userID)
	respond(w, http.StatusOK, incomes, err)
}

// GetIncome は収入を返す。
// GET /api/incomes/{id}
func (h *FinanceHandler) GetIncome(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	in, err := h.service.GetIncome(r.Context(), userID, chi.URLParam(r, "id"))
	respond(w, http.StatusOK, in, err)
}

// CreateIncome は収入を作成する。
// POST /api/incomes
func (h *FinanceHandler) CreateIncome(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req incomeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := h.service.CreateIncome(r.Context(), userID, req.input())
	respond(w, http.StatusCreated, in, err)
}

// UpdateIncome は収入を更新する。
// PUT /api/incomes/{id}
func (h *FinanceHandler) UpdateIncome(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req incomeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := h.service.UpdateIncome(r.Context(), userID, chi.URLParam(r, "id"), req.input())
	respond(w, http.StatusOK, in, err)
}

// DeleteIncome は収入を削除する。
// DELETE /api/incomes/{id}
func (h *FinanceHandler) DeleteIncome(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	respondNoContent(w, h.service.DeleteIncome(r.Context(), userID, chi.URLParam(r, "id")))
}

// --- カード ---

// ListCards はカード一覧を返す。
// GET /api/cards
func (h *FinanceHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	cards, err := h.service.ListCards(r.Context(), userID)
	respond(w, http.StatusOK, cards, err)
}

// GetCard はカードを返す。
// GET /api/cards/{id}
func (h *FinanceHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	c, err := h.service.GetCard(r.Context(), userID, chi.URLParam(r, "id"))
	respond(w, http.StatusOK, c, err)
}

// CreateCard はカードを作成する。
// POST /api/cards
func (h *FinanceHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req cardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.service.CreateCard(r.Context(), userID, req.input())
	respond(w, http.StatusCreated, c, err)
}

// UpdateCard はカードを更新する。
// PUT /api/cards/{id}
func (h *FinanceHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req cardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.service.UpdateCard(r.Context(), userID, chi.URLParam(r, "id"), req.input())
	respond(w, http.StatusOK, c, err)
}

// DeleteCard はカードと利用履歴を削除する。
// DELETE /api/cards/{id}
func (h *FinanceHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	respondNoContent(w, h.service.DeleteCard(r.Context(), userID, chi.URLParam(r, "id")))
}

// ListCardTransactions はカードの利用履歴を返す。
// GET /api/cards/{id}/transactions
func (h *FinanceHandler) ListCardTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	txs, err := h.service.ListCardTransactions(r.Context(), userID, chi.URLParam(r, "id"))
	respond(w, http.StatusOK, txs, err)
}

// AddCardTransaction はカード利用を登録し、債務と利用可能額を更新する。
// POST /api/cards/{id}/transactions
func (h *FinanceHandler) AddCardTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req cardTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tx, card, err := h.service.AddCardTransaction(r.Context(), userID, chi.URLParam(r, "id"), finance.CardTransactionInput{
		Description: req.Description,
		Amount:      req.Amount,
		Date:        req.Date.ptr(),
	})
	respond(w, http.StatusCreated, cardTransactionResponse{Transaction: tx, Card: card}, err)
}

// --- リマインダー ---

// ListReminders はリマインダー一覧を返す。
// GET /api/reminders
func (h *FinanceHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	reminders, err := h.service.ListReminders(r.Context(), userID)
	respond(w, http.StatusOK, reminders, err)
}

// GetReminder はリマインダーを返す。
// GET /api/reminders/{id}
func (h *FinanceHandler) GetReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	rem, err := h.service.GetReminder(r.Context(), userID, chi.URLParam(r, "id"))
	respond(w, http.StatusOK, rem, err)
}

// CreateReminder はリマインダーを作成する。
// POST /api/reminders
func (h *FinanceHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req reminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rem, err := h.service.CreateReminder(r.Context(), userID, req.input())
	respond(w, http.StatusCreated, rem, err)
}

// UpdateReminder はリマインダーを更新する。
// PUT /api/reminders/{id}
func (h *FinanceHandler) UpdateReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req reminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rem, err := h.service.UpdateReminder(r.Context(), userID, chi.URLParam(r, "id"), req.input())
	respond(w, http.StatusOK, rem, err)
}

// DeleteReminder はリマインダーを削除する。
// DELETE /api/reminders/{id}
func (h *FinanceHandler) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	respondNoContent(w, h.service.DeleteReminder(r.Context(), userID, chi.URLParam(r, "id")))
}

// --- ダッシュボード ---

// Dashboard はホーム画面の集計値を返す。
// GET /api/dashboard
func (h *FinanceHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Dashboard(r.Context(), userID)
	respond(w, http.StatusOK, d, err)
}

// respond はエラーが無ければvをstatusで返す。
func respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, status, v)
}

func respondNoContent(w http.ResponseWriter, err error) {
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
