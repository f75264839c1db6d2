package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind は家計レコードの種類を表す。
type RecordKind string

const (
	RecordKindExpense         RecordKind = "expense"
	RecordKindIncome          RecordKind = "income"
	RecordKindCard            RecordKind = "card"
	RecordKindCardTransaction RecordKind = "card_transaction"
	RecordKindReminder        RecordKind = "reminder"
)

// ExpenseType は支出の種別（固定費/変動費）。
type ExpenseType string

const (
	ExpenseTypeFixed    ExpenseType = "fixed"
	ExpenseTypeVariable ExpenseType = "variable"
)

// ExpenseStatus は支出の支払い状態。
type ExpenseStatus string

const (
	ExpenseStatusPending ExpenseStatus = "pending"
	ExpenseStatusPaid    ExpenseStatus = "paid"
)

// Expense は支出レコード。
type Expense struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Type     ExpenseType     `json:"type"`
	Status   ExpenseStatus   `json:"status"`
	Date     time.Time       `json:"date"`
}

// Income は収入レコード。
type Income struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Date     time.Time       `json:"date"`
	Received bool            `json:"received"`
}

// CardType はカード種別。
type CardType string

const (
	CardTypeCredit CardType = "credit"
	CardTypeDebit  CardType = "debit"
)

// Card はクレジット/デビットカード。
// Availableは常にLimit-Debtと一致するよう更新される。
type Card struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      CardType        `json:"type"`
	Limit     decimal.Decimal `json:"limit"`
	Debt      decimal.Decimal `json:"debt"`
	Available decimal.Decimal `json:"available"`
	CutDate   string          `json:"cutDate"`
	PayDate   string          `json:"payDate"`
	Logo      string          `json:"logo"`
}

// CardTransaction はカード利用履歴。
type CardTransaction struct {
	ID          string          `json:"id"`
	CardID      string          `json:"cardId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
}

// ReminderType はリマインダーの対象種別。
type ReminderType string

const (
	ReminderTypeExpense ReminderType = "expense"
	ReminderTypeCard    ReminderType = "card"
	ReminderTypeIncome  ReminderType = "income"
)

// Reminder は支払い等のリマインダー。
type Reminder struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Date     time.Time    `json:"date"`
	Type     ReminderType `json:"type"`
	Notified bool         `json:"notified"`
}

// Dashboard はホーム画面の集計値。
type Dashboard struct {
	TotalSpent     decimal.Decimal `json:"totalSpent"`
	TotalIncome    decimal.Decimal `json:"totalIncome"`
	TotalDebt      decimal.Decimal `json:"totalDebt"`
	TotalAvailable decimal.Decimal `json:"totalAvailable"`
	Recent         []Expense       `json:"recent"`
}

// Record はrecordsテーブルに保存される家計レコードの永続化表現。
// Dataには種類ごとの構造体をJSONエンコードしたものを格納する。
type Record struct {
	ID        string
	UserID    string
	Kind      RecordKind
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
