package finance

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/gastos/internal/model"
)

// recentExpenseCount はダッシュボードに表示する最近の支出の件数。
const recentExpenseCount = 5

// Dashboard はホーム画面の集計値を返す。
//
//   - totalSpent: 支払い済みの支出の合計
//   - totalIncome: 全収入の合計
//   - totalDebt / totalAvailable: 全カードの負債・利用可能額の合計
//   - recent: 支出一覧の先頭5件
func (s *Service) Dashboard(ctx context.Context, userID string) (*model.Dashboard, error) {
	expenses, err := s.ListExpenses(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	incomes, err := s.ListIncomes(ctx, userID)
	if err != nil {
		return nil, err
	}
	cards, err := s.ListCards(ctx, userID)
	if err != nil {
		return nil, err
	}

	d := &model.Dashboard{
		TotalSpent:     decimal.Zero,
		TotalIncome:    decimal.Zero,
		TotalDebt:      decimal.Zero,
		TotalAvailable: decimal.Zero,
	}
	for _, e := range expenses {
		if e.Status == model.ExpenseStatusPaid {
			d.TotalSpent = d.TotalSpent.Add(e.Amount)
		}
	}
	for _, i := range incomes {
		d.TotalIncome = d.TotalIncome.Add(i.Amount)
	}
	for _, c := range cards {
		d.TotalDebt = d.TotalDebt.Add(c.Debt)
		d.TotalAvailable = d.TotalAvailable.Add(c.Available)
	}

	d.Recent = expenses[:min(recentExpenseCount, len(expenses))]
	return d, nil
}
