package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/gastos/internal/model"
)

// CardInput はカードの作成・更新入力。
type CardInput struct {
	Name    string
	Type    model.CardType
	Limit   decimal.Decimal
	Debt    decimal.Decimal
	CutDate string
	PayDate string
	Logo    string
}

func (s *Service) validateCard(in *CardInput) error {
	in.Name = s.sanitizer.Clean(in.Name)
	in.CutDate = s.cleanShort(in.CutDate)
	in.PayDate = s.cleanShort(in.PayDate)
	in.Logo = s.cleanShort(in.Logo)
	if in.Name == "" {
		return model.NewInvalidRecordError("名前が空です")
	}
	if in.Type != model.CardTypeCredit && in.Type != model.CardTypeDebit {
		return model.NewInvalidRecordError("種別には credit または debit を指定してください")
	}
	if in.Limit.IsNegative() || in.Debt.IsNegative() {
		return model.NewInvalidRecordError("限度額と負債は0以上を指定してください")
	}
	return nil
}

// ListCards はユーザーのカード一覧を返す。
func (s *Service) ListCards(ctx context.Context, userID string) ([]model.Card, error) {
	return listRecords[model.Card](ctx, s.records, userID, model.RecordKindCard)
}

// GetCard はカードを1件返す。
func (s *Service) GetCard(ctx context.Context, userID, id string) (*model.Card, error) {
	c, err := findRecord[model.Card](ctx, s.records, userID, model.RecordKindCard, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCard はカードを作成する。利用可能額は限度額から負債を引いた値になる。
func (s *Service) CreateCard(ctx context.Context, userID string, in CardInput) (*model.Card, error) {
	if err := s.validateCard(&in); err != nil {
		return nil, err
	}
	c := model.Card{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Type:      in.Type,
		Limit:     in.Limit,
		Debt:      in.Debt,
		Available: in.Limit.Sub(in.Debt),
		CutDate:   in.CutDate,
		PayDate:   in.PayDate,
		Logo:      in.Logo,
	}
	if err := createRecord(ctx, s.records, userID, model.RecordKindCard, c.ID, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCard はカードを更新し、利用可能額を再計算する。
func (s *Service) UpdateCard(ctx context.Context, userID, id string, in CardInput) (*model.Card, error) {
	if err := s.validateCard(&in); err != nil {
		return nil, err
	}
	c, err := findRecord[model.Card](ctx, s.records, userID, model.RecordKindCard, id)
	if err != nil {
		return nil, err
	}
	c.Name, c.Type, c.CutDate, c.PayDate, c.Logo = in.Name, in.Type, in.CutDate, in.PayDate, in.Logo
	c.Limit, c.Debt = in.Limit, in.Debt
	c.Available = c.Limit.Sub(c.Debt)
	if err := updateRecord(ctx, s.records, userID, model.RecordKindCard, id, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCard はカードとその利用履歴を削除する。
func (s *Service) DeleteCard(ctx context.Context, userID, id string) error {
	txs, err := s.ListCardTransactions(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := deleteRecord(ctx, s.records, userID, model.RecordKindCard, id); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := deleteRecord(ctx, s.records, userID, model.RecordKindCardTransaction, tx.ID); err != nil {
			return fmt.Errorf("カード利用履歴の削除に失敗しました: %w", err)
		}
	}
	return nil
}

// CardTransactionInput はカード利用の登録入力。
type CardTransactionInput struct {
	Description string
	Amount      decimal.Decimal
	Date        *time.Time
}

// ListCardTransactions はカードの利用履歴を返す。
func (s *Service) ListCardTransactions(ctx context.Context, userID, cardID string) ([]model.CardTransaction, error) {
	all, err := listRecords[model.CardTransaction](ctx, s.records, userID, model.RecordKindCardTransaction)
	if err != nil {
		return nil, err
	}
	out := make([]model.CardTransaction, 0, len(all))
	for _, tx := range all {
		if tx.CardID == cardID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// AddCardTransaction はカード利用を登録する。
// 利用額をカードの負債に加え、利用可能額から差し引く。履歴の作成とカードの更新は同一トランザクションで行う。
func (s *Service) AddCardTransaction(ctx context.Context, userID, cardID string, in CardTransactionInput) (*model.CardTransaction, *model.Card, error) {
	in.Description = s.sanitizer.Clean(in.Description)
	if in.Description == "" {
		return nil, nil, model.NewInvalidRecordError("説明が空です")
	}
	if !in.Amount.IsPositive() {
		return nil, nil, model.NewInvalidRecordError("金額は0より大きい値を指定してください")
	}

	card, err := findRecord[model.Card](ctx, s.records, userID, model.RecordKindCard, cardID)
	if err != nil {
		return nil, nil, err
	}
	card.Debt = card.Debt.Add(in.Amount)
	card.Available = card.Available.Sub(in.Amount)

	tx := model.CardTransaction{
		ID:          uuid.New().String(),
		CardID:      cardID,
		Description: in.Description,
		Amount:      in.Amount,
		Date:        s.dateOrNow(in.Date),
	}

	txRec, err := encodeRecord(userID, model.RecordKindCardTransaction, tx.ID, tx)
	if err != nil {
		return nil, nil, err
	}
	cardRec, err := encodeRecord(userID, model.RecordKindCard, card.ID, card)
	if err != nil {
		return nil, nil, err
	}
	if err := s.records.CreateWithUpdate(ctx, txRec, cardRec); err != nil {
		return nil, nil, fmt.Errorf("カード利用の登録に失敗しました: %w", err)
	}
	return &tx, &card, nil
}
