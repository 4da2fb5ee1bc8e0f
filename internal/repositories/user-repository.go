package repositories

import (
	"context"
	"sort"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

type TraderRepositoryInterface interface {
	UpsertTrader(ctx context.Context, trader *entities.Trader) error
	UpsertInTx(tx *Tx, trader *entities.Trader) error
	FindTrader(ctx context.Context, traderID int64) (*entities.Trader, error)
	FindInTx(tx *Tx, traderID int64) (*entities.Trader, error)
	ListTraders(ctx context.Context) ([]entities.Trader, error)
	ListInTx(tx *Tx) ([]entities.Trader, error)
	SetEnabledInTx(tx *Tx, traderID int64, enabled bool) error
}

type TraderRepository struct {
	storage TxManagerInterface
}

func NewTraderRepository(storage TxManagerInterface) TraderRepositoryInterface {
	return &TraderRepository{storage: storage}
}

func (r *TraderRepository) UpsertTrader(ctx context.Context, trader *entities.Trader) error {
	return r.storage.RunInTransaction(ctx, func(tx *Tx) error {
		return r.UpsertInTx(tx, trader)
	})
}

// UpsertInTx writes the profile fields. New traders start disabled with
// joined_at_utc stamped; is_enabled of an existing row is left untouched.
func (r *TraderRepository) UpsertInTx(tx *Tx, trader *entities.Trader) error {
	if trader.ID == 0 {
		return apperrors.NewValidationError("trader id is required")
	}
	t, err := tx.sheet(entities.SheetTraders)
	if err != nil {
		return err
	}
	now := utils.FormatUTC(tx.Now())
	rec := Record{
		entities.ColDisplayName:   trader.DisplayName,
		entities.ColCompanyName:   trader.CompanyName,
		entities.ColShopPhone:     trader.ShopPhone,
		entities.ColCRNo:          trader.CRNo,
		entities.ColVATNo:         trader.VATNo,
		entities.ColPaymentMode:   trader.PaymentMode,
		entities.ColBankName:      trader.BankName,
		entities.ColIBAN:          trader.IBAN,
		entities.ColSTCPay:        trader.STCPay,
		entities.ColTraderUpdated: now,
	}
	if i := t.FindOne(entities.ColTraderID, utils.FormatID(trader.ID)); i >= 0 {
		return t.Update(i, rec)
	}
	rec[entities.ColTraderID] = utils.FormatID(trader.ID)
	rec[entities.ColJoinedAt] = now
	rec[entities.ColIsEnabled] = utils.FormatBool(trader.IsEnabled)
	return t.Append(rec)
}

func (r *TraderRepository) FindTrader(ctx context.Context, traderID int64) (*entities.Trader, error) {
	var out *entities.Trader
	err := r.storage.View(ctx, func(tx *Tx) error {
		var err error
		out, err = r.FindInTx(tx, traderID)
		return err
	})
	return out, err
}

func (r *TraderRepository) FindInTx(tx *Tx, traderID int64) (*entities.Trader, error) {
	t, err := tx.sheet(entities.SheetTraders)
	if err != nil {
		return nil, err
	}
	i := t.FindOne(entities.ColTraderID, utils.FormatID(traderID))
	if i < 0 {
		return nil, apperrors.NewNotFoundError("trader %d not found", traderID)
	}
	tr := traderFromRecord(t.Record(i))
	return &tr, nil
}

func (r *TraderRepository) ListTraders(ctx context.Context) ([]entities.Trader, error) {
	var out []entities.Trader
	err := r.storage.View(ctx, func(tx *Tx) error {
		var err error
		out, err = r.ListInTx(tx)
		return err
	})
	return out, err
}

// ListInTx returns every trader ordered by join time.
func (r *TraderRepository) ListInTx(tx *Tx) ([]entities.Trader, error) {
	t, err := tx.sheet(entities.SheetTraders)
	if err != nil {
		return nil, err
	}
	var out []entities.Trader
	for _, rec := range t.Records() {
		tr := traderFromRecord(rec)
		if tr.ID == 0 {
			continue
		}
		out = append(out, tr)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (r *TraderRepository) SetEnabledInTx(tx *Tx, traderID int64, enabled bool) error {
	t, err := tx.sheet(entities.SheetTraders)
	if err != nil {
		return err
	}
	i := t.FindOne(entities.ColTraderID, utils.FormatID(traderID))
	if i < 0 {
		return apperrors.NewNotFoundError("trader %d not found", traderID)
	}
	return t.Update(i, Record{
		entities.ColIsEnabled:     utils.FormatBool(enabled),
		entities.ColTraderUpdated: utils.FormatUTC(tx.Now()),
	})
}

func traderFromRecord(rec Record) entities.Trader {
	joined, _ := utils.ParseUTC(rec[entities.ColJoinedAt])
	updated, _ := utils.ParseUTC(rec[entities.ColTraderUpdated])
	return entities.Trader{
		ID:          utils.ParseID(rec[entities.ColTraderID]),
		DisplayName: rec[entities.ColDisplayName],
		CompanyName: rec[entities.ColCompanyName],
		ShopPhone:   rec[entities.ColShopPhone],
		CRNo:        rec[entities.ColCRNo],
		VATNo:       rec[entities.ColVATNo],
		PaymentMode: rec[entities.ColPaymentMode],
		BankName:    rec[entities.ColBankName],
		IBAN:        rec[entities.ColIBAN],
		STCPay:      rec[entities.ColSTCPay],
		JoinedAt:    joined,
		IsEnabled:   utils.ParseBool(rec[entities.ColIsEnabled]),
		UpdatedAt:   updated,
	}
}
