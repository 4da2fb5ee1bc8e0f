package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

type TraderSubscriptionRepositoryInterface interface {
	UpsertTraderSubscription(ctx context.Context, sub *entities.TraderSubscription) (*entities.TraderSubscription, error)
	UpsertInTx(tx *Tx, sub *entities.TraderSubscription) (*entities.TraderSubscription, error)
	FindInTx(tx *Tx, traderID int64, month string) (*entities.TraderSubscription, error)
	ConfirmedForMonthInTx(tx *Tx, month string) (map[int64]bool, error)
	ListByTrader(ctx context.Context, traderID int64) ([]entities.TraderSubscription, error)
}

type TraderSubscriptionRepository struct {
	storage TxManagerInterface
}

func NewTraderSubscriptionRepository(storage TxManagerInterface) TraderSubscriptionRepositoryInterface {
	return &TraderSubscriptionRepository{storage: storage}
}

func (r *TraderSubscriptionRepository) UpsertTraderSubscription(ctx context.Context, sub *entities.TraderSubscription) (*entities.TraderSubscription, error) {
	var out *entities.TraderSubscription
	err := r.storage.RunInTransaction(ctx, func(tx *Tx) error {
		var err error
		out, err = r.UpsertInTx(tx, sub)
		return err
	})
	return out, err
}

// UpsertInTx is idempotent on (trader_id, month): an existing row keeps its
// sub_id and created_at_utc and only non-empty fields of sub are applied.
func (r *TraderSubscriptionRepository) UpsertInTx(tx *Tx, sub *entities.TraderSubscription) (*entities.TraderSubscription, error) {
	if sub.TraderID == 0 || sub.Month == "" {
		return nil, apperrors.NewValidationError("trader id and month are required")
	}
	t, err := tx.sheet(entities.SheetTraderSubs)
	if err != nil {
		return nil, err
	}
	patch := Record{}
	set := func(col, v string) {
		if v != "" {
			patch[col] = v
		}
	}
	set(entities.ColAmountSAR, sub.AmountSAR)
	set(entities.ColSubPayMethod, sub.PaymentMethod)
	set(entities.ColSubPayStatus, string(sub.PaymentStatus))
	set(entities.ColSubReceiptID, sub.ReceiptFileID)
	set(entities.ColPaidAt, utils.FormatUTC(sub.PaidAt))

	if i := r.locate(t, sub.TraderID, sub.Month); i >= 0 {
		if err := t.Update(i, patch); err != nil {
			return nil, err
		}
		s := subFromRecord(t.Record(i))
		return &s, nil
	}

	patch[entities.ColSubID] = uuid.NewString()
	patch[entities.ColTraderID] = utils.FormatID(sub.TraderID)
	patch[entities.ColMonth] = sub.Month
	patch[entities.ColSubCreatedAt] = utils.FormatUTC(tx.Now())
	if patch[entities.ColSubPayStatus] == "" {
		patch[entities.ColSubPayStatus] = string(entities.SubscriptionAwaiting)
	}
	if err := t.Append(patch); err != nil {
		return nil, err
	}
	s := subFromRecord(patch)
	return &s, nil
}

// FindInTx returns nil without error when no row exists.
func (r *TraderSubscriptionRepository) FindInTx(tx *Tx, traderID int64, month string) (*entities.TraderSubscription, error) {
	t, err := tx.sheet(entities.SheetTraderSubs)
	if err != nil {
		return nil, err
	}
	i := r.locate(t, traderID, month)
	if i < 0 {
		return nil, nil
	}
	s := subFromRecord(t.Record(i))
	return &s, nil
}

// ConfirmedForMonthInTx returns the set of traders with a confirmed
// subscription for month.
func (r *TraderSubscriptionRepository) ConfirmedForMonthInTx(tx *Tx, month string) (map[int64]bool, error) {
	t, err := tx.sheet(entities.SheetTraderSubs)
	if err != nil {
		return nil, err
	}
	out := map[int64]bool{}
	for _, i := range t.FindAll(entities.ColMonth, month) {
		rec := t.Record(i)
		if entities.SubscriptionStatus(rec[entities.ColSubPayStatus]) == entities.SubscriptionConfirmed {
			out[utils.ParseID(rec[entities.ColTraderID])] = true
		}
	}
	return out, nil
}

func (r *TraderSubscriptionRepository) ListByTrader(ctx context.Context, traderID int64) ([]entities.TraderSubscription, error) {
	var out []entities.TraderSubscription
	err := r.storage.View(ctx, func(tx *Tx) error {
		t, err := tx.sheet(entities.SheetTraderSubs)
		if err != nil {
			return err
		}
		for _, i := range t.FindAll(entities.ColTraderID, utils.FormatID(traderID)) {
			out = append(out, subFromRecord(t.Record(i)))
		}
		return nil
	})
	return out, err
}

func (r *TraderSubscriptionRepository) locate(t *table, traderID int64, month string) int {
	id := utils.FormatID(traderID)
	for _, i := range t.FindAll(entities.ColTraderID, id) {
		if t.cell(i, entities.ColMonth) == month {
			return i
		}
	}
	return -1
}

func subFromRecord(rec Record) entities.TraderSubscription {
	paid, _ := utils.ParseUTC(rec[entities.ColPaidAt])
	created, _ := utils.ParseUTC(rec[entities.ColSubCreatedAt])
	return entities.TraderSubscription{
		ID:            rec[entities.ColSubID],
		TraderID:      utils.ParseID(rec[entities.ColTraderID]),
		Month:         rec[entities.ColMonth],
		AmountSAR:     rec[entities.ColAmountSAR],
		PaymentMethod: rec[entities.ColSubPayMethod],
		PaymentStatus: entities.SubscriptionStatus(rec[entities.ColSubPayStatus]),
		ReceiptFileID: rec[entities.ColSubReceiptID],
		PaidAt:        paid,
		CreatedAt:     created,
	}
}
