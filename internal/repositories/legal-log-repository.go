package repositories

import (
	"context"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

type LegalLogRepositoryInterface interface {
	AppendLegalLog(ctx context.Context, actor entities.Actor, action, details string) error
	AppendInTx(tx *Tx, actor entities.Actor, action, details string) error
	List(ctx context.Context) ([]entities.LegalLogEntry, error)
}

type LegalLogRepository struct {
	storage TxManagerInterface
}

func NewLegalLogRepository(storage TxManagerInterface) LegalLogRepositoryInterface {
	return &LegalLogRepository{storage: storage}
}

func (r *LegalLogRepository) AppendLegalLog(ctx context.Context, actor entities.Actor, action, details string) error {
	return r.storage.RunInTransaction(ctx, func(tx *Tx) error {
		return r.AppendInTx(tx, actor, action, details)
	})
}

func (r *LegalLogRepository) AppendInTx(tx *Tx, actor entities.Actor, action, details string) error {
	t, err := tx.sheet(entities.SheetLegalLog)
	if err != nil {
		return err
	}
	return t.Append(Record{
		entities.ColTS:        utils.FormatUTC(tx.Now()),
		entities.ColActorID:   utils.FormatID(actor.ID),
		entities.ColActorName: actor.Name,
		entities.ColAction:    action,
		entities.ColDetails:   details,
	})
}

func (r *LegalLogRepository) List(ctx context.Context) ([]entities.LegalLogEntry, error) {
	var out []entities.LegalLogEntry
	err := r.storage.View(ctx, func(tx *Tx) error {
		t, err := tx.sheet(entities.SheetLegalLog)
		if err != nil {
			return err
		}
		for _, rec := range t.Records() {
			ts, _ := utils.ParseUTC(rec[entities.ColTS])
			out = append(out, entities.LegalLogEntry{
				TS:        ts,
				ActorID:   utils.ParseID(rec[entities.ColActorID]),
				ActorName: rec[entities.ColActorName],
				Action:    rec[entities.ColAction],
				Details:   rec[entities.ColDetails],
			})
		}
		return nil
	})
	return out, err
}
