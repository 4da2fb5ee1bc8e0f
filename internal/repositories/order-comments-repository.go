package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// OrderCommentRepositoryInterface stores relayed chat messages, one row per
// recipient.
type OrderCommentRepositoryInterface interface {
	LogMessage(ctx context.Context, msg *entities.Message) error
	CreateInTx(tx *Tx, msg *entities.Message) error
	FindByOrderID(ctx context.Context, orderID string) ([]entities.Message, error)
}

type OrderCommentRepository struct {
	storage TxManagerInterface
}

func NewOrderCommentRepository(storage TxManagerInterface) OrderCommentRepositoryInterface {
	return &OrderCommentRepository{storage: storage}
}

func (r *OrderCommentRepository) LogMessage(ctx context.Context, msg *entities.Message) error {
	return r.storage.RunInTransaction(ctx, func(tx *Tx) error {
		return r.CreateInTx(tx, msg)
	})
}

func (r *OrderCommentRepository) CreateInTx(tx *Tx, msg *entities.Message) error {
	t, err := tx.sheet(entities.SheetMessages)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = tx.Now()
	}
	return t.Append(Record{
		entities.ColMsgID:        msg.ID,
		entities.ColOrderID:      msg.OrderID,
		entities.ColSenderRole:   string(msg.SenderRole),
		entities.ColSenderID:     utils.FormatID(msg.SenderID),
		entities.ColSenderName:   msg.SenderName,
		entities.ColReceiverRole: string(msg.ReceiverRole),
		entities.ColReceiverID:   utils.FormatID(msg.ReceiverID),
		entities.ColText:         msg.Text,
		entities.ColFileID:       msg.FileID,
		entities.ColCreatedAt:    utils.FormatUTC(msg.CreatedAt),
	})
}

func (r *OrderCommentRepository) FindByOrderID(ctx context.Context, orderID string) ([]entities.Message, error) {
	var out []entities.Message
	err := r.storage.View(ctx, func(tx *Tx) error {
		t, err := tx.sheet(entities.SheetMessages)
		if err != nil {
			return err
		}
		for _, i := range t.FindAll(entities.ColOrderID, orderID) {
			rec := t.Record(i)
			created, _ := utils.ParseUTC(rec[entities.ColCreatedAt])
			out = append(out, entities.Message{
				ID:           rec[entities.ColMsgID],
				OrderID:      rec[entities.ColOrderID],
				SenderRole:   entities.Role(rec[entities.ColSenderRole]),
				SenderID:     utils.ParseID(rec[entities.ColSenderID]),
				SenderName:   rec[entities.ColSenderName],
				ReceiverRole: entities.Role(rec[entities.ColReceiverRole]),
				ReceiverID:   utils.ParseID(rec[entities.ColReceiverID]),
				Text:         rec[entities.ColText],
				FileID:       rec[entities.ColFileID],
				CreatedAt:    created,
			})
		}
		return nil
	})
	return out, err
}
