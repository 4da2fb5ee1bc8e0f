package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// OrderHistoryRepositoryInterface is the append-only event trail. There is no
// update or delete.
type OrderHistoryRepositoryInterface interface {
	LogEvent(ctx context.Context, ev *entities.Event) error
	CreateInTx(tx *Tx, ev *entities.Event) error
	FindByOrderID(ctx context.Context, orderID string) ([]entities.Event, error)
	FindByOrderIDInTx(tx *Tx, orderID string) ([]entities.Event, error)
}

type OrderHistoryRepository struct {
	storage TxManagerInterface
}

func NewOrderHistoryRepository(storage TxManagerInterface) OrderHistoryRepositoryInterface {
	return &OrderHistoryRepository{storage: storage}
}

func (r *OrderHistoryRepository) LogEvent(ctx context.Context, ev *entities.Event) error {
	return r.storage.RunInTransaction(ctx, func(tx *Tx) error {
		return r.CreateInTx(tx, ev)
	})
}

// CreateInTx appends ev, filling ID and CreatedAt when empty.
func (r *OrderHistoryRepository) CreateInTx(tx *Tx, ev *entities.Event) error {
	t, err := tx.sheet(entities.SheetEvents)
	if err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = tx.Now()
	}
	payload, err := encodePayload(ev.Payload)
	if err != nil {
		return err
	}
	return t.Append(Record{
		entities.ColEventID:   ev.ID,
		entities.ColOrderID:   ev.OrderID,
		entities.ColEventType: ev.Type,
		entities.ColActorRole: string(ev.Actor.Role),
		entities.ColActorID:   utils.FormatID(ev.Actor.ID),
		entities.ColActorName: ev.Actor.Name,
		entities.ColPayload:   payload,
		entities.ColCreatedAt: utils.FormatUTC(ev.CreatedAt),
	})
}

func (r *OrderHistoryRepository) FindByOrderID(ctx context.Context, orderID string) ([]entities.Event, error) {
	var out []entities.Event
	err := r.storage.View(ctx, func(tx *Tx) error {
		var err error
		out, err = r.FindByOrderIDInTx(tx, orderID)
		return err
	})
	return out, err
}

// FindByOrderIDInTx returns events in append order.
func (r *OrderHistoryRepository) FindByOrderIDInTx(tx *Tx, orderID string) ([]entities.Event, error) {
	t, err := tx.sheet(entities.SheetEvents)
	if err != nil {
		return nil, err
	}
	var out []entities.Event
	for _, i := range t.FindAll(entities.ColOrderID, orderID) {
		rec := t.Record(i)
		created, _ := utils.ParseUTC(rec[entities.ColCreatedAt])
		out = append(out, entities.Event{
			ID:      rec[entities.ColEventID],
			OrderID: rec[entities.ColOrderID],
			Type:    rec[entities.ColEventType],
			Actor: entities.Actor{
				Role: entities.Role(rec[entities.ColActorRole]),
				ID:   utils.ParseID(rec[entities.ColActorID]),
				Name: rec[entities.ColActorName],
			},
			Payload:   decodePayload(rec[entities.ColPayload]),
			CreatedAt: created,
		})
	}
	return out, nil
}

// encodePayload renders JSON without HTML escaping so Arabic and other
// non-ASCII text stays readable in the sheet.
func encodePayload(p map[string]interface{}) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func decodePayload(raw string) map[string]interface{} {
	out := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]interface{}{"raw": raw}
	}
	return out
}
