package repositories

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

var isoPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)

// LooksLikeFileID matches Telegram file ids: "Ag..." or long ids with "_".
func LooksLikeFileID(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	return strings.HasPrefix(v, "Ag") || (len(v) >= 20 && strings.Contains(v, "_"))
}

// LooksLikeISO matches the start of an ISO-8601 timestamp.
func LooksLikeISO(v string) bool {
	return isoPrefix.MatchString(strings.TrimSpace(v))
}

type ItemRepositoryInterface interface {
	AddItems(ctx context.Context, orderID string, items []entities.Item) error
	AddItemsInTx(tx *Tx, orderID string, items []entities.Item) error
	FindByOrderID(ctx context.Context, orderID string) ([]entities.Item, error)
	FindByOrderIDInTx(tx *Tx, orderID string) ([]entities.Item, error)
}

type ItemRepository struct {
	storage TxManagerInterface
}

func NewItemRepository(storage TxManagerInterface) ItemRepositoryInterface {
	return &ItemRepository{storage: storage}
}

func (r *ItemRepository) AddItems(ctx context.Context, orderID string, items []entities.Item) error {
	return r.storage.RunInTransaction(ctx, func(tx *Tx) error {
		return r.AddItemsInTx(tx, orderID, items)
	})
}

// AddItemsInTx appends items with idx enumerated from 1 (after any existing
// items) and keeps the order's items_count in step.
func (r *ItemRepository) AddItemsInTx(tx *Tx, orderID string, items []entities.Item) error {
	t, err := tx.sheet(entities.SheetItems)
	if err != nil {
		return err
	}
	next := len(t.FindAll(entities.ColOrderID, orderID)) + 1
	now := utils.FormatUTC(tx.Now())
	for _, it := range items {
		created := utils.FormatUTC(it.CreatedAt)
		if created == "" {
			created = now
		}
		rec := Record{
			entities.ColOrderID:     orderID,
			entities.ColIdx:         strconv.Itoa(next),
			entities.ColItemName:    strings.TrimSpace(it.Name),
			entities.ColItemPartNo:  strings.TrimSpace(it.PartNo),
			entities.ColPhotoFileID: strings.TrimSpace(it.PhotoFileID),
			entities.ColCreatedAt:   created,
		}
		if err := t.Append(rec); err != nil {
			return err
		}
		next++
	}

	orders, err := tx.sheet(entities.SheetOrders)
	if err != nil {
		return err
	}
	if i := orders.FindOne(entities.ColOrderID, orderID); i >= 0 {
		return orders.Update(i, Record{entities.ColItemsCount: strconv.Itoa(next - 1)})
	}
	return nil
}

func (r *ItemRepository) FindByOrderID(ctx context.Context, orderID string) ([]entities.Item, error) {
	var items []entities.Item
	err := r.storage.View(ctx, func(tx *Tx) error {
		var err error
		items, err = readItemsInTx(tx, orderID)
		return err
	})
	return items, err
}

func (r *ItemRepository) FindByOrderIDInTx(tx *Tx, orderID string) ([]entities.Item, error) {
	return readItemsInTx(tx, orderID)
}

func readItemsInTx(tx *Tx, orderID string) ([]entities.Item, error) {
	t, err := tx.sheet(entities.SheetItems)
	if err != nil {
		return nil, err
	}
	var items []entities.Item
	for _, i := range t.FindAll(entities.ColOrderID, orderID) {
		items = append(items, itemFromRecord(t.Record(i)))
	}
	sort.SliceStable(items, func(a, b int) bool { return items[a].Idx < items[b].Idx })
	return items, nil
}

// itemFromRecord reads an items row. Rows written by the old layout
// (order_id, idx, name, part_no, photo_file_id, created_at) land under the
// canonical headers shifted by one; they are detected and swapped back.
func itemFromRecord(rec Record) entities.Item {
	photo := rec[entities.ColPhotoFileID]
	created := rec[entities.ColCreatedAt]
	partNo := rec[entities.ColItemPartNo]

	if !LooksLikeFileID(photo) && LooksLikeISO(partNo) {
		photo, created, partNo = created, partNo, photo
	}

	createdAt, _ := utils.ParseUTC(created)
	return entities.Item{
		OrderID:     rec[entities.ColOrderID],
		Idx:         utils.ParseInt(rec[entities.ColIdx]),
		Name:        rec[entities.ColItemName],
		PartNo:      partNo,
		PhotoFileID: photo,
		CreatedAt:   createdAt,
	}
}
