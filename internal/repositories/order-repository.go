package repositories

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// OrderBundle is an order row plus its items ordered by idx.
type OrderBundle struct {
	Order Record
	Items []entities.Item
}

// OrderFilter is a linear-scan predicate; zero fields match everything.
type OrderFilter struct {
	UserID          int64
	States          []entities.OrderState
	Phase           entities.Phase
	AssignedAdminID int64
	OnlyOpen        bool
	Search          string
}

func (f OrderFilter) Match(r Record) bool {
	if f.UserID != 0 && utils.ParseID(r[entities.ColUserID]) != f.UserID {
		return false
	}
	if f.AssignedAdminID != 0 && utils.ParseID(r[entities.ColAssignedAdminID]) != f.AssignedAdminID {
		return false
	}
	if f.Phase != "" && entities.Phase(r[entities.ColStatus]) != f.Phase {
		return false
	}
	state, _ := entities.ParseOrderState(r[entities.ColOrderStatus])
	if len(f.States) > 0 && !state.In(f.States...) {
		return false
	}
	if f.OnlyOpen && (state == "" || state.IsTerminal()) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		hay := strings.ToLower(r[entities.ColOrderID] + " " + r[entities.ColCarName] + " " +
			r[entities.ColCarModel] + " " + r[entities.ColVIN])
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

type OrderRepositoryInterface interface {
	AddOrder(ctx context.Context, rec Record) error
	AddInTx(tx *Tx, rec Record) error
	UpdateOrderFields(ctx context.Context, orderID string, fields Record) error
	UpdateFieldsInTx(tx *Tx, orderID string, fields Record) error
	FindInTx(tx *Tx, orderID string) (Record, error)
	GetOrderBundle(ctx context.Context, orderID string) (*OrderBundle, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Record, error)
	ListInTx(tx *Tx, filter OrderFilter) ([]Record, error)
	ListOrdersForTrader(ctx context.Context, traderID int64, filter OrderFilter) ([]Record, error)
}

type OrderRepository struct {
	storage TxManagerInterface
	logger  *zap.Logger
}

func NewOrderRepository(storage TxManagerInterface, logger *zap.Logger) OrderRepositoryInterface {
	return &OrderRepository{storage: storage, logger: logger}
}

func (r *OrderRepository) AddOrder(ctx context.Context, rec Record) error {
	return r.storage.RunInTransaction(ctx, func(tx *Tx) error {
		return r.AddInTx(tx, rec)
	})
}

// AddInTx appends an order row. Unknown keys are ignored; created_at_utc is
// stamped when absent.
func (r *OrderRepository) AddInTx(tx *Tx, rec Record) error {
	orderID := strings.TrimSpace(rec[entities.ColOrderID])
	if orderID == "" {
		return apperrors.NewValidationError("order_id is required")
	}
	t, err := tx.sheet(entities.SheetOrders)
	if err != nil {
		return err
	}
	if t.FindOne(entities.ColOrderID, orderID) >= 0 {
		return apperrors.NewInvariantError("order %s already exists", orderID)
	}
	row := rec.Clone()
	if row[entities.ColCreatedAt] == "" {
		row[entities.ColCreatedAt] = utils.FormatUTC(tx.Now())
	}
	return t.Append(row)
}

func (r *OrderRepository) UpdateOrderFields(ctx context.Context, orderID string, fields Record) error {
	return r.storage.RunInTransaction(ctx, func(tx *Tx) error {
		return r.UpdateFieldsInTx(tx, orderID, fields)
	})
}

func (r *OrderRepository) UpdateFieldsInTx(tx *Tx, orderID string, fields Record) error {
	t, i, err := r.locate(tx, orderID)
	if err != nil {
		return err
	}
	patch := fields.Clone()
	delete(patch, entities.ColOrderID)
	return t.Update(i, patch)
}

func (r *OrderRepository) FindInTx(tx *Tx, orderID string) (Record, error) {
	t, i, err := r.locate(tx, orderID)
	if err != nil {
		return nil, err
	}
	return t.Record(i), nil
}

// locate finds the row of orderID. Duplicate ids are an invariant violation:
// the first row wins and the duplicate is logged.
func (r *OrderRepository) locate(tx *Tx, orderID string) (*table, int, error) {
	t, err := tx.sheet(entities.SheetOrders)
	if err != nil {
		return nil, -1, err
	}
	matches := t.FindAll(entities.ColOrderID, strings.TrimSpace(orderID))
	if len(matches) == 0 {
		return nil, -1, apperrors.NewNotFoundError("order %s not found", orderID)
	}
	if len(matches) > 1 {
		r.logger.Error("duplicate order rows", zap.String("order_id", orderID), zap.Int("rows", len(matches)))
	}
	return t, matches[0], nil
}

func (r *OrderRepository) GetOrderBundle(ctx context.Context, orderID string) (*OrderBundle, error) {
	var bundle *OrderBundle
	err := r.storage.View(ctx, func(tx *Tx) error {
		rec, err := r.FindInTx(tx, orderID)
		if err != nil {
			return err
		}
		items, err := readItemsInTx(tx, orderID)
		if err != nil {
			return err
		}
		if n := utils.ParseInt(rec[entities.ColItemsCount]); n != len(items) {
			r.logger.Warn("items_count does not match items sheet",
				zap.String("order_id", orderID), zap.Int("items_count", n), zap.Int("items", len(items)))
		}
		bundle = &OrderBundle{Order: rec, Items: items}
		return nil
	})
	return bundle, err
}

func (r *OrderRepository) ListOrders(ctx context.Context, filter OrderFilter) ([]Record, error) {
	var out []Record
	err := r.storage.View(ctx, func(tx *Tx) error {
		var err error
		out, err = r.ListInTx(tx, filter)
		return err
	})
	return out, err
}

// ListInTx returns matching orders, newest first.
func (r *OrderRepository) ListInTx(tx *Tx, filter OrderFilter) ([]Record, error) {
	t, err := tx.sheet(entities.SheetOrders)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range t.Records() {
		if rec[entities.ColOrderID] == "" {
			continue
		}
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i][entities.ColCreatedAt] > out[j][entities.ColCreatedAt]
	})
	return out, nil
}

// ListOrdersForTrader returns orders the trader quoted on or won.
func (r *OrderRepository) ListOrdersForTrader(ctx context.Context, traderID int64, filter OrderFilter) ([]Record, error) {
	all, err := r.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range all {
		if utils.ParseID(rec[entities.ColAcceptedTraderID]) == traderID ||
			utils.ParseID(rec[entities.ColQuotedTraderID]) == traderID {
			out = append(out, rec)
		}
	}
	return out, nil
}
