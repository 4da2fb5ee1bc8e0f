package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/events"
	"github.com/parts-pp/parts-pp-sub000/internal/metrics"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/eventbus"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// Publisher is satisfied by *eventbus.Bus.
type Publisher interface {
	Publish(ctx context.Context, event eventbus.Event)
}

type ItemInput struct {
	Name        string `validate:"required,max=128"`
	PartNo      string `validate:"max=64"`
	PhotoFileID string `validate:"max=256"`
}

type CreateOrderInput struct {
	Customer    entities.Actor
	CarName     string      `validate:"required,max=64"`
	CarModel    string      `validate:"required,max=32"`
	VIN         string      `validate:"omitempty,vin"`
	Notes       string      `validate:"max=1000"`
	PrepayNotes string      `validate:"max=1000"`
	Items       []ItemInput `validate:"required,min=1,max=20,dive"`
}

// OrderView is an order with its items, as shown to any role.
type OrderView struct {
	Order *entities.Order
	Items []entities.Item
	Raw   repositories.Record
}

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*entities.Order, error)
	GetOrder(ctx context.Context, actor entities.Actor, orderID string) (*OrderView, error)
	ListOrders(ctx context.Context, actor entities.Actor, filter repositories.OrderFilter, page, limit int) ([]*entities.Order, int, error)
	History(ctx context.Context, actor entities.Actor, orderID string) ([]entities.Event, error)
	ListQuotes(ctx context.Context, actor entities.Actor, orderID string) ([]Quote, error)

	ChoosePaymentMethod(ctx context.Context, actor entities.Actor, orderID, method string) (*entities.Order, error)
	SubmitReceipt(ctx context.Context, actor entities.Actor, orderID, fileID string) (*entities.Order, error)
	ConfirmPrepayment(ctx context.Context, actor entities.Actor, orderID, amount, method string) (*entities.Order, error)
	RejectPayment(ctx context.Context, actor entities.Actor, orderID, reason string) (*entities.Order, error)

	SubmitQuote(ctx context.Context, actor entities.Actor, orderID string, quote QuoteInput) (*entities.Order, error)
	AdminOverrideQuote(ctx context.Context, actor entities.Actor, orderID string, quote QuoteInput) (*entities.Order, error)
	AcceptQuote(ctx context.Context, actor entities.Actor, orderID string, traderID int64) (*entities.Order, error)
	MarkTraderNotified(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error)
	Rebroadcast(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error)
	DisableRebroadcast(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error)

	ChooseGoodsPaymentMethod(ctx context.Context, actor entities.Actor, orderID, method, link string) (*entities.Order, error)
	SubmitGoodsReceipt(ctx context.Context, actor entities.Actor, orderID, fileID string) (*entities.Order, error)
	ConfirmGoodsPayment(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error)
	AcknowledgeGoodsPayment(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error)

	ChooseDelivery(ctx context.Context, actor entities.Actor, orderID string, choice entities.DeliveryChoice) (*entities.Order, error)
	SubmitShipping(ctx context.Context, actor entities.Actor, orderID string, addr ShippingAddress) (*entities.Order, error)
	SubmitPickup(ctx context.Context, actor entities.Actor, orderID string, pickup PickupDetails) (*entities.Order, error)
	MarkShipped(ctx context.Context, actor entities.Actor, orderID string, shipment ShipmentInput) (*entities.Order, error)
	MarkDelivered(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error)
	Cancel(ctx context.Context, actor entities.Actor, orderID, reason string) (*entities.Order, error)
	MarkRefunded(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error)

	AssignAdmin(ctx context.Context, actor entities.Actor, orderID string, assignee entities.Actor) (*entities.Order, error)
	SetInvoiceNumbers(ctx context.Context, actor entities.Actor, orderID string, kind InvoiceKind, preNo, shipNo *string) (*entities.Order, error)
	AttachInvoice(ctx context.Context, actor entities.Actor, orderID string, kind InvoiceKind, fileID string) (*entities.Order, error)
}

type OrderService struct {
	storage     repositories.TxManagerInterface
	orderRepo   repositories.OrderRepositoryInterface
	itemRepo    repositories.ItemRepositoryInterface
	historyRepo repositories.OrderHistoryRepositoryInterface
	traderRepo  repositories.TraderRepositoryInterface
	legalRepo   repositories.LegalLogRepositoryInterface
	ids         OrderIDServiceInterface
	settings    SettingsServiceInterface
	subs        SubscriptionServiceInterface
	bus         Publisher
	validate    *validator.Validate
	isAdmin     func(int64) bool
	logger      *zap.Logger
}

func NewOrderService(
	storage repositories.TxManagerInterface,
	orderRepo repositories.OrderRepositoryInterface,
	itemRepo repositories.ItemRepositoryInterface,
	historyRepo repositories.OrderHistoryRepositoryInterface,
	traderRepo repositories.TraderRepositoryInterface,
	legalRepo repositories.LegalLogRepositoryInterface,
	ids OrderIDServiceInterface,
	settings SettingsServiceInterface,
	subs SubscriptionServiceInterface,
	bus Publisher,
	validate *validator.Validate,
	isAdmin func(int64) bool,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		storage:     storage,
		orderRepo:   orderRepo,
		itemRepo:    itemRepo,
		historyRepo: historyRepo,
		traderRepo:  traderRepo,
		legalRepo:   legalRepo,
		ids:         ids,
		settings:    settings,
		subs:        subs,
		bus:         bus,
		validate:    validate,
		isAdmin:     isAdmin,
		logger:      logger,
	}
}

// change is what a transition function asks the primitive to commit.
// A nil change means "nothing to do" and commits nothing.
type change struct {
	to           entities.OrderState
	patch        repositories.Record
	event        string
	payload      map[string]interface{}
	broadcast    bool
	rebroadcast  bool
	legal        string
	legalDetails string
}

type transitionFunc func(tx *repositories.Tx, o *entities.Order, st Settings) (*change, error)

// transition loads the order, lets fn decide, then writes the patch, the
// state columns and exactly one event in a single save. Notifications are
// published only after the save returned.
func (s *OrderService) transition(ctx context.Context, name, orderID string, actor entities.Actor, fn transitionFunc) (order *entities.Order, err error) {
	defer func() { metrics.RecordTransition(name, err) }()

	var (
		ev        entities.Event
		items     []entities.Item
		changed   bool
		broadcast *events.OrderBroadcastEvent
	)
	err = s.storage.RunInTransaction(ctx, func(tx *repositories.Tx) error {
		rec, err := s.orderRepo.FindInTx(tx, orderID)
		if err != nil {
			return err
		}
		st, err := s.settings.LoadInTx(tx)
		if err != nil {
			return err
		}
		cur := entities.OrderFromRecord(rec)
		ch, err := fn(tx, cur, st)
		if err != nil {
			return err
		}
		if ch == nil {
			order = cur
			return nil
		}

		patch := repositories.Record{}
		if ch.patch != nil {
			patch = ch.patch.Clone()
		}
		patch[entities.ColUpdatedAt] = utils.FormatUTC(tx.Now())
		if ch.to != "" && ch.to != cur.State {
			patch[entities.ColOrderStatus] = string(ch.to)
			patch[entities.ColStatus] = string(ch.to.Phase())
		}
		if err := s.orderRepo.UpdateFieldsInTx(tx, cur.ID, patch); err != nil {
			return err
		}

		payload := ch.payload
		if payload == nil {
			payload = map[string]interface{}{}
		}
		if ch.to != "" && ch.to != cur.State {
			payload["from"] = string(cur.State)
			payload["to"] = string(ch.to)
		}
		ev = entities.Event{OrderID: cur.ID, Type: ch.event, Actor: actor, Payload: payload}
		if err := s.historyRepo.CreateInTx(tx, &ev); err != nil {
			return err
		}
		if ch.legal != "" {
			if err := s.legalRepo.AppendInTx(tx, actor, ch.legal, ch.legalDetails); err != nil {
				return err
			}
		}

		order = entities.OrderFromRecord(rec.Merge(patch))
		if items, err = s.itemRepo.FindByOrderIDInTx(tx, cur.ID); err != nil {
			return err
		}
		if ch.broadcast {
			ids, err := s.subs.EligibleTraderIDsInTx(tx)
			if err != nil {
				return err
			}
			broadcast = &events.OrderBroadcastEvent{TraderIDs: ids, Rebroadcast: ch.rebroadcast}
		}
		changed = true
		return nil
	})
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindAuthorization) {
			s.auditDenied(ctx, actor, name, orderID, err)
		}
		return nil, err
	}

	if changed {
		s.logger.Info("order transition",
			zap.String("transition", name),
			zap.String("order_id", order.ID),
			zap.String("state", string(order.State)),
			zap.String("actor_role", string(actor.Role)),
			zap.Int64("actor_id", actor.ID))
		s.bus.Publish(ctx, events.OrderChangedEvent{Event: ev, Order: order, Items: items})
		if broadcast != nil {
			broadcast.Order = order
			broadcast.Items = items
			s.bus.Publish(ctx, *broadcast)
		}
	}
	return order, nil
}

func (s *OrderService) auditDenied(ctx context.Context, actor entities.Actor, name, orderID string, cause error) {
	details := fmt.Sprintf("%s on %s: %s", name, orderID, apperrors.UserMessage(cause))
	if err := s.legalRepo.AppendLegalLog(ctx, actor, entities.LegalAuthorizationDenied, details); err != nil {
		s.logger.Error("legal log write failed", zap.Error(err))
	}
}

func (s *OrderService) requireAdmin(actor entities.Actor) error {
	if actor.Role == entities.RoleAdmin && s.isAdmin(actor.ID) {
		return nil
	}
	return apperrors.NewAuthorizationError("admin rights required")
}

func requireOwner(actor entities.Actor, o *entities.Order) error {
	if actor.Role == entities.RoleCustomer && actor.ID == o.UserID {
		return nil
	}
	return apperrors.NewAuthorizationError("order %s belongs to another customer", o.ID)
}

func requireState(o *entities.Order, action string, allowed ...entities.OrderState) error {
	if o.State.In(allowed...) {
		return nil
	}
	return apperrors.NewStateError("cannot %s order %s in state %s", action, o.ID, o.State)
}

// CreateOrder allocates the id, writes the order row, its items and the
// order_created event in one save. The order starts in pay_method.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (order *entities.Order, err error) {
	defer func() { metrics.RecordTransition("create_order", err) }()

	input.VIN = strings.ToUpper(strings.TrimSpace(input.VIN))
	if err := validateStruct(s.validate, input); err != nil {
		return nil, err
	}
	if input.Customer.ID == 0 {
		return nil, apperrors.NewValidationError("customer id is required")
	}

	var (
		ev    entities.Event
		items []entities.Item
	)
	err = s.storage.RunInTransaction(ctx, func(tx *repositories.Tx) error {
		orderID, err := s.ids.AllocateInTx(tx)
		if err != nil {
			return err
		}
		now := utils.FormatUTC(tx.Now())
		state := entities.StatePayMethod
		rec := repositories.Record{
			entities.ColOrderID:             orderID,
			entities.ColUserID:              utils.FormatID(input.Customer.ID),
			entities.ColUserName:            input.Customer.Name,
			entities.ColCarName:             strings.TrimSpace(input.CarName),
			entities.ColCarModel:            strings.TrimSpace(input.CarModel),
			entities.ColVIN:                 input.VIN,
			entities.ColNotes:               strings.TrimSpace(input.Notes),
			entities.ColPrepayNotes:         strings.TrimSpace(input.PrepayNotes),
			entities.ColItemsCount:          strconv.Itoa(len(input.Items)),
			entities.ColStatus:              string(state.Phase()),
			entities.ColOrderStatus:         string(state),
			entities.ColQuoteStatus:         string(entities.QuoteNone),
			entities.ColQuoteLocked:         utils.FormatBool(false),
			entities.ColPaymentStatus:       string(entities.PaymentNone),
			entities.ColGoodsPaymentStatus:  string(entities.PaymentNone),
			entities.ColRebroadcastCount:    "0",
			entities.ColRebroadcastDisabled: utils.FormatBool(false),
			entities.ColCreatedAt:           now,
			entities.ColUpdatedAt:           now,
		}
		if err := s.orderRepo.AddInTx(tx, rec); err != nil {
			return err
		}

		items = make([]entities.Item, 0, len(input.Items))
		for _, it := range input.Items {
			items = append(items, entities.Item{Name: it.Name, PartNo: it.PartNo, PhotoFileID: it.PhotoFileID})
		}
		if err := s.itemRepo.AddItemsInTx(tx, orderID, items); err != nil {
			return err
		}
		if items, err = s.itemRepo.FindByOrderIDInTx(tx, orderID); err != nil {
			return err
		}

		ev = entities.Event{
			OrderID: orderID,
			Type:    entities.EventOrderCreated,
			Actor:   input.Customer,
			Payload: map[string]interface{}{"items_count": len(items), "to": string(state)},
		}
		if err := s.historyRepo.CreateInTx(tx, &ev); err != nil {
			return err
		}
		order = entities.OrderFromRecord(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created", zap.String("order_id", order.ID), zap.Int64("user_id", order.UserID), zap.Int("items", len(items)))
	s.bus.Publish(ctx, events.OrderChangedEvent{Event: ev, Order: order, Items: items})
	return order, nil
}

// GetOrder returns the bundle when actor may see it: the owner, any admin,
// or a trader that quoted on or won the order.
func (s *OrderService) GetOrder(ctx context.Context, actor entities.Actor, orderID string) (*OrderView, error) {
	bundle, err := s.orderRepo.GetOrderBundle(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o := entities.OrderFromRecord(bundle.Order)
	if err := s.canView(ctx, actor, o); err != nil {
		return nil, err
	}
	return &OrderView{Order: o, Items: bundle.Items, Raw: bundle.Order}, nil
}

func (s *OrderService) canView(ctx context.Context, actor entities.Actor, o *entities.Order) error {
	switch actor.Role {
	case entities.RoleAdmin:
		return s.requireAdmin(actor)
	case entities.RoleCustomer:
		return requireOwner(actor, o)
	case entities.RoleTrader:
		if o.AcceptedTraderID == actor.ID {
			return nil
		}
		if o.AcceptedTraderID == 0 && o.State.In(entities.StateQuoteBroadcast, entities.StateQuoteOffered) {
			ok, err := s.subs.IsEligible(ctx, actor.ID)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
	return apperrors.NewAuthorizationError("order %s is not visible to you", o.ID)
}

// ListOrders scopes the filter by role and paginates the result.
func (s *OrderService) ListOrders(ctx context.Context, actor entities.Actor, filter repositories.OrderFilter, page, limit int) ([]*entities.Order, int, error) {
	var (
		recs []repositories.Record
		err  error
	)
	switch actor.Role {
	case entities.RoleAdmin:
		if err := s.requireAdmin(actor); err != nil {
			return nil, 0, err
		}
		recs, err = s.orderRepo.ListOrders(ctx, filter)
	case entities.RoleTrader:
		recs, err = s.orderRepo.ListOrdersForTrader(ctx, actor.ID, filter)
	default:
		filter.UserID = actor.ID
		recs, err = s.orderRepo.ListOrders(ctx, filter)
	}
	if err != nil {
		return nil, 0, err
	}
	pageRecs, total := utils.Paginate(recs, page, limit)
	out := make([]*entities.Order, 0, len(pageRecs))
	for _, r := range pageRecs {
		out = append(out, entities.OrderFromRecord(r))
	}
	return out, total, nil
}

func (s *OrderService) History(ctx context.Context, actor entities.Actor, orderID string) ([]entities.Event, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.historyRepo.FindByOrderID(ctx, orderID)
}

func (s *OrderService) AssignAdmin(ctx context.Context, actor entities.Actor, orderID string, assignee entities.Actor) (*entities.Order, error) {
	return s.transition(ctx, "assign_admin", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if !s.isAdmin(assignee.ID) {
			return nil, apperrors.NewValidationError("user %d is not an admin", assignee.ID)
		}
		if o.State.IsTerminal() {
			return nil, apperrors.NewStateError("order %s is closed", o.ID)
		}
		if o.AssignedAdminID == assignee.ID {
			return nil, nil
		}
		return &change{
			patch: repositories.Record{
				entities.ColAssignedAdminID:   utils.FormatID(assignee.ID),
				entities.ColAssignedAdminName: assignee.Name,
				entities.ColAssignedAt:        utils.FormatUTC(tx.Now()),
			},
			event:   entities.EventAdminAssigned,
			payload: map[string]interface{}{"admin_id": utils.FormatID(assignee.ID), "admin_name": assignee.Name},
		}, nil
	})
}

type InvoiceKind string

const (
	InvoiceCustomer InvoiceKind = "customer"
	InvoiceTrader   InvoiceKind = "trader"
)

// SetInvoiceNumbers records numbers allocated by the external invoicing
// component; nil leaves a number untouched.
func (s *OrderService) SetInvoiceNumbers(ctx context.Context, actor entities.Actor, orderID string, kind InvoiceKind, preNo, shipNo *string) (*entities.Order, error) {
	preCol, shipCol := entities.ColInvoicePreNo, entities.ColInvoiceShipNo
	switch kind {
	case InvoiceCustomer:
	case InvoiceTrader:
		preCol, shipCol = entities.ColTraderInvoicePreNo, entities.ColTraderInvoiceShipNo
	default:
		return nil, apperrors.NewValidationError("unknown invoice kind %q", kind)
	}
	if preNo == nil && shipNo == nil {
		return nil, apperrors.NewValidationError("no invoice number given")
	}
	return s.transition(ctx, "set_invoice_numbers", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		patch := repositories.Record{}
		payload := map[string]interface{}{"kind": string(kind)}
		if preNo != nil {
			patch[preCol] = strings.TrimSpace(*preNo)
			payload[preCol] = patch[preCol]
		}
		if shipNo != nil {
			patch[shipCol] = strings.TrimSpace(*shipNo)
			payload[shipCol] = patch[shipCol]
		}
		return &change{patch: patch, event: entities.EventInvoiceNumbers, payload: payload}, nil
	})
}

func (s *OrderService) AttachInvoice(ctx context.Context, actor entities.Actor, orderID string, kind InvoiceKind, fileID string) (*entities.Order, error) {
	col := entities.ColInvoiceFileID
	switch kind {
	case InvoiceCustomer:
	case InvoiceTrader:
		col = entities.ColTraderInvoiceFileID
	default:
		return nil, apperrors.NewValidationError("unknown invoice kind %q", kind)
	}
	if strings.TrimSpace(fileID) == "" {
		return nil, apperrors.NewValidationError("invoice file is required")
	}
	return s.transition(ctx, "attach_invoice", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		return &change{
			patch:   repositories.Record{col: fileID},
			event:   entities.EventInvoiceAttached,
			payload: map[string]interface{}{"kind": string(kind), "file_id": fileID},
		}, nil
	})
}
