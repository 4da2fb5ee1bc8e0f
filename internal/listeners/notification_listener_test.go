package listeners

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/events"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	"github.com/parts-pp/parts-pp-sub000/internal/services"
	"github.com/parts-pp/parts-pp-sub000/pkg/config"
	"github.com/parts-pp/parts-pp-sub000/pkg/customvalidator"
	"github.com/parts-pp/parts-pp-sub000/pkg/eventbus"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
)

var (
	customer = entities.Actor{Role: entities.RoleCustomer, ID: 77, Name: "Sara"}
	admin    = entities.Actor{Role: entities.RoleAdmin, ID: 900, Name: "Ops"}
	trader   = entities.Actor{Role: entities.RoleTrader, ID: 501, Name: "Riyadh Parts"}
)

type recordingSender struct {
	mu      sync.Mutex
	nextID  int
	texts   map[int64][]string
	blocked map[int64]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{texts: map[int64][]string{}, blocked: map[int64]bool{}}
}

func (s *recordingSender) record(chatID int64, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked[chatID] {
		return 0, telegram.ErrForbidden
	}
	s.nextID++
	s.texts[chatID] = append(s.texts[chatID], text)
	return s.nextID, nil
}

func (s *recordingSender) SendMessage(_ context.Context, chatID int64, text string, _ ...telegram.MessageOption) (int, error) {
	return s.record(chatID, text)
}

func (s *recordingSender) SendPhoto(_ context.Context, chatID int64, _, caption string, _ ...telegram.MessageOption) (int, error) {
	return s.record(chatID, caption)
}

func (s *recordingSender) SendDocument(_ context.Context, chatID int64, _, caption string, _ ...telegram.MessageOption) (int, error) {
	return s.record(chatID, caption)
}

func (s *recordingSender) to(chatID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts[chatID]...)
}

func (s *recordingSender) block(chatID int64) {
	s.mu.Lock()
	s.blocked[chatID] = true
	s.mu.Unlock()
}

func containsText(msgs []string, part string) bool {
	for _, m := range msgs {
		if strings.Contains(m, part) {
			return true
		}
	}
	return false
}

type harness struct {
	ctx       context.Context
	bus       *eventbus.Bus
	sender    *recordingSender
	orders    *services.OrderService
	subs      services.SubscriptionServiceInterface
	orderRepo repositories.OrderRepositoryInterface
	listener  *NotificationListener
}

func newHarness(t *testing.T, cfg config.TelegramConfig) *harness {
	t.Helper()
	logger := zap.NewNop()
	store := repositories.NewWorkbook(filepath.Join(t.TempDir(), "pp.xlsx"), logger, repositories.WithRetry(2, time.Millisecond))
	require.NoError(t, store.EnsureWorkbook(context.Background()))

	if len(cfg.AdminIDs) == 0 {
		cfg.AdminIDs = []int64{admin.ID}
	}
	bus := eventbus.New(logger)
	validate := customvalidator.New()
	orderRepo := repositories.NewOrderRepository(store, logger)
	settingsRepo := repositories.NewSettingsRepository(store)
	legalRepo := repositories.NewLegalLogRepository(store)
	traderRepo := repositories.NewTraderRepository(store)
	settings := services.NewSettingsService(store, settingsRepo, legalRepo, cfg.IsAdmin, logger)
	subs := services.NewSubscriptionService(store, traderRepo, repositories.NewTraderSubscriptionRepository(store),
		legalRepo, settings, bus, validate, cfg.IsAdmin, logger)
	orders := services.NewOrderService(store, orderRepo, repositories.NewItemRepository(store),
		repositories.NewOrderHistoryRepository(store), traderRepo, legalRepo,
		services.NewOrderIDService(store, settingsRepo, "PP"), settings, subs, bus, validate, cfg.IsAdmin, logger)

	sender := newRecordingSender()
	l := NewNotificationListener(sender, orders, orderRepo, cfg, logger)
	l.Register(bus)
	t.Cleanup(bus.Wait)

	return &harness{ctx: context.Background(), bus: bus, sender: sender, orders: orders, subs: subs, orderRepo: orderRepo, listener: l}
}

func (h *harness) eligibleTrader(t *testing.T) {
	t.Helper()
	_, err := h.subs.RegisterTrader(h.ctx, services.RegisterTraderInput{TraderID: trader.ID, DisplayName: trader.Name})
	require.NoError(t, err)
	require.NoError(t, h.subs.SetTraderEnabled(h.ctx, admin, trader.ID, true))
	_, err = h.subs.ConfirmSubscription(h.ctx, admin, trader.ID, "")
	require.NoError(t, err)
}

func (h *harness) quotedOrder(t *testing.T) *entities.Order {
	t.Helper()
	o, err := h.orders.CreateOrder(h.ctx, services.CreateOrderInput{
		Customer: customer, CarName: "Hyundai", CarModel: "Elantra",
		Items: []services.ItemInput{{Name: "Headlight", PartNo: "92101-F2000"}},
	})
	require.NoError(t, err)
	_, err = h.orders.ConfirmPrepayment(h.ctx, admin, o.ID, "40", services.MethodBank)
	require.NoError(t, err)
	o, err = h.orders.SubmitQuote(h.ctx, trader, o.ID, services.QuoteInput{GoodsAmountSAR: "250", ShipIncluded: true})
	require.NoError(t, err)
	h.bus.Wait()
	return o
}

func TestListener_OrderCreatedReachesCustomerAndAdmins(t *testing.T) {
	h := newHarness(t, config.TelegramConfig{})
	_, err := h.orders.CreateOrder(h.ctx, services.CreateOrderInput{
		Customer: customer, CarName: "Nissan", CarModel: "Patrol", VIN: "JN1TANY62U0000001",
		Items: []services.ItemInput{{Name: "Air filter"}},
	})
	require.NoError(t, err)
	h.bus.Wait()

	toCustomer := h.sender.to(customer.ID)
	require.Len(t, toCustomer, 1)
	assert.Contains(t, toCustomer[0], "Choose how to pay")
	assert.Contains(t, toCustomer[0], "1. Air filter")
	assert.True(t, containsText(h.sender.to(admin.ID), "New order from Sara"))
}

func TestListener_BroadcastOnlyToEligibleAndGroup(t *testing.T) {
	h := newHarness(t, config.TelegramConfig{TradersGroupID: -100200})
	h.eligibleTrader(t)
	o, err := h.orders.CreateOrder(h.ctx, services.CreateOrderInput{
		Customer: customer, CarName: "Kia", CarModel: "Sportage", Items: []services.ItemInput{{Name: "Bumper"}},
	})
	require.NoError(t, err)
	_, err = h.orders.ConfirmPrepayment(h.ctx, admin, o.ID, "40", services.MethodBank)
	require.NoError(t, err)
	h.bus.Wait()

	assert.True(t, containsText(h.sender.to(trader.ID), "New request"))
	assert.True(t, containsText(h.sender.to(-100200), o.ID))
	assert.False(t, containsText(h.sender.to(502), o.ID))
}

func TestListener_AcceptedTraderNotifiedAdvancesOrder(t *testing.T) {
	h := newHarness(t, config.TelegramConfig{})
	h.eligibleTrader(t)
	o := h.quotedOrder(t)
	assert.True(t, containsText(h.sender.to(customer.ID), "Quote for order "+o.ID))

	_, err := h.orders.AcceptQuote(h.ctx, customer, o.ID, trader.ID)
	require.NoError(t, err)
	h.bus.Wait()

	assert.True(t, containsText(h.sender.to(trader.ID), "was accepted"))
	view, err := h.orders.GetOrder(h.ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateGoodsPayMethod, view.Order.State)
	assert.True(t, view.Order.AcceptedTraderNotified)
}

func TestListener_UnreachableTraderStaysAccepted(t *testing.T) {
	h := newHarness(t, config.TelegramConfig{})
	h.eligibleTrader(t)
	o := h.quotedOrder(t)
	h.sender.block(trader.ID)

	_, err := h.orders.AcceptQuote(h.ctx, customer, o.ID, trader.ID)
	require.NoError(t, err)
	h.bus.Wait()

	view, err := h.orders.GetOrder(h.ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateQuoteAccepted, view.Order.State)
	assert.False(t, view.Order.AcceptedTraderNotified)
	assert.True(t, containsText(h.sender.to(admin.ID), "could not be notified"))
}

func TestListener_TeamMessageTrackedAndForgotten(t *testing.T) {
	const team = -100900
	h := newHarness(t, config.TelegramConfig{TeamChatID: team})
	o, err := h.orders.CreateOrder(h.ctx, services.CreateOrderInput{
		Customer: customer, CarName: "GMC", CarModel: "Yukon", Items: []services.ItemInput{{Name: "Starter"}},
	})
	require.NoError(t, err)
	h.bus.Wait()

	bundle, err := h.orderRepo.GetOrderBundle(h.ctx, o.ID)
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Order[entities.ColTeamMessageID])
	assert.Empty(t, h.sender.to(admin.ID))

	h.sender.block(team)
	require.NoError(t, h.listener.handleReminder(h.ctx, events.OrderReminderEvent{
		Kind:  events.ReminderNoquoteAdmin,
		Order: entities.OrderFromRecord(bundle.Order),
	}))

	bundle, err = h.orderRepo.GetOrderBundle(h.ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, bundle.Order[entities.ColTeamMessageID])
}

func TestListener_RemindersAndTraderStatus(t *testing.T) {
	h := newHarness(t, config.TelegramConfig{})
	o := &entities.Order{ID: "PP-240310-0009", UserID: customer.ID, AcceptedTraderID: trader.ID}

	require.NoError(t, h.listener.handleReminder(h.ctx, events.OrderReminderEvent{Kind: events.ReminderUnpaidUser, Order: o}))
	require.NoError(t, h.listener.handleReminder(h.ctx, events.OrderReminderEvent{Kind: events.ReminderPaidTrader, Order: o}))
	require.NoError(t, h.listener.handleTraderStatus(h.ctx, events.TraderStatusEvent{TraderID: trader.ID, Enabled: false}))

	assert.True(t, containsText(h.sender.to(customer.ID), "waiting for your payment receipt"))
	assert.True(t, containsText(h.sender.to(trader.ID), "confirm you received the payment"))
	assert.True(t, containsText(h.sender.to(trader.ID), "has been disabled"))
}
