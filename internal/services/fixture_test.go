package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/events"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	"github.com/parts-pp/parts-pp-sub000/pkg/customvalidator"
	"github.com/parts-pp/parts-pp-sub000/pkg/eventbus"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
)

var (
	customer = entities.Actor{Role: entities.RoleCustomer, ID: 77, Name: "Sara"}
	stranger = entities.Actor{Role: entities.RoleCustomer, ID: 78, Name: "Omar"}
	admin    = entities.Actor{Role: entities.RoleAdmin, ID: 900, Name: "Ops"}
	trader   = entities.Actor{Role: entities.RoleTrader, ID: 501, Name: "Riyadh Parts"}
	trader2  = entities.Actor{Role: entities.RoleTrader, ID: 502, Name: "Jeddah Spares"}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingBus captures published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recordingBus) Publish(_ context.Context, ev eventbus.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *recordingBus) broadcasts() []events.OrderBroadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.OrderBroadcastEvent
	for _, ev := range b.events {
		if bc, ok := ev.(events.OrderBroadcastEvent); ok {
			out = append(out, bc)
		}
	}
	return out
}

func (b *recordingBus) reminders() []events.OrderReminderEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.OrderReminderEvent
	for _, ev := range b.events {
		if r, ok := ev.(events.OrderReminderEvent); ok {
			out = append(out, r)
		}
	}
	return out
}

type sentMessage struct {
	ChatID int64
	Kind   string
	FileID string
	Text   string
}

// fakeSender records deliveries; chats listed in blocked answer Forbidden.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	blocked map[int64]bool
}

func (f *fakeSender) record(chatID int64, kind, fileID, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked[chatID] {
		return 0, telegram.ErrForbidden
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Kind: kind, FileID: fileID, Text: text})
	return len(f.sent), nil
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string, _ ...telegram.MessageOption) (int, error) {
	return f.record(chatID, "text", "", text)
}

func (f *fakeSender) SendPhoto(_ context.Context, chatID int64, fileID, caption string, _ ...telegram.MessageOption) (int, error) {
	return f.record(chatID, "photo", fileID, caption)
}

func (f *fakeSender) SendDocument(_ context.Context, chatID int64, fileID, caption string, _ ...telegram.MessageOption) (int, error) {
	return f.record(chatID, "document", fileID, caption)
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *testClock
	store    *repositories.Workbook
	bus      *recordingBus
	sender   *fakeSender
	orders   *OrderService
	subs     SubscriptionServiceInterface
	settings SettingsServiceInterface
	relay    RelayServiceInterface
	reports  ReportServiceInterface
	sweeper  *Sweeper
	history  repositories.OrderHistoryRepositoryInterface
	messages repositories.OrderCommentRepositoryInterface
	legal    repositories.LegalLogRepositoryInterface
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	logger := zap.NewNop()
	store := repositories.NewWorkbook(filepath.Join(t.TempDir(), "pp.xlsx"), logger,
		repositories.WithRetry(2, time.Millisecond), repositories.WithClock(clock.Now))
	require.NoError(t, store.EnsureWorkbook(context.Background()))

	isAdmin := func(id int64) bool { return id == admin.ID }
	validate := customvalidator.New()
	bus := &recordingBus{}
	sender := &fakeSender{blocked: map[int64]bool{}}

	orderRepo := repositories.NewOrderRepository(store, logger)
	itemRepo := repositories.NewItemRepository(store)
	historyRepo := repositories.NewOrderHistoryRepository(store)
	messageRepo := repositories.NewOrderCommentRepository(store)
	settingsRepo := repositories.NewSettingsRepository(store)
	legalRepo := repositories.NewLegalLogRepository(store)
	traderRepo := repositories.NewTraderRepository(store)
	subRepo := repositories.NewTraderSubscriptionRepository(store)

	settings := NewSettingsService(store, settingsRepo, legalRepo, isAdmin, logger)
	subs := NewSubscriptionService(store, traderRepo, subRepo, legalRepo, settings, bus, validate, isAdmin, logger)
	ids := NewOrderIDService(store, settingsRepo, "PP")
	orders := NewOrderService(store, orderRepo, itemRepo, historyRepo, traderRepo, legalRepo,
		ids, settings, subs, bus, validate, isAdmin, logger)

	return &fixture{
		t:        t,
		ctx:      context.Background(),
		clock:    clock,
		store:    store,
		bus:      bus,
		sender:   sender,
		orders:   orders,
		subs:     subs,
		settings: settings,
		relay:    NewRelayService(store, orderRepo, traderRepo, messageRepo, legalRepo, subs, sender, []int64{admin.ID}, logger),
		reports:  NewReportService(repositories.NewReportRepository(store, logger), isAdmin, logger),
		sweeper:  NewSweeper(orders, orderRepo, settings, bus, logger),
		history:  historyRepo,
		messages: messageRepo,
		legal:    legalRepo,
	}
}

// eligibleTrader registers, enables and confirms a trader for the current month.
func (f *fixture) eligibleTrader(a entities.Actor) {
	f.t.Helper()
	_, err := f.subs.RegisterTrader(f.ctx, RegisterTraderInput{TraderID: a.ID, DisplayName: a.Name})
	require.NoError(f.t, err)
	require.NoError(f.t, f.subs.SetTraderEnabled(f.ctx, admin, a.ID, true))
	_, err = f.subs.ConfirmSubscription(f.ctx, admin, a.ID, "")
	require.NoError(f.t, err)
}

func (f *fixture) newOrder() *entities.Order {
	f.t.Helper()
	o, err := f.orders.CreateOrder(f.ctx, CreateOrderInput{
		Customer: customer,
		CarName:  "Toyota",
		CarModel: "Camry 2018",
		Items: []ItemInput{
			{Name: "Brake pads", PartNo: "04465-33471"},
			{Name: "Oil filter"},
		},
	})
	require.NoError(f.t, err)
	return o
}

// paidOrder returns an order whose pre-payment is confirmed at price.
func (f *fixture) paidOrder(price string) *entities.Order {
	f.t.Helper()
	o := f.newOrder()
	_, err := f.orders.ChoosePaymentMethod(f.ctx, customer, o.ID, MethodBank)
	require.NoError(f.t, err)
	_, err = f.orders.SubmitReceipt(f.ctx, customer, o.ID, "AgACAgQAAxkBAAIReceipt")
	require.NoError(f.t, err)
	o, err = f.orders.ConfirmPrepayment(f.ctx, admin, o.ID, price, "")
	require.NoError(f.t, err)
	return o
}

// acceptedOrder runs a paid order through one quote and its acceptance.
func (f *fixture) acceptedOrder(price, goods string) *entities.Order {
	f.t.Helper()
	o := f.paidOrder(price)
	_, err := f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{
		GoodsAmountSAR:   goods,
		AvailabilityDays: 2,
		ShipIncluded:     true,
	})
	require.NoError(f.t, err)
	o, err = f.orders.AcceptQuote(f.ctx, customer, o.ID, trader.ID)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) eventTypes(orderID string) []string {
	f.t.Helper()
	evs, err := f.history.FindByOrderID(f.ctx, orderID)
	require.NoError(f.t, err)
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func (f *fixture) legalActions() []string {
	f.t.Helper()
	entries, err := f.legal.List(f.ctx)
	require.NoError(f.t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}
