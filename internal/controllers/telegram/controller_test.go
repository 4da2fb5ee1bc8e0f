package telegram

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

	"github.com/parts-pp/parts-pp-sub000/internal/dto"
	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	"github.com/parts-pp/parts-pp-sub000/internal/services"
	"github.com/parts-pp/parts-pp-sub000/pkg/config"
	"github.com/parts-pp/parts-pp-sub000/pkg/customvalidator"
	"github.com/parts-pp/parts-pp-sub000/pkg/eventbus"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
)

const (
	customerID int64 = 77
	adminID    int64 = 900
)

type fakeBot struct {
	mu       sync.Mutex
	messages map[int64][]string
	answered int
}

func (b *fakeBot) record(chatID int64, text string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[chatID] = append(b.messages[chatID], text)
	return len(b.messages[chatID]), nil
}

func (b *fakeBot) SendMessage(_ context.Context, chatID int64, text string, _ ...telegram.MessageOption) (int, error) {
	return b.record(chatID, text)
}

func (b *fakeBot) SendPhoto(_ context.Context, chatID int64, _, caption string, _ ...telegram.MessageOption) (int, error) {
	return b.record(chatID, caption)
}

func (b *fakeBot) SendDocument(_ context.Context, chatID int64, _, caption string, _ ...telegram.MessageOption) (int, error) {
	return b.record(chatID, caption)
}

func (b *fakeBot) AnswerCallbackQuery(context.Context, string, string) error {
	b.mu.Lock()
	b.answered++
	b.mu.Unlock()
	return nil
}

func (b *fakeBot) EditMessageText(context.Context, int64, int, string, ...telegram.MessageOption) error {
	return nil
}

func (b *fakeBot) EditOrSendMessage(ctx context.Context, chatID int64, _ int, text string, opts ...telegram.MessageOption) (int, error) {
	return b.SendMessage(ctx, chatID, text, opts...)
}

func (b *fakeBot) GetUpdates(context.Context, int, int) ([]telegram.Update, error) { return nil, nil }
func (b *fakeBot) SetWebhook(context.Context, string) error                       { return nil }
func (b *fakeBot) DeleteWebhook(context.Context) error                            { return nil }

// last returns the most recent message sent to chatID.
func (b *fakeBot) last(chatID int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.messages[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type controllerHarness struct {
	t      *testing.T
	ctx    context.Context
	bot    *fakeBot
	orders services.OrderServiceInterface
	c      *TelegramController
	tick   time.Time
}

func newControllerHarness(t *testing.T) *controllerHarness {
	t.Helper()
	logger := zap.NewNop()
	store := repositories.NewWorkbook(filepath.Join(t.TempDir(), "pp.xlsx"), logger, repositories.WithRetry(2, time.Millisecond))
	require.NoError(t, store.EnsureWorkbook(context.Background()))

	cfg := config.TelegramConfig{AdminIDs: []int64{adminID}}
	bus := eventbus.New(logger)
	t.Cleanup(bus.Wait)
	validate := customvalidator.New()
	bot := &fakeBot{messages: map[int64][]string{}}

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
	relay := services.NewRelayService(store, orderRepo, traderRepo, repositories.NewOrderCommentRepository(store),
		legalRepo, subs, bot, cfg.AdminIDs, logger)
	reports := services.NewReportService(repositories.NewReportRepository(store, logger), cfg.IsAdmin, logger)

	c := NewTelegramController(orders, subs, settings, relay, reports, bot, repositories.NewMemoryCacheRepository(), cfg, logger)
	h := &controllerHarness{t: t, ctx: context.Background(), bot: bot, orders: orders, c: c,
		tick: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	c.deduplicator.now = func() time.Time { return h.tick }
	return h
}

func (h *controllerHarness) text(from int64, text string) string {
	h.t.Helper()
	h.tick = h.tick.Add(2 * time.Second)
	h.c.HandleUpdate(h.ctx, telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: from, FirstName: "Sara"},
		Chat: telegram.Chat{ID: from, Type: "private"},
		Text: text,
	}})
	return h.bot.last(from)
}

func (h *controllerHarness) photo(from int64, fileID string) string {
	h.t.Helper()
	h.c.HandleUpdate(h.ctx, telegram.Update{Message: &telegram.Message{
		From:  &telegram.User{ID: from, FirstName: "Sara"},
		Chat:  telegram.Chat{ID: from, Type: "private"},
		Photo: []telegram.PhotoSize{{FileID: fileID + "-small", Width: 90}, {FileID: fileID, Width: 800}},
	}})
	return h.bot.last(from)
}

func (h *controllerHarness) tap(from int64, cb dto.Callback) string {
	h.t.Helper()
	data, err := cb.Encode()
	require.NoError(h.t, err)
	h.tick = h.tick.Add(time.Second)
	h.c.HandleUpdate(h.ctx, telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb",
		From: telegram.User{ID: from, FirstName: "Sara"},
		Data: data,
	}})
	return h.bot.last(from)
}

func (h *controllerHarness) createOrder() *entities.Order {
	h.t.Helper()
	o, err := h.orders.CreateOrder(h.ctx, services.CreateOrderInput{
		Customer: entities.Actor{Role: entities.RoleCustomer, ID: customerID, Name: "Sara"},
		CarName:  "Toyota", CarModel: "Camry 2018",
		Items: []services.ItemInput{{Name: "Brake pads"}},
	})
	require.NoError(h.t, err)
	return o
}

func TestHelp_AdminSectionOnlyForAdmins(t *testing.T) {
	h := newControllerHarness(t)

	reply := h.text(customerID, "/start")
	assert.Contains(t, reply, "/new - request spare parts")
	assert.NotContains(t, reply, "Admins")

	reply = h.text(adminID, "/help")
	assert.Contains(t, reply, "Admins")
}

func TestIntake_CreatesOrderAndClearsDraft(t *testing.T) {
	h := newControllerHarness(t)

	assert.Contains(t, h.text(customerID, "/new"), "car make")
	assert.Contains(t, h.text(customerID, "Toyota"), "Model and year")
	assert.Contains(t, h.text(customerID, "Camry 2018"), "VIN")

	reply := h.text(customerID, "12AB")
	assert.Contains(t, reply, "Please check your input: VIN must be 11 to 17")
	state, err := h.c.getState(h.ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, dto.StepVIN, state.Step)

	assert.Contains(t, h.text(customerID, "4t1bf1fk5cu000001"), "notes")
	assert.Contains(t, h.text(customerID, "-"), "Part 1")
	assert.Contains(t, h.text(customerID, "Brake pads"), "Part number")
	assert.Contains(t, h.text(customerID, "04465-33471"), "photo")
	assert.Contains(t, h.photo(customerID, "AgPartPhoto"), "Add another part?")
	assert.Contains(t, h.tap(customerID, dto.Callback{Action: dto.ActItemMore, Value: "no"}), "Anything else")
	h.text(customerID, "-")

	state, err = h.c.getState(h.ctx, customerID)
	require.NoError(t, err)
	assert.Nil(t, state)

	customer := entities.Actor{Role: entities.RoleCustomer, ID: customerID}
	orders, total, err := h.orders.ListOrders(h.ctx, customer, repositories.OrderFilter{}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "4T1BF1FK5CU000001", orders[0].VIN)
	assert.Equal(t, entities.StatePayMethod, orders[0].State)

	view, err := h.orders.GetOrder(h.ctx, customer, orders[0].ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "04465-33471", view.Items[0].PartNo)
	assert.Equal(t, "AgPartPhoto", view.Items[0].PhotoFileID)
}

func TestAdminCommands_GatedByConfig(t *testing.T) {
	h := newControllerHarness(t)
	o := h.createOrder()

	assert.Contains(t, h.text(customerID, "/confirm "+o.ID+" 40"), "Not allowed: this command is for admins")
	assert.Contains(t, h.text(customerID, "/frobnicate"), "Unknown command")

	_, err := h.orders.ChoosePaymentMethod(h.ctx, entities.Actor{Role: entities.RoleCustomer, ID: customerID}, o.ID, services.MethodBank)
	require.NoError(t, err)
	assert.Equal(t, o.ID+": quote_broadcast", h.text(adminID, "/confirm "+strings.ToLower(o.ID)+" 40"))
}

func TestPaymentCallbackThenReceiptPhoto(t *testing.T) {
	h := newControllerHarness(t)
	o := h.createOrder()

	h.tap(customerID, dto.Callback{Action: dto.ActPayMethod, OrderID: o.ID, Value: services.MethodSTCPay})
	assert.Equal(t, "File for "+o.ID+" received.", h.photo(customerID, "AgReceipt"))

	view, err := h.orders.GetOrder(h.ctx, entities.Actor{Role: entities.RoleAdmin, ID: adminID}, o.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateAwaitPaymentConfirm, view.Order.State)
	assert.Equal(t, "AgReceipt", view.Order.ReceiptFileID)
}

func TestReceiptWithoutState_UsesOnlyWaitingOrder(t *testing.T) {
	h := newControllerHarness(t)
	customer := entities.Actor{Role: entities.RoleCustomer, ID: customerID}

	assert.Contains(t, h.photo(customerID, "AgStray"), "Which order is this for?")

	o := h.createOrder()
	_, err := h.orders.ChoosePaymentMethod(h.ctx, customer, o.ID, services.MethodBank)
	require.NoError(t, err)
	assert.Contains(t, h.photo(customerID, "AgReceipt"), "Receipt for "+o.ID+" received")

	second := h.createOrder()
	_, err = h.orders.ChoosePaymentMethod(h.ctx, customer, second.ID, services.MethodBank)
	require.NoError(t, err)
	third := h.createOrder()
	_, err = h.orders.ChoosePaymentMethod(h.ctx, customer, third.ID, services.MethodCard)
	require.NoError(t, err)
	assert.Contains(t, h.photo(customerID, "AgAmbiguous"), "Which order is this for?")
}

func TestCallbacks_GarbageIsIgnoredButAnswered(t *testing.T) {
	h := newControllerHarness(t)

	h.c.HandleUpdate(h.ctx, telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID: "cb", From: telegram.User{ID: customerID}, Data: "not json",
	}})
	assert.Equal(t, 1, h.bot.answered)
	assert.Empty(t, h.bot.last(customerID))

	reply := h.tap(customerID, dto.Callback{Action: dto.ActItemMore, Value: "yes"})
	assert.Contains(t, reply, "there is no draft waiting for parts")
}

func TestHandleUpdate_DropsGroupAndStaleMessages(t *testing.T) {
	h := newControllerHarness(t)
	h.c.now = func() time.Time { return time.Unix(1_710_000_000, 0) }

	h.c.HandleUpdate(h.ctx, telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: customerID}, Chat: telegram.Chat{ID: -5, Type: "group"}, Text: "/start",
	}})
	h.c.HandleUpdate(h.ctx, telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: customerID}, Chat: telegram.Chat{ID: customerID, Type: "private"},
		Date: 1_710_000_000 - 600, Text: "/start",
	}})
	assert.Empty(t, h.bot.last(-5))
	assert.Empty(t, h.bot.last(customerID))
}

func TestDeduplicator_WindowPerChatAndKey(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	d := NewRequestDeduplicator()
	d.now = func() time.Time { return now }

	assert.True(t, d.TryAcquire(1, "cmd", time.Second))
	assert.False(t, d.TryAcquire(1, "cmd", time.Second))
	assert.True(t, d.TryAcquire(2, "cmd", time.Second))
	assert.True(t, d.TryAcquire(1, "cb:x", time.Second))

	now = now.Add(time.Second)
	assert.True(t, d.TryAcquire(1, "cmd", time.Second))
}
