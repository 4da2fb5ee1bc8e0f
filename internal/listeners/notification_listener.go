package listeners

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/dto"
	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/events"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	"github.com/parts-pp/parts-pp-sub000/internal/services"
	"github.com/parts-pp/parts-pp-sub000/pkg/config"
	"github.com/parts-pp/parts-pp-sub000/pkg/eventbus"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// NotificationListener turns committed domain events into Telegram messages.
// It runs on the bus goroutines, never under the store lock.
type NotificationListener struct {
	sender    services.Sender
	orders    services.OrderServiceInterface
	orderRepo repositories.OrderRepositoryInterface
	cfg       config.TelegramConfig
	logger    *zap.Logger
}

func NewNotificationListener(
	sender services.Sender,
	orders services.OrderServiceInterface,
	orderRepo repositories.OrderRepositoryInterface,
	cfg config.TelegramConfig,
	logger *zap.Logger,
) *NotificationListener {
	return &NotificationListener{
		sender:    sender,
		orders:    orders,
		orderRepo: orderRepo,
		cfg:       cfg,
		logger:    logger,
	}
}

func (l *NotificationListener) Register(bus *eventbus.Bus) {
	bus.Subscribe(events.OrderChangedName, l.handleOrderChanged)
	bus.Subscribe(events.OrderBroadcastName, l.handleBroadcast)
	bus.Subscribe(events.OrderReminderName, l.handleReminder)
	bus.Subscribe(events.SubscriptionName, l.handleSubscription)
	bus.Subscribe(events.TraderStatusName, l.handleTraderStatus)
	l.logger.Info("notification listener subscribed")
}

// send drops Forbidden after logging it; the recipient blocked the bot and
// retrying cannot help.
func (l *NotificationListener) send(ctx context.Context, chatID int64, text string, opts ...telegram.MessageOption) (int, error) {
	if chatID == 0 {
		return 0, nil
	}
	id, err := l.sender.SendMessage(ctx, chatID, text, opts...)
	if err != nil {
		l.logSendError(chatID, err)
	}
	return id, err
}

func (l *NotificationListener) sendPhoto(ctx context.Context, chatID int64, fileID, caption string, opts ...telegram.MessageOption) error {
	if chatID == 0 {
		return nil
	}
	if fileID == "" {
		_, err := l.send(ctx, chatID, caption, opts...)
		return err
	}
	_, err := l.sender.SendPhoto(ctx, chatID, fileID, caption, opts...)
	if err != nil {
		l.logSendError(chatID, err)
	}
	return err
}

func (l *NotificationListener) logSendError(chatID int64, err error) {
	if errors.Is(err, telegram.ErrForbidden) {
		l.logger.Warn("recipient blocked the bot", zap.Int64("chat_id", chatID))
		return
	}
	l.logger.Error("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
}

// notifyAdmins posts to the team chat when configured, otherwise to every
// admin directly.
func (l *NotificationListener) notifyAdmins(ctx context.Context, o *entities.Order, text string, opts ...telegram.MessageOption) {
	if l.cfg.TeamChatID != 0 {
		id, err := l.send(ctx, l.cfg.TeamChatID, text, opts...)
		if o != nil {
			l.trackTeamMessage(ctx, o, id, err)
		}
		return
	}
	targets := l.cfg.AdminIDs
	if o != nil && o.AssignedAdminID != 0 {
		targets = []int64{o.AssignedAdminID}
	}
	for _, id := range targets {
		_, _ = l.send(ctx, id, text, opts...)
	}
}

func (l *NotificationListener) notifyAdminsPhoto(ctx context.Context, fileID, caption string, opts ...telegram.MessageOption) {
	if l.cfg.TeamChatID != 0 {
		_ = l.sendPhoto(ctx, l.cfg.TeamChatID, fileID, caption, opts...)
		return
	}
	for _, id := range l.cfg.AdminIDs {
		_ = l.sendPhoto(ctx, id, fileID, caption, opts...)
	}
}

// trackTeamMessage remembers the team chat message of an order and forgets
// it once the team chat refuses the bot.
func (l *NotificationListener) trackTeamMessage(ctx context.Context, o *entities.Order, messageID int, err error) {
	var patch repositories.Record
	switch {
	case err == nil && messageID != 0 && o.TeamMessageID == "":
		patch = repositories.Record{entities.ColTeamMessageID: strconv.Itoa(messageID)}
	case errors.Is(err, telegram.ErrForbidden) && o.TeamMessageID != "":
		patch = repositories.Record{entities.ColTeamMessageID: ""}
	default:
		return
	}
	if uerr := l.orderRepo.UpdateOrderFields(ctx, o.ID, patch); uerr != nil {
		l.logger.Error("team message id update failed", zap.String("order_id", o.ID), zap.Error(uerr))
	}
}

func (l *NotificationListener) handleOrderChanged(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.OrderChangedEvent)
	if !ok || e.Order == nil {
		return nil
	}
	o := e.Order

	switch e.Event.Type {
	case entities.EventOrderCreated:
		_, _ = l.send(ctx, o.UserID, orderSummary(o, e.Items)+"\n\nYour order is registered. Choose how to pay the service fee:",
			paymentMethodKeyboard(o.ID))
		l.notifyAdmins(ctx, o, "New order from "+o.UserName+"\n"+orderSummary(o, e.Items))

	case entities.EventPaymentMethodChosen:
		_, _ = l.send(ctx, o.UserID, fmt.Sprintf("Order %s: please send a photo of your %s payment receipt.", o.ID, o.PaymentMethod))

	case entities.EventReceiptSubmitted:
		caption := fmt.Sprintf("Receipt for order %s (%s)\nConfirm with /confirm %s <amount> %s", o.ID, o.PaymentMethod, o.ID, o.PaymentMethod)
		l.notifyAdminsPhoto(ctx, o.ReceiptFileID, caption,
			keyboard(button("Reject receipt", dto.Callback{Action: dto.ActRejectPayment, OrderID: o.ID})))

	case entities.EventPaymentConfirmed:
		_, _ = l.send(ctx, o.UserID, fmt.Sprintf("Payment for order %s confirmed (%s). We are collecting quotes from traders.", o.ID, sar(o.PriceSAR)))

	case entities.EventPaymentRejected:
		_, _ = l.send(ctx, o.UserID, fmt.Sprintf("The receipt for order %s was rejected: %v. Please send a new one.", o.ID, e.Event.Payload["reason"]))

	case entities.EventQuoteSubmitted, entities.EventQuoteOverridden:
		traderID := utils.ParseID(fmt.Sprint(e.Event.Payload["trader_id"]))
		opts := []telegram.MessageOption{}
		if !o.QuoteLocked {
			opts = append(opts, keyboard(button("Accept this quote",
				dto.Callback{Action: dto.ActAcceptQuote, OrderID: o.ID, Value: utils.FormatID(traderID)})))
		}
		_, _ = l.send(ctx, o.UserID, quoteSummary(o), opts...)

	case entities.EventQuoteAccepted:
		l.notifyAcceptedTrader(ctx, o)
		_, _ = l.send(ctx, o.UserID, fmt.Sprintf("You accepted the quote for order %s. You can message the trader until %s UTC.",
			o.ID, o.ChatExpiresAt.Format("2006-01-02 15:04")),
			keyboard(button("Message trader", dto.Callback{Action: dto.ActChat, OrderID: o.ID, Value: string(entities.RoleTrader)})))
		l.notifyAdmins(ctx, o, fmt.Sprintf("Order %s: quote of %s accepted (%s).", o.ID, o.AcceptedTraderName, sar(o.GoodsAmountSAR)))

	case entities.EventGoodsPaymentConfirmed:
		_, _ = l.send(ctx, o.AcceptedTraderID, fmt.Sprintf("Payment of %s for order %s has been sent.", sar(o.GoodsAmountSAR), o.ID),
			keyboard(button("I received it", dto.Callback{Action: dto.ActAckGoods, OrderID: o.ID})))
		_, _ = l.send(ctx, o.UserID, fmt.Sprintf("Order %s is paid to the trader. How would you like to receive it?", o.ID),
			deliveryKeyboard(o.ID))

	case entities.EventDeliveryDetails:
		l.notifyAdmins(ctx, o, fmt.Sprintf("Order %s: %s details received\n%s", o.ID, o.DeliveryChoice, o.DeliveryDetails))

	case entities.EventShipped:
		_, _ = l.send(ctx, o.UserID, fmt.Sprintf("Order %s has shipped. Tracking: %s %s", o.ID, o.ShipCarrier, o.ShippingTracking))

	case entities.EventDelivered:
		_, _ = l.send(ctx, o.UserID, fmt.Sprintf("Order %s is delivered. Thank you!", o.ID))
		_, _ = l.send(ctx, o.AcceptedTraderID, fmt.Sprintf("Order %s is delivered and closed.", o.ID))

	case entities.EventCancelled:
		msg := fmt.Sprintf("Order %s was cancelled.", o.ID)
		if o.State == entities.StateRefundPending {
			msg += " Your payment will be refunded."
		}
		_, _ = l.send(ctx, o.UserID, msg)
		_, _ = l.send(ctx, o.AcceptedTraderID, fmt.Sprintf("Order %s was cancelled.", o.ID))

	case entities.EventRefunded:
		_, _ = l.send(ctx, o.UserID, fmt.Sprintf("The refund of %s for order %s has been made.", sar(o.PriceSAR), o.ID))
	}
	return nil
}

// notifyAcceptedTrader tells the winner and records it. A trader that cannot
// be reached stays un-notified so admins see it in the order.
func (l *NotificationListener) notifyAcceptedTrader(ctx context.Context, o *entities.Order) {
	text := fmt.Sprintf("Your quote for order %s was accepted (%s).\nThe platform will arrange the payment.\n%s",
		o.ID, sar(o.GoodsAmountSAR), o.CarName+" "+o.CarModel)
	if _, err := l.send(ctx, o.AcceptedTraderID, text,
		keyboard(button("Message customer", dto.Callback{Action: dto.ActChat, OrderID: o.ID, Value: string(entities.RoleCustomer)}))); err != nil {
		l.notifyAdmins(ctx, o, fmt.Sprintf("Order %s: trader %d could not be notified.", o.ID, o.AcceptedTraderID))
		return
	}
	if _, err := l.orders.MarkTraderNotified(ctx, entities.SystemActor(), o.ID); err != nil {
		l.logger.Error("mark trader notified failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (l *NotificationListener) handleBroadcast(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.OrderBroadcastEvent)
	if !ok || e.Order == nil {
		return nil
	}
	text := "New request\n" + orderSummary(e.Order, e.Items)
	if e.Rebroadcast {
		text = "Still looking for a quote\n" + orderSummary(e.Order, e.Items)
	}
	kb := keyboard(button("Send a quote", dto.Callback{Action: dto.ActQuote, OrderID: e.Order.ID}))

	sent, blocked := 0, 0
	for _, traderID := range e.TraderIDs {
		if _, err := l.send(ctx, traderID, text, kb); err != nil {
			if errors.Is(err, telegram.ErrForbidden) {
				blocked++
			}
			continue
		}
		sent++
	}
	if l.cfg.TradersGroupID != 0 {
		_, _ = l.send(ctx, l.cfg.TradersGroupID, text)
	}
	l.logger.Info("order broadcast",
		zap.String("order_id", e.Order.ID),
		zap.Bool("rebroadcast", e.Rebroadcast),
		zap.Int("sent", sent),
		zap.Int("blocked", blocked),
		zap.Int("eligible", len(e.TraderIDs)))
	return nil
}

func (l *NotificationListener) handleReminder(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.OrderReminderEvent)
	if !ok || e.Order == nil {
		return nil
	}
	o := e.Order
	switch e.Kind {
	case events.ReminderNoquoteUser:
		_, _ = l.send(ctx, o.UserID, fmt.Sprintf("We are still looking for quotes for order %s. Thank you for your patience.", o.ID))
	case events.ReminderNoquoteAdmin:
		l.notifyAdmins(ctx, o, fmt.Sprintf("Order %s has had no quote for a day. Consider /rebroadcast %s", o.ID, o.ID))
	case events.ReminderUnpaidUser:
		_, _ = l.send(ctx, o.UserID, fmt.Sprintf("Order %s is waiting for your payment receipt.", o.ID))
	case events.ReminderPaidTrader:
		_, _ = l.send(ctx, o.AcceptedTraderID, fmt.Sprintf("Please confirm you received the payment for order %s.", o.ID),
			keyboard(button("I received it", dto.Callback{Action: dto.ActAckGoods, OrderID: o.ID})))
	}
	return nil
}

func (l *NotificationListener) handleSubscription(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.SubscriptionEvent)
	if !ok {
		return nil
	}
	sub := e.Subscription
	if e.Confirmed {
		_, _ = l.send(ctx, sub.TraderID, fmt.Sprintf("Your subscription for %s is active. You will receive new requests.", sub.Month))
		return nil
	}
	caption := fmt.Sprintf("Subscription receipt from trader %d for %s (%s, %s)", sub.TraderID, sub.Month, sar(sub.AmountSAR), sub.PaymentMethod)
	l.notifyAdminsPhoto(ctx, sub.ReceiptFileID, caption,
		keyboard(button("Confirm", dto.Callback{Action: dto.ActConfirmSub, Value: utils.FormatID(sub.TraderID) + ":" + sub.Month})))
	return nil
}

func (l *NotificationListener) handleTraderStatus(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.TraderStatusEvent)
	if !ok {
		return nil
	}
	text := "Your trader account has been disabled."
	if e.Enabled {
		text = "Your trader account is enabled."
	}
	_, _ = l.send(ctx, e.TraderID, text)
	return nil
}
