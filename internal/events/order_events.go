package events

import (
	"github.com/parts-pp/parts-pp-sub000/internal/entities"
)

const (
	OrderChangedName   = "order.changed"
	OrderBroadcastName = "order.broadcast"
	OrderReminderName  = "order.reminder"
	SubscriptionName   = "trader.subscription"
	TraderStatusName   = "trader.status"
)

// OrderChangedEvent is published after a transition has been committed.
type OrderChangedEvent struct {
	Event entities.Event
	Order *entities.Order
	Items []entities.Item
}

func (e OrderChangedEvent) Name() string { return OrderChangedName }

// OrderBroadcastEvent announces an order to the eligible traders resolved at
// commit time.
type OrderBroadcastEvent struct {
	Order       *entities.Order
	Items       []entities.Item
	TraderIDs   []int64
	Rebroadcast bool
}

func (e OrderBroadcastEvent) Name() string { return OrderBroadcastName }

// Reminder kinds produced by the timer sweep.
const (
	ReminderNoquoteUser  = "noquote_user"
	ReminderNoquoteAdmin = "noquote_admin"
	ReminderUnpaidUser   = "unpaid_user"
	ReminderPaidTrader   = "paid_trader"
)

type OrderReminderEvent struct {
	Kind  string
	Order *entities.Order
}

func (e OrderReminderEvent) Name() string { return OrderReminderName }

// SubscriptionEvent is published when a trader submits a receipt or an admin
// confirms a month.
type SubscriptionEvent struct {
	Subscription entities.TraderSubscription
	Confirmed    bool
}

func (e SubscriptionEvent) Name() string { return SubscriptionName }

type TraderStatusEvent struct {
	TraderID int64
	Enabled  bool
}

func (e TraderStatusEvent) Name() string { return TraderStatusName }
