package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/events"
	"github.com/parts-pp/parts-pp-sub000/internal/metrics"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// sweepRule is one timer. due is evaluated twice: on the listing snapshot
// and again inside the save, so a rule fires at most once per cadence.
type sweepRule struct {
	kind   string
	event  string
	column string
	due    func(o *entities.Order, st Settings, now time.Time) bool
}

var sweepRules = []sweepRule{
	{
		kind:   events.ReminderNoquoteUser,
		event:  entities.EventNoquoteUserPing,
		column: entities.ColLastNoquoteUserPingAt,
		due: func(o *entities.Order, st Settings, now time.Time) bool {
			return o.State == entities.StateQuoteBroadcast &&
				elapsed(noquoteSince(o), now, st.NoquotePing) &&
				cooledDown(o.LastNoquoteUserPingAt, now, st.NoquotePing)
		},
	},
	{
		kind:   events.ReminderNoquoteAdmin,
		event:  entities.EventAdminNoquoteEscalated,
		column: entities.ColAdminNoquote24hSentAt,
		due: func(o *entities.Order, st Settings, now time.Time) bool {
			return o.State == entities.StateQuoteBroadcast &&
				o.AdminNoquote24hSentAt.IsZero() &&
				elapsed(noquoteSince(o), now, st.NoquotePing)
		},
	},
	{
		kind:   events.ReminderUnpaidUser,
		event:  entities.EventUnpaidUserPing,
		column: entities.ColLastUnpaidUserPingAt,
		due: func(o *entities.Order, st Settings, now time.Time) bool {
			since := o.PayMethodSetAt
			if since.IsZero() {
				since = o.CreatedAt
			}
			return o.State == entities.StateAwaitReceipt &&
				elapsed(since, now, st.UnpaidPing) &&
				cooledDown(o.LastUnpaidUserPingAt, now, st.UnpaidPing)
		},
	},
	{
		kind:   events.ReminderPaidTrader,
		event:  entities.EventPaidTraderPing,
		column: entities.ColLastPaidTraderPingAt,
		due: func(o *entities.Order, st Settings, now time.Time) bool {
			return !o.State.IsTerminal() &&
				o.AcceptedTraderID != 0 &&
				o.GoodsPaymentStatus == entities.PaymentConfirmed &&
				o.TraderPaidAckAt.IsZero() &&
				elapsed(o.GoodsPaymentConfirmedAt, now, st.PaidTraderPing) &&
				cooledDown(o.LastPaidTraderPingAt, now, st.PaidTraderPing)
		},
	},
}

// noquoteSince is when the order was handed to traders.
func noquoteSince(o *entities.Order) time.Time {
	switch {
	case !o.ForwardedToTeamAt.IsZero():
		return o.ForwardedToTeamAt
	case !o.LastGroupBroadcastAt.IsZero():
		return o.LastGroupBroadcastAt
	default:
		return o.CreatedAt
	}
}

func elapsed(since, now time.Time, d time.Duration) bool {
	return !since.IsZero() && now.Sub(since) >= d
}

func cooledDown(last, now time.Time, d time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= d
}

type SweeperInterface interface {
	RunOnce(ctx context.Context, now time.Time) (int, error)
}

type Sweeper struct {
	orders    *OrderService
	orderRepo repositories.OrderRepositoryInterface
	settings  SettingsServiceInterface
	bus       Publisher
	logger    *zap.Logger
}

func NewSweeper(orders *OrderService, orderRepo repositories.OrderRepositoryInterface, settings SettingsServiceInterface, bus Publisher, logger *zap.Logger) *Sweeper {
	return &Sweeper{orders: orders, orderRepo: orderRepo, settings: settings, bus: bus, logger: logger}
}

// RunOnce scans open orders and fires every due timer. It returns the number
// of reminders stamped. Per-order failures are logged and skipped.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (int, error) {
	st, err := s.settings.Load(ctx)
	if err != nil {
		return 0, err
	}
	recs, err := s.orderRepo.ListOrders(ctx, repositories.OrderFilter{OnlyOpen: true})
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return fired, err
		}
		o := entities.OrderFromRecord(rec)
		for _, rule := range sweepRules {
			if !rule.due(o, st, now) {
				continue
			}
			order, ok, err := s.stamp(ctx, o.ID, rule, now)
			if err != nil {
				s.logger.Error("sweep stamp failed",
					zap.String("order_id", o.ID), zap.String("kind", rule.kind), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
			fired++
			metrics.SweepNotifications.WithLabelValues(rule.kind).Inc()
			s.bus.Publish(ctx, events.OrderReminderEvent{Kind: rule.kind, Order: order})
			o = order
		}
	}
	if fired > 0 {
		s.logger.Info("sweep finished", zap.Int("reminders", fired), zap.Int("scanned", len(recs)))
	}
	return fired, nil
}

func (s *Sweeper) stamp(ctx context.Context, orderID string, rule sweepRule, now time.Time) (*entities.Order, bool, error) {
	fired := false
	order, err := s.orders.transition(ctx, "sweep_"+rule.kind, orderID, entities.SystemActor(),
		func(_ *repositories.Tx, o *entities.Order, st Settings) (*change, error) {
			if !rule.due(o, st, now) {
				return nil, nil
			}
			fired = true
			return &change{
				patch:   repositories.Record{rule.column: utils.FormatUTC(now)},
				event:   rule.event,
				payload: map[string]interface{}{"kind": rule.kind},
			}, nil
		})
	return order, fired, err
}
