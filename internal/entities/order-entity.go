package entities

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// OrderState is the fine-grained lifecycle state stored in the order_status column.
type OrderState string

const (
	StatePayMethod           OrderState = "pay_method"
	StateAwaitReceipt        OrderState = "await_receipt"
	StateAwaitPaymentConfirm OrderState = "await_payment_confirm"
	StateQuoteBroadcast      OrderState = "quote_broadcast"
	StateQuoteOffered        OrderState = "quote_offered"
	StateQuoteAccepted       OrderState = "quote_accepted"
	StateGoodsPayMethod      OrderState = "goods_pay_method"
	StateAwaitGoodsReceipt   OrderState = "await_goods_receipt"
	StateAwaitGoodsConfirm   OrderState = "await_goods_confirm"
	StateDeliveryChoice      OrderState = "delivery_choice"
	StateDeliveryDetails     OrderState = "delivery_details"
	StateAwaitingShipment    OrderState = "awaiting_shipment"
	StateShipped             OrderState = "shipped"
	StateDelivered           OrderState = "delivered"
	StateCancelled           OrderState = "cancelled"
	StateRefundPending       OrderState = "refund_pending"
	StateRefunded            OrderState = "refunded"
)

var allStates = []OrderState{
	StatePayMethod, StateAwaitReceipt, StateAwaitPaymentConfirm, StateQuoteBroadcast,
	StateQuoteOffered, StateQuoteAccepted, StateGoodsPayMethod, StateAwaitGoodsReceipt,
	StateAwaitGoodsConfirm, StateDeliveryChoice, StateDeliveryDetails, StateAwaitingShipment,
	StateShipped, StateDelivered, StateCancelled, StateRefundPending, StateRefunded,
}

func ParseOrderState(raw string) (OrderState, bool) {
	for _, s := range allStates {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

func (s OrderState) IsTerminal() bool {
	return s == StateDelivered || s == StateCancelled || s == StateRefunded
}

func (s OrderState) In(states ...OrderState) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}

// Phase is the coarse label kept in the status column.
type Phase string

const (
	PhaseAwaitingQuote Phase = "awaiting_quote"
	PhaseQuoted        Phase = "quoted"
	PhaseInProgress    Phase = "in_progress"
	PhaseClosed        Phase = "closed"
	PhaseCancelled     Phase = "cancelled"
)

func (s OrderState) Phase() Phase {
	switch s {
	case StatePayMethod, StateAwaitReceipt, StateAwaitPaymentConfirm, StateQuoteBroadcast:
		return PhaseAwaitingQuote
	case StateQuoteOffered:
		return PhaseQuoted
	case StateDelivered:
		return PhaseClosed
	case StateCancelled, StateRefundPending, StateRefunded:
		return PhaseCancelled
	default:
		return PhaseInProgress
	}
}

type QuoteStatus string

const (
	QuoteNone      QuoteStatus = "none"
	QuoteRequested QuoteStatus = "requested"
	QuoteOffered   QuoteStatus = "offered"
	QuoteAccepted  QuoteStatus = "accepted"
	QuoteLocked    QuoteStatus = "locked"
)

type PaymentStatus string

const (
	PaymentNone      PaymentStatus = "none"
	PaymentAwaiting  PaymentStatus = "awaiting"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentRejected  PaymentStatus = "rejected"
)

type DeliveryChoice string

const (
	DeliveryShip   DeliveryChoice = "ship"
	DeliveryPickup DeliveryChoice = "pickup"
)

func ParseDeliveryChoice(raw string) (DeliveryChoice, bool) {
	switch DeliveryChoice(raw) {
	case DeliveryShip, DeliveryPickup:
		return DeliveryChoice(raw), true
	}
	return "", false
}

// Order is the typed view of one orders-sheet row. The row itself stays a
// header-keyed record; Order is rebuilt from it whenever logic needs types.
type Order struct {
	ID       string
	UserID   int64
	UserName string

	CarName  string
	CarModel string
	VIN      string
	Notes    string

	ItemsCount int
	State      OrderState
	Phase      Phase

	QuoteStatus      QuoteStatus
	QuoteLocked      bool
	PriceSAR         string
	GoodsAmountSAR   string
	QuoteItemPrices  map[int]string
	PartsType        string
	ShipMethod       string
	ShipCarrier      string
	ShipETA          string
	ShipIncluded     bool
	AvailabilityDays int

	QuotedTraderID         int64
	QuotedTraderName       string
	AcceptedTraderID       int64
	AcceptedTraderName     string
	AcceptedAt             time.Time
	AcceptedTraderNotified bool

	PaymentMethod      string
	PaymentStatus      PaymentStatus
	ReceiptFileID      string
	PaymentConfirmedAt time.Time
	PayMethodSetAt     time.Time

	GoodsPaymentMethod      string
	GoodsPaymentStatus      PaymentStatus
	GoodsPaymentLink        string
	GoodsReceiptFileID      string
	GoodsPaymentConfirmedAt time.Time
	TraderPaidAckAt         time.Time

	DeliveryChoice   DeliveryChoice
	DeliveryDetails  string
	ShipCity         string
	PickupCity       string
	PickupLocation   string
	ShipPhone        string
	ShippingFeeSAR   string
	ShippingTracking string
	ShippedAt        time.Time
	DeliveredAt      time.Time

	AssignedAdminID   int64
	AssignedAdminName string
	AssignedAt        time.Time

	CreatedAt             time.Time
	ForwardedToTeamAt     time.Time
	ClosedAt              time.Time
	ChatExpiresAt         time.Time
	LastNoquoteUserPingAt time.Time
	AdminNoquote24hSentAt time.Time
	LastUnpaidUserPingAt  time.Time
	LastPaidTraderPingAt  time.Time

	RebroadcastCount     int
	RebroadcastDisabled  bool
	LastGroupBroadcastAt time.Time
	TeamMessageID        string
}

// OrderFromRecord builds the typed view. Unknown state text yields an empty State.
func OrderFromRecord(r map[string]string) *Order {
	t := func(col string) time.Time {
		ts, _ := utils.ParseUTC(r[col])
		return ts
	}
	state, _ := ParseOrderState(r[ColOrderStatus])
	o := &Order{
		ID:       r[ColOrderID],
		UserID:   utils.ParseID(r[ColUserID]),
		UserName: r[ColUserName],

		CarName:  r[ColCarName],
		CarModel: r[ColCarModel],
		VIN:      r[ColVIN],
		Notes:    r[ColNotes],

		ItemsCount: utils.ParseInt(r[ColItemsCount]),
		State:      state,
		Phase:      Phase(r[ColStatus]),

		QuoteStatus:      QuoteStatus(orDefault(r[ColQuoteStatus], string(QuoteNone))),
		QuoteLocked:      utils.ParseBool(r[ColQuoteLocked]),
		PriceSAR:         r[ColPriceSAR],
		GoodsAmountSAR:   r[ColGoodsAmountSAR],
		QuoteItemPrices:  ParseItemPrices(r[ColQuoteItemPrices]),
		PartsType:        r[ColPartsType],
		ShipMethod:       r[ColShipMethod],
		ShipCarrier:      r[ColShipCarrier],
		ShipETA:          r[ColShipETA],
		ShipIncluded:     utils.ParseBool(r[ColShipIncluded]),
		AvailabilityDays: utils.ParseInt(r[ColAvailabilityDays]),

		QuotedTraderID:         utils.ParseID(r[ColQuotedTraderID]),
		QuotedTraderName:       r[ColQuotedTraderName],
		AcceptedTraderID:       utils.ParseID(r[ColAcceptedTraderID]),
		AcceptedTraderName:     r[ColAcceptedTraderName],
		AcceptedAt:             t(ColAcceptedAt),
		AcceptedTraderNotified: utils.ParseBool(r[ColAcceptedTraderNotified]),

		PaymentMethod:      r[ColPaymentMethod],
		PaymentStatus:      PaymentStatus(orDefault(r[ColPaymentStatus], string(PaymentNone))),
		ReceiptFileID:      r[ColReceiptFileID],
		PaymentConfirmedAt: t(ColPaymentConfirmedAt),
		PayMethodSetAt:     t(ColPayMethodSetAt),

		GoodsPaymentMethod:      r[ColGoodsPaymentMethod],
		GoodsPaymentStatus:      PaymentStatus(orDefault(r[ColGoodsPaymentStatus], string(PaymentNone))),
		GoodsPaymentLink:        r[ColGoodsPaymentLink],
		GoodsReceiptFileID:      r[ColGoodsReceiptFileID],
		GoodsPaymentConfirmedAt: t(ColGoodsPaymentConfirmedAt),
		TraderPaidAckAt:         t(ColTraderPaidAckAt),

		DeliveryChoice:   DeliveryChoice(r[ColDeliveryChoice]),
		DeliveryDetails:  r[ColDeliveryDetails],
		ShipCity:         r[ColShipCity],
		PickupCity:       r[ColPickupCity],
		PickupLocation:   r[ColPickupLocation],
		ShipPhone:        r[ColShipPhone],
		ShippingFeeSAR:   r[ColShippingFeeSAR],
		ShippingTracking: r[ColShippingTracking],
		ShippedAt:        t(ColShippedAt),
		DeliveredAt:      t(ColDeliveredAt),

		AssignedAdminID:   utils.ParseID(r[ColAssignedAdminID]),
		AssignedAdminName: r[ColAssignedAdminName],
		AssignedAt:        t(ColAssignedAt),

		CreatedAt:             t(ColCreatedAt),
		ForwardedToTeamAt:     t(ColForwardedToTeamAt),
		ClosedAt:              t(ColClosedAt),
		ChatExpiresAt:         t(ColChatExpiresAt),
		LastNoquoteUserPingAt: t(ColLastNoquoteUserPingAt),
		AdminNoquote24hSentAt: t(ColAdminNoquote24hSentAt),
		LastUnpaidUserPingAt:  t(ColLastUnpaidUserPingAt),
		LastPaidTraderPingAt:  t(ColLastPaidTraderPingAt),

		RebroadcastCount:     utils.ParseInt(r[ColRebroadcastCount]),
		RebroadcastDisabled:  utils.ParseBool(r[ColRebroadcastDisabled]),
		LastGroupBroadcastAt: t(ColLastGroupBroadcastAt),
		TeamMessageID:        r[ColTeamMessageID],
	}
	return o
}

// ChatExpired reports whether the customer/trader relay window has closed.
func (o *Order) ChatExpired(now time.Time) bool {
	return !o.ChatExpiresAt.IsZero() && !now.Before(o.ChatExpiresAt)
}

// ParseItemPrices reads the quote_item_prices JSON ({"1":"50.00"}).
func ParseItemPrices(raw string) map[int]string {
	out := map[int]string{}
	if raw == "" {
		return out
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return out
	}
	for k, v := range m {
		if idx, err := strconv.Atoi(k); err == nil {
			out[idx] = v
		}
	}
	return out
}

func FormatItemPrices(prices map[int]string) string {
	if len(prices) == 0 {
		return ""
	}
	m := make(map[string]string, len(prices))
	for idx, v := range prices {
		m[strconv.Itoa(idx)] = v
	}
	data, _ := json.Marshal(m)
	return string(data)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
