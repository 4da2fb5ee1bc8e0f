package entities

import "time"

// Event types written to the events sheet.
const (
	EventOrderCreated          = "order_created"
	EventPaymentMethodChosen   = "payment_method_chosen"
	EventReceiptSubmitted      = "receipt_submitted"
	EventPaymentConfirmed      = "payment_confirmed"
	EventPaymentRejected       = "payment_rejected"
	EventBroadcast             = "broadcast"
	EventRebroadcast           = "rebroadcast"
	EventRebroadcastDisabled   = "rebroadcast_disabled"
	EventQuoteSubmitted        = "quote_submitted"
	EventQuoteOverridden       = "quote_overridden"
	EventQuoteAccepted         = "quote_accepted"
	EventTraderNotified        = "trader_notified"
	EventGoodsMethodChosen     = "goods_payment_method_chosen"
	EventGoodsReceiptSubmitted = "goods_receipt_submitted"
	EventGoodsPaymentConfirmed = "goods_payment_confirmed"
	EventGoodsPaymentAcked     = "goods_payment_acknowledged"
	EventDeliveryChosen        = "delivery_chosen"
	EventDeliveryDetails       = "delivery_details_submitted"
	EventShipped               = "shipped"
	EventDelivered             = "delivered"
	EventCancelled             = "cancelled"
	EventRefunded              = "refunded"
	EventAdminAssigned         = "admin_assigned"
	EventInvoiceNumbers        = "invoice_numbers_set"
	EventInvoiceAttached       = "invoice_attached"
	EventNoquoteUserPing       = "noquote_user_ping"
	EventAdminNoquoteEscalated = "admin_noquote_escalated"
	EventUnpaidUserPing        = "unpaid_user_ping"
	EventPaidTraderPing        = "paid_trader_ping"
)

// Event is one append-only row of the events sheet.
type Event struct {
	ID        string
	OrderID   string
	Type      string
	Actor     Actor
	Payload   map[string]interface{}
	CreatedAt time.Time
}
