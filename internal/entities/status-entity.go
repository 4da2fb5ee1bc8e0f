package entities

import "time"

type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// LegalLogEntry records an auditable administrative action.
type LegalLogEntry struct {
	TS        time.Time
	ActorID   int64
	ActorName string
	Action    string
	Details   string
}

// Legal log actions.
const (
	LegalTraderEnabled          = "trader_enabled"
	LegalTraderDisabled         = "trader_disabled"
	LegalSubscriptionConfirmed  = "subscription_confirmed"
	LegalOrderCancelled         = "order_cancelled"
	LegalOrderRefunded          = "order_refunded"
	LegalRelayDenied            = "relay_denied"
	LegalAuthorizationDenied    = "authorization_denied"
	LegalRebroadcastDisabled    = "rebroadcast_disabled"
	LegalPaymentConfirmedManual = "payment_confirmed_manual"
	LegalSettingChanged         = "setting_changed"
)
