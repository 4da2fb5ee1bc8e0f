package entities

import "time"

type Trader struct {
	ID          int64
	DisplayName string
	CompanyName string
	ShopPhone   string
	CRNo        string
	VATNo       string
	PaymentMode string
	BankName    string
	IBAN        string
	STCPay      string
	JoinedAt    time.Time
	IsEnabled   bool
	UpdatedAt   time.Time
}

type SubscriptionStatus string

const (
	SubscriptionAwaiting  SubscriptionStatus = "awaiting"
	SubscriptionConfirmed SubscriptionStatus = "confirmed"
)

// TraderSubscription is the monthly fee record; unique per (TraderID, Month).
type TraderSubscription struct {
	ID            string
	TraderID      int64
	Month         string
	AmountSAR     string
	PaymentMethod string
	PaymentStatus SubscriptionStatus
	ReceiptFileID string
	PaidAt        time.Time
	CreatedAt     time.Time
}
