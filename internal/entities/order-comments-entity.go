package entities

import "time"

// Message is one relayed chat payload; one row per recipient.
type Message struct {
	ID           string
	OrderID      string
	SenderRole   Role
	SenderID     int64
	SenderName   string
	ReceiverRole Role
	ReceiverID   int64
	Text         string
	FileID       string
	CreatedAt    time.Time
}
