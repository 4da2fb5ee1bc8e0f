package entities

import "time"

// Item is one requested part. Idx is 1-based and dense within an order.
type Item struct {
	OrderID     string
	Idx         int
	Name        string
	PartNo      string
	PhotoFileID string
	CreatedAt   time.Time
}
