// Package queue defines message payloads exchanged over the message broker.
package queue

// PaymentConfirmedEvent is published whenever a payment reaches its
// confirmed state — a registration gaining its zeal id or a merchandise
// order flipping to PAID. It carries enough for downstream consumers to
// log or notify without querying the primary database.
type PaymentConfirmedEvent struct {
	Purpose     string `json:"purpose"` // registration | merchandise
	OrderID     string `json:"order_id"`
	UserID      uint64 `json:"user_id"`
	ZealID      string `json:"zeal_id,omitempty"`
	MerchID     uint64 `json:"merch_id,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
	Amount      int    `json:"amount"`
	Trigger     string `json:"trigger"` // verify | webhook | sweep
	ConfirmedAt string `json:"confirmed_at"`
}
