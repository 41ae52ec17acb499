package model

import (
	"database/sql"
)

// Merchandise order statuses.  PENDING is the only pre-payment state.
// The PENDING→PAID transition decrements merch stock atomically with the
// status write; FULFILLED and CANCELLED are reachable only from PAID.
const (
	OrderPending   = "PENDING"
	OrderPaid      = "PAID"
	OrderFulfilled = "FULFILLED"
	OrderCancelled = "CANCELLED"
)

// OrderStatuses lists every valid orders.status value.
var OrderStatuses = []string{OrderPending, OrderPaid, OrderFulfilled, OrderCancelled}

// Order mirrors the `orders` table: one row per merchandise checkout.
// OrderID is the gateway-assigned order identifier and is unique; it is the
// reconciliation key shared by the client verification call and the webhook.
type Order struct {
	ID          uint64         // orders.id
	OrderID     string         // orders.order_id (gateway id, unique)
	UserID      uint64         // orders.user_id
	MerchID     uint64         // orders.merch_id
	Size        sql.NullString // orders.size
	Quantity    int            // orders.quantity (>= 1)
	Amount      int            // orders.amount (rupees)
	Status      string         // orders.status
	PurchasedAt sql.NullTime   // orders.purchased_at (set on PAID)
}
