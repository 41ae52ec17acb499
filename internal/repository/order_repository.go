package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/zealicon/zealicon-backend/internal/model"
)

// OrderRepo persists merchandise orders. The status column is the shared
// state both reconciliation triggers (client verification and webhook)
// write to, so transitions are conditional single statements keyed on the
// gateway order id.
type OrderRepo struct{ db *sql.DB }

func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// DB exposes the underlying pool for transactions that span orders and
// merch stock.
func (r *OrderRepo) DB() *sql.DB { return r.db }

const orderColumns = "id,order_id,user_id,merch_id,size,quantity,amount,status,purchased_at"

func scanOrder(scan func(dest ...interface{}) error) (model.Order, error) {
	var o model.Order
	err := scan(&o.ID, &o.OrderID, &o.UserID, &o.MerchID, &o.Size, &o.Quantity, &o.Amount, &o.Status, &o.PurchasedAt)
	return o, err
}

// Create inserts a PENDING order for a fresh checkout.
func (r *OrderRepo) Create(ctx context.Context, o model.Order) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO orders (order_id, user_id, merch_id, size, quantity, amount, status) VALUES (?,?,?,?,?,?,?)",
		o.OrderID, o.UserID, o.MerchID, o.Size, o.Quantity, o.Amount, model.OrderPending)
	return err
}

// DeletePendingByUser clears any PENDING orders a user still holds. Called
// before a new checkout so a user carries at most one open order.
func (r *OrderRepo) DeletePendingByUser(ctx context.Context, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM orders WHERE user_id=? AND status=?", userID, model.OrderPending)
	return err
}

// DeleteByOrderID removes an abandoned order found unpaid during a sweep.
func (r *OrderRepo) DeleteByOrderID(ctx context.Context, orderID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM orders WHERE order_id=?", orderID)
	return err
}

// GetByOrderID fetches an order by its gateway order id.
func (r *OrderRepo) GetByOrderID(ctx context.Context, orderID string) (model.Order, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE order_id=? LIMIT 1", orderID)
	return scanOrder(row.Scan)
}

// ListByUser returns a user's orders, newest purchase first.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id=? ORDER BY purchased_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OrderDetail joins an order with its merch item (and optionally the buyer)
// for listings.
type OrderDetail struct {
	model.Order
	MerchTitle       string
	MerchDescription sql.NullString
	MerchPrice       int
	UserName         sql.NullString
	UserEmail        string
}

// ListAllDetailed returns every order joined with merch and buyer, grouped
// by status for the admin overview.
func (r *OrderRepo) ListAllDetailed(ctx context.Context) ([]OrderDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id,o.order_id,o.user_id,o.merch_id,o.size,o.quantity,o.amount,o.status,o.purchased_at,
		        m.title,m.description,m.price,u.name,u.email
		 FROM orders o
		 JOIN merch m ON m.id = o.merch_id
		 JOIN users u ON u.id = o.user_id
		 ORDER BY o.status, m.title, u.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderDetail
	for rows.Next() {
		var d OrderDetail
		if err := rows.Scan(&d.ID, &d.OrderID, &d.UserID, &d.MerchID, &d.Size, &d.Quantity, &d.Amount,
			&d.Status, &d.PurchasedAt, &d.MerchTitle, &d.MerchDescription, &d.MerchPrice,
			&d.UserName, &d.UserEmail); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkPaidTx flips an order PENDING→PAID inside tx and stamps the purchase
// time. The status guard is what makes duplicate delivery safe: a second
// confirmation for the same gateway order matches zero rows.
func (r *OrderRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, orderID string, purchasedAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status=?, purchased_at=? WHERE order_id=? AND status=?",
		model.OrderPaid, purchasedAt.UTC(), orderID, model.OrderPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetFulfilment moves a PAID order to FULFILLED or CANCELLED. Matched is
// false when the order does not exist or is not currently PAID.
func (r *OrderRepo) SetFulfilment(ctx context.Context, orderID string, status string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status=? WHERE order_id=? AND status=?",
		status, orderID, model.OrderPaid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
