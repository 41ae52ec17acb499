package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/zealicon/zealicon-backend/internal/model"
)

// MerchRepo provides catalog reads/writes for merchandise and the stock
// mutation used during payment reconciliation. Stock only ever changes
// through DecrementStockTx, inside the same transaction that flips the
// order status, so the pair is all-or-nothing.
type MerchRepo struct{ db *sql.DB }

func NewMerchRepo(db *sql.DB) *MerchRepo { return &MerchRepo{db: db} }

// DB exposes the underlying pool so handlers can open transactions
// spanning merch and order updates.
func (r *MerchRepo) DB() *sql.DB { return r.db }

func scanMerch(scan func(dest ...interface{}) error) (model.Merch, error) {
	var m model.Merch
	var sizes sql.NullString
	if err := scan(&m.ID, &m.Title, &m.Photo, &sizes, &m.Description, &m.Stock, &m.Price); err != nil {
		return model.Merch{}, err
	}
	if sizes.Valid && sizes.String != "" {
		m.Sizes = strings.Split(sizes.String, ",")
	}
	return m, nil
}

// GetByID fetches a single merch item.
func (r *MerchRepo) GetByID(ctx context.Context, id uint64) (model.Merch, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id,title,photo,sizes,description,stock,price FROM merch WHERE id=? LIMIT 1", id)
	return scanMerch(row.Scan)
}

// List returns the whole catalog.
func (r *MerchRepo) List(ctx context.Context) ([]model.Merch, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id,title,photo,sizes,description,stock,price FROM merch ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Merch
	for rows.Next() {
		m, err := scanMerch(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Create inserts a merch item and returns its id.
func (r *MerchRepo) Create(ctx context.Context, m model.Merch) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO merch (title, photo, sizes, description, stock, price) VALUES (?,?,?,?,?,?)",
		m.Title, m.Photo, strings.Join(m.Sizes, ","), m.Description, m.Stock, m.Price)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Update patches the provided columns of a merch item. Nil pointers leave
// the column untouched. Matched is false when the item does not exist.
func (r *MerchRepo) Update(ctx context.Context, id uint64, title, photo, description *string, sizes []string, stock, price *int) (bool, error) {
	sets := []string{}
	args := []interface{}{}
	if title != nil {
		sets = append(sets, "title=?")
		args = append(args, *title)
	}
	if photo != nil {
		sets = append(sets, "photo=?")
		args = append(args, *photo)
	}
	if description != nil {
		sets = append(sets, "description=?")
		args = append(args, *description)
	}
	if sizes != nil {
		sets = append(sets, "sizes=?")
		args = append(args, strings.Join(sizes, ","))
	}
	if stock != nil {
		sets = append(sets, "stock=?")
		args = append(args, *stock)
	}
	if price != nil {
		sets = append(sets, "price=?")
		args = append(args, *price)
	}
	if len(sets) == 0 {
		return true, nil
	}
	args = append(args, id)
	res, err := r.db.ExecContext(ctx, "UPDATE merch SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a merch item. Matched is false when nothing was deleted.
func (r *MerchRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM merch WHERE id=?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DecrementStockTx takes qty units off an item's stock inside tx, but only
// if that much stock remains; the guard makes concurrent confirmations for
// the last units serialize correctly instead of losing an update.
func (r *MerchRepo) DecrementStockTx(ctx context.Context, tx *sql.Tx, merchID uint64, qty int) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE merch SET stock = stock - ? WHERE id=? AND stock >= ?",
		qty, merchID, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
