package repository

import (
	"context"
	"time"
)

// PaymentStore bundles the order and merch repositories behind the single
// operation payment reconciliation needs: confirming an order as paid with
// its stock decrement in one transaction.
type PaymentStore struct {
	*OrderRepo
	Merch *MerchRepo
}

func NewPaymentStore(orders *OrderRepo, merch *MerchRepo) PaymentStore {
	return PaymentStore{OrderRepo: orders, Merch: merch}
}

// ConfirmPaid flips the order PENDING→PAID and takes qty units off the
// item's stock as one atomic unit: a crash or abort between the two leaves
// neither applied.
//
// Outcomes: (true, nil) when this call performed the transition;
// (false, nil) when the order was already past PENDING — the duplicate
// delivery case — and (false, ErrConflict) when the remaining stock cannot
// cover the order, in which case the status flip is rolled back too.
func (s PaymentStore) ConfirmPaid(ctx context.Context, orderID string, merchID uint64, qty int, at time.Time) (bool, error) {
	tx, err := s.OrderRepo.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	applied, err := s.MarkPaidTx(ctx, tx, orderID, at)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}
	ok, err := s.Merch.DecrementStockTx(ctx, tx, merchID, qty)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return true, nil
}
