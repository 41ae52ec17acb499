package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zealicon/zealicon-backend/internal/model"
	"github.com/zealicon/zealicon-backend/internal/queue"
	"github.com/zealicon/zealicon-backend/internal/repository"
	"github.com/zealicon/zealicon-backend/internal/utils"
)

const (
	apiSecret     = "api-secret"
	webhookSecret = "webhook-secret"
)

type fakeGateway struct {
	payments      map[string]string
	orders        map[string]GatewayOrder
	fetchOrderErr error
}

func (g *fakeGateway) CreateOrder(amountRupees int, purpose string, metadata map[string]interface{}) (GatewayOrder, error) {
	o := GatewayOrder{
		ID:       fmt.Sprintf("order_%d", len(g.orders)+1),
		Status:   "created",
		Amount:   amountRupees * 100,
		Currency: "INR",
		Notes:    map[string]interface{}{"order_type": purpose},
	}
	if g.orders == nil {
		g.orders = map[string]GatewayOrder{}
	}
	g.orders[o.ID] = o
	return o, nil
}

func (g *fakeGateway) FetchPaymentStatus(paymentID string) (string, error) {
	s, ok := g.payments[paymentID]
	if !ok {
		return "", errors.New("no such payment")
	}
	return s, nil
}

func (g *fakeGateway) FetchOrder(orderID string) (GatewayOrder, error) {
	if g.fetchOrderErr != nil {
		return GatewayOrder{}, g.fetchOrderErr
	}
	o, ok := g.orders[orderID]
	if !ok {
		return GatewayOrder{}, errors.New("no such order")
	}
	return o, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[uint64]model.User // keyed by id
}

func newFakeUsers(users ...model.User) *fakeUsers {
	f := &fakeUsers{users: map[uint64]model.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) FindByOrderID(ctx context.Context, orderID string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.OrderID.Valid && u.OrderID.String == orderID {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) GetByID(ctx context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUsers) ClaimZealID(ctx context.Context, userID uint64, zealID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID != userID && u.ZealID.Valid && u.ZealID.String == zealID {
			return false, repository.ErrZealIDTaken
		}
	}
	u := f.users[userID]
	if u.ZealID.Valid {
		return false, nil
	}
	u.ZealID = sql.NullString{String: zealID, Valid: true}
	f.users[userID] = u
	return true, nil
}

type fakeOrders struct {
	mu      sync.Mutex
	orders  map[string]model.Order // keyed by gateway order id
	stock   map[uint64]int
	deleted []string
}

func newFakeOrders(stock map[uint64]int, orders ...model.Order) *fakeOrders {
	f := &fakeOrders{orders: map[string]model.Order{}, stock: stock}
	for _, o := range orders {
		f.orders[o.OrderID] = o
	}
	return f
}

func (f *fakeOrders) GetByOrderID(ctx context.Context, orderID string) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return model.Order{}, sql.ErrNoRows
	}
	return o, nil
}

func (f *fakeOrders) DeleteByOrderID(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.orders, orderID)
	f.deleted = append(f.deleted, orderID)
	return nil
}

func (f *fakeOrders) ConfirmPaid(ctx context.Context, orderID string, merchID uint64, qty int, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != model.OrderPending {
		return false, nil
	}
	if f.stock[merchID] < qty {
		return false, repository.ErrConflict
	}
	f.stock[merchID] -= qty
	o.Status = model.OrderPaid
	o.PurchasedAt = sql.NullTime{Time: at, Valid: true}
	f.orders[orderID] = o
	return true, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.PaymentConfirmedEvent
}

func (f *fakePublisher) PaymentConfirmed(ctx context.Context, ev queue.PaymentConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func regUser(id uint64, orderID string) model.User {
	return model.User{
		ID:      id,
		Email:   fmt.Sprintf("u%d@test.dev", id),
		OrderID: sql.NullString{String: orderID, Valid: true},
	}
}

func pendingOrder(orderID string, merchID uint64, qty int) model.Order {
	return model.Order{
		OrderID:  orderID,
		UserID:   1,
		MerchID:  merchID,
		Quantity: qty,
		Amount:   qty * 500,
		Status:   model.OrderPending,
	}
}

func TestVerifySignature(t *testing.T) {
	s := NewService(&fakeGateway{}, newFakeUsers(), newFakeOrders(nil), nil, apiSecret, webhookSecret)

	sig := utils.HMACSign(apiSecret, "order_1|pay_1")
	if err := s.VerifySignature("order_1", "pay_1", sig); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if err := s.VerifySignature("order_1", "pay_2", sig); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
	if err := s.VerifySignature("", "pay_1", sig); !errors.Is(err, ErrMissingParams) {
		t.Errorf("err = %v, want ErrMissingParams", err)
	}
}

func TestAuthenticateRegistration(t *testing.T) {
	gw := &fakeGateway{payments: map[string]string{"pay_ok": "captured", "pay_fail": "failed"}}
	users := newFakeUsers(regUser(1, "order_1"))
	s := NewService(gw, users, newFakeOrders(nil), nil, apiSecret, webhookSecret)

	sign := func(order, pay string) string { return utils.HMACSign(apiSecret, order+"|"+pay) }

	u, err := s.AuthenticateRegistration(context.Background(), "order_1", "pay_ok", sign("order_1", "pay_ok"))
	if err != nil {
		t.Fatalf("AuthenticateRegistration: %v", err)
	}
	if u.ID != 1 {
		t.Errorf("resolved user %d, want 1", u.ID)
	}

	_, err = s.AuthenticateRegistration(context.Background(), "order_1", "pay_fail", sign("order_1", "pay_fail"))
	if !errors.Is(err, ErrPaymentNotCompleted) {
		t.Errorf("failed payment err = %v, want ErrPaymentNotCompleted", err)
	}

	_, err = s.AuthenticateRegistration(context.Background(), "order_x", "pay_ok", sign("order_x", "pay_ok"))
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown order err = %v, want ErrUserNotFound", err)
	}
}

func TestApplyRegistrationPaymentOnce(t *testing.T) {
	users := newFakeUsers(regUser(1, "order_1"))
	pub := &fakePublisher{}
	s := NewService(&fakeGateway{}, users, newFakeOrders(nil), pub, apiSecret, webhookSecret)

	snapshot, _ := users.GetByID(context.Background(), 1)

	zealID, applied, err := s.ApplyRegistrationPayment(context.Background(), snapshot, "verify")
	if err != nil || !applied || zealID == "" {
		t.Fatalf("first apply: zeal=%q applied=%v err=%v", zealID, applied, err)
	}

	// Duplicate delivery with the same stale snapshot: the claim loses and
	// the already assigned id comes back.
	again, applied, err := s.ApplyRegistrationPayment(context.Background(), snapshot, "webhook")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if applied {
		t.Error("second apply reported applied=true")
	}
	if again != zealID {
		t.Errorf("second apply returned %q, want %q", again, zealID)
	}
	if pub.count() != 1 {
		t.Errorf("published %d events, want exactly 1", pub.count())
	}
}

func TestApplyMerchandisePaymentOnce(t *testing.T) {
	orders := newFakeOrders(map[uint64]int{10: 5}, pendingOrder("order_1", 10, 2))
	pub := &fakePublisher{}
	s := NewService(&fakeGateway{}, newFakeUsers(), orders, pub, apiSecret, webhookSecret)

	snapshot, _ := orders.GetByOrderID(context.Background(), "order_1")

	applied, err := s.ApplyMerchandisePayment(context.Background(), snapshot, "verify")
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	if orders.stock[10] != 3 {
		t.Errorf("stock = %d, want 3", orders.stock[10])
	}

	applied, err = s.ApplyMerchandisePayment(context.Background(), snapshot, "webhook")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if applied {
		t.Error("duplicate delivery applied twice")
	}
	if orders.stock[10] != 3 {
		t.Errorf("stock decremented twice: %d", orders.stock[10])
	}
	if pub.count() != 1 {
		t.Errorf("published %d events, want exactly 1", pub.count())
	}
}

func TestApplyMerchandisePaymentInsufficientStock(t *testing.T) {
	orders := newFakeOrders(map[uint64]int{10: 1}, pendingOrder("order_1", 10, 2))
	s := NewService(&fakeGateway{}, newFakeUsers(), orders, nil, apiSecret, webhookSecret)

	snapshot, _ := orders.GetByOrderID(context.Background(), "order_1")
	applied, err := s.ApplyMerchandisePayment(context.Background(), snapshot, "verify")
	if applied || !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("got applied=%v err=%v, want ErrInsufficientStock", applied, err)
	}
	if orders.stock[10] != 1 {
		t.Errorf("stock changed on failed confirmation: %d", orders.stock[10])
	}
}

// Two orders race for the last unit; exactly one confirmation wins.
func TestConcurrentConfirmationsLastUnit(t *testing.T) {
	orders := newFakeOrders(map[uint64]int{10: 1},
		pendingOrder("order_a", 10, 1), pendingOrder("order_b", 10, 1))
	s := NewService(&fakeGateway{}, newFakeUsers(), orders, nil, apiSecret, webhookSecret)

	var wg sync.WaitGroup
	results := make([]error, 2)
	appliedFlags := make([]bool, 2)
	for i, id := range []string{"order_a", "order_b"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			snapshot, _ := orders.GetByOrderID(context.Background(), id)
			appliedFlags[i], results[i] = s.ApplyMerchandisePayment(context.Background(), snapshot, "verify")
		}(i, id)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for i := range results {
		if appliedFlags[i] {
			wins++
		}
		if errors.Is(results[i], ErrInsufficientStock) {
			conflicts++
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Errorf("wins=%d conflicts=%d, want exactly one of each", wins, conflicts)
	}
	if orders.stock[10] != 0 {
		t.Errorf("stock = %d, want 0", orders.stock[10])
	}
}

func webhookBody(t *testing.T, event, orderID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{"id": "pay_1", "order_id": orderID, "amount": 100},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestVerifyWebhook(t *testing.T) {
	s := NewService(&fakeGateway{}, newFakeUsers(), newFakeOrders(nil), nil, apiSecret, webhookSecret)
	body := webhookBody(t, "payment.captured", "order_1")

	if err := s.VerifyWebhook(body, utils.HMACSign(webhookSecret, string(body))); err != nil {
		t.Errorf("valid webhook rejected: %v", err)
	}
	if err := s.VerifyWebhook(body, utils.HMACSign(apiSecret, string(body))); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("api-secret signature accepted for webhook: %v", err)
	}
	if err := s.VerifyWebhook(body, ""); !errors.Is(err, ErrMissingParams) {
		t.Errorf("missing signature err = %v, want ErrMissingParams", err)
	}
}

func TestProcessWebhookRoutesByPurpose(t *testing.T) {
	gw := &fakeGateway{orders: map[string]GatewayOrder{
		"order_reg":   {ID: "order_reg", Status: "paid", Notes: map[string]interface{}{"order_type": PurposeRegistration}},
		"order_merch": {ID: "order_merch", Status: "paid", Notes: map[string]interface{}{"order_type": PurposeMerchandise}},
	}}
	users := newFakeUsers(regUser(1, "order_reg"))
	orders := newFakeOrders(map[uint64]int{10: 5}, pendingOrder("order_merch", 10, 1))
	s := NewService(gw, users, orders, nil, apiSecret, webhookSecret)

	if err := s.ProcessWebhook(context.Background(), webhookBody(t, "payment.captured", "order_reg")); err != nil {
		t.Fatalf("registration webhook: %v", err)
	}
	u, _ := users.GetByID(context.Background(), 1)
	if !u.ZealID.Valid {
		t.Error("registration webhook did not assign a zeal id")
	}

	if err := s.ProcessWebhook(context.Background(), webhookBody(t, "payment.authorized", "order_merch")); err != nil {
		t.Fatalf("merchandise webhook: %v", err)
	}
	o, _ := orders.GetByOrderID(context.Background(), "order_merch")
	if o.Status != model.OrderPaid {
		t.Errorf("order status = %s, want PAID", o.Status)
	}
}

func TestProcessWebhookIgnoresOtherEvents(t *testing.T) {
	users := newFakeUsers(regUser(1, "order_reg"))
	s := NewService(&fakeGateway{}, users, newFakeOrders(nil), nil, apiSecret, webhookSecret)

	if err := s.ProcessWebhook(context.Background(), webhookBody(t, "refund.created", "order_reg")); err != nil {
		t.Fatalf("unrelated event: %v", err)
	}
	u, _ := users.GetByID(context.Background(), 1)
	if u.ZealID.Valid {
		t.Error("unrelated event mutated state")
	}
}

func TestProcessWebhookFallbackWithoutNotes(t *testing.T) {
	// Order fetch fails, so the purpose is unknown; reconciliation falls
	// back to trying both transitions, which the order id resolves.
	gw := &fakeGateway{fetchOrderErr: errors.New("gateway down")}
	orders := newFakeOrders(map[uint64]int{10: 5}, pendingOrder("order_merch", 10, 1))
	s := NewService(gw, newFakeUsers(), orders, nil, apiSecret, webhookSecret)

	if err := s.ProcessWebhook(context.Background(), webhookBody(t, "payment.captured", "order_merch")); err != nil {
		t.Fatalf("fallback webhook: %v", err)
	}
	o, _ := orders.GetByOrderID(context.Background(), "order_merch")
	if o.Status != model.OrderPaid {
		t.Errorf("order status = %s, want PAID", o.Status)
	}
}

func TestReconcilePending(t *testing.T) {
	gw := &fakeGateway{orders: map[string]GatewayOrder{
		"order_paid":   {ID: "order_paid", Status: "paid"},
		"order_unpaid": {ID: "order_unpaid", Status: "created"},
	}}
	orders := newFakeOrders(map[uint64]int{10: 5},
		pendingOrder("order_paid", 10, 1), pendingOrder("order_unpaid", 10, 1))
	s := NewService(gw, newFakeUsers(), orders, nil, apiSecret, webhookSecret)

	keep, err := s.ReconcilePending(context.Background(), mustOrder(t, orders, "order_paid"))
	if err != nil || !keep {
		t.Fatalf("paid order: keep=%v err=%v", keep, err)
	}
	if o, _ := orders.GetByOrderID(context.Background(), "order_paid"); o.Status != model.OrderPaid {
		t.Errorf("paid order not applied: %s", o.Status)
	}

	keep, err = s.ReconcilePending(context.Background(), mustOrder(t, orders, "order_unpaid"))
	if err != nil || keep {
		t.Fatalf("unpaid order: keep=%v err=%v", keep, err)
	}
	if _, err := orders.GetByOrderID(context.Background(), "order_unpaid"); err == nil {
		t.Error("abandoned order still present")
	}
}

func TestRecoverRegistration(t *testing.T) {
	gw := &fakeGateway{orders: map[string]GatewayOrder{
		"order_paid":   {ID: "order_paid", Status: "paid"},
		"order_unpaid": {ID: "order_unpaid", Status: "created"},
	}}
	users := newFakeUsers(regUser(1, "order_paid"), regUser(2, "order_unpaid"))
	s := NewService(gw, users, newFakeOrders(nil), nil, apiSecret, webhookSecret)

	u1, _ := users.GetByID(context.Background(), 1)
	zealID, applied, err := s.RecoverRegistration(context.Background(), u1)
	if err != nil || !applied || zealID == "" {
		t.Fatalf("paid recovery: zeal=%q applied=%v err=%v", zealID, applied, err)
	}

	u2, _ := users.GetByID(context.Background(), 2)
	zealID, applied, err = s.RecoverRegistration(context.Background(), u2)
	if err != nil || applied || zealID != "" {
		t.Errorf("unpaid recovery: zeal=%q applied=%v err=%v, want empty no-op", zealID, applied, err)
	}
}

func mustOrder(t *testing.T, f *fakeOrders, id string) model.Order {
	t.Helper()
	o, err := f.GetByOrderID(context.Background(), id)
	if err != nil {
		t.Fatalf("order %s missing", id)
	}
	return o
}
