package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zealicon/zealicon-backend/internal/model"
	"github.com/zealicon/zealicon-backend/internal/queue"
	"github.com/zealicon/zealicon-backend/internal/repository"
	"github.com/zealicon/zealicon-backend/internal/utils"
)

// Reconciliation outcomes. Handlers map these onto HTTP statuses; the
// webhook path logs them and acknowledges regardless.
var (
	ErrMissingParams       = errors.New("missing payment parameters")
	ErrInvalidSignature    = errors.New("payment signature verification failed")
	ErrUserNotFound        = errors.New("no user associated with this payment")
	ErrOrderNotFound       = errors.New("no order associated with this payment")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrGatewayAPI          = errors.New("error verifying payment with gateway")
	ErrInsufficientStock   = errors.New("stock too low for order")
)

// RegistrationStore is the slice of the user repository the engine needs:
// resolving a registration order to its user and the write-once zeal id
// claim. Satisfied by *repository.UserRepo.
type RegistrationStore interface {
	FindByOrderID(ctx context.Context, orderID string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	ClaimZealID(ctx context.Context, userID uint64, zealID string) (bool, error)
}

// OrderStore is the slice of the order repositories the engine needs.
// Satisfied by repository.PaymentStore.
type OrderStore interface {
	GetByOrderID(ctx context.Context, orderID string) (model.Order, error)
	DeleteByOrderID(ctx context.Context, orderID string) error
	ConfirmPaid(ctx context.Context, orderID string, merchID uint64, qty int, at time.Time) (bool, error)
}

// Publisher receives a best-effort event for every confirmed payment.
type Publisher interface {
	PaymentConfirmed(ctx context.Context, event queue.PaymentConfirmedEvent) error
}

// Service is the order reconciliation engine. Both trigger paths — the
// synchronous client verification call and the asynchronous webhook — run
// through the same Apply methods keyed by gateway order id; the
// conditional updates underneath are what make duplicate delivery safe,
// not any locking here.
type Service struct {
	gateway       Gateway
	users         RegistrationStore
	orders        OrderStore
	publisher     Publisher // may be nil
	apiSecret     string
	webhookSecret string
	now           func() time.Time
}

// NewService wires the engine. apiSecret signs order|payment strings;
// webhookSecret independently authenticates webhook bodies.
func NewService(gw Gateway, users RegistrationStore, orders OrderStore, pub Publisher, apiSecret, webhookSecret string) *Service {
	return &Service{
		gateway:       gw,
		users:         users,
		orders:        orders,
		publisher:     pub,
		apiSecret:     apiSecret,
		webhookSecret: webhookSecret,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder registers a purpose-tagged order with the gateway.
func (s *Service) CreateOrder(amountRupees int, purpose string, metadata map[string]interface{}) (GatewayOrder, error) {
	return s.gateway.CreateOrder(amountRupees, purpose, metadata)
}

// VerifySignature checks the client-supplied signature over
// "orderID|paymentID" against the API secret. Empty parameters are
// rejected before any digest work.
func (s *Service) VerifySignature(orderID, paymentID, signature string) error {
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrMissingParams
	}
	if !utils.HMACValid(s.apiSecret, orderID+"|"+paymentID, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// requireCompleted fetches the live payment status and accepts only
// captured or authorized.
func (s *Service) requireCompleted(paymentID string) error {
	status, err := s.gateway.FetchPaymentStatus(paymentID)
	if err != nil {
		return ErrGatewayAPI
	}
	if status != "captured" && status != "authorized" {
		return fmt.Errorf("%w: status %s", ErrPaymentNotCompleted, status)
	}
	return nil
}

// AuthenticateRegistration validates a client-confirmed registration
// payment end to end: signature, a user holding the order id, and the live
// payment status at the gateway.
func (s *Service) AuthenticateRegistration(ctx context.Context, orderID, paymentID, signature string) (model.User, error) {
	if err := s.VerifySignature(orderID, paymentID, signature); err != nil {
		return model.User{}, err
	}
	user, err := s.users.FindByOrderID(ctx, orderID)
	if err != nil {
		return model.User{}, ErrUserNotFound
	}
	if err := s.requireCompleted(paymentID); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// AuthenticateMerchandise is the merchandise counterpart: signature, an
// order row keyed by the gateway order id, and live payment status.
func (s *Service) AuthenticateMerchandise(ctx context.Context, orderID, paymentID, signature string) (model.Order, error) {
	if err := s.VerifySignature(orderID, paymentID, signature); err != nil {
		return model.Order{}, err
	}
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return model.Order{}, ErrOrderNotFound
	}
	if err := s.requireCompleted(paymentID); err != nil {
		return model.Order{}, err
	}
	return order, nil
}

// zealIDClaimRetries bounds regeneration when the time-derived id collides.
const zealIDClaimRetries = 5

// ApplyRegistrationPayment assigns the user a zeal id exactly once.
// Duplicate deliveries (webhook racing the verification call) observe
// applied=false and the already assigned id. The generated id can collide
// within its time quantum, so the claim retries with a fresh value.
func (s *Service) ApplyRegistrationPayment(ctx context.Context, user model.User, trigger string) (zealID string, applied bool, err error) {
	if user.ZealID.Valid {
		return user.ZealID.String, false, nil
	}
	for i := 0; i < zealIDClaimRetries; i++ {
		id := utils.ZealID()
		ok, err := s.users.ClaimZealID(ctx, user.ID, id)
		if err == repository.ErrZealIDTaken {
			time.Sleep(120 * time.Millisecond) // move past the generator's quantum
			continue
		}
		if err != nil {
			return "", false, err
		}
		if !ok {
			// Lost the race: the other trigger claimed first.
			fresh, err := s.users.GetByID(ctx, user.ID)
			if err != nil {
				return "", false, err
			}
			return fresh.ZealID.String, false, nil
		}
		s.publish(ctx, queue.PaymentConfirmedEvent{
			Purpose:     PurposeRegistration,
			OrderID:     user.OrderID.String,
			UserID:      user.ID,
			ZealID:      id,
			Trigger:     trigger,
			ConfirmedAt: s.now().Format(time.RFC3339),
		})
		return id, true, nil
	}
	return "", false, repository.ErrZealIDTaken
}

// ApplyMerchandisePayment flips the order to PAID and decrements stock as
// one transaction. Orders already past PENDING no-op with applied=false;
// ErrInsufficientStock means the stock ran out before confirmation and
// nothing was changed.
func (s *Service) ApplyMerchandisePayment(ctx context.Context, order model.Order, trigger string) (applied bool, err error) {
	if order.Status != model.OrderPending {
		return false, nil
	}
	ok, err := s.orders.ConfirmPaid(ctx, order.OrderID, order.MerchID, order.Quantity, s.now())
	if err == repository.ErrConflict {
		return false, ErrInsufficientStock
	}
	if err != nil {
		return false, err
	}
	if ok {
		s.publish(ctx, queue.PaymentConfirmedEvent{
			Purpose:     PurposeMerchandise,
			OrderID:     order.OrderID,
			UserID:      order.UserID,
			MerchID:     order.MerchID,
			Quantity:    order.Quantity,
			Amount:      order.Amount,
			Trigger:     trigger,
			ConfirmedAt: s.now().Format(time.RFC3339),
		})
	}
	return ok, nil
}

// RecoverRegistration resolves a registration order whose confirmation
// never arrived: the gateway is asked directly and a paid order is applied
// on the spot. zealID is empty when the order is still unpaid.
func (s *Service) RecoverRegistration(ctx context.Context, user model.User) (zealID string, applied bool, err error) {
	if user.ZealID.Valid {
		return user.ZealID.String, false, nil
	}
	if !user.OrderID.Valid {
		return "", false, nil
	}
	gw, err := s.gateway.FetchOrder(user.OrderID.String)
	if err != nil {
		return "", false, ErrGatewayAPI
	}
	if gw.Status != "paid" {
		return "", false, nil
	}
	return s.ApplyRegistrationPayment(ctx, user, "sweep")
}

// ReconcilePending resolves a PENDING order against the gateway during a
// listing sweep: a paid gateway order is applied inline, anything else is
// treated as an abandoned checkout and deleted. keep reports whether the
// row still exists afterwards.
func (s *Service) ReconcilePending(ctx context.Context, order model.Order) (keep bool, err error) {
	if order.Status != model.OrderPending {
		return true, nil
	}
	gw, err := s.gateway.FetchOrder(order.OrderID)
	if err != nil {
		return true, ErrGatewayAPI
	}
	if gw.Status == "paid" {
		if _, err := s.ApplyMerchandisePayment(ctx, order, "sweep"); err != nil {
			return true, err
		}
		return true, nil
	}
	if err := s.orders.DeleteByOrderID(ctx, order.OrderID); err != nil {
		return true, err
	}
	return false, nil
}

// VerifyWebhook authenticates an inbound webhook: HMAC over the exact raw
// body under the webhook-specific secret. Must pass before any business
// logic runs.
func (s *Service) VerifyWebhook(body []byte, signature string) error {
	if signature == "" {
		return ErrMissingParams
	}
	if !utils.HMACValid(s.webhookSecret, string(body), signature) {
		return ErrInvalidSignature
	}
	return nil
}

// webhookPayload is the subset of the gateway's webhook body we read.
type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int    `json:"amount"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ProcessWebhook applies a signature-verified webhook body. Only payment
// capture/authorization events are acted on. The order's purpose tag
// routes the apply; when the order (and so its notes) cannot be fetched,
// both transitions are tried in turn, which stays safe because each one is
// idempotent.
func (s *Service) ProcessWebhook(ctx context.Context, body []byte) error {
	var wp webhookPayload
	if err := json.Unmarshal(body, &wp); err != nil {
		return fmt.Errorf("webhook payload: %w", err)
	}
	if wp.Event != "payment.captured" && wp.Event != "payment.authorized" {
		return nil
	}
	orderID := wp.Payload.Payment.Entity.OrderID
	if orderID == "" {
		return ErrMissingParams
	}

	purpose := ""
	if gw, err := s.gateway.FetchOrder(orderID); err == nil {
		purpose, _ = gw.Notes["order_type"].(string)
	} else {
		log.Printf("webhook: fetch order %s failed: %v; falling back to blind reconciliation", orderID, err)
	}

	switch purpose {
	case PurposeRegistration:
		return s.applyRegistrationByOrderID(ctx, orderID)
	case PurposeMerchandise:
		return s.applyMerchandiseByOrderID(ctx, orderID)
	default:
		if err := s.applyRegistrationByOrderID(ctx, orderID); err == nil {
			return nil
		}
		return s.applyMerchandiseByOrderID(ctx, orderID)
	}
}

func (s *Service) applyRegistrationByOrderID(ctx context.Context, orderID string) error {
	user, err := s.users.FindByOrderID(ctx, orderID)
	if err != nil {
		return ErrUserNotFound
	}
	_, _, err = s.ApplyRegistrationPayment(ctx, user, "webhook")
	return err
}

func (s *Service) applyMerchandiseByOrderID(ctx context.Context, orderID string) error {
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return ErrOrderNotFound
	}
	_, err = s.ApplyMerchandisePayment(ctx, order, "webhook")
	return err
}

func (s *Service) publish(ctx context.Context, ev queue.PaymentConfirmedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PaymentConfirmed(ctx, ev); err != nil {
		log.Printf("payment: publish confirmation for %s failed: %v", ev.OrderID, err)
	}
}
