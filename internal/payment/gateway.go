// Package payment implements order creation against the payment gateway and
// the reconciliation engine that converts gateway confirmations into
// exactly-once state transitions (registration zeal ids, merchandise
// orders).
package payment

import (
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// Purposes tagged onto gateway orders so reconciliation can route a bare
// order id without a local lookup table.
const (
	PurposeRegistration = "registration"
	PurposeMerchandise  = "merchandise"
)

// GatewayOrder is the subset of a gateway order this backend cares about.
type GatewayOrder struct {
	ID       string                 // gateway-assigned order id
	Status   string                 // created | attempted | paid
	Amount   int                    // minor units (paise)
	Currency string                 //
	Notes    map[string]interface{} // purpose tag + opaque metadata
}

// Gateway is the payment capability consumed by the reconciliation engine:
// create a purpose-tagged order, look up a payment's live status and fetch
// an order back (status + notes). Implemented by RazorpayGateway in
// production and by fakes in tests.
type Gateway interface {
	CreateOrder(amountRupees int, purpose string, metadata map[string]interface{}) (GatewayOrder, error)
	FetchPaymentStatus(paymentID string) (string, error)
	FetchOrder(orderID string) (GatewayOrder, error)
}

// RazorpayGateway adapts the official Razorpay client to Gateway.
type RazorpayGateway struct {
	client *razorpay.Client
}

// NewRazorpayGateway builds a gateway client from API credentials.
func NewRazorpayGateway(keyID, apiSecret string) *RazorpayGateway {
	return &RazorpayGateway{client: razorpay.NewClient(keyID, apiSecret)}
}

// CreateOrder registers an INR order with the gateway. The purpose lands in
// notes.order_type next to the caller's metadata, which is how webhook
// reconciliation later tells registration and merchandise orders apart.
func (g *RazorpayGateway) CreateOrder(amountRupees int, purpose string, metadata map[string]interface{}) (GatewayOrder, error) {
	notes := map[string]interface{}{"order_type": purpose}
	for k, v := range metadata {
		notes[k] = v
	}
	body, err := g.client.Order.Create(map[string]interface{}{
		"currency": "INR",
		"amount":   amountRupees * 100, // rupees -> paise
		"notes":    notes,
	}, nil)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("gateway create order: %w", err)
	}
	return orderFromBody(body), nil
}

// FetchPaymentStatus returns the live status of a payment.
func (g *RazorpayGateway) FetchPaymentStatus(paymentID string) (string, error) {
	body, err := g.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return "", fmt.Errorf("gateway fetch payment: %w", err)
	}
	s, _ := body["status"].(string)
	return s, nil
}

// FetchOrder returns the live state of an order, including its notes.
func (g *RazorpayGateway) FetchOrder(orderID string) (GatewayOrder, error) {
	body, err := g.client.Order.Fetch(orderID, nil, nil)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("gateway fetch order: %w", err)
	}
	return orderFromBody(body), nil
}

func orderFromBody(body map[string]interface{}) GatewayOrder {
	o := GatewayOrder{}
	o.ID, _ = body["id"].(string)
	o.Status, _ = body["status"].(string)
	o.Currency, _ = body["currency"].(string)
	if amt, ok := body["amount"].(float64); ok {
		o.Amount = int(amt)
	}
	if notes, ok := body["notes"].(map[string]interface{}); ok {
		o.Notes = notes
	}
	return o
}
