package handler

import (
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zealicon/zealicon-backend/internal/config"
	"github.com/zealicon/zealicon-backend/internal/payment"
	"github.com/zealicon/zealicon-backend/internal/repository"
)

// ZealHandler owns festival registration: the fee checkout, both payment
// confirmation paths and zeal id lookups.
type ZealHandler struct {
	Users *repository.UserRepo
	Pay   *payment.Service
	Cfg   config.Config
}

func NewZealHandler(users *repository.UserRepo, pay *payment.Service, cfg config.Config) *ZealHandler {
	return &ZealHandler{Users: users, Pay: pay, Cfg: cfg}
}

// Checkout handles POST /zeal/checkout: creates the registration-fee order
// at the gateway and ties it to the user. Re-checkout before paying simply
// replaces the stored order id.
func (h *ZealHandler) Checkout(c echo.Context) error {
	userID := c.Get("user_id").(uint64)
	ctx := c.Request().Context()

	user, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load account")
	}
	if user.ZealID.Valid {
		return fail(c, http.StatusConflict, "already registered")
	}
	if !user.Name.Valid {
		return fail(c, http.StatusBadRequest, "complete your signup first")
	}

	order, err := h.Pay.CreateOrder(config.RegistrationFee, payment.PurposeRegistration, map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	})
	if err != nil {
		return fail(c, http.StatusBadGateway, "could not create payment order")
	}
	if err := h.Users.SetOrderID(ctx, user.ID, order.ID); err != nil {
		return fail(c, http.StatusInternalServerError, "could not store order")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"order_id": order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
		"key_id":   h.Cfg.RazorpayKeyID,
	})
}

type paymentVerifyReq struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// paymentErrStatus maps reconciliation errors onto HTTP statuses shared by
// the registration and merchandise verification endpoints.
func paymentErrStatus(err error) (int, string) {
	switch {
	case errors.Is(err, payment.ErrMissingParams):
		return http.StatusBadRequest, "order id, payment id and signature required"
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusUnauthorized, "payment signature verification failed"
	case errors.Is(err, payment.ErrUserNotFound), errors.Is(err, payment.ErrOrderNotFound):
		return http.StatusNotFound, "no matching order"
	case errors.Is(err, payment.ErrPaymentNotCompleted):
		return http.StatusPaymentRequired, "payment not completed"
	case errors.Is(err, payment.ErrGatewayAPI):
		return http.StatusBadGateway, "could not verify payment with gateway"
	case errors.Is(err, payment.ErrInsufficientStock):
		return http.StatusConflict, "stock ran out before your payment was confirmed, contact support"
	}
	return http.StatusInternalServerError, "could not process payment"
}

// PaymentVerification handles POST /zeal/verify, the client-side
// confirmation path. Safe to call more than once; the zeal id is assigned
// exactly once regardless.
func (h *ZealHandler) PaymentVerification(c echo.Context) error {
	var req paymentVerifyReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "order id, payment id and signature required")
	}
	ctx := c.Request().Context()

	user, err := h.Pay.AuthenticateRegistration(ctx, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		status, msg := paymentErrStatus(err)
		return fail(c, status, msg)
	}
	zealID, _, err := h.Pay.ApplyRegistrationPayment(ctx, user, "verify")
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not finish registration")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "zeal_id": zealID})
}

// GetZealID handles GET /zeal. When no zeal id is assigned yet but a
// registration order exists, the gateway is consulted so a paid order
// whose webhook never arrived still resolves here.
func (h *ZealHandler) GetZealID(c echo.Context) error {
	userID := c.Get("user_id").(uint64)
	ctx := c.Request().Context()

	user, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load account")
	}
	if user.ZealID.Valid {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "zeal_id": user.ZealID.String})
	}
	if !user.OrderID.Valid {
		return fail(c, http.StatusPaymentRequired, "registration payment not completed")
	}
	zealID, applied, err := h.Pay.RecoverRegistration(ctx, user)
	if err != nil {
		status, msg := paymentErrStatus(err)
		return fail(c, status, msg)
	}
	if zealID == "" {
		return fail(c, http.StatusPaymentRequired, "registration payment not completed")
	}
	if applied {
		log.Printf("zeal: recovered paid registration for user %d without webhook", user.ID)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "zeal_id": zealID})
}

// VerifyZealID handles GET /zeal/:zealID, the public validity check used
// at event entry.
func (h *ZealHandler) VerifyZealID(c echo.Context) error {
	zealID := c.Param("zealID")
	user, err := h.Users.GetByZealID(c.Request().Context(), zealID)
	if err == sql.ErrNoRows {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "valid": false})
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not check zeal id")
	}
	name := ""
	if user.Name.Valid {
		name = user.Name.String
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "valid": true, "name": name, "zeal_id": zealID})
}

// Webhook handles POST /webhook/payment. Once the signature checks out the
// response is always 200: processing errors are logged, never surfaced, so
// the gateway does not retry into a poison loop.
func (h *ZealHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "could not read body")
	}
	sig := c.Request().Header.Get("X-Razorpay-Signature")
	if err := h.Pay.VerifyWebhook(body, sig); err != nil {
		return fail(c, http.StatusUnauthorized, "webhook signature verification failed")
	}
	if err := h.Pay.ProcessWebhook(c.Request().Context(), body); err != nil {
		log.Printf("webhook: processing failed: %v", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
