package handler

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zealicon/zealicon-backend/internal/config"
	"github.com/zealicon/zealicon-backend/internal/model"
	"github.com/zealicon/zealicon-backend/internal/payment"
	"github.com/zealicon/zealicon-backend/internal/repository"
	"github.com/zealicon/zealicon-backend/internal/utils"
)

// MerchHandler owns the merchandise catalog, checkout and order admin.
type MerchHandler struct {
	Merch  *repository.MerchRepo
	Orders *repository.OrderRepo
	Pay    *payment.Service
	Cfg    config.Config
}

func NewMerchHandler(merch *repository.MerchRepo, orders *repository.OrderRepo, pay *payment.Service, cfg config.Config) *MerchHandler {
	return &MerchHandler{Merch: merch, Orders: orders, Pay: pay, Cfg: cfg}
}

// GetMerch handles GET /merch, the public catalog.
func (h *MerchHandler) GetMerch(c echo.Context) error {
	items, err := h.Merch.List(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load merchandise")
	}
	out := make([]echo.Map, 0, len(items))
	for _, m := range items {
		out = append(out, merchJSON(m))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "merch": out})
}

type merchCheckoutReq struct {
	MerchID  uint64 `json:"merch_id" validate:"required"`
	Size     string `json:"size"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=10"`
}

// Checkout handles POST /merch/checkout: validates the item, drops any
// previous open order and registers a fresh PENDING one against a new
// gateway order. Stock is only reserved at payment confirmation, so a
// checkout can still fail later with an insufficient-stock conflict.
func (h *MerchHandler) Checkout(c echo.Context) error {
	var req merchCheckoutReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "merch_id and quantity between 1 and 10 required")
	}
	userID := c.Get("user_id").(uint64)
	ctx := c.Request().Context()

	item, err := h.Merch.GetByID(ctx, req.MerchID)
	if err == sql.ErrNoRows {
		return fail(c, http.StatusNotFound, "no such item")
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load item")
	}
	if len(item.Sizes) > 0 && !item.HasSize(req.Size) {
		return fail(c, http.StatusBadRequest, "size not offered for this item")
	}
	if item.Stock < req.Quantity {
		return fail(c, http.StatusConflict, "not enough stock")
	}

	// One open order per user: abandon whatever was left unpaid.
	if err := h.Orders.DeletePendingByUser(ctx, userID); err != nil {
		return fail(c, http.StatusInternalServerError, "could not reset open orders")
	}

	amount := item.Price * req.Quantity
	gwOrder, err := h.Pay.CreateOrder(amount, payment.PurposeMerchandise, map[string]interface{}{
		"user_id":  userID,
		"merch_id": item.ID,
		"quantity": req.Quantity,
	})
	if err != nil {
		return fail(c, http.StatusBadGateway, "could not create payment order")
	}

	order := model.Order{
		OrderID:  gwOrder.ID,
		UserID:   userID,
		MerchID:  item.ID,
		Quantity: req.Quantity,
		Amount:   amount,
	}
	if req.Size != "" {
		order.Size = sql.NullString{String: req.Size, Valid: true}
	}
	if err := h.Orders.Create(ctx, order); err != nil {
		return fail(c, http.StatusInternalServerError, "could not store order")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"order_id": gwOrder.ID,
		"amount":   gwOrder.Amount,
		"currency": gwOrder.Currency,
		"key_id":   h.Cfg.RazorpayKeyID,
	})
}

// PaymentVerification handles POST /merch/verify, the client-side
// confirmation path for merchandise orders.
func (h *MerchHandler) PaymentVerification(c echo.Context) error {
	var req paymentVerifyReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "order id, payment id and signature required")
	}
	ctx := c.Request().Context()

	order, err := h.Pay.AuthenticateMerchandise(ctx, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		status, msg := paymentErrStatus(err)
		return fail(c, status, msg)
	}
	if _, err := h.Pay.ApplyMerchandisePayment(ctx, order, "verify"); err != nil {
		status, msg := paymentErrStatus(err)
		return fail(c, status, msg)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "order confirmed"})
}

// MyOrders handles GET /merch/orders. PENDING orders are reconciled
// against the gateway on the way out, so a stale checkout disappears and a
// paid-but-unconfirmed one flips to PAID before the list is rendered.
func (h *MerchHandler) MyOrders(c echo.Context) error {
	userID := c.Get("user_id").(uint64)
	ctx := c.Request().Context()

	orders, err := h.Orders.ListByUser(ctx, userID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load orders")
	}
	swept := false
	for _, o := range orders {
		if o.Status != model.OrderPending {
			continue
		}
		if _, err := h.Pay.ReconcilePending(ctx, o); err != nil {
			log.Printf("merch: reconcile order %s failed: %v", o.OrderID, err)
		}
		swept = true
	}
	if swept {
		if orders, err = h.Orders.ListByUser(ctx, userID); err != nil {
			return fail(c, http.StatusInternalServerError, "could not load orders")
		}
	}
	out := make([]echo.Map, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderJSON(o))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "orders": out})
}

// AllOrders handles GET /merch/orders/all for admins, grouped by status.
func (h *MerchHandler) AllOrders(c echo.Context) error {
	details, err := h.Orders.ListAllDetailed(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load orders")
	}
	out := make([]echo.Map, 0, len(details))
	for _, d := range details {
		entry := orderJSON(d.Order)
		entry["merch_title"] = d.MerchTitle
		entry["merch_price"] = d.MerchPrice
		entry["user_email"] = d.UserEmail
		if d.UserName.Valid {
			entry["user_name"] = d.UserName.String
		}
		out = append(out, entry)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "orders": out})
}

type orderStatusReq struct {
	Status string `json:"status" validate:"required,oneof=FULFILLED CANCELLED"`
}

// UpdateOrder handles PATCH /merch/orders/:orderID: moves a PAID order to
// FULFILLED or CANCELLED at pickup.
func (h *MerchHandler) UpdateOrder(c echo.Context) error {
	var req orderStatusReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "status must be FULFILLED or CANCELLED")
	}
	matched, err := h.Orders.SetFulfilment(c.Request().Context(), c.Param("orderID"), req.Status)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not update order")
	}
	if !matched {
		return fail(c, http.StatusConflict, "order not found or not in PAID state")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "order updated"})
}

type merchCreateReq struct {
	Title       string   `json:"title" validate:"required,min=2,max=100"`
	Photo       string   `json:"photo" validate:"omitempty,url"`
	Sizes       []string `json:"sizes"`
	Description string   `json:"description"`
	Stock       int      `json:"stock" validate:"min=0"`
	Price       int      `json:"price" validate:"required,min=1"`
}

// CreateMerch handles POST /merch for admins.
func (h *MerchHandler) CreateMerch(c echo.Context) error {
	var req merchCreateReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "title and positive price required")
	}
	m := model.Merch{
		Title: req.Title,
		Sizes: req.Sizes,
		Stock: req.Stock,
		Price: req.Price,
	}
	if req.Photo != "" {
		m.Photo = sql.NullString{String: req.Photo, Valid: true}
	}
	if req.Description != "" {
		m.Description = sql.NullString{String: req.Description, Valid: true}
	}
	id, err := h.Merch.Create(c.Request().Context(), m)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not create item")
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "id": id})
}

type merchUpdateReq struct {
	Title       *string  `json:"title" validate:"omitempty,min=2,max=100"`
	Photo       *string  `json:"photo" validate:"omitempty,url"`
	Sizes       []string `json:"sizes"`
	Description *string  `json:"description"`
	Stock       *int     `json:"stock" validate:"omitempty,min=0"`
	Price       *int     `json:"price" validate:"omitempty,min=1"`
}

// UpdateMerch handles PATCH /merch/:id for admins. Absent fields are left
// untouched.
func (h *MerchHandler) UpdateMerch(c echo.Context) error {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid item id")
	}
	var req merchUpdateReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "invalid update payload")
	}
	matched, err := h.Merch.Update(c.Request().Context(), id, req.Title, req.Photo, req.Description, req.Sizes, req.Stock, req.Price)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not update item")
	}
	if !matched {
		return fail(c, http.StatusNotFound, "no such item")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "item updated"})
}

// DeleteMerch handles DELETE /merch/:id for admins.
func (h *MerchHandler) DeleteMerch(c echo.Context) error {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid item id")
	}
	matched, err := h.Merch.Delete(c.Request().Context(), id)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not delete item")
	}
	if !matched {
		return fail(c, http.StatusNotFound, "no such item")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "item deleted"})
}
