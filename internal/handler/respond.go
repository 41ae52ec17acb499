// Package handler contains the HTTP layer: request DTOs, their validation
// and the mapping from service errors onto status codes.
package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/zealicon/zealicon-backend/internal/model"
)

// validate is shared by every handler; DTO rules live in struct tags.
var validate = validator.New()

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "message": msg})
}

// userJSON renders the public view of a user row. Secrets (OTP state,
// refresh token) never leave the repository layer through here.
func userJSON(u model.User) echo.Map {
	out := echo.Map{
		"id":       u.ID,
		"email":    u.Email,
		"verified": u.Verified,
		"role":     u.Role,
	}
	if u.Name.Valid {
		out["name"] = u.Name.String
	}
	if u.Phone.Valid {
		out["phone"] = u.Phone.Int64
	}
	if u.IDCard.SecureURL != "" {
		out["id_card"] = echo.Map{"secure_url": u.IDCard.SecureURL, "public_id": u.IDCard.PublicID}
	}
	if u.Photo.SecureURL != "" {
		out["photo"] = echo.Map{"secure_url": u.Photo.SecureURL, "public_id": u.Photo.PublicID}
	}
	if u.ZealID.Valid {
		out["zeal_id"] = u.ZealID.String
	}
	return out
}

func merchJSON(m model.Merch) echo.Map {
	out := echo.Map{
		"id":    m.ID,
		"title": m.Title,
		"stock": m.Stock,
		"price": m.Price,
	}
	if m.Photo.Valid {
		out["photo"] = m.Photo.String
	}
	if m.Description.Valid {
		out["description"] = m.Description.String
	}
	if len(m.Sizes) > 0 {
		out["sizes"] = m.Sizes
	}
	return out
}

func eventJSON(e model.Event) echo.Map {
	out := echo.Map{
		"id":       e.ID,
		"society":  e.Society,
		"title":    e.Title,
		"type":     e.Type,
		"sheet_id": e.SheetID,
	}
	if e.Image.Valid {
		out["image"] = e.Image.String
	}
	if e.Description.Valid {
		out["description"] = e.Description.String
	}
	if e.Venue.Valid {
		out["venue"] = e.Venue.String
	}
	if e.ContactInfo.Valid {
		out["contact_info"] = e.ContactInfo.String
	}
	if e.Prize.Valid {
		out["prize"] = e.Prize.Int64
	}
	if e.EnrollmentStart.Valid {
		out["enrollment_start"] = e.EnrollmentStart.Time
	}
	if e.EnrollmentEnd.Valid {
		out["enrollment_end"] = e.EnrollmentEnd.Time
	}
	if e.EventStart.Valid {
		out["event_start"] = e.EventStart.Time
	}
	if e.EventEnd.Valid {
		out["event_end"] = e.EventEnd.Time
	}
	return out
}

func orderJSON(o model.Order) echo.Map {
	out := echo.Map{
		"order_id": o.OrderID,
		"merch_id": o.MerchID,
		"quantity": o.Quantity,
		"amount":   o.Amount,
		"status":   o.Status,
	}
	if o.Size.Valid {
		out["size"] = o.Size.String
	}
	if o.PurchasedAt.Valid {
		out["purchased_at"] = o.PurchasedAt.Time
	}
	return out
}
