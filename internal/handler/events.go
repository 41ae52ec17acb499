package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/zealicon/zealicon-backend/internal/config"
	"github.com/zealicon/zealicon-backend/internal/enroll"
	"github.com/zealicon/zealicon-backend/internal/model"
	"github.com/zealicon/zealicon-backend/internal/repository"
	"github.com/zealicon/zealicon-backend/internal/sheets"
	"github.com/zealicon/zealicon-backend/internal/utils"
)

// EventHandler owns the events catalog, enrollment and event admin.
type EventHandler struct {
	Events *repository.EventRepo
	Users  *repository.UserRepo
	Enroll *enroll.Service
	Roster sheets.Roster
}

func NewEventHandler(events *repository.EventRepo, users *repository.UserRepo, svc *enroll.Service, roster sheets.Roster) *EventHandler {
	return &EventHandler{Events: events, Users: users, Enroll: svc, Roster: roster}
}

func validSociety(s string) bool {
	for _, v := range model.Societies {
		if v == s {
			return true
		}
	}
	return false
}

func validEventType(s string) bool {
	for _, v := range model.EventTypes {
		if v == s {
			return true
		}
	}
	return false
}

// GetEvents handles GET /events with optional society and type filters.
func (h *EventHandler) GetEvents(c echo.Context) error {
	f := repository.EventFilter{
		Society: strings.ToUpper(c.QueryParam("society")),
		Type:    strings.ToUpper(c.QueryParam("type")),
	}
	if f.Society != "" && !validSociety(f.Society) {
		return fail(c, http.StatusBadRequest, "unknown society")
	}
	if f.Type != "" && !validEventType(f.Type) {
		return fail(c, http.StatusBadRequest, "unknown event type")
	}
	events, err := h.Events.List(c.Request().Context(), f)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load events")
	}
	out := make([]echo.Map, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON(e))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "events": out})
}

// MyEvents handles GET /events/registered: the events the caller is
// enrolled in.
func (h *EventHandler) MyEvents(c echo.Context) error {
	userID := c.Get("user_id").(uint64)
	events, err := h.Events.List(c.Request().Context(), repository.EventFilter{EnrolledBy: userID})
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load events")
	}
	out := make([]echo.Map, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON(e))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "events": out})
}

// GetEvent handles GET /events/:id.
func (h *EventHandler) GetEvent(c echo.Context) error {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid event id")
	}
	event, err := h.Events.GetByID(c.Request().Context(), id)
	if err == sql.ErrNoRows {
		return fail(c, http.StatusNotFound, "no such event")
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load event")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "event": eventJSON(event)})
}

func enrollErrStatus(err error) (int, string) {
	switch {
	case errors.Is(err, enroll.ErrEventNotFound):
		return http.StatusNotFound, "no such event"
	case errors.Is(err, enroll.ErrNotStarted):
		return http.StatusForbidden, "enrollment has not started"
	case errors.Is(err, enroll.ErrEnded):
		return http.StatusForbidden, "enrollment has ended"
	case errors.Is(err, enroll.ErrAlreadyEnrolled):
		return http.StatusConflict, "already enrolled in this event"
	case errors.Is(err, enroll.ErrNotEnrolled):
		return http.StatusConflict, "not enrolled in this event"
	}
	return http.StatusInternalServerError, "could not update enrollment"
}

// EnrollEvent handles POST /events/:id/enroll.
func (h *EventHandler) EnrollEvent(c echo.Context) error {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid event id")
	}
	userID := c.Get("user_id").(uint64)
	ctx := c.Request().Context()

	user, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load account")
	}
	event, err := h.Enroll.Enroll(ctx, id, user)
	if err != nil {
		status, msg := enrollErrStatus(err)
		return fail(c, status, msg)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "enrolled", "event": eventJSON(event)})
}

// UnenrollEvent handles DELETE /events/:id/enroll.
func (h *EventHandler) UnenrollEvent(c echo.Context) error {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid event id")
	}
	userID := c.Get("user_id").(uint64)
	ctx := c.Request().Context()

	user, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load account")
	}
	event, err := h.Enroll.Unenroll(ctx, id, user)
	if err != nil {
		status, msg := enrollErrStatus(err)
		return fail(c, status, msg)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "unenrolled", "event": eventJSON(event)})
}

type eventCreateReq struct {
	Society         string     `json:"society" validate:"required"`
	Title           string     `json:"title" validate:"required,min=2,max=150"`
	Type            string     `json:"type" validate:"required"`
	Image           string     `json:"image" validate:"omitempty,url"`
	Description     string     `json:"description"`
	Venue           string     `json:"venue"`
	ContactInfo     string     `json:"contact_info"`
	Prize           *int64     `json:"prize"`
	EnrollmentStart *time.Time `json:"enrollment_start"`
	EnrollmentEnd   *time.Time `json:"enrollment_end"`
	EventStart      *time.Time `json:"event_start"`
	EventEnd        *time.Time `json:"event_end"`
}

// CreateEvent handles POST /events for admins. The roster spreadsheet is
// provisioned first, with its header row, so an event never exists without
// a sheet to enroll into.
func (h *EventHandler) CreateEvent(c echo.Context) error {
	var req eventCreateReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "society, title and type required")
	}
	req.Society = strings.ToUpper(req.Society)
	req.Type = strings.ToUpper(req.Type)
	if !validSociety(req.Society) {
		return fail(c, http.StatusBadRequest, "unknown society")
	}
	if !validEventType(req.Type) {
		return fail(c, http.StatusBadRequest, "unknown event type")
	}
	ctx := c.Request().Context()

	sheetID, err := h.Roster.CreateSheet(ctx, req.Society+" - "+req.Title)
	if err != nil {
		return fail(c, http.StatusBadGateway, "could not provision roster sheet")
	}
	if err := h.Roster.AppendRow(ctx, sheetID, config.GSheetHeaders); err != nil {
		return fail(c, http.StatusBadGateway, "could not initialise roster sheet")
	}

	e := model.Event{
		Society: req.Society,
		SheetID: sheetID,
		Title:   req.Title,
		Type:    req.Type,
	}
	if req.Image != "" {
		e.Image = sql.NullString{String: req.Image, Valid: true}
	}
	if req.Description != "" {
		e.Description = sql.NullString{String: req.Description, Valid: true}
	}
	if req.Venue != "" {
		e.Venue = sql.NullString{String: req.Venue, Valid: true}
	}
	if req.ContactInfo != "" {
		e.ContactInfo = sql.NullString{String: req.ContactInfo, Valid: true}
	}
	if req.Prize != nil {
		e.Prize = sql.NullInt64{Int64: *req.Prize, Valid: true}
	}
	if req.EnrollmentStart != nil {
		e.EnrollmentStart = sql.NullTime{Time: req.EnrollmentStart.UTC(), Valid: true}
	}
	if req.EnrollmentEnd != nil {
		e.EnrollmentEnd = sql.NullTime{Time: req.EnrollmentEnd.UTC(), Valid: true}
	}
	if req.EventStart != nil {
		e.EventStart = sql.NullTime{Time: req.EventStart.UTC(), Valid: true}
	}
	if req.EventEnd != nil {
		e.EventEnd = sql.NullTime{Time: req.EventEnd.UTC(), Valid: true}
	}
	id, err := h.Events.Create(ctx, e)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not create event")
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "id": id, "sheet_id": sheetID})
}

type eventUpdateReq struct {
	Society         *string    `json:"society"`
	Title           *string    `json:"title" validate:"omitempty,min=2,max=150"`
	Type            *string    `json:"type"`
	Image           *string    `json:"image" validate:"omitempty,url"`
	Description     *string    `json:"description"`
	Venue           *string    `json:"venue"`
	ContactInfo     *string    `json:"contact_info"`
	Prize           *int64     `json:"prize"`
	EnrollmentStart *time.Time `json:"enrollment_start"`
	EnrollmentEnd   *time.Time `json:"enrollment_end"`
	EventStart      *time.Time `json:"event_start"`
	EventEnd        *time.Time `json:"event_end"`
}

// UpdateEvent handles PATCH /events/:id for admins. Absent fields are left
// untouched; the roster sheet is never reassigned.
func (h *EventHandler) UpdateEvent(c echo.Context) error {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid event id")
	}
	var req eventUpdateReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "invalid update payload")
	}
	cols := map[string]interface{}{}
	if req.Society != nil {
		s := strings.ToUpper(*req.Society)
		if !validSociety(s) {
			return fail(c, http.StatusBadRequest, "unknown society")
		}
		cols["society"] = s
	}
	if req.Type != nil {
		t := strings.ToUpper(*req.Type)
		if !validEventType(t) {
			return fail(c, http.StatusBadRequest, "unknown event type")
		}
		cols["type"] = t
	}
	if req.Title != nil {
		cols["title"] = *req.Title
	}
	if req.Image != nil {
		cols["image"] = *req.Image
	}
	if req.Description != nil {
		cols["description"] = *req.Description
	}
	if req.Venue != nil {
		cols["venue"] = *req.Venue
	}
	if req.ContactInfo != nil {
		cols["contact_info"] = *req.ContactInfo
	}
	if req.Prize != nil {
		cols["prize"] = *req.Prize
	}
	if req.EnrollmentStart != nil {
		cols["enrollment_start"] = req.EnrollmentStart.UTC()
	}
	if req.EnrollmentEnd != nil {
		cols["enrollment_end"] = req.EnrollmentEnd.UTC()
	}
	if req.EventStart != nil {
		cols["event_start"] = req.EventStart.UTC()
	}
	if req.EventEnd != nil {
		cols["event_end"] = req.EventEnd.UTC()
	}
	matched, err := h.Events.Update(c.Request().Context(), id, cols)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not update event")
	}
	if !matched {
		return fail(c, http.StatusNotFound, "no such event")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "event updated"})
}

// DeleteEvent handles DELETE /events/:id for admins. Enrollments go with
// the event; the roster sheet is left behind as an archive.
func (h *EventHandler) DeleteEvent(c echo.Context) error {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid event id")
	}
	matched, err := h.Events.Delete(c.Request().Context(), id)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not delete event")
	}
	if !matched {
		return fail(c, http.StatusNotFound, "no such event")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "event deleted"})
}
