package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/service"
)

// ReservationHandler exposes the booking operations over HTTP.
type ReservationHandler struct {
	Svc *service.ReservationService
	Log zerolog.Logger
}

func NewReservationHandler(svc *service.ReservationService, log zerolog.Logger) *ReservationHandler {
	return &ReservationHandler{Svc: svc, Log: log}
}

type createReservationReq struct {
	ClientID        uint64  `json:"client_id"`
	TableID         uint64  `json:"table_id"`
	ReservationTime string  `json:"reservation_time"`
	DurationMinutes int     `json:"duration_minutes"`
	PartySize       int     `json:"party_size"`
	Notes           *string `json:"notes"`
}

type updateReservationReq struct {
	ReservationTime *string `json:"reservation_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	PartySize       *int    `json:"party_size"`
	Notes           *string `json:"notes"`
}

type availabilityResp struct {
	TableID   uint64              `json:"table_id"`
	Window    model.Interval      `json:"window"`
	Available bool                `json:"available"`
	Conflicts []model.Reservation `json:"conflicts"`
}

// Create books a table.  201 with the stored reservation, 409 when the
// table is already taken for any part of the window.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	start, err := parseTime("reservation_time", req.ReservationTime)
	if err != nil {
		return respondError(c, h.Log, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Svc.CreateReservation(ctx, service.CreateInput{
		ClientID:        req.ClientID,
		TableID:         req.TableID,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		PartySize:       req.PartySize,
		Notes:           req.Notes,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Availability answers GET /v1/reservations/availability?table_id&start&end.
func (h *ReservationHandler) Availability(c echo.Context) error {
	tableID, err := queryUint(c, "table_id")
	if err == nil && tableID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "table_id is required"})
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}
	start, err := parseTime("start", c.QueryParam("start"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	end, err := parseTime("end", c.QueryParam("end"))
	if err != nil {
		return respondError(c, h.Log, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	conflicts, err := h.Svc.CheckAvailability(ctx, tableID, start, end)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if conflicts == nil {
		conflicts = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, availabilityResp{
		TableID:   tableID,
		Window:    model.Interval{Start: start, End: end},
		Available: len(conflicts) == 0,
		Conflicts: conflicts,
	})
}

func (h *ReservationHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Svc.Get(ctx, id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Update applies a partial change; omitted fields keep their value.
func (h *ReservationHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var req updateReservationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	in := service.UpdateInput{
		DurationMinutes: req.DurationMinutes,
		PartySize:       req.PartySize,
		Notes:           req.Notes,
	}
	if req.ReservationTime != nil {
		start, err := parseTime("reservation_time", *req.ReservationTime)
		if err != nil {
			return respondError(c, h.Log, err)
		}
		in.Start = &start
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Svc.UpdateReservation(ctx, id, in)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Svc.CancelReservation(ctx, id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ReservationHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Svc.DeleteReservation(ctx, id); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// List answers GET /v1/reservations?status&client_id&table_id&page&size.
func (h *ReservationHandler) List(c echo.Context) error {
	var f model.ReservationFilter
	var err error
	if f.ClientID, err = queryUint(c, "client_id"); err != nil {
		return respondError(c, h.Log, err)
	}
	if f.TableID, err = queryUint(c, "table_id"); err != nil {
		return respondError(c, h.Log, err)
	}
	if f.Page, err = queryInt(c, "page", 0); err != nil {
		return respondError(c, h.Log, err)
	}
	if f.Size, err = queryInt(c, "size", 0); err != nil {
		return respondError(c, h.Log, err)
	}
	f.Status = model.ReservationStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))))

	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.Svc.List(ctx, f)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, page)
}
