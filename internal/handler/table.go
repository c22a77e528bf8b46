package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// TablesRoute is the cached listing route; writes invalidate it.
const TablesRoute = "/v1/tables"

// TableStore is the persistence used by TableHandler.
type TableStore interface {
	Create(ctx context.Context, t *model.Table) error
	GetByID(ctx context.Context, id uint64) (model.Table, error)
	List(ctx context.Context) ([]model.Table, error)
}

// CacheInvalidator drops cached responses of a route.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, route string) error
}

type TableHandler struct {
	Tables TableStore
	Cache  CacheInvalidator // optional
	Log    zerolog.Logger
}

func NewTableHandler(tables TableStore, cache CacheInvalidator, log zerolog.Logger) *TableHandler {
	return &TableHandler{Tables: tables, Cache: cache, Log: log}
}

type createTableReq struct {
	TableNumber string  `json:"table_number"`
	Capacity    int     `json:"capacity"`
	IsAvailable *bool   `json:"is_available"`
	Location    *string `json:"location"`
}

func (h *TableHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	tables, err := h.Tables.List(ctx)
	if err != nil {
		return respondError(c, h.Log, repoError(err, "table", 0))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": tables})
}

func (h *TableHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	t, err := h.Tables.GetByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, repoError(err, "table", id))
	}
	return c.JSON(http.StatusOK, t)
}

func (h *TableHandler) Create(c echo.Context) error {
	var req createTableReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.TableNumber = strings.TrimSpace(req.TableNumber)
	if req.TableNumber == "" || len(req.TableNumber) > 20 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "table_number is required (max 20 characters)"})
	}
	if req.Capacity < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be at least 1"})
	}
	t := model.Table{
		TableNumber: req.TableNumber,
		Capacity:    req.Capacity,
		IsAvailable: req.IsAvailable == nil || *req.IsAvailable,
		Location:    req.Location,
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Tables.Create(ctx, &t); err != nil {
		return respondError(c, h.Log, repoError(err, "table", 0))
	}
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, TablesRoute); err != nil {
			h.Log.Warn().Err(err).Msg("invalidate table cache")
		}
	}
	return c.JSON(http.StatusCreated, t)
}
