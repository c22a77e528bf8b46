package handler

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/service"
)

// ClientStore is the persistence used by ClientHandler.
type ClientStore interface {
	Create(ctx context.Context, c *model.Client) error
	GetByID(ctx context.Context, id uint64) (model.Client, error)
	List(ctx context.Context, page, size int) ([]model.Client, int, error)
}

type ClientHandler struct {
	Clients ClientStore
	Log     zerolog.Logger
}

func NewClientHandler(clients ClientStore, log zerolog.Logger) *ClientHandler {
	return &ClientHandler{Clients: clients, Log: log}
}

type createClientReq struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

func (h *ClientHandler) List(c echo.Context) error {
	page, err := queryInt(c, "page", 0)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	size, err := queryInt(c, "size", 0)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	page, size = service.NormalizePage(page, size)

	ctx, cancel := requestContext(c)
	defer cancel()

	items, total, err := h.Clients.List(ctx, page, size)
	if err != nil {
		return respondError(c, h.Log, repoError(err, "client", 0))
	}
	return c.JSON(http.StatusOK, model.NewPage(items, page, size, total))
}

func (h *ClientHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	cl, err := h.Clients.GetByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, repoError(err, "client", id))
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *ClientHandler) Create(c echo.Context) error {
	var req createClientReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.FullName == "" || len(req.FullName) > 255:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "full_name is required (max 255 characters)"})
	case req.Phone == "" || len(req.Phone) > 20:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone is required (max 20 characters)"})
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "a valid email is required"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	cl := model.Client{FullName: req.FullName, Phone: req.Phone, Email: req.Email}
	if err := h.Clients.Create(ctx, &cl); err != nil {
		return respondError(c, h.Log, repoError(err, "client", 0))
	}
	return c.JSON(http.StatusCreated, cl)
}
