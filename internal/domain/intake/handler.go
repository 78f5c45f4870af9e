package intake

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/intake", h.Submit)
}

func (h *Handler) Submit(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Submit(ctx, owner, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}
