package dashboard

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
	api.GET("/dashboard", h.Summary)
	reports := api.Group("/reports")
	reports.GET("/measures", h.ListMeasures)
	reports.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

func (h *Handler) Summary(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}
	sum, err := h.svc.Summary(ctx, owner)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, Measures)
}

func (h *Handler) EvaluateMeasure(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}
	report, err := h.svc.EvaluateMeasure(ctx, owner, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
