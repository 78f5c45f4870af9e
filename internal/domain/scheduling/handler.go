package scheduling

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/upcoming", h.Upcoming)
	g.GET("/history", h.History)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/reschedule", h.Reschedule)
	g.POST("/:id/complete", h.Complete)
	g.POST("/:id/cancel", h.Cancel)
}

type createRequest struct {
	PatientID   string  `json:"patientId"`
	PatientName string  `json:"patientName"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Duration    int     `json:"duration"`
	Treatment   string  `json:"treatment"`
	Notes       *string `json:"notes"`
	Status      string  `json:"status"`
}

func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	pid, err := parseID(req.PatientID, "patientId")
	if err != nil {
		return err
	}

	a := &Appointment{
		PatientID:   pid,
		PatientName: req.PatientName,
		Date:        req.Date,
		Time:        req.Time,
		Duration:    req.Duration,
		Treatment:   req.Treatment,
		Notes:       req.Notes,
		Status:      Status(req.Status),
	}
	if err := h.svc.Create(ctx, owner, a); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

// List serves ?date=, ?patientId= and the status/from/to calendar filter.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}

	var items []*Appointment
	switch {
	case c.QueryParam("date") != "":
		items, err = h.svc.QueryByDate(ctx, owner, c.QueryParam("date"))
	case c.QueryParam("patientId") != "":
		pid, perr := parseID(c.QueryParam("patientId"), "patientId")
		if perr != nil {
			return perr
		}
		items, err = h.svc.QueryByPatient(ctx, owner, pid)
	default:
		items, err = h.svc.List(ctx, owner, ListParams{
			Status: c.QueryParam("status"),
			From:   c.QueryParam("from"),
			To:     c.QueryParam("to"),
		})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Upcoming(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return apperr.Validation("limit must be a non-negative integer")
		}
	}
	items, err := h.svc.QueryUpcoming(ctx, owner, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) History(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}
	pid, err := parseID(c.QueryParam("patientId"), "patientId")
	if err != nil {
		return err
	}
	items, err := h.svc.History(ctx, owner, pid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	owner, id, err := ownerAndID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	owner, id, err := ownerAndID(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Update(ctx, owner, id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	owner, id, err := ownerAndID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(ctx, owner, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "appointment deleted"})
}

type rescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	ctx := c.Request().Context()
	owner, id, err := ownerAndID(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Reschedule(ctx, owner, id, req.Date, req.Time)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Complete(c echo.Context) error {
	ctx := c.Request().Context()
	owner, id, err := ownerAndID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.MarkCompleted(ctx, owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	owner, id, err := ownerAndID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Cancel(ctx, owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func ownerAndID(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	owner, err := auth.OwnerID(c.Request().Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Malformed ids cannot name an existing appointment.
		return uuid.Nil, uuid.Nil, apperr.NotFound("appointment")
	}
	return owner, id, nil
}

func parseID(raw, field string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, apperr.Validation("%s is required", field)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("%s is not a valid id", field)
	}
	return id, nil
}
