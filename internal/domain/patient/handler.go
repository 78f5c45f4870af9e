package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// CreateRequest is the body accepted by POST /patients.
type CreateRequest struct {
	Name           string   `json:"name"`
	NationalID     string   `json:"nationalId"`
	Phone          string   `json:"phone"`
	Email          *string  `json:"email"`
	BirthDate      *string  `json:"birthDate"`
	Gender         string   `json:"gender"`
	Address        *string  `json:"address"`
	Treatments     []string `json:"selectedTreatments"`
	Allergies      *string  `json:"allergies"`
	Medications    *string  `json:"medications"`
	MedicalHistory *string  `json:"medicalHistory"`
	Notes          *string  `json:"notes"`
}

// Patient converts the request body into a new, unsaved patient.
func (r CreateRequest) Patient() *Patient {
	return &Patient{
		Name:           r.Name,
		NationalID:     r.NationalID,
		Phone:          r.Phone,
		Email:          r.Email,
		BirthDate:      r.BirthDate,
		Gender:         Gender(r.Gender),
		Address:        r.Address,
		Treatments:     r.Treatments,
		Allergies:      r.Allergies,
		Medications:    r.Medications,
		MedicalHistory: r.MedicalHistory,
		Notes:          r.Notes,
	}
}

func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p := req.Patient()
	if err := h.svc.Create(ctx, owner, p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(ctx, owner, c.QueryParam("search"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	owner, id, err := ownerAndID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Detail(ctx, owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	owner, id, err := ownerAndID(c)
	if err != nil {
		return err
	}
	var patch Patch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Update(ctx, owner, id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	owner, id, err := ownerAndID(c)
	if err != nil {
		return err
	}
	removed, err := h.svc.Delete(ctx, owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "patient deleted",
		"removed": removed,
	})
}

func ownerAndID(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	owner, err := auth.OwnerID(c.Request().Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, apperr.NotFound("patient")
	}
	return owner, id, nil
}
