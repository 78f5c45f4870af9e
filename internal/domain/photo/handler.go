package photo

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

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
	g := api.Group("/photos")
	g.POST("/upload", h.Upload)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/metadata", h.Metadata)
	g.DELETE("/:id", h.Delete)
}

// Upload accepts multipart fields patientId, treatments (comma separated),
// type and one or more photos.
func (h *Handler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}

	pid, err := uuid.Parse(c.FormValue("patientId"))
	if err != nil {
		return apperr.Validation("patientId is required")
	}

	headers := append(form.File["photos"], form.File["photos[]"]...)
	limits := h.svc.Limits()
	if len(headers) > limits.MaxFiles {
		return apperr.Validation("at most %d photos can be uploaded at once", limits.MaxFiles)
	}
	files := make([]File, 0, len(headers))
	for _, fh := range headers {
		f, err := readPart(fh, limits.MaxFileSize)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	photos, err := h.svc.Upload(ctx, owner, UploadRequest{
		PatientID:  pid,
		Treatments: SplitTreatments(c.FormValue("treatments")),
		Type:       c.FormValue("type"),
		Files:      files,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, photos)
}

func readPart(fh *multipart.FileHeader, maxSize int64) (File, error) {
	if fh.Size > maxSize {
		return File{}, apperr.Validation("%s exceeds the maximum size of %d bytes", displayName(fh.Filename), maxSize)
	}
	src, err := fh.Open()
	if err != nil {
		return File{}, echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxSize+1))
	if err != nil {
		return File{}, echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}
	return File{Name: fh.Filename, ContentType: fh.Header.Get(echo.HeaderContentType), Data: data}, nil
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	owner, err := auth.OwnerID(ctx)
	if err != nil {
		return err
	}
	pid, err := uuid.Parse(c.QueryParam("patientId"))
	if err != nil {
		return apperr.Validation("patientId is required")
	}
	items, err := h.svc.ListByPatient(ctx, owner, pid)
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
	content, err := h.svc.Get(ctx, owner, id)
	if err != nil {
		return err
	}

	etag := fmt.Sprintf("%q", content.Hash)
	c.Response().Header().Set("ETag", etag)
	c.Response().Header().Set("Cache-Control", "private, max-age=86400")
	if content.Hash != "" && c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, content.Photo.MimeType, content.Data)
}

func (h *Handler) Metadata(c echo.Context) error {
	ctx := c.Request().Context()
	owner, id, err := ownerAndID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Metadata(ctx, owner, id)
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
	if err := h.svc.Delete(ctx, owner, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "photo deleted"})
}

func ownerAndID(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	owner, err := auth.OwnerID(c.Request().Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, apperr.NotFound("photo")
	}
	return owner, id, nil
}
