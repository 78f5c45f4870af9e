package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

// AuditEntry records who touched which clinic record.
type AuditEntry struct {
	UserID     string
	Resource   string
	ResourceID string
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	Method     string
	Path       string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// Audit emits one "record_access" log line per request under /api/patients,
// /api/appointments, /api/photos and /api/intake.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource := auditedResource(req.URL.Path)
			if resource == "" {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(req.Context()),
				Resource:   resource,
				ResourceID: c.Param("id"),
				PatientID:  extractPatientID(c, resource),
				Action:     httpMethodToAction(req.Method),
				IPAddress:  c.RealIP(),
				Method:     req.Method,
				Path:       req.URL.Path,
				StatusCode: c.Response().Status,
				Timestamp:  time.Now().UTC(),
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("record_access")

			return err
		}
	}
}

func auditedResource(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return ""
	}
	segment, _, _ := strings.Cut(rest, "/")
	switch segment {
	case "patients", "appointments", "photos", "intake":
		return segment
	}
	return ""
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

func extractPatientID(c echo.Context, resource string) string {
	if resource == "patients" && isUUIDLike(c.Param("id")) {
		return c.Param("id")
	}
	if pid := c.QueryParam("patientId"); isUUIDLike(pid) {
		return pid
	}
	return ""
}

func isUUIDLike(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
