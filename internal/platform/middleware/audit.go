package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospital/internment/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry describes one access to patient data.
type AuditEntry struct {
	UserID       string
	UserRoles    []string
	Resource     string
	InternmentID string
	Action       string // read, create, update, delete
	IPAddress    string
	UserAgent    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

// Audit returns Echo middleware that writes one structured "patient_access"
// log line per request under /api/v1/, recording who touched which
// internment record and with what outcome.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c, err)
			evt := logger.Info()
			if entry.StatusCode >= http.StatusBadRequest {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("internment_id", entry.InternmentID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("patient_access")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context, err error) AuditEntry {
	req := c.Request()
	ctx := req.Context()
	entry := AuditEntry{
		UserID:       auth.UserIDFromContext(ctx),
		UserRoles:    auth.RolesFromContext(ctx),
		Resource:     extractResource(req.URL.Path),
		InternmentID: extractInternmentID(req.URL.Path),
		Action:       httpMethodToAction(req.Method),
		IPAddress:    c.RealIP(),
		UserAgent:    req.UserAgent(),
		Path:         req.URL.Path,
		Method:       req.Method,
		Timestamp:    time.Now().UTC(),
		StatusCode:   c.Response().Status,
	}
	if he, ok := err.(*echo.HTTPError); ok {
		entry.StatusCode = he.Code
	}
	if rid, ok := c.Get("request_id").(string); ok {
		entry.RequestID = rid
	}
	return entry
}

// httpMethodToAction maps HTTP methods to audit action codes.
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

// extractResource returns the first path segment after /api/v1/.
//
//	/api/v1/internments          -> internments
//	/api/v1/internments/12/notes -> internments
func extractResource(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, apiPrefix), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}

// extractInternmentID returns the numeric record id in
// /api/v1/internments/<id>/..., or "" for collection routes.
func extractInternmentID(path string) string {
	rest := strings.TrimPrefix(path, apiPrefix+"internments/")
	if rest == path {
		return ""
	}
	id := strings.SplitN(rest, "/", 2)[0]
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return ""
	}
	return id
}
