package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

// AuditEntry records who changed an appointment and how.
type AuditEntry struct {
	UserID        string
	UserRoles     []string
	AppointmentID string
	PatientID     string
	Action        string
	Method        string
	Path          string
	IPAddress     string
	RequestID     string
	StatusCode    int
	Timestamp     time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every state-changing request that passes through it. Reads are
// not audited.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodOptions {
				return next(c)
			}

			err := next(c)

			// auth middleware may have replaced the request further down
			ctx := c.Request().Context()
			entry := AuditEntry{
				Timestamp:     time.Now().UTC(),
				Method:        req.Method,
				Path:          req.URL.Path,
				IPAddress:     c.RealIP(),
				AppointmentID: c.Param("id"),
				PatientID:     c.Param("patient_id"),
				Action:        actionOf(c),
				StatusCode:    c.Response().Status,
				UserID:        auth.UserIDFromContext(ctx),
				UserRoles:     auth.RolesFromContext(ctx),
			}
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			} else if err != nil {
				entry.StatusCode = http.StatusInternalServerError
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("action", entry.Action).
				Str("appointment_id", entry.AppointmentID).
				Str("patient_id", entry.PatientID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("audit")

			return err
		}
	}
}

// actionOf names the operation from the matched route, falling back to the
// HTTP method.
func actionOf(c echo.Context) string {
	route := c.Path()
	for _, suffix := range []string{"/status", "/notes", "/reschedule", "/cancel", "/guest", "/register"} {
		if len(route) >= len(suffix) && route[len(route)-len(suffix):] == suffix {
			return suffix[1:]
		}
	}
	switch c.Request().Method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "unknown"
}
