package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether the caller holds any of roles. Admin holds every role.
func HasRole(ctx context.Context, roles ...string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}

// CanActForPatient reports whether the caller may read or change the given
// patient's appointments: staff always, patients only for their own record.
func CanActForPatient(ctx context.Context, patientID string) bool {
	if HasRole(ctx, RoleStaff) {
		return true
	}
	pid := PatientIDFromContext(ctx)
	return pid != "" && strings.EqualFold(pid, patientID)
}

// RequirePatientParam guards routes whose :param names a patient.
func RequirePatientParam(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !CanActForPatient(c.Request().Context(), c.Param(param)) {
				return echo.NewHTTPError(http.StatusForbidden, "not allowed to access this patient")
			}
			return next(c)
		}
	}
}
