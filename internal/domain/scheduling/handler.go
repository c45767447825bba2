package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts anonymous routes on public and the rest on protected,
// which must authenticate the caller. booking wraps the endpoints that create
// appointments.
func (h *Handler) RegisterRoutes(public, protected *echo.Group, booking ...echo.MiddlewareFunc) {
	public.GET("/slots", h.AvailableSlots)
	public.POST("/appointments/guest", h.BookAsGuest, booking...)

	protected.POST("/appointments", h.Book, booking...)
	protected.GET("/patients/:patient_id/appointments", h.ListPatientAppointments, auth.RequirePatientParam("patient_id"))
	protected.POST("/patients/:patient_id/appointments/:id/cancel", h.CancelForPatient, auth.RequirePatientParam("patient_id"))

	// Front desk
	staff := protected.Group("", auth.RequireRole(auth.RoleStaff))
	staff.GET("/appointments", h.ListAppointments)
	staff.GET("/appointments/stats", h.StatusCounts)
	staff.GET("/appointments/:id", h.GetAppointment)
	staff.PUT("/appointments/:id/status", h.UpdateStatus)
	staff.PUT("/appointments/:id/notes", h.UpdateNotes)
	staff.PUT("/appointments/:id/reschedule", h.Reschedule)
	staff.POST("/staff/appointments", h.StaffBook, booking...)
}

// HTTPError maps scheduling and identity errors onto HTTP status codes.
func HTTPError(err error) *echo.HTTPError {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return identity.HTTPError(err)
}

func parseID(c echo.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
	}
	return id, nil
}

// parseOptionalUUID returns nil for an empty value.
func parseOptionalUUID(field, v string) (*uuid.UUID, error) {
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, invalid(field, "invalid id %q", v)
	}
	return &id, nil
}

func requiredUUID(field, v string) (uuid.UUID, error) {
	if v == "" {
		return uuid.Nil, invalid(field, "is required")
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, invalid(field, "invalid id %q", v)
	}
	return id, nil
}

func requiredDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, invalid("date", "is required")
	}
	return ParseDate(v)
}

// -- Availability --

func (h *Handler) AvailableSlots(c echo.Context) error {
	doctorID, err := requiredUUID("doctor_id", c.QueryParam("doctor_id"))
	if err != nil {
		return HTTPError(err)
	}
	date, err := requiredDate(c.QueryParam("date"))
	if err != nil {
		return HTTPError(err)
	}
	opts := AvailabilityOptions{}
	if v := c.QueryParam("filtered"); v != "" {
		if opts.Filtered, err = strconv.ParseBool(v); err != nil {
			return HTTPError(invalid("filtered", "expected true or false, got %q", v))
		}
	}
	// exclude present but empty means every booking occupies its slot.
	if raw, ok := c.QueryParams()["exclude"]; ok {
		opts.ExcludedStatuses = []Status{}
		for _, v := range raw {
			for _, part := range strings.Split(v, ",") {
				if strings.TrimSpace(part) == "" {
					continue
				}
				st, err := ParseStatus(part)
				if err != nil {
					return HTTPError(err)
				}
				opts.ExcludedStatuses = append(opts.ExcludedStatuses, st)
			}
		}
	}

	slots, err := h.svc.AvailableSlots(c.Request().Context(), doctorID, date, opts)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

// -- Booking --

type bookRequest struct {
	PatientID  string `json:"patient_id"`
	DoctorID   string `json:"doctor_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Department string `json:"department"`
	Reason     string `json:"reason"`
	Notes      string `json:"notes"`
}

func (r bookRequest) toBooking() (BookingRequest, error) {
	patientID, err := requiredUUID("patient_id", r.PatientID)
	if err != nil {
		return BookingRequest{}, err
	}
	doctorID, err := requiredUUID("doctor_id", r.DoctorID)
	if err != nil {
		return BookingRequest{}, err
	}
	date, err := requiredDate(r.Date)
	if err != nil {
		return BookingRequest{}, err
	}
	return BookingRequest{
		PatientID:  patientID,
		DoctorID:   doctorID,
		Date:       date,
		Time:       TimeLabel(r.Time),
		Department: r.Department,
		Reason:     r.Reason,
		Notes:      r.Notes,
	}, nil
}

// Book books for a patient. Patients book for themselves and may omit
// patient_id.
func (h *Handler) Book(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if req.PatientID == "" {
		req.PatientID = auth.PatientIDFromContext(ctx)
	}
	br, err := req.toBooking()
	if err != nil {
		return HTTPError(err)
	}
	if !auth.CanActForPatient(ctx, br.PatientID.String()) {
		return echo.NewHTTPError(http.StatusForbidden, "not allowed to book for this patient")
	}
	br.EnforceDoctorAvailability = true

	a, err := h.svc.Book(ctx, br)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

// StaffBook books on behalf of any patient, including with doctors that are
// not taking online bookings.
func (h *Handler) StaffBook(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	br, err := req.toBooking()
	if err != nil {
		return HTTPError(err)
	}
	a, err := h.svc.Book(c.Request().Context(), br)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

type guestBookRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	DoctorID   string `json:"doctor_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Department string `json:"department"`
	Reason     string `json:"reason"`
}

func (h *Handler) BookAsGuest(c echo.Context) error {
	var req guestBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doctorID, err := requiredUUID("doctor_id", req.DoctorID)
	if err != nil {
		return HTTPError(err)
	}
	date, err := requiredDate(req.Date)
	if err != nil {
		return HTTPError(err)
	}

	a, err := h.svc.BookAsGuest(c.Request().Context(), GuestBookingRequest{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		DoctorID:   doctorID,
		Date:       date,
		Time:       TimeLabel(req.Time),
		Department: req.Department,
		Reason:     req.Reason,
	})
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

// -- Patient views --

func (h *Handler) ListPatientAppointments(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListPatientAppointments(c.Request().Context(), patientID)
	if err != nil {
		return HTTPError(err)
	}
	if list == nil {
		list = []*Appointment{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) CancelForPatient(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.CancelForPatient(c.Request().Context(), patientID, id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// -- Staff --

func (h *Handler) ListAppointments(c echo.Context) error {
	doctorID, err := parseOptionalUUID("doctor_id", c.QueryParam("doctor_id"))
	if err != nil {
		return HTTPError(err)
	}
	q := ListQuery{DoctorID: doctorID}
	if v := c.QueryParam("date"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return HTTPError(err)
		}
		q.Date = &d
	}
	if v := c.QueryParam("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return HTTPError(err)
		}
		q.Status = st
	}
	pg := pagination.FromContext(c)
	q.Limit, q.Offset = pg.Limit, pg.Offset

	list, total, err := h.svc.ListAppointments(c.Request().Context(), q)
	if err != nil {
		return HTTPError(err)
	}
	if list == nil {
		list = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, pg).WithLinks(c.Request().URL, pg))
}

func (h *Handler) StatusCounts(c echo.Context) error {
	sum, err := h.svc.StatusCounts(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	st, err := ParseStatus(req.Status)
	if err != nil {
		return HTTPError(err)
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), id, st)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) UpdateNotes(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.UpdateNotes(c.Request().Context(), id, req.Notes)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type rescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	date, err := requiredDate(req.Date)
	if err != nil {
		return HTTPError(err)
	}
	a, err := h.svc.Reschedule(c.Request().Context(), id, date, TimeLabel(req.Time))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}
