package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

// TokenIssuer mints a bearer token for a patient who just logged in.
type TokenIssuer func(p *Patient) (string, error)

type Handler struct {
	svc   *Service
	issue TokenIssuer
}

// NewHandler wires the identity endpoints. A nil issuer disables login.
func NewHandler(svc *Service, issue TokenIssuer) *Handler {
	return &Handler{svc: svc, issue: issue}
}

// RegisterRoutes mounts the anonymous routes on public and the patient-scoped
// routes on protected, which must already authenticate the caller.
func (h *Handler) RegisterRoutes(public, protected *echo.Group) {
	public.GET("/doctors", h.ListDoctors)
	public.GET("/doctors/:id", h.GetDoctor)
	public.GET("/departments", h.ListDepartments)
	public.POST("/patients/register", h.Register)
	if h.issue != nil {
		public.POST("/patients/login", h.Login)
	}

	protected.GET("/patients/:patient_id", h.GetPatient, auth.RequirePatientParam("patient_id"))
}

// HTTPError maps identity errors onto HTTP status codes.
func HTTPError(err error) *echo.HTTPError {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrDoctorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrBadCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	doctors, err := h.svc.ListAvailableDoctors(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	if doctors == nil {
		doctors = []*Doctor{}
	}
	return c.JSON(http.StatusOK, doctors)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	deps, err := h.svc.Departments(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, deps)
}

type registerRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	BirthDate       string `json:"birth_date"`
	Gender          string `json:"gender"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	birth, err := time.Parse(time.DateOnly, req.BirthDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "birth_date: expected YYYY-MM-DD")
	}
	if req.ConfirmPassword != req.Password {
		return echo.NewHTTPError(http.StatusBadRequest, "confirm_password: passwords do not match")
	}

	p, err := h.svc.Register(c.Request().Context(), Registration{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		BirthDate: birth,
		Gender:    req.Gender,
		Password:  req.Password,
	})
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string   `json:"token"`
	Patient *Patient `json:"patient"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return HTTPError(err)
	}
	token, err := h.issue(p)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, Patient: p})
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}
