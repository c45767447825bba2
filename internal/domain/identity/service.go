package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
	hasher   Hasher
}

func NewService(patients PatientRepository, doctors DoctorRepository, hasher Hasher) *Service {
	return &Service{patients: patients, doctors: doctors, hasher: hasher}
}

// Registration is the sign-up form.
type Registration struct {
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	BirthDate time.Time `json:"birth_date"`
	Gender    string    `json:"gender"`
	Password  string    `json:"password"`
}

func (r *Registration) validate() error {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Gender = strings.TrimSpace(r.Gender)

	switch {
	case r.FirstName == "":
		return invalid("first_name", "is required")
	case len(r.FirstName) > 100:
		return invalid("first_name", "cannot exceed 100 characters")
	case r.LastName == "":
		return invalid("last_name", "is required")
	case len(r.LastName) > 100:
		return invalid("last_name", "cannot exceed 100 characters")
	case r.Email == "" || !strings.Contains(r.Email, "@"):
		return invalid("email", "a valid email address is required")
	case len(r.Email) > 100:
		return invalid("email", "cannot exceed 100 characters")
	case r.Phone == "":
		return invalid("phone", "is required")
	case len(r.Phone) > 20:
		return invalid("phone", "cannot exceed 20 characters")
	case r.BirthDate.IsZero():
		return invalid("birth_date", "is required")
	case r.BirthDate.After(time.Now()):
		return invalid("birth_date", "cannot be in the future")
	case r.Gender == "":
		return invalid("gender", "is required")
	case len(r.Password) < MinPasswordLength:
		return invalid("password", "must be at least %d characters long", MinPasswordLength)
	case len(r.Password) > maxPasswordLength:
		return invalid("password", "cannot exceed %d characters", maxPasswordLength)
	}
	return nil
}

// Register creates a signed-up patient. Any existing record with the email,
// guest or not, yields ErrDuplicateEmail.
func (s *Service) Register(ctx context.Context, reg Registration) (*Patient, error) {
	if err := reg.validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, err
	}
	y, m, d := reg.BirthDate.Date()
	p := &Patient{
		FirstName:      reg.FirstName,
		LastName:       reg.LastName,
		Email:          reg.Email,
		Phone:          reg.Phone,
		BirthDate:      time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Gender:         reg.Gender,
		Kind:           KindRegistered,
		CredentialHash: hash,
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Authenticate checks a registered patient's password. Guests cannot log in.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Patient, error) {
	p, err := s.patients.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrPatientNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if p.Kind != KindRegistered {
		return nil, ErrBadCredentials
	}
	if err := s.hasher.Compare(p.CredentialHash, password); err != nil {
		return nil, ErrBadCredentials
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListAvailableDoctors(ctx context.Context) ([]*Doctor, error) {
	return s.doctors.ListAvailable(ctx)
}

// Departments lists the distinct specializations of available doctors, sorted.
func (s *Service) Departments(ctx context.Context) ([]string, error) {
	doctors, err := s.doctors.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, d := range doctors {
		if d.Specialization == "" {
			continue
		}
		if _, ok := seen[d.Specialization]; ok {
			continue
		}
		seen[d.Specialization] = struct{}{}
		out = append(out, d.Specialization)
	}
	sort.Strings(out)
	return out, nil
}
