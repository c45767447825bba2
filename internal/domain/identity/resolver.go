package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Resolver maps the contact details on a guest booking to a patient record,
// creating a guest patient the first time an email is seen.
type Resolver struct {
	patients PatientRepository
	hasher   Hasher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewResolver(patients PatientRepository, hasher Hasher, logger zerolog.Logger) *Resolver {
	return &Resolver{patients: patients, hasher: hasher, logger: logger, now: time.Now}
}

// ResolveOrCreatePatient returns the id of the patient registered under email.
// An unseen email creates a guest patient from name and phone. Two concurrent
// calls with the same unseen email both return the id of the single record
// that wins the insert.
func (r *Resolver) ResolveOrCreatePatient(ctx context.Context, name, email, phone string) (uuid.UUID, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, invalid("name", "is required")
	}
	if email == "" {
		return uuid.Nil, invalid("email", "is required")
	}
	if !strings.Contains(email, "@") {
		return uuid.Nil, invalid("email", "%q is not a valid email address", email)
	}

	existing, err := r.patients.GetByEmail(ctx, email)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return uuid.Nil, err
	}

	hash, err := guestCredential(r.hasher)
	if err != nil {
		return uuid.Nil, err
	}
	first, last := splitName(name)
	p := &Patient{
		FirstName:      first,
		LastName:       last,
		Email:          email,
		Phone:          strings.TrimSpace(phone),
		BirthDate:      guestBirthDate(r.now()),
		Gender:         GuestGender,
		Kind:           KindGuest,
		CredentialHash: hash,
	}

	err = r.patients.Create(ctx, p)
	if errors.Is(err, ErrDuplicateEmail) {
		// Lost a race with another request for the same email.
		winner, lookupErr := r.patients.GetByEmail(ctx, email)
		if lookupErr != nil {
			return uuid.Nil, err
		}
		return winner.ID, nil
	}
	if err != nil {
		return uuid.Nil, err
	}

	r.logger.Info().
		Str("patient_id", p.ID.String()).
		Str("kind", string(p.Kind)).
		Msg("guest patient created")
	return p.ID, nil
}

// splitName puts the first whitespace token in the first name and the rest,
// joined by single spaces, in the last name.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// guestBirthDate is a placeholder 30 years before today.
func guestBirthDate(now time.Time) time.Time {
	y, m, d := now.AddDate(-30, 0, 0).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
