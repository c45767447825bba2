package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes patients who signed up from those created by a guest booking.
type Kind string

const (
	KindRegistered Kind = "registered"
	KindGuest      Kind = "guest"
)

// GuestGender is stored on patients created from a guest booking.
const GuestGender = "Not Specified"

// Patient maps to the patient table.
type Patient struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FirstName      string    `db:"first_name" json:"first_name"`
	LastName       string    `db:"last_name" json:"last_name"`
	Email          string    `db:"email" json:"email"`
	Phone          string    `db:"phone" json:"phone"`
	BirthDate      time.Time `db:"birth_date" json:"birth_date"`
	Gender         string    `db:"gender" json:"gender"`
	Kind           Kind      `db:"kind" json:"kind"`
	CredentialHash string    `db:"credential_hash" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Doctor maps to the doctor table. Specialization doubles as the department.
type Doctor struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FirstName      string    `db:"first_name" json:"first_name"`
	LastName       string    `db:"last_name" json:"last_name"`
	Email          string    `db:"email" json:"email"`
	Phone          string    `db:"phone" json:"phone"`
	Specialization string    `db:"specialization" json:"specialization"`
	LicenseNumber  string    `db:"license_number" json:"license_number"`
	Bio            string    `db:"bio" json:"bio,omitempty"`
	IsAvailable    bool      `db:"is_available" json:"is_available"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func (d *Doctor) FullName() string {
	return "Dr. " + strings.TrimSpace(d.FirstName+" "+d.LastName)
}
