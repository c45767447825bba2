package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Order selects how Find sorts its results.
type Order int

const (
	// OrderSchedule sorts by date then time, earliest first.
	OrderSchedule Order = iota
	// OrderNewestFirst sorts by date then time, latest first.
	OrderNewestFirst
)

// AppointmentFilter narrows Find and Count. Zero fields match everything.
type AppointmentFilter struct {
	ID              *uuid.UUID
	DoctorID        *uuid.UUID
	PatientID       *uuid.UUID
	Date            *time.Time
	Time            TimeLabel
	Statuses        []Status
	ExcludeStatuses []Status
	Order           Order
	Limit           int
	Offset          int
}

type AppointmentRepository interface {
	Find(ctx context.Context, f AppointmentFilter) ([]*Appointment, error)
	Count(ctx context.Context, f AppointmentFilter) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate is GetByID that also locks the row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Create fails with ErrConflict when an active appointment already holds
	// the doctor, date and time.
	Create(ctx context.Context, a *Appointment) error
	// Update writes the mutable fields (date, time, status, notes, updated_at).
	// It fails with ErrNotFound for an unknown id and ErrConflict when the new
	// state would double-book a slot.
	Update(ctx context.Context, a *Appointment) error
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// Transactor runs fn so that repository calls made with the context it is
// given commit together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
