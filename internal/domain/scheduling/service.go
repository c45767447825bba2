package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/events"
)

const (
	maxDepartmentLength = 100
	maxReasonLength     = 500
	maxNotesLength      = 1000
)

const (
	EventBooked        = "appointment.booked"
	EventRescheduled   = "appointment.rescheduled"
	EventStatusChanged = "appointment.status_changed"
	EventNotesUpdated  = "appointment.notes_updated"
)

type DoctorLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
}

type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

type PatientResolver interface {
	ResolveOrCreatePatient(ctx context.Context, name, email, phone string) (uuid.UUID, error)
}

// Deps are the collaborators of a Service. Tx, Catalog, Events and Now are
// optional.
type Deps struct {
	Appointments AppointmentRepository
	Tx           Transactor
	Doctors      DoctorLookup
	Patients     PatientLookup
	Resolver     PatientResolver
	Catalog      *Catalog
	Events       events.Publisher
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Service books appointments and moves them through their lifecycle. Double
// booking is refused by the store's uniqueness guard.
type Service struct {
	appointments AppointmentRepository
	tx           Transactor
	doctors      DoctorLookup
	patients     PatientLookup
	resolver     PatientResolver
	catalog      *Catalog
	events       events.Publisher
	logger       zerolog.Logger
	now          func() time.Time
}

type noTx struct{}

func (noTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

func NewService(d Deps) *Service {
	s := &Service{
		appointments: d.Appointments,
		tx:           d.Tx,
		doctors:      d.Doctors,
		patients:     d.Patients,
		resolver:     d.Resolver,
		catalog:      d.Catalog,
		events:       d.Events,
		logger:       d.Logger,
		now:          d.Now,
	}
	if s.tx == nil {
		s.tx = noTx{}
	}
	if s.catalog == nil {
		s.catalog = DefaultCatalog()
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// -- Booking --

type BookingRequest struct {
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	Date       time.Time
	Time       TimeLabel
	Department string
	Reason     string
	Notes      string
	// EnforceDoctorAvailability rejects doctors not taking bookings. Staff
	// bookings leave it off.
	EnforceDoctorAvailability bool
}

type GuestBookingRequest struct {
	Name       string
	Email      string
	Phone      string
	DoctorID   uuid.UUID
	Date       time.Time
	Time       TimeLabel
	Department string
	Reason     string
}

// slot is a validated booking target.
type slot struct {
	doctorID   uuid.UUID
	date       time.Time
	time       TimeLabel
	department string
}

func (s *Service) validateSlot(doctorID uuid.UUID, date time.Time, label TimeLabel, department string) (slot, error) {
	if doctorID == uuid.Nil {
		return slot{}, invalid("doctor_id", "is required")
	}
	if date.IsZero() {
		return slot{}, invalid("date", "is required")
	}
	l, err := s.catalog.Parse(string(label))
	if err != nil {
		return slot{}, err
	}
	department = strings.TrimSpace(department)
	if len(department) > maxDepartmentLength {
		return slot{}, invalid("department", "cannot exceed %d characters", maxDepartmentLength)
	}
	return slot{doctorID: doctorID, date: DateOf(date), time: l, department: department}, nil
}

// checkDoctor confirms the doctor exists and fills an empty department from
// the specialization. enforce also rejects doctors not taking bookings.
func (s *Service) checkDoctor(ctx context.Context, sl *slot, enforce bool) error {
	d, err := s.doctors.GetByID(ctx, sl.doctorID)
	if err != nil {
		return err
	}
	if enforce && !d.IsAvailable {
		return invalid("doctor_id", "%s is not available for booking", d.FullName())
	}
	if sl.department == "" {
		sl.department = d.Specialization
	}
	if sl.department == "" {
		return invalid("department", "is required")
	}
	return nil
}

func (s *Service) slotTaken(ctx context.Context, sl slot, except uuid.UUID) (bool, error) {
	holders, err := s.appointments.Find(ctx, AppointmentFilter{
		DoctorID:        &sl.doctorID,
		Date:            &sl.date,
		Time:            sl.time,
		ExcludeStatuses: inactiveStatuses,
	})
	if err != nil {
		return false, err
	}
	for _, a := range holders {
		if a.ID != except {
			return true, nil
		}
	}
	return false, nil
}

// Book creates a scheduled appointment, failing with ErrConflict when an
// active appointment already holds the doctor's slot.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil {
		return nil, invalid("patient_id", "is required")
	}
	sl, err := s.validateSlot(req.DoctorID, req.Date, req.Time, req.Department)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if len(reason) > maxReasonLength {
		return nil, invalid("reason", "cannot exceed %d characters", maxReasonLength)
	}
	notes := strings.TrimSpace(req.Notes)
	if len(notes) > maxNotesLength {
		return nil, invalid("notes", "cannot exceed %d characters", maxNotesLength)
	}
	if _, err := s.patients.GetByID(ctx, req.PatientID); err != nil {
		return nil, err
	}
	if err := s.checkDoctor(ctx, &sl, req.EnforceDoctorAvailability); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:  req.PatientID,
		DoctorID:   sl.doctorID,
		Date:       sl.date,
		Time:       sl.time,
		Department: sl.department,
		Reason:     reason,
		Notes:      notes,
		Status:     StatusScheduled,
		CreatedAt:  s.now().UTC(),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		taken, err := s.slotTaken(ctx, sl, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		return s.appointments.Create(ctx, a)
	})
	if err != nil {
		s.logFailure(err, "booking rejected", sl)
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Str("date", a.Date.Format(time.DateOnly)).
		Str("time", string(a.Time)).
		Msg("appointment booked")
	s.publish(ctx, EventBooked, a, nil)
	return a, nil
}

// BookAsGuest resolves the guest's email to a patient, creating a guest
// record if needed, and books for that patient. Input and doctor checks run
// before any patient record is written.
func (s *Service) BookAsGuest(ctx context.Context, req GuestBookingRequest) (*Appointment, error) {
	if s.resolver == nil {
		return nil, errors.New("guest booking is not configured")
	}
	sl, err := s.validateSlot(req.DoctorID, req.Date, req.Time, req.Department)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(req.Reason)) > maxReasonLength {
		return nil, invalid("reason", "cannot exceed %d characters", maxReasonLength)
	}
	if err := s.checkDoctor(ctx, &sl, true); err != nil {
		return nil, err
	}
	taken, err := s.slotTaken(ctx, sl, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		s.logFailure(ErrConflict, "guest booking rejected", sl)
		return nil, ErrConflict
	}

	patientID, err := s.resolver.ResolveOrCreatePatient(ctx, req.Name, req.Email, req.Phone)
	if err != nil {
		return nil, err
	}
	return s.Book(ctx, BookingRequest{
		PatientID:                 patientID,
		DoctorID:                  sl.doctorID,
		Date:                      sl.date,
		Time:                      sl.time,
		Department:                sl.department,
		Reason:                    req.Reason,
		EnforceDoctorAvailability: true,
	})
}

// -- Lifecycle --

// mutate loads the appointment, applies fn and writes it back inside one
// transaction. fn may return an error to abort without writing.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, a *Appointment) error) (before, after *Appointment, err error) {
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		prev := *a
		if err := fn(ctx, a); err != nil {
			return err
		}
		a.touch(s.now().UTC())
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		before, after = &prev, a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// Reschedule moves an appointment to a new date and time. Status, patient and
// doctor are kept.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime TimeLabel) (*Appointment, error) {
	if newDate.IsZero() {
		return nil, invalid("date", "is required")
	}
	label, err := s.catalog.Parse(string(newTime))
	if err != nil {
		return nil, err
	}
	day := DateOf(newDate)

	before, after, err := s.mutate(ctx, id, func(ctx context.Context, a *Appointment) error {
		target := slot{doctorID: a.DoctorID, date: day, time: label}
		taken, err := s.slotTaken(ctx, target, a.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		a.Date, a.Time = day, label
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", id.String()).
			Str("date", day.Format(time.DateOnly)).
			Str("time", string(label)).
			Msg("reschedule rejected")
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", after.ID.String()).
		Str("doctor_id", after.DoctorID.String()).
		Str("from", before.Date.Format(time.DateOnly)+" "+string(before.Time)).
		Str("to", after.Date.Format(time.DateOnly)+" "+string(after.Time)).
		Msg("appointment rescheduled")
	s.publish(ctx, EventRescheduled, after, before)
	return after, nil
}

// UpdateStatus sets any status from any status. Moving a released
// appointment back to an active status fails with ErrConflict if its slot has
// since been taken.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, invalid("status", "unknown status %q", status)
	}
	before, after, err := s.mutate(ctx, id, func(_ context.Context, a *Appointment) error {
		a.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logStatus(before, after)
	s.publish(ctx, EventStatusChanged, after, before)
	return after, nil
}

func (s *Service) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	notes = strings.TrimSpace(notes)
	if len(notes) > maxNotesLength {
		return nil, invalid("notes", "cannot exceed %d characters", maxNotesLength)
	}
	_, after, err := s.mutate(ctx, id, func(_ context.Context, a *Appointment) error {
		a.Notes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventNotesUpdated, after, nil)
	return after, nil
}

// CancelForPatient cancels an appointment owned by patientID. Someone else's
// appointment is reported as ErrNotFound.
func (s *Service) CancelForPatient(ctx context.Context, patientID, id uuid.UUID) (*Appointment, error) {
	before, after, err := s.mutate(ctx, id, func(_ context.Context, a *Appointment) error {
		if a.PatientID != patientID {
			return ErrNotFound
		}
		a.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logStatus(before, after)
	s.publish(ctx, EventStatusChanged, after, before)
	return after, nil
}

// -- Reads --

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// ListQuery filters the staff appointment list.
type ListQuery struct {
	DoctorID *uuid.UUID
	Date     *time.Time
	Status   Status
	Limit    int
	Offset   int
}

// ListAppointments returns one page ordered by date then time, plus the total.
func (s *Service) ListAppointments(ctx context.Context, q ListQuery) ([]*Appointment, int, error) {
	f := AppointmentFilter{DoctorID: q.DoctorID, Date: q.Date, Order: OrderSchedule}
	if q.Status != "" {
		if !q.Status.Valid() {
			return nil, 0, invalid("status", "unknown status %q", q.Status)
		}
		f.Statuses = []Status{q.Status}
	}
	total, err := s.appointments.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	f.Limit, f.Offset = q.Limit, q.Offset
	list, err := s.appointments.Find(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListPatientAppointments returns the patient's appointments, latest first.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return s.appointments.Find(ctx, AppointmentFilter{PatientID: &patientID, Order: OrderNewestFirst})
}

// StatusCounts totals appointments per status. Every status is present.
func (s *Service) StatusCounts(ctx context.Context) (StatusSummary, error) {
	counts, err := s.appointments.CountByStatus(ctx)
	if err != nil {
		return StatusSummary{}, err
	}
	sum := StatusSummary{ByStatus: make(map[Status]int, len(AllStatuses))}
	for _, st := range AllStatuses {
		sum.ByStatus[st] = counts[st]
		sum.Total += counts[st]
	}
	return sum, nil
}

// -- Logging and events --

func (s *Service) logFailure(err error, msg string, sl slot) {
	evt := s.logger.Error()
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrValidation) {
		evt = s.logger.Warn()
	}
	evt.Err(err).
		Str("doctor_id", sl.doctorID.String()).
		Str("date", sl.date.Format(time.DateOnly)).
		Str("time", string(sl.time)).
		Msg(msg)
}

func (s *Service) logStatus(before, after *Appointment) {
	s.logger.Info().
		Str("appointment_id", after.ID.String()).
		Str("from", string(before.Status)).
		Str("to", string(after.Status)).
		Msg("appointment status changed")
}

// AppointmentEvent is the payload of every appointment event. The previous_*
// fields are set for reschedules and status changes.
type AppointmentEvent struct {
	AppointmentID  uuid.UUID `json:"appointment_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	Date           string    `json:"date"`
	Time           TimeLabel `json:"time"`
	Status         Status    `json:"status"`
	PreviousDate   string    `json:"previous_date,omitempty"`
	PreviousTime   TimeLabel `json:"previous_time,omitempty"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
}

func newAppointmentEvent(a, prev *Appointment) AppointmentEvent {
	e := AppointmentEvent{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		Date:          a.Date.Format(time.DateOnly),
		Time:          a.Time,
		Status:        a.Status,
	}
	if prev != nil {
		e.PreviousDate = prev.Date.Format(time.DateOnly)
		e.PreviousTime = prev.Time
		e.PreviousStatus = prev.Status
	}
	return e
}

// publish runs after the write has committed. A failure is logged, never
// returned: the appointment change already happened.
func (s *Service) publish(ctx context.Context, eventType string, a, prev *Appointment) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, events.New(eventType, newAppointmentEvent(a, prev))); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", a.ID.String()).
			Msg("publish appointment event")
	}
}
