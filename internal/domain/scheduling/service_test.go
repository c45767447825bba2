package scheduling

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/events"
)

var (
	testDay = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	testNow = time.Date(2025, 6, 20, 8, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc      *Service
	appts    *MemoryAppointmentRepo
	patients *identity.MemoryPatientRepo
	doctors  *identity.MemoryDoctorRepo
	events   *events.Recorder
	doctor   *identity.Doctor
	patient  *identity.Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		appts:    NewMemoryAppointmentRepo(),
		patients: identity.NewMemoryPatientRepo(),
		doctors:  identity.NewMemoryDoctorRepo(),
		events:   &events.Recorder{},
	}
	f.doctor = f.addDoctor(t, "walter.white@clinic.test", "Cardiology", true)
	f.patient = f.addPatient(t, "ann@x.io")

	logger := zerolog.New(io.Discard)
	f.svc = NewService(Deps{
		Appointments: f.appts,
		Tx:           f.appts,
		Doctors:      f.doctors,
		Patients:     f.patients,
		Resolver:     identity.NewResolver(f.patients, identity.NewBcryptHasher(bcrypt.MinCost), logger),
		Events:       f.events,
		Logger:       logger,
		Now:          func() time.Time { return testNow },
	})
	return f
}

func (f *fixture) addDoctor(t *testing.T, email, specialization string, available bool) *identity.Doctor {
	t.Helper()
	d := &identity.Doctor{FirstName: "Test", LastName: "Doctor", Email: email, Specialization: specialization, IsAvailable: available}
	if err := f.doctors.Create(context.Background(), d); err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	return d
}

func (f *fixture) addPatient(t *testing.T, email string) *identity.Patient {
	t.Helper()
	p := &identity.Patient{FirstName: "Ann", LastName: "Lee", Email: email, Kind: identity.KindRegistered}
	if err := f.patients.Create(context.Background(), p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

func (f *fixture) booking(label TimeLabel) BookingRequest {
	return BookingRequest{
		PatientID:                 f.patient.ID,
		DoctorID:                  f.doctor.ID,
		Date:                      testDay,
		Time:                      label,
		Reason:                    "checkup",
		EnforceDoctorAvailability: true,
	}
}

func (f *fixture) mustBook(t *testing.T, label TimeLabel) *Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), f.booking(label))
	if err != nil {
		t.Fatalf("Book(%s): %v", label, err)
	}
	return a
}

func TestBook_Success(t *testing.T) {
	f := newFixture(t)

	a := f.mustBook(t, "10:00")

	if a.ID == uuid.Nil {
		t.Error("expected an id")
	}
	if a.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", a.Status)
	}
	if a.Department != "Cardiology" {
		t.Errorf("expected department from specialization, got %q", a.Department)
	}
	if !a.CreatedAt.Equal(testNow) {
		t.Errorf("expected created_at %v, got %v", testNow, a.CreatedAt)
	}
	if a.UpdatedAt != nil {
		t.Error("new appointment should have no updated_at")
	}
	if got := f.events.Types(); len(got) != 1 || got[0] != EventBooked {
		t.Errorf("expected one booked event, got %v", got)
	}
	stored, err := f.appts.GetByID(context.Background(), a.ID)
	if err != nil || stored.Time != "10:00" {
		t.Errorf("appointment not stored: %v %+v", err, stored)
	}
}

func TestBook_NormalizesTimeAndDate(t *testing.T) {
	f := newFixture(t)
	req := f.booking("2:30 PM")
	req.Date = time.Date(2025, 7, 1, 16, 45, 0, 0, time.UTC)

	a, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Time != "14:30" {
		t.Errorf("expected 14:30, got %s", a.Time)
	}
	if !a.Date.Equal(testDay) {
		t.Errorf("expected date stripped to %v, got %v", testDay, a.Date)
	}
}

func TestBook_ExplicitDepartmentKept(t *testing.T) {
	f := newFixture(t)
	req := f.booking("09:00")
	req.Department = "Sports Medicine"

	a, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Department != "Sports Medicine" {
		t.Errorf("expected explicit department, got %q", a.Department)
	}
}

func TestBook_SlotTaken(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, "10:00")
	other := f.addPatient(t, "bob@x.io")

	req := f.booking("10:00")
	req.PatientID = other.ID
	_, err := f.svc.Book(context.Background(), req)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if n, _ := f.appts.Count(context.Background(), AppointmentFilter{}); n != 1 {
		t.Errorf("expected 1 stored appointment, got %d", n)
	}
	if len(f.events.Events()) != 1 {
		t.Errorf("a rejected booking must not publish")
	}
}

func TestBook_SameSlotOtherDoctorOrDay(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, "10:00")

	other := f.addDoctor(t, "sarah@clinic.test", "Neurology", true)
	req := f.booking("10:00")
	req.DoctorID = other.ID
	if _, err := f.svc.Book(context.Background(), req); err != nil {
		t.Errorf("other doctor, same slot: %v", err)
	}

	req = f.booking("10:00")
	req.Date = testDay.AddDate(0, 0, 1)
	if _, err := f.svc.Book(context.Background(), req); err != nil {
		t.Errorf("same doctor, next day: %v", err)
	}
}

func TestBook_ReleasedSlotIsBookable(t *testing.T) {
	for _, release := range []Status{StatusCancelled, StatusNoShow} {
		t.Run(string(release), func(t *testing.T) {
			f := newFixture(t)
			a := f.mustBook(t, "10:00")
			if _, err := f.svc.UpdateStatus(context.Background(), a.ID, release); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
			b := f.mustBook(t, "10:00")
			if b.ID == a.ID {
				t.Error("expected a new appointment")
			}
		})
	}
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t)
	long := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'x'
		}
		return string(b)
	}

	tests := []struct {
		name  string
		mod   func(r *BookingRequest)
		field string
	}{
		{"missing patient", func(r *BookingRequest) { r.PatientID = uuid.Nil }, "patient_id"},
		{"missing doctor", func(r *BookingRequest) { r.DoctorID = uuid.Nil }, "doctor_id"},
		{"missing date", func(r *BookingRequest) { r.Date = time.Time{} }, "date"},
		{"missing time", func(r *BookingRequest) { r.Time = "" }, "time"},
		{"lunch time", func(r *BookingRequest) { r.Time = "12:30" }, "time"},
		{"reason too long", func(r *BookingRequest) { r.Reason = long(501) }, "reason"},
		{"notes too long", func(r *BookingRequest) { r.Notes = long(1001) }, "notes"},
		{"department too long", func(r *BookingRequest) { r.Department = long(101) }, "department"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.booking("10:00")
			tt.mod(&req)
			_, err := f.svc.Book(context.Background(), req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
	if n, _ := f.appts.Count(context.Background(), AppointmentFilter{}); n != 0 {
		t.Errorf("validation failures must not write, found %d", n)
	}
}

func TestBook_UnknownPatientOrDoctor(t *testing.T) {
	f := newFixture(t)

	req := f.booking("10:00")
	req.PatientID = uuid.New()
	if _, err := f.svc.Book(context.Background(), req); !errors.Is(err, identity.ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}

	req = f.booking("10:00")
	req.DoctorID = uuid.New()
	if _, err := f.svc.Book(context.Background(), req); !errors.Is(err, identity.ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestBook_UnavailableDoctor(t *testing.T) {
	f := newFixture(t)
	off := f.addDoctor(t, "off@clinic.test", "Pediatrics", false)

	req := f.booking("10:00")
	req.DoctorID = off.ID
	if _, err := f.svc.Book(context.Background(), req); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unavailable doctor, got %v", err)
	}

	req.EnforceDoctorAvailability = false
	if _, err := f.svc.Book(context.Background(), req); err != nil {
		t.Errorf("staff booking should skip the availability check: %v", err)
	}
}

func TestBook_Concurrent(t *testing.T) {
	f := newFixture(t)
	const n = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), f.booking("15:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || conflicts != n-1 {
		t.Errorf("expected 1 success and %d conflicts, got %d and %d", n-1, ok, conflicts)
	}
	day := testDay
	active, _ := f.appts.Count(context.Background(), AppointmentFilter{
		DoctorID: &f.doctor.ID, Date: &day, Time: "15:00", ExcludeStatuses: inactiveStatuses,
	})
	if active != 1 {
		t.Errorf("expected exactly one active holder, got %d", active)
	}
}

// raceRepo hides existing rows from Find so the store constraint is the
// only thing left to reject a double booking.
type raceRepo struct {
	*MemoryAppointmentRepo
}

func (raceRepo) Find(context.Context, AppointmentFilter) ([]*Appointment, error) {
	return nil, nil
}

func TestBook_StoreGuardWithoutPrecheck(t *testing.T) {
	f := newFixture(t)
	repo := raceRepo{f.appts}
	f.svc.appointments = repo
	f.svc.tx = noTx{}

	f.mustBook(t, "10:00")
	if _, err := f.svc.Book(context.Background(), f.booking("10:00")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected the store to reject the second booking, got %v", err)
	}
}

func TestBookAsGuest_CreatesGuestPatient(t *testing.T) {
	f := newFixture(t)
	before := f.patients.Len()

	a, err := f.svc.BookAsGuest(context.Background(), GuestBookingRequest{
		Name: "Carl Jung", Email: "carl@x.io", Phone: "555", DoctorID: f.doctor.ID, Date: testDay, Time: "9:30 AM",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.patients.Len() != before+1 {
		t.Errorf("expected a guest patient to be created")
	}
	p, err := f.patients.GetByID(context.Background(), a.PatientID)
	if err != nil {
		t.Fatalf("patient lookup: %v", err)
	}
	if p.Kind != identity.KindGuest || p.Email != "carl@x.io" {
		t.Errorf("unexpected patient %+v", p)
	}
	if a.Time != "09:30" || a.Status != StatusScheduled {
		t.Errorf("unexpected appointment %+v", a)
	}
}

func TestBookAsGuest_LostRaceKeepsReusableGuest(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, "10:00")
	f.svc.appointments = raceRepo{f.appts}
	before := f.patients.Len()

	req := GuestBookingRequest{
		Name: "Carl Jung", Email: "carl@x.io", Phone: "555", DoctorID: f.doctor.ID, Date: testDay, Time: "10:00",
	}
	if _, err := f.svc.BookAsGuest(context.Background(), req); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if f.patients.Len() != before+1 {
		t.Fatalf("expected the guest patient to remain after the lost booking")
	}

	f.svc.appointments = f.appts
	req.Time = "10:30"
	a, err := f.svc.BookAsGuest(context.Background(), req)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.patients.Len() != before+1 {
		t.Errorf("retry should reuse the guest patient, have %d patients", f.patients.Len())
	}
	p, _ := f.patients.GetByEmail(context.Background(), "carl@x.io")
	if p == nil || a.PatientID != p.ID {
		t.Errorf("expected booking for the existing guest, got %v", a.PatientID)
	}
}

func TestBookAsGuest_ReusesPatientByEmail(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.BookAsGuest(context.Background(), GuestBookingRequest{
		Name: "Ann Lee", Email: f.patient.Email, DoctorID: f.doctor.ID, Date: testDay, Time: "09:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.PatientID != f.patient.ID {
		t.Errorf("expected existing patient %s, got %s", f.patient.ID, a.PatientID)
	}

	b, err := f.svc.BookAsGuest(context.Background(), GuestBookingRequest{
		Name: "Ann Lee", Email: f.patient.Email, DoctorID: f.doctor.ID, Date: testDay, Time: "09:30",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.PatientID != a.PatientID {
		t.Error("same email should resolve to the same patient")
	}
	if f.patients.Len() != 1 {
		t.Errorf("expected no new patients, got %d", f.patients.Len())
	}
}

func TestBookAsGuest_NoPatientOnRejectedInput(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, "10:00")
	before := f.patients.Len()

	cases := []GuestBookingRequest{
		{Name: "Carl Jung", Email: "carl@x.io", DoctorID: f.doctor.ID, Date: testDay, Time: "12:00"},
		{Name: "Carl Jung", Email: "carl@x.io", DoctorID: uuid.New(), Date: testDay, Time: "10:30"},
		{Name: "Carl Jung", Email: "carl@x.io", DoctorID: f.doctor.ID, Date: testDay, Time: "10:00"},
	}
	for i, req := range cases {
		if _, err := f.svc.BookAsGuest(context.Background(), req); err == nil {
			t.Errorf("case %d: expected an error", i)
		}
	}
	if f.patients.Len() != before {
		t.Errorf("rejected guest bookings created %d patients", f.patients.Len()-before)
	}
}

func TestBookAsGuest_InvalidIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BookAsGuest(context.Background(), GuestBookingRequest{
		Name: "", Email: "carl@x.io", DoctorID: f.doctor.ID, Date: testDay, Time: "10:00",
	})
	if !errors.Is(err, identity.ErrValidation) {
		t.Fatalf("expected identity validation error, got %v", err)
	}
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, "10:00")
	next := testDay.AddDate(0, 0, 1)

	moved, err := f.svc.Reschedule(context.Background(), a.ID, next, "11:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !moved.Date.Equal(next) || moved.Time != "11:00" {
		t.Errorf("unexpected slot %v %s", moved.Date, moved.Time)
	}
	if moved.Status != a.Status || moved.PatientID != a.PatientID || moved.DoctorID != a.DoctorID {
		t.Error("reschedule must keep status, patient and doctor")
	}
	if moved.UpdatedAt == nil || !moved.UpdatedAt.Equal(testNow) {
		t.Errorf("expected updated_at %v, got %v", testNow, moved.UpdatedAt)
	}

	// old slot is free again
	if _, err := f.svc.Book(context.Background(), f.booking("10:00")); err != nil {
		t.Errorf("old slot should be free: %v", err)
	}
	types := f.events.Types()
	if types[1] != EventRescheduled {
		t.Errorf("expected rescheduled event, got %v", types)
	}
	payload := f.events.Events()[1].Data.(AppointmentEvent)
	if payload.PreviousTime != "10:00" || payload.Time != "11:00" {
		t.Errorf("unexpected event payload %+v", payload)
	}
}

func TestReschedule_RoundTrip(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, "10:00")

	if _, err := f.svc.Reschedule(context.Background(), a.ID, testDay, "16:00"); err != nil {
		t.Fatalf("first move: %v", err)
	}
	back, err := f.svc.Reschedule(context.Background(), a.ID, testDay, "10:00")
	if err != nil {
		t.Fatalf("move back: %v", err)
	}
	if back.Time != "10:00" {
		t.Errorf("expected 10:00, got %s", back.Time)
	}
}

func TestReschedule_SameSlot(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, "10:00")

	if _, err := f.svc.Reschedule(context.Background(), a.ID, testDay, "10:00"); err != nil {
		t.Errorf("rescheduling onto its own slot should succeed: %v", err)
	}
}

func TestReschedule_Conflict(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, "10:00")
	f.mustBook(t, "11:00")

	_, err := f.svc.Reschedule(context.Background(), a.ID, testDay, "11:00")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := f.appts.GetByID(context.Background(), a.ID)
	if got.Time != "10:00" || got.UpdatedAt != nil {
		t.Errorf("failed reschedule must leave the appointment untouched: %+v", got)
	}
}

func TestReschedule_IntoReleasedSlot(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, "10:00")
	b := f.mustBook(t, "11:00")
	if _, err := f.svc.UpdateStatus(context.Background(), b.ID, StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Reschedule(context.Background(), a.ID, testDay, "11:00"); err != nil {
		t.Errorf("cancelled holder should not block: %v", err)
	}
}

func TestReschedule_Errors(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, "10:00")

	if _, err := f.svc.Reschedule(context.Background(), uuid.New(), testDay, "11:00"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Reschedule(context.Background(), a.ID, testDay, "13:00"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := f.svc.Reschedule(context.Background(), a.ID, time.Time{}, "11:00"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for missing date, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, "10:00")

	for _, st := range []Status{StatusConfirmed, StatusInProgress, StatusCompleted, StatusScheduled} {
		got, err := f.svc.UpdateStatus(context.Background(), a.ID, st)
		if err != nil {
			t.Fatalf("UpdateStatus(%s): %v", st, err)
		}
		if got.Status != st {
			t.Errorf("expected %s, got %s", st, got.Status)
		}
	}
	if _, err := f.svc.UpdateStatus(context.Background(), a.ID, "archived"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), uuid.New(), StatusConfirmed); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	payload := f.events.Events()[1].Data.(AppointmentEvent)
	if payload.PreviousStatus != StatusScheduled || payload.Status != StatusConfirmed {
		t.Errorf("unexpected status event %+v", payload)
	}
}

func TestUpdateStatus_ReactivationConflict(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, "10:00")
	if _, err := f.svc.UpdateStatus(context.Background(), a.ID, StatusCancelled); err != nil {
		t.Fatal(err)
	}
	f.mustBook(t, "10:00")

	_, err := f.svc.UpdateStatus(context.Background(), a.ID, StatusScheduled)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := f.appts.GetByID(context.Background(), a.ID)
	if got.Status != StatusCancelled {
		t.Errorf("expected status to stay cancelled, got %s", got.Status)
	}
}

func TestUpdateNotes(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, "10:00")

	got, err := f.svc.UpdateNotes(context.Background(), a.ID, "  bring previous ECG  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Notes != "bring previous ECG" {
		t.Errorf("unexpected notes %q", got.Notes)
	}
	if got.UpdatedAt == nil {
		t.Error("expected updated_at to be set")
	}
	if _, err := f.svc.UpdateNotes(context.Background(), uuid.New(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelForPatient(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, "10:00")
	stranger := f.addPatient(t, "eve@x.io")

	if _, err := f.svc.CancelForPatient(context.Background(), stranger.ID, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another patient's appointment, got %v", err)
	}
	got, err := f.svc.CancelForPatient(context.Background(), f.patient.ID, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}

	slots, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, testDay, AvailabilityOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range slots {
		if s.Time == "10:00" && !s.Available {
			t.Error("cancelled appointment should free its slot")
		}
	}
}

func TestListAppointments(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, "16:00")
	a := f.mustBook(t, "09:00")
	f.mustBook(t, "11:00")
	if _, err := f.svc.UpdateStatus(context.Background(), a.ID, StatusConfirmed); err != nil {
		t.Fatal(err)
	}

	list, total, err := f.svc.ListAppointments(context.Background(), ListQuery{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(list) != 2 {
		t.Fatalf("expected 2 of 3, got %d of %d", len(list), total)
	}
	if list[0].Time != "09:00" || list[1].Time != "11:00" {
		t.Errorf("expected schedule order, got %s, %s", list[0].Time, list[1].Time)
	}

	list, total, _ = f.svc.ListAppointments(context.Background(), ListQuery{Status: StatusConfirmed})
	if total != 1 || len(list) != 1 || list[0].ID != a.ID {
		t.Errorf("status filter returned %d (total %d)", len(list), total)
	}
	if _, _, err := f.svc.ListAppointments(context.Background(), ListQuery{Status: "bogus"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestListPatientAppointments_NewestFirst(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, "09:00")
	late := f.booking("10:00")
	late.Date = testDay.AddDate(0, 0, 3)
	if _, err := f.svc.Book(context.Background(), late); err != nil {
		t.Fatal(err)
	}

	list, err := f.svc.ListPatientAppointments(context.Background(), f.patient.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2, got %d", len(list))
	}
	if !list[0].Date.After(list[1].Date) {
		t.Errorf("expected latest first, got %v then %v", list[0].Date, list[1].Date)
	}
}

func TestStatusCounts(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, "09:00")
	b := f.mustBook(t, "09:30")
	if _, err := f.svc.UpdateStatus(context.Background(), b.ID, StatusNoShow); err != nil {
		t.Fatal(err)
	}

	sum, err := f.svc.StatusCounts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Total != 2 {
		t.Errorf("expected total 2, got %d", sum.Total)
	}
	if len(sum.ByStatus) != len(AllStatuses) {
		t.Errorf("expected every status present, got %v", sum.ByStatus)
	}
	if sum.ByStatus[StatusScheduled] != 1 || sum.ByStatus[StatusNoShow] != 1 || sum.ByStatus[StatusCompleted] != 0 {
		t.Errorf("unexpected counts %v", sum.ByStatus)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("bus down")
}

func TestBook_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.svc.events = failingPublisher{}

	if _, err := f.svc.Book(context.Background(), f.booking("10:00")); err != nil {
		t.Fatalf("publish errors must not fail the booking: %v", err)
	}
}
