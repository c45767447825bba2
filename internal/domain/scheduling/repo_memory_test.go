package scheduling

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func newMemAppt(doctor uuid.UUID, label TimeLabel, status Status) *Appointment {
	return &Appointment{
		PatientID: uuid.New(),
		DoctorID:  doctor,
		Date:      testDay,
		Time:      label,
		Status:    status,
		CreatedAt: testNow,
	}
}

func TestMemoryRepo_CreateGuardsSlot(t *testing.T) {
	repo := NewMemoryAppointmentRepo()
	ctx := context.Background()
	doctor := uuid.New()

	if err := repo.Create(ctx, newMemAppt(doctor, "09:00", StatusScheduled)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := repo.Create(ctx, newMemAppt(doctor, "09:00", StatusConfirmed)); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	// inactive rows never hold the slot
	if err := repo.Create(ctx, newMemAppt(doctor, "09:00", StatusCancelled)); err != nil {
		t.Errorf("cancelled row should not conflict: %v", err)
	}
}

func TestMemoryRepo_UpdateMovesOccupancy(t *testing.T) {
	repo := NewMemoryAppointmentRepo()
	ctx := context.Background()
	doctor := uuid.New()

	a := newMemAppt(doctor, "09:00", StatusScheduled)
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	a.Time = "09:30"
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.Create(ctx, newMemAppt(doctor, "09:00", StatusScheduled)); err != nil {
		t.Errorf("old slot should be free: %v", err)
	}
	if err := repo.Create(ctx, newMemAppt(doctor, "09:30", StatusScheduled)); !errors.Is(err, ErrConflict) {
		t.Errorf("new slot should be held, got %v", err)
	}
}

func TestMemoryRepo_UpdateUnknown(t *testing.T) {
	repo := NewMemoryAppointmentRepo()
	if err := repo.Update(context.Background(), newMemAppt(uuid.New(), "09:00", StatusScheduled)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepo_ReturnsCopies(t *testing.T) {
	repo := NewMemoryAppointmentRepo()
	ctx := context.Background()
	a := newMemAppt(uuid.New(), "09:00", StatusScheduled)
	repo.Create(ctx, a)

	got, _ := repo.GetByID(ctx, a.ID)
	got.Status = StatusCompleted
	again, _ := repo.GetByID(ctx, a.ID)
	if again.Status != StatusScheduled {
		t.Error("mutating a returned appointment changed the store")
	}
}

func TestMemoryRepo_FindFiltersAndPages(t *testing.T) {
	repo := NewMemoryAppointmentRepo()
	ctx := context.Background()
	doctor, other := uuid.New(), uuid.New()

	for _, l := range []TimeLabel{"11:00", "09:00", "10:00"} {
		repo.Create(ctx, newMemAppt(doctor, l, StatusScheduled))
	}
	repo.Create(ctx, newMemAppt(other, "09:00", StatusScheduled))
	repo.Create(ctx, newMemAppt(doctor, "14:00", StatusNoShow))

	got, _ := repo.Find(ctx, AppointmentFilter{DoctorID: &doctor, ExcludeStatuses: inactiveStatuses})
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].Time != "09:00" || got[2].Time != "11:00" {
		t.Errorf("expected schedule order, got %s..%s", got[0].Time, got[2].Time)
	}

	page, _ := repo.Find(ctx, AppointmentFilter{DoctorID: &doctor, Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].Time != "10:00" {
		t.Errorf("unexpected page %+v", page)
	}
	newest, _ := repo.Find(ctx, AppointmentFilter{DoctorID: &doctor, Order: OrderNewestFirst, Limit: 1})
	if len(newest) != 1 || newest[0].Time != "14:00" {
		t.Errorf("expected 14:00 first when newest first, got %+v", newest)
	}
	noShows, _ := repo.Find(ctx, AppointmentFilter{Statuses: []Status{StatusNoShow}})
	if len(noShows) != 1 {
		t.Errorf("expected 1 no-show, got %d", len(noShows))
	}
	if n, _ := repo.Count(ctx, AppointmentFilter{}); n != 5 {
		t.Errorf("expected 5 total, got %d", n)
	}
	past, _ := repo.Find(ctx, AppointmentFilter{Offset: 10})
	if len(past) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(past))
	}
}

func TestMemoryRepo_FindOrdersByCatalogPosition(t *testing.T) {
	repo := NewMemoryAppointmentRepo()
	repo.catalog = NewCatalog("17:30", "09:00")
	ctx := context.Background()
	doctor := uuid.New()

	for _, l := range []TimeLabel{"08:00", "09:00", "17:30"} {
		if err := repo.Create(ctx, newMemAppt(doctor, l, StatusScheduled)); err != nil {
			t.Fatalf("create %s: %v", l, err)
		}
	}

	got, _ := repo.Find(ctx, AppointmentFilter{DoctorID: &doctor})
	want := []TimeLabel{"17:30", "09:00", "08:00"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, l := range want {
		if got[i].Time != l {
			t.Errorf("row %d: expected %s, got %s", i, l, got[i].Time)
		}
	}

	got, _ = repo.Find(ctx, AppointmentFilter{DoctorID: &doctor, Order: OrderNewestFirst})
	if got[0].Time != "08:00" || got[2].Time != "17:30" {
		t.Errorf("newest first: expected reversed order, got %s..%s", got[0].Time, got[2].Time)
	}
}

func TestMemoryRepo_WithinTxReentrant(t *testing.T) {
	repo := NewMemoryAppointmentRepo()
	calls := 0
	err := repo.WithinTx(context.Background(), func(ctx context.Context) error {
		return repo.WithinTx(ctx, func(context.Context) error {
			calls++
			return nil
		})
	})
	if err != nil || calls != 1 {
		t.Errorf("nested WithinTx: err=%v calls=%d", err, calls)
	}
}
