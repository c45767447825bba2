package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slotKey struct {
	doctor uuid.UUID
	date   time.Time
	time   TimeLabel
}

func keyOf(a *Appointment) slotKey {
	return slotKey{doctor: a.DoctorID, date: DateOf(a.Date), time: a.Time}
}

// MemoryAppointmentRepo is an in-process store. The occupancy map holds one
// entry per active appointment and is checked under the same lock as every
// write, which makes it the double-booking guard for memory deployments.
type MemoryAppointmentRepo struct {
	mu       sync.RWMutex
	rows     map[uuid.UUID]*Appointment
	occupied map[slotKey]uuid.UUID
	catalog  *Catalog

	// txMu serializes WithinTx callers so a read-then-write sequence sees no
	// interleaved writer.
	txMu sync.Mutex
}

func NewMemoryAppointmentRepo() *MemoryAppointmentRepo {
	return &MemoryAppointmentRepo{
		rows:     make(map[uuid.UUID]*Appointment),
		occupied: make(map[slotKey]uuid.UUID),
		catalog:  DefaultCatalog(),
	}
}

type memoryTxKey struct{}

func (m *MemoryAppointmentRepo) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(context.WithValue(ctx, memoryTxKey{}, true))
}

func (m *MemoryAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, exists := m.rows[a.ID]; exists {
		return ErrConflict
	}
	key := keyOf(a)
	if a.Occupies() {
		if _, taken := m.occupied[key]; taken {
			return ErrConflict
		}
		m.occupied[key] = a.ID
	}
	stored := *a
	m.rows[a.ID] = &stored
	return nil
}

func (m *MemoryAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.rows[a.ID]
	if !ok {
		return ErrNotFound
	}
	next := *cur
	next.Date = a.Date
	next.Time = a.Time
	next.Status = a.Status
	next.Notes = a.Notes
	next.UpdatedAt = a.UpdatedAt

	oldKey, newKey := keyOf(cur), keyOf(&next)
	if next.Occupies() {
		if holder, taken := m.occupied[newKey]; taken && holder != a.ID {
			return ErrConflict
		}
	}
	if cur.Occupies() && m.occupied[oldKey] == a.ID {
		delete(m.occupied, oldKey)
	}
	if next.Occupies() {
		m.occupied[newKey] = a.ID
	}
	m.rows[a.ID] = &next
	return nil
}

func (m *MemoryAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

// GetForUpdate relies on WithinTx for exclusion.
func (m *MemoryAppointmentRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *MemoryAppointmentRepo) matching(f AppointmentFilter) []*Appointment {
	var out []*Appointment
	for _, a := range m.rows {
		if matches(a, f) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MemoryAppointmentRepo) Find(_ context.Context, f AppointmentFilter) ([]*Appointment, error) {
	m.mu.RLock()
	out := m.matching(f)
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if f.Order == OrderNewestFirst {
			return m.scheduleLess(out[j], out[i])
		}
		return m.scheduleLess(out[i], out[j])
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryAppointmentRepo) Count(_ context.Context, f AppointmentFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.rows {
		if matches(a, f) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryAppointmentRepo) CountByStatus(_ context.Context) (map[Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Status]int)
	for _, a := range m.rows {
		counts[a.Status]++
	}
	return counts, nil
}

func matches(a *Appointment, f AppointmentFilter) bool {
	if f.ID != nil && a.ID != *f.ID {
		return false
	}
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.Date != nil && !DateOf(a.Date).Equal(DateOf(*f.Date)) {
		return false
	}
	if f.Time != "" && a.Time != f.Time {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
		return false
	}
	if containsStatus(f.ExcludeStatuses, a.Status) {
		return false
	}
	return true
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// scheduleLess orders by date, then catalog position, then creation. Labels
// outside the catalog sort after it, as strings.
func (m *MemoryAppointmentRepo) scheduleLess(a, b *Appointment) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if a.Time != b.Time {
		pa, pb := m.catalog.Position(a.Time), m.catalog.Position(b.Time)
		switch {
		case pa >= 0 && pb >= 0:
			return pa < pb
		case pa >= 0:
			return true
		case pb >= 0:
			return false
		}
		return a.Time < b.Time
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
