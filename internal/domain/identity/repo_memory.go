package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryPatientRepo keeps patients in process. Email uniqueness is enforced
// under the same lock as the insert.
type MemoryPatientRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Patient
	byEmail map[string]uuid.UUID
}

func NewMemoryPatientRepo() *MemoryPatientRepo {
	return &MemoryPatientRepo{
		byID:    make(map[uuid.UUID]*Patient),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (m *MemoryPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[p.Email]; taken {
		return ErrDuplicateEmail
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	stored := *p
	m.byID[p.ID] = &stored
	m.byEmail[p.Email] = p.ID
	return nil
}

func (m *MemoryPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	out := *p
	return &out, nil
}

func (m *MemoryPatientRepo) GetByEmail(_ context.Context, email string) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrPatientNotFound
	}
	out := *m.byID[id]
	return &out, nil
}

// Len reports how many patients are stored.
func (m *MemoryPatientRepo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

type MemoryDoctorRepo struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]*Doctor
}

func NewMemoryDoctorRepo() *MemoryDoctorRepo {
	return &MemoryDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *MemoryDoctorRepo) Create(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.doctors {
		if existing.Email == d.Email {
			return ErrDuplicateEmail
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	stored := *d
	m.doctors[d.ID] = &stored
	return nil
}

func (m *MemoryDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	out := *d
	return &out, nil
}

func (m *MemoryDoctorRepo) ListAvailable(_ context.Context) ([]*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Doctor
	for _, d := range m.doctors {
		if d.IsAvailable {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}
