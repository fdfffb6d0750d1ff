package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type weeklyKey struct {
	doctorID uuid.UUID
	day      time.Weekday
}

type blockKey struct {
	doctorID uuid.UUID
	date     string
}

// MemoryStore is an in-process DoctorStore, WeeklyStore and BlockStore.
type MemoryStore struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]Doctor
	weekly  map[weeklyKey]WeeklyEntry
	blocks  map[blockKey][]Block
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		doctors: make(map[uuid.UUID]Doctor),
		weekly:  make(map[weeklyKey]WeeklyEntry),
		blocks:  make(map[blockKey][]Block),
	}
}

func (m *MemoryStore) PutDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *MemoryStore) PutWeekly(e WeeklyEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weekly[weeklyKey{e.DoctorID, e.DayOfWeek}] = e
}

func (m *MemoryStore) AddBlock(b Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Date = Day(b.Date)
	k := blockKey{b.DoctorID, FormatDate(b.Date)}
	m.blocks[k] = append(m.blocks[k], b)
}

func (m *MemoryStore) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *MemoryStore) GetWeekly(_ context.Context, doctorID uuid.UUID, day time.Weekday) (*WeeklyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.weekly[weeklyKey{doctorID, day}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemoryStore) ListBlocks(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.blocks[blockKey{doctorID, FormatDate(Day(date))}]
	out := make([]Block, len(src))
	copy(out, src)
	return out, nil
}
