package appointment

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// MemoryRepository is an in-process ledger. It enforces the same
// one-active-appointment-per-slot rule as the Postgres index.
type MemoryRepository struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	seq          int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *MemoryRepository) PutPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

// Events returns a copy of the audit rows written so far.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

func (m *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) ListActive(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	return m.filter(func(a Appointment) bool {
		return a.DoctorID == doctorID && a.Date.Equal(schedule.Day(date)) && a.Status.IsActive()
	}, byTime), nil
}

func (m *MemoryRepository) ListByDoctorDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	return m.filter(func(a Appointment) bool {
		return a.DoctorID == doctorID && a.Date.Equal(schedule.Day(date))
	}, byTime), nil
}

func (m *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	out := m.filter(func(a Appointment) bool { return a.PatientID == patientID }, func(a, b Appointment) int {
		return byDateTime(b, a)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) Insert(_ context.Context, in NewAppointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	date := schedule.Day(in.Date)
	if m.slotHeldLocked(in.DoctorID, date, in.Time, uuid.Nil) {
		return nil, ErrSlotTaken
	}

	m.seq++
	now := time.Now()
	a := Appointment{
		ID:              uuid.New(),
		Number:          FormatNumber(now.Year(), m.seq),
		DoctorID:        in.DoctorID,
		PatientID:       in.PatientID,
		Date:            date,
		Time:            in.Time,
		DurationMinutes: in.DurationMinutes,
		Status:          StatusScheduled,
		Type:            in.Type,
		BookedBy:        in.BookedBy,
		Reason:          in.Reason,
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.appointments[a.ID] = a
	return &a, nil
}

func (m *MemoryRepository) Reschedule(_ context.Context, id uuid.UUID, from AppointmentStatus, date time.Time, at schedule.Clock) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	date = schedule.Day(date)
	if m.slotHeldLocked(a.DoctorID, date, at, id) {
		return nil, ErrSlotTaken
	}

	a.Date = date
	a.Time = at
	a.Status = StatusScheduled
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, change StatusChange) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[change.ID]
	if !ok || a.Status != change.From {
		return nil, ErrAppointmentNotFound
	}

	a.Status = change.To
	if change.Notes != "" {
		a.Notes = change.Notes
	}
	if change.CancellationReason != "" {
		a.CancellationReason = change.CancellationReason
	}
	a.UpdatedAt = time.Now()
	m.appointments[change.ID] = a
	return &a, nil
}

func (m *MemoryRepository) FindOverdue(_ context.Context, onOrBefore time.Time) ([]Appointment, error) {
	day := schedule.Day(onOrBefore)
	return m.filter(func(a Appointment) bool {
		return (a.Status == StatusScheduled || a.Status == StatusConfirmed) && !a.Date.After(day)
	}, byDateTime), nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryRepository) slotHeldLocked(doctorID uuid.UUID, date time.Time, at schedule.Clock, self uuid.UUID) bool {
	for id, a := range m.appointments {
		if id != self && a.DoctorID == doctorID && a.Date.Equal(date) && a.Time == at && a.Status.IsActive() {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) filter(keep func(Appointment) bool, cmp func(a, b Appointment) int) []Appointment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Appointment
	for _, a := range m.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, cmp)
	return out
}

func byDateTime(a, b Appointment) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return byTime(a, b)
}

func byTime(a, b Appointment) int {
	if a.Time != b.Time {
		return int(a.Time) - int(b.Time)
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

// ProcessLocker serializes doctor-days within one process. It stands in for
// the Redis locker in single-instance setups and tests.
type ProcessLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProcessLocker() *ProcessLocker {
	return &ProcessLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *ProcessLocker) WithDayLock(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	key := doctorID.String() + ":" + schedule.FormatDate(date)

	l.mu.Lock()
	dayMu, ok := l.locks[key]
	if !ok {
		dayMu = &sync.Mutex{}
		l.locks[key] = dayMu
	}
	l.mu.Unlock()

	dayMu.Lock()
	defer dayMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
