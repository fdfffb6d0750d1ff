package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var monday = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	repo      *MemoryRepository
	store     *schedule.MemoryStore
	doctorID  uuid.UUID
	patientID uuid.UUID
}

// newFixture sets up DOC001 with Monday hours 09:00-17:00 and Sunday off.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := schedule.NewMemoryStore()
	repo := NewMemoryRepository()

	f := &fixture{
		repo:      repo,
		store:     store,
		doctorID:  uuid.New(),
		patientID: uuid.New(),
	}

	store.PutDoctor(schedule.Doctor{ID: f.doctorID, Name: "DOC001", IsAvailable: true})
	store.PutWeekly(schedule.WeeklyEntry{
		DoctorID: f.doctorID, DayOfWeek: time.Monday, IsAvailable: true,
		Start: schedule.MustParseClock("09:00"), End: schedule.MustParseClock("17:00"),
	})
	store.PutWeekly(schedule.WeeklyEntry{DoctorID: f.doctorID, DayOfWeek: time.Sunday, IsAvailable: false})
	repo.PutPatient(Patient{ID: f.patientID, Name: "Test Patient"})

	cfg := config.Config{SlotMinutes: 30, NoShowGrace: 15 * time.Minute}
	resolver := schedule.NewResolver(store, store, store, schedule.DefaultHours)
	f.svc = NewService(repo, resolver, NewProcessLocker(), cfg, zerolog.Nop())
	return f
}

func (f *fixture) newPatient() uuid.UUID {
	id := uuid.New()
	f.repo.PutPatient(Patient{ID: id, Name: "Another Patient"})
	return id
}

func (f *fixture) book(t *testing.T, at string) *Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		Date:      monday,
		Time:      schedule.MustParseClock(at),
		BookedBy:  "reception",
	})
	if err != nil {
		t.Fatalf("book %s: %v", at, err)
	}
	return appt
}

func slotAt(t *testing.T, slots []schedule.Slot, at string) schedule.Slot {
	t.Helper()
	s, ok := schedule.FindSlot(slots, schedule.MustParseClock(at))
	if !ok {
		t.Fatalf("no slot at %s", at)
	}
	return s
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type failingBilling struct{ calls int }

func (b *failingBilling) OnBooked(context.Context, Appointment) error {
	b.calls++
	return errors.New("billing down")
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	moves    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: map[string]int{}, moves: map[string]int{}}
}

func (m *recordingMetrics) BookingOutcome(_ context.Context, op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[op+"/"+outcome]++
}

func (m *recordingMetrics) Transition(_ context.Context, from, to AppointmentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moves[string(from)+"->"+string(to)]++
}

type busyLocker struct{}

func (busyLocker) WithDayLock(context.Context, uuid.UUID, time.Time, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type passthroughLocker struct{}

func (passthroughLocker) WithDayLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(context.Context) error) error {
	return fn(ctx)
}

func TestService_MondayExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	day, err := f.svc.Slots(ctx, f.doctorID, monday)
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(day.Slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(day.Slots))
	}
	if day.Slots[0].Time.String() != "09:00" || day.Slots[15].Time.String() != "16:30" {
		t.Errorf("unexpected grid bounds %s..%s", day.Slots[0].Time, day.Slots[15].Time)
	}
	for _, s := range day.Slots {
		if !s.Available {
			t.Errorf("slot %s unexpectedly unavailable: %s", s.Time, s.Reason)
		}
	}

	f.book(t, "10:00")

	day, _ = f.svc.Slots(ctx, f.doctorID, monday)
	if s := slotAt(t, day.Slots, "10:00"); s.Available || s.Reason != schedule.ReasonBooked {
		t.Errorf("10:00 should be Booked, got %+v", s)
	}

	_, err = f.svc.Book(ctx, BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.newPatient(),
		Date:      monday,
		Time:      schedule.MustParseClock("10:00"),
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken for 10:00, got %v", err)
	}

	f.book(t, "10:30")

	day, _ = f.svc.Slots(ctx, f.doctorID, monday)
	if s := slotAt(t, day.Slots, "10:30"); s.Available || s.Reason != schedule.ReasonBooked {
		t.Errorf("10:30 should be Booked, got %+v", s)
	}
}

func TestService_Book_Defaults(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "09:00")

	if appt.Status != StatusScheduled {
		t.Errorf("Status = %s, want SCHEDULED", appt.Status)
	}
	if appt.Type != TypeConsultation {
		t.Errorf("Type = %s, want CONSULTATION", appt.Type)
	}
	if appt.DurationMinutes != 30 {
		t.Errorf("DurationMinutes = %d, want 30", appt.DurationMinutes)
	}
	if want := FormatNumber(time.Now().Year(), 1); appt.Number != want {
		t.Errorf("Number = %q, want %q", appt.Number, want)
	}
}

func TestService_Book_Unavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offDuty := uuid.New()
	f.store.PutDoctor(schedule.Doctor{ID: offDuty, IsAvailable: false})
	f.store.AddBlock(schedule.Block{
		DoctorID: f.doctorID, Date: monday,
		Start: schedule.MustParseClock("12:00"), End: schedule.MustParseClock("13:00"),
		Kind: schedule.BlockLeave, Reason: "lunch",
	})

	sunday := monday.AddDate(0, 0, -1)

	tests := []struct {
		name       string
		doctorID   uuid.UUID
		patientID  uuid.UUID
		date       time.Time
		at         string
		wantErr    error
		wantReason string
	}{
		{"doctor off duty", offDuty, f.patientID, monday, "10:00", ErrDoctorUnavailable, schedule.ReasonDoctorUnavailable},
		{"closed weekday", f.doctorID, f.patientID, sunday, "10:00", ErrDoctorUnavailable, schedule.ReasonClosedThisWeekday},
		{"before opening", f.doctorID, f.patientID, monday, "08:30", ErrDoctorUnavailable, ReasonOutsideWorkingHours},
		{"at closing", f.doctorID, f.patientID, monday, "17:00", ErrDoctorUnavailable, ReasonOutsideWorkingHours},
		{"off grid", f.doctorID, f.patientID, monday, "10:15", ErrDoctorUnavailable, ReasonOutsideWorkingHours},
		{"blocked", f.doctorID, f.patientID, monday, "12:30", ErrDoctorUnavailable, ReasonBlocked},
		{"unknown doctor", uuid.New(), f.patientID, monday, "10:00", schedule.ErrDoctorNotFound, ""},
		{"unknown patient", f.doctorID, uuid.New(), monday, "10:00", ErrPatientNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, BookRequest{
				DoctorID:  tt.doctorID,
				PatientID: tt.patientID,
				Date:      tt.date,
				Time:      schedule.MustParseClock(tt.at),
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantReason == "" {
				return
			}
			var ue *UnavailableError
			if !errors.As(err, &ue) {
				t.Fatalf("expected *UnavailableError, got %T", err)
			}
			if ue.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", ue.Reason, tt.wantReason)
			}
		})
	}

	active, _ := f.repo.ListActive(ctx, f.doctorID, monday)
	if len(active) != 0 {
		t.Errorf("no booking should have been written, got %d", len(active))
	}
}

func TestService_Book_BlockedDetail(t *testing.T) {
	f := newFixture(t)
	f.store.AddBlock(schedule.Block{
		DoctorID: f.doctorID, Date: monday,
		Start: schedule.MustParseClock("14:00"), End: schedule.MustParseClock("15:00"),
		Kind: schedule.BlockProcedure, Reason: "angioplasty",
	})

	_, err := f.svc.Book(context.Background(), BookRequest{
		DoctorID: f.doctorID, PatientID: f.patientID, Date: monday, Time: schedule.MustParseClock("14:30"),
	})
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UnavailableError, got %v", err)
	}
	if ue.Detail != "PROCEDURE: angioplasty" {
		t.Errorf("Detail = %q", ue.Detail)
	}
}

func TestService_Book_ConcurrentSameSlot(t *testing.T) {
	lockers := map[string]Locker{
		"process lock": NewProcessLocker(),
		"ledger only":  passthroughLocker{},
	}

	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.svc.locker = locker

			const n = 25
			patients := make([]uuid.UUID, n)
			for i := range patients {
				patients[i] = f.newPatient()
			}

			var wg sync.WaitGroup
			errs := make([]error, n)
			start := make(chan struct{})
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, errs[i] = f.svc.Book(context.Background(), BookRequest{
						DoctorID:  f.doctorID,
						PatientID: patients[i],
						Date:      monday,
						Time:      schedule.MustParseClock("11:00"),
					})
				}(i)
			}
			close(start)
			wg.Wait()

			succeeded := 0
			for i, err := range errs {
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, ErrSlotTaken):
				default:
					t.Errorf("request %d: unexpected error %v", i, err)
				}
			}
			if succeeded != 1 {
				t.Fatalf("expected exactly one booking to succeed, got %d", succeeded)
			}

			active, _ := f.repo.ListActive(context.Background(), f.doctorID, monday)
			if len(active) != 1 {
				t.Errorf("expected 1 active appointment, got %d", len(active))
			}
		})
	}
}

func TestService_Book_UniqueNumbersUnderConcurrency(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	numbers := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := schedule.MustParseClock("09:00").Add(30 * i)
			appt, err := f.svc.Book(context.Background(), BookRequest{
				DoctorID: f.doctorID, PatientID: f.patientID, Date: monday, Time: at,
			})
			if err != nil {
				t.Errorf("book %s: %v", at, err)
				return
			}
			numbers <- appt.Number
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		if seen[num] {
			t.Errorf("duplicate appointment number %s", num)
		}
		seen[num] = true
	}
	if len(seen) != 16 {
		t.Errorf("expected 16 distinct numbers, got %d", len(seen))
	}
}

func TestService_Cancel_FreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.book(t, "10:00")

	if _, err := f.svc.Cancel(ctx, appt.ID, "  "); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, appt.ID, "patient request")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.CancellationReason != "patient request" {
		t.Errorf("unexpected cancelled appointment: %+v", cancelled)
	}

	day, _ := f.svc.Slots(ctx, f.doctorID, monday)
	if s := slotAt(t, day.Slots, "10:00"); !s.Available {
		t.Errorf("10:00 should be free after cancellation, got %+v", s)
	}

	again, err := f.svc.Book(ctx, BookRequest{
		DoctorID: f.doctorID, PatientID: f.newPatient(), Date: monday, Time: schedule.MustParseClock("10:00"),
	})
	if err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
	if again.ID == appt.ID || again.Number == appt.Number {
		t.Error("rebooking must create a new appointment")
	}

	history, _ := f.svc.ListDoctorDay(ctx, f.doctorID, monday)
	if len(history) != 2 {
		t.Errorf("cancelled appointment should stay on the day sheet, got %d rows", len(history))
	}
}

func TestService_Reschedule_OwnSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.book(t, "10:00")
	if _, err := f.svc.UpdateStatus(ctx, appt.ID, StatusConfirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	moved, err := f.svc.Reschedule(ctx, appt.ID, RescheduleRequest{Date: monday, Time: schedule.MustParseClock("10:00")})
	if err != nil {
		t.Fatalf("reschedule onto own slot: %v", err)
	}
	if moved.ID != appt.ID || moved.Number != appt.Number {
		t.Error("reschedule must keep id and number")
	}
	if moved.Status != StatusScheduled {
		t.Errorf("Status = %s, want SCHEDULED", moved.Status)
	}
}

func TestService_Reschedule_MovesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.book(t, "10:00")
	tuesday := monday.AddDate(0, 0, 1)

	moved, err := f.svc.Reschedule(ctx, appt.ID, RescheduleRequest{Date: tuesday, Time: schedule.MustParseClock("11:00")})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !moved.Date.Equal(tuesday) || moved.Time.String() != "11:00" {
		t.Errorf("moved to %s %s", schedule.FormatDate(moved.Date), moved.Time)
	}

	day, _ := f.svc.Slots(ctx, f.doctorID, monday)
	if s := slotAt(t, day.Slots, "10:00"); !s.Available {
		t.Errorf("old slot should be free, got %+v", s)
	}
	day, _ = f.svc.Slots(ctx, f.doctorID, tuesday)
	if s := slotAt(t, day.Slots, "11:00"); s.Available {
		t.Error("new slot should be booked")
	}
}

func TestService_Reschedule_Conflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, "10:00")
	other := f.book(t, "11:00")

	_, err := f.svc.Reschedule(ctx, other.ID, RescheduleRequest{Date: monday, Time: schedule.MustParseClock("10:00")})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}

	unchanged, _ := f.svc.GetAppointment(ctx, other.ID)
	if unchanged.Time.String() != "11:00" {
		t.Errorf("failed reschedule must not move the appointment, now at %s", unchanged.Time)
	}
}

func TestService_Reschedule_NotAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.book(t, "10:00")
	f.svc.UpdateStatus(ctx, appt.ID, StatusConfirmed, "")
	f.svc.UpdateStatus(ctx, appt.ID, StatusInProgress, "")

	_, err := f.svc.Reschedule(ctx, appt.ID, RescheduleRequest{Date: monday, Time: schedule.MustParseClock("11:00")})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestService_TerminalImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completed := f.book(t, "09:00")
	for _, to := range []AppointmentStatus{StatusConfirmed, StatusInProgress, StatusCompleted} {
		if _, err := f.svc.UpdateStatus(ctx, completed.ID, to, ""); err != nil {
			t.Fatalf("move to %s: %v", to, err)
		}
	}

	cancelled := f.book(t, "09:30")
	if _, err := f.svc.Cancel(ctx, cancelled.ID, "sick"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	noShow := f.book(t, "10:00")
	if _, err := f.svc.UpdateStatus(ctx, noShow.ID, StatusNoShow, ""); err != nil {
		t.Fatalf("no-show: %v", err)
	}

	for _, appt := range []*Appointment{completed, cancelled, noShow} {
		for _, to := range allStatuses {
			_, err := f.svc.UpdateStatus(ctx, appt.ID, to, "notes")
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", appt.Time, to, err)
			}
		}
		if _, err := f.svc.Cancel(ctx, appt.ID, "again"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("cancel terminal: expected ErrInvalidTransition, got %v", err)
		}
		if _, err := f.svc.Reschedule(ctx, appt.ID, RescheduleRequest{Date: monday, Time: schedule.MustParseClock("15:00")}); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("reschedule terminal: expected ErrInvalidTransition, got %v", err)
		}
	}
}

func TestService_UpdateStatus_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.book(t, "10:00")

	if _, err := f.svc.UpdateStatus(ctx, appt.ID, StatusScheduled, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SCHEDULED via status update: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, appt.ID, StatusCancelled, ""); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("cancel without notes: expected ErrReasonRequired, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, appt.ID, StatusCompleted, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SCHEDULED -> COMPLETED: expected ErrInvalidTransition, got %v", err)
	}

	got, err := f.svc.UpdateStatus(ctx, appt.ID, StatusCancelled, "doctor called in sick")
	if err != nil {
		t.Fatalf("cancel via status: %v", err)
	}
	if got.CancellationReason != "doctor called in sick" {
		t.Errorf("CancellationReason = %q", got.CancellationReason)
	}

	if _, err := f.svc.UpdateStatus(ctx, uuid.New(), StatusConfirmed, ""); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("unknown id: expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestService_ConcurrentTransitions(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "10:00")

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.svc.UpdateStatus(context.Background(), appt.ID, StatusConfirmed, "")
			} else {
				_, errs[i] = f.svc.Cancel(context.Background(), appt.ID, fmt.Sprintf("reason %d", i))
			}
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, err := range errs {
		if err == nil {
			applied++
		}
	}
	// CONFIRMED -> CANCELLED is itself valid, so at most one confirm and one
	// cancel can both land.
	if applied < 1 || applied > 2 {
		t.Errorf("expected one or two transitions to apply, got %d", applied)
	}
}

func TestService_SideEffectFailuresDoNotFailBooking(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{err: errors.New("queue down")}
	billing := &failingBilling{}
	f.svc.SetPublisher(pub)
	f.svc.SetBilling(billing)

	appt := f.book(t, "10:00")
	if appt == nil {
		t.Fatal("booking should succeed when side effects fail")
	}
	if billing.calls != 1 {
		t.Errorf("billing hook called %d times, want 1", billing.calls)
	}
	if got := pub.types(); len(got) != 1 || got[0] != EventAppointmentBooked {
		t.Errorf("published %v", got)
	}

	stored, err := f.svc.GetAppointment(context.Background(), appt.ID)
	if err != nil || stored.Status != StatusScheduled {
		t.Errorf("appointment should be committed, got %+v, %v", stored, err)
	}
}

func TestService_EventsAndAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pub := &recordingPublisher{}
	f.svc.SetPublisher(pub)

	appt := f.book(t, "10:00")
	f.svc.Reschedule(ctx, appt.ID, RescheduleRequest{Date: monday, Time: schedule.MustParseClock("10:30"), Reason: "clash"})
	f.svc.UpdateStatus(ctx, appt.ID, StatusConfirmed, "")
	f.svc.Cancel(ctx, appt.ID, "moved away")

	want := []string{
		EventAppointmentBooked,
		EventAppointmentRescheduled,
		EventAppointmentStatusChanged,
		EventAppointmentCancelled,
	}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}

	last := pub.events[len(pub.events)-1]
	if last.PreviousStatus != StatusConfirmed || last.Status != StatusCancelled || last.Reason != "moved away" {
		t.Errorf("unexpected cancel event: %+v", last)
	}
	if last.Number != appt.Number || last.Time != "10:30" {
		t.Errorf("cancel event should carry the current slot: %+v", last)
	}

	if n := len(f.repo.Events()); n != len(want) {
		t.Errorf("audit rows = %d, want %d", n, len(want))
	}
}

func TestService_Metrics(t *testing.T) {
	f := newFixture(t)
	m := newRecordingMetrics()
	f.svc.SetMetrics(m)

	appt := f.book(t, "10:00")
	f.svc.Book(context.Background(), BookRequest{
		DoctorID: f.doctorID, PatientID: f.patientID, Date: monday, Time: schedule.MustParseClock("10:00"),
	})
	f.svc.Book(context.Background(), BookRequest{
		DoctorID: f.doctorID, PatientID: f.patientID, Date: monday, Time: schedule.MustParseClock("07:00"),
	})
	f.svc.UpdateStatus(context.Background(), appt.ID, StatusConfirmed, "")

	if m.outcomes["book/booked"] != 1 || m.outcomes["book/slot_taken"] != 1 || m.outcomes["book/unavailable"] != 1 {
		t.Errorf("unexpected outcomes: %v", m.outcomes)
	}
	if m.moves["SCHEDULED->CONFIRMED"] != 1 {
		t.Errorf("unexpected transitions: %v", m.moves)
	}
}

func TestService_LockTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.svc.locker = busyLocker{}

	_, err := f.svc.Book(context.Background(), BookRequest{
		DoctorID: f.doctorID, PatientID: f.patientID, Date: monday, Time: schedule.MustParseClock("10:00"),
	})
	if !errors.Is(err, ErrSlotBusy) {
		t.Fatalf("expected ErrSlotBusy, got %v", err)
	}
}

func TestService_MarkNoShows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early := f.book(t, "09:00")
	later := f.book(t, "11:00")
	confirmed := f.book(t, "09:30")
	f.svc.UpdateStatus(ctx, confirmed.ID, StatusConfirmed, "")

	tests := []struct {
		name  string
		now   time.Time
		wants int
	}{
		// 09:00 ends 09:30, grace until 09:45.
		{"inside grace", monday.Add(9*time.Hour + 40*time.Minute), 0},
		{"after grace", monday.Add(10*time.Hour + 16*time.Minute), 2},
		{"already swept", monday.Add(10*time.Hour + 20*time.Minute), 0},
	}

	for _, tt := range tests {
		f.svc.SetClock(func() time.Time { return tt.now })
		n, err := f.svc.MarkNoShows(ctx)
		if err != nil {
			t.Fatalf("%s: MarkNoShows: %v", tt.name, err)
		}
		if n != tt.wants {
			t.Errorf("%s: marked %d, want %d", tt.name, n, tt.wants)
		}
	}

	for _, id := range []uuid.UUID{early.ID, confirmed.ID} {
		a, _ := f.svc.GetAppointment(ctx, id)
		if a.Status != StatusNoShow {
			t.Errorf("appointment at %s: status %s, want NO_SHOW", a.Time, a.Status)
		}
	}
	a, _ := f.svc.GetAppointment(ctx, later.ID)
	if a.Status != StatusScheduled {
		t.Errorf("future appointment should be untouched, got %s", a.Status)
	}

	day, _ := f.svc.Slots(ctx, f.doctorID, monday)
	if s := slotAt(t, day.Slots, "09:00"); !s.Available {
		t.Error("no-show slot should be rebookable")
	}
}

func TestService_MarkNoShows_PreviousDay(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "16:30")

	f.svc.SetClock(func() time.Time { return monday.AddDate(0, 0, 1).Add(8 * time.Hour) })
	n, err := f.svc.MarkNoShows(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("MarkNoShows = %d, %v; want 1", n, err)
	}
	got, _ := f.svc.GetAppointment(context.Background(), appt.ID)
	if got.Status != StatusNoShow {
		t.Errorf("Status = %s", got.Status)
	}
}

func TestService_ListAppointmentsByPatient(t *testing.T) {
	f := newFixture(t)
	for _, at := range []string{"09:00", "09:30", "10:00"} {
		f.book(t, at)
	}

	got, err := f.svc.ListAppointmentsByPatient(context.Background(), f.patientID, 2, 0)
	if err != nil {
		t.Fatalf("ListAppointmentsByPatient: %v", err)
	}
	if len(got) != 2 || got[0].Time.String() != "10:00" {
		t.Errorf("expected newest first, limited to 2, got %d starting %v", len(got), got)
	}

	all, _ := f.svc.ListAppointmentsByPatient(context.Background(), f.patientID, 0, -5)
	if len(all) != 3 {
		t.Errorf("default limit should return all 3, got %d", len(all))
	}
}

func TestService_ListAppointmentsByPatient_OrdersByDateThenTime(t *testing.T) {
	f := newFixture(t)
	f.book(t, "16:00")

	nextMonday := monday.AddDate(0, 0, 7)
	if _, err := f.svc.Book(context.Background(), BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		Date:      nextMonday,
		Time:      schedule.MustParseClock("09:00"),
	}); err != nil {
		t.Fatalf("book next monday: %v", err)
	}

	got, err := f.svc.ListAppointmentsByPatient(context.Background(), f.patientID, 0, 0)
	if err != nil {
		t.Fatalf("ListAppointmentsByPatient: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(got))
	}
	if !got[0].Date.Equal(nextMonday) || got[0].Time.String() != "09:00" {
		t.Errorf("expected %s 09:00 first, got %s %s", schedule.FormatDate(nextMonday), schedule.FormatDate(got[0].Date), got[0].Time)
	}

	first, _ := f.svc.ListAppointmentsByPatient(context.Background(), f.patientID, 1, 0)
	if len(first) != 1 || !first[0].Date.Equal(nextMonday) {
		t.Errorf("limit 1 should return the later date, got %v", first)
	}
}

func TestService_Slots_ClosedDay(t *testing.T) {
	f := newFixture(t)

	day, err := f.svc.Slots(context.Background(), f.doctorID, monday.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if day.Reason != schedule.ReasonClosedThisWeekday || len(day.Slots) != 0 {
		t.Errorf("expected closed day, got %+v", day)
	}
}
