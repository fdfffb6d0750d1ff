package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const (
	outcomeBooked      = "booked"
	outcomeSlotTaken   = "slot_taken"
	outcomeUnavailable = "unavailable"
	outcomeBusy        = "busy"
	outcomeError       = "error"

	sideEffectTimeout = 5 * time.Second
)

type BookRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time
	Time      schedule.Clock
	Type      AppointmentType
	BookedBy  string
	Reason    string
	Notes     string
}

type RescheduleRequest struct {
	Date   time.Time
	Time   schedule.Clock
	Reason string
}

// DaySlots is the slot grid for one doctor on one date.
type DaySlots struct {
	DoctorID    uuid.UUID
	Date        time.Time
	SlotMinutes int
	Reason      string
	Slots       []schedule.Slot
}

type Service struct {
	repo      Repository
	resolver  *schedule.Resolver
	locker    Locker
	cfg       config.Config
	log       zerolog.Logger
	publisher EventPublisher
	billing   BillingHook
	metrics   Metrics
	now       func() time.Time
}

func NewService(repo Repository, resolver *schedule.Resolver, locker Locker, cfg config.Config, logger zerolog.Logger) *Service {
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = schedule.DefaultSlotMinutes
	}
	return &Service{
		repo:      repo,
		resolver:  resolver,
		locker:    locker,
		cfg:       cfg,
		log:       logger.With().Str("component", "appointment").Logger(),
		publisher: nopPublisher{},
		billing:   nopBilling{},
		metrics:   nopMetrics{},
		now:       time.Now,
	}
}

func (s *Service) SetPublisher(p EventPublisher) { s.publisher = p }
func (s *Service) SetBilling(b BillingHook)      { s.billing = b }
func (s *Service) SetMetrics(m Metrics)          { s.metrics = m }

// SetClock replaces the wall clock used by the no-show sweep.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Slots returns the doctor's grid for the date with booked and blocked
// slots marked.
func (s *Service) Slots(ctx context.Context, doctorID uuid.UUID, date time.Time) (*DaySlots, error) {
	date = schedule.Day(date)

	w, err := s.resolver.ResolveWindow(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	out := &DaySlots{
		DoctorID:    doctorID,
		Date:        date,
		SlotMinutes: s.cfg.SlotMinutes,
		Reason:      w.Reason,
		Slots:       []schedule.Slot{},
	}
	if !w.IsOpen() {
		return out, nil
	}

	active, err := s.repo.ListActive(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}

	out.Slots = schedule.GenerateSlots(w.Open, w.Excluded, active, s.cfg.SlotMinutes)
	return out, nil
}

// Book reserves a slot for a patient. The doctor-day lock serializes
// competing requests so that the conflict re-check inside it sees every
// earlier commit; the ledger's own uniqueness guarantee backs it up.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	appt, err := s.book(ctx, req)
	s.metrics.BookingOutcome(ctx, "book", outcomeOf(err))
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, EventAppointmentBooked, appt, "", req.Reason)
	s.charge(ctx, appt)
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.DoctorID == uuid.Nil || req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctorId and patientId are required", ErrInvalidRequest)
	}
	if !req.Time.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, schedule.ErrInvalidClock)
	}
	if req.Type == "" {
		req.Type = TypeConsultation
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	date := schedule.Day(req.Date)
	if err := s.checkSlot(ctx, req.DoctorID, date, req.Time); err != nil {
		return nil, err
	}

	var created *Appointment
	err := s.locker.WithDayLock(ctx, req.DoctorID, date, func(lockCtx context.Context) error {
		if err := s.ensureFree(lockCtx, req.DoctorID, date, req.Time, uuid.Nil); err != nil {
			return err
		}

		appt, err := s.repo.Insert(lockCtx, NewAppointment{
			DoctorID:        req.DoctorID,
			PatientID:       req.PatientID,
			Date:            date,
			Time:            req.Time,
			DurationMinutes: s.cfg.SlotMinutes,
			Type:            req.Type,
			BookedBy:        req.BookedBy,
			Reason:          req.Reason,
			Notes:           req.Notes,
		})
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return err
			}
			return fmt.Errorf("insert appointment: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		return nil, lockError(err)
	}

	return created, nil
}

// Reschedule moves an appointment to a new slot in place. The id and number
// are kept and the status goes back to SCHEDULED.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	appt, prev, err := s.reschedule(ctx, id, req)
	s.metrics.BookingOutcome(ctx, "reschedule", outcomeOf(err))
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, EventAppointmentRescheduled, appt, prev, req.Reason)
	return appt, nil
}

func (s *Service) reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, AppointmentStatus, error) {
	if !req.Time.Valid() {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidRequest, schedule.ErrInvalidClock)
	}

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !CanReschedule(current.Status) {
		return nil, "", &InvalidTransitionError{From: current.Status, To: StatusScheduled}
	}

	date := schedule.Day(req.Date)
	if err := s.checkSlot(ctx, current.DoctorID, date, req.Time); err != nil {
		return nil, "", err
	}

	var moved *Appointment
	err = s.locker.WithDayLock(ctx, current.DoctorID, date, func(lockCtx context.Context) error {
		if err := s.ensureFree(lockCtx, current.DoctorID, date, req.Time, current.ID); err != nil {
			return err
		}

		appt, err := s.repo.Reschedule(lockCtx, current.ID, current.Status, date, req.Time)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return s.lostRace(lockCtx, current.ID, StatusScheduled)
			}
			if errors.Is(err, ErrSlotTaken) {
				return err
			}
			return fmt.Errorf("reschedule appointment: %w", err)
		}

		moved = appt
		return nil
	})
	if err != nil {
		return nil, "", lockError(err)
	}

	return moved, current.Status, nil
}

// Cancel releases the appointment's slot. A reason is mandatory.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return s.transition(ctx, id, StatusCancelled, "", reason)
}

// UpdateStatus applies a lifecycle transition. Cancelling through this path
// uses notes as the cancellation reason. SCHEDULED is only reachable by
// rescheduling.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, notes string) (*Appointment, error) {
	notes = strings.TrimSpace(notes)
	if to == StatusCancelled {
		if notes == "" {
			return nil, ErrReasonRequired
		}
		return s.transition(ctx, id, StatusCancelled, "", notes)
	}
	return s.transition(ctx, id, to, notes, "")
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus, notes, cancellationReason string) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateTransition(current.Status, to); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, StatusChange{
		ID:                 id,
		From:               current.Status,
		To:                 to,
		Notes:              notes,
		CancellationReason: cancellationReason,
	})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.lostRace(ctx, id, to)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.metrics.Transition(ctx, current.Status, to)

	reason := notes
	if cancellationReason != "" {
		reason = cancellationReason
	}
	s.afterCommit(ctx, eventForStatus(to), updated, current.Status, reason)

	return updated, nil
}

// MarkNoShows moves SCHEDULED and CONFIRMED appointments to NO_SHOW once
// their end time plus the configured grace period has passed. It returns how
// many were marked.
func (s *Service) MarkNoShows(ctx context.Context) (int, error) {
	now := s.now()
	// Appointment times are clinic wall-clock values carried as UTC.
	wall := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), 0, time.UTC)

	candidates, err := s.repo.FindOverdue(ctx, wall)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	marked := 0
	for _, appt := range candidates {
		if appt.EndsAt().Add(s.cfg.NoShowGrace).After(wall) {
			continue
		}

		updated, err := s.repo.UpdateStatus(ctx, StatusChange{
			ID:   appt.ID,
			From: appt.Status,
			To:   StatusNoShow,
		})
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to mark no-show")
			}
			continue
		}

		marked++
		s.metrics.Transition(ctx, appt.Status, StatusNoShow)
		s.afterCommit(ctx, EventAppointmentStatusChanged, updated, appt.Status, "no-show sweep")
	}

	return marked, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListAppointmentsByPatient retrieves appointments for a specific patient,
// newest first.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = NormalizePage(limit, offset)

	appointments, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// NormalizePage applies the list defaults: limit 20, at most 100, offset
// never negative.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListDoctorDay returns every appointment on the doctor's day sheet,
// including cancelled and completed ones.
func (s *Service) ListDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	appointments, err := s.repo.ListByDoctorDate(ctx, doctorID, schedule.Day(date))
	if err != nil {
		return nil, fmt.Errorf("list doctor day: %w", err)
	}
	return appointments, nil
}

// checkSlot verifies that t is a grid slot inside the doctor's open window
// and not blocked. Whether it is already booked is decided under the lock.
func (s *Service) checkSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, t schedule.Clock) error {
	w, err := s.resolver.ResolveWindow(ctx, doctorID, date)
	if err != nil {
		return err
	}
	if !w.IsOpen() {
		return &UnavailableError{Reason: w.Reason}
	}

	grid := schedule.GenerateSlots[Appointment](w.Open, w.Excluded, nil, s.cfg.SlotMinutes)
	slot, ok := schedule.FindSlot(grid, t)
	if !ok {
		return &UnavailableError{Reason: ReasonOutsideWorkingHours, Detail: t.String()}
	}
	if !slot.Available {
		return &UnavailableError{Reason: ReasonBlocked, Detail: slot.Reason}
	}
	return nil
}

func (s *Service) ensureFree(ctx context.Context, doctorID uuid.UUID, date time.Time, t schedule.Clock, self uuid.UUID) error {
	active, err := s.repo.ListActive(ctx, doctorID, date)
	if err != nil {
		return fmt.Errorf("check existing appointments: %w", err)
	}
	for _, a := range active {
		if a.Time == t && a.ID != self && a.HoldsSlot() {
			return ErrSlotTaken
		}
	}
	return nil
}

// lostRace is called when a compare-and-set update matched no row: the
// appointment moved on under us.
func (s *Service) lostRace(ctx context.Context, id uuid.UUID, to AppointmentStatus) error {
	latest, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return err
	}
	return &InvalidTransitionError{From: latest.Status, To: to}
}

func lockError(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBusy
	}
	return err
}

func outcomeOf(err error) string {
	var unavailable *UnavailableError
	switch {
	case err == nil:
		return outcomeBooked
	case errors.Is(err, ErrSlotTaken):
		return outcomeSlotTaken
	case errors.As(err, &unavailable):
		return outcomeUnavailable
	case errors.Is(err, ErrSlotBusy):
		return outcomeBusy
	default:
		return outcomeError
	}
}

// afterCommit records the audit row and publishes the event. It runs on a
// context detached from the request so a client hang-up does not drop it,
// and its failures are only logged.
func (s *Service) afterCommit(ctx context.Context, eventType string, appt *Appointment, prev AppointmentStatus, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	ev := Event{
		Type:           eventType,
		AppointmentID:  appt.ID,
		Number:         appt.Number,
		DoctorID:       appt.DoctorID,
		PatientID:      appt.PatientID,
		Date:           schedule.FormatDate(appt.Date),
		Time:           appt.Time.String(),
		Status:         appt.Status,
		PreviousStatus: prev,
		Reason:         reason,
		OccurredAt:     time.Now().UTC(),
	}

	s.logEvent(ctx, ev)

	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to publish appointment event")
	}
}

func (s *Service) charge(ctx context.Context, appt *Appointment) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.billing.OnBooked(ctx, *appt); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("billing hook failed")
	}
}

func (s *Service) logEvent(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Str("event", ev.Type).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := ev.AppointmentID

	row := EventLog{
		EventType:     ev.Type,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     ev.OccurredAt,
	}

	if err := s.repo.InsertEvent(ctx, row); err != nil {
		s.log.Error().Err(err).
			Str("event", ev.Type).
			Str("appointment_id", ev.AppointmentID.String()).
			Msg("failed to insert event log")
	}
}
