package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const (
	pgUniqueViolation = "23505"

	// activeSlotIndex is the partial unique index over active appointments.
	activeSlotIndex = "appointments_active_slot_uq"
)

const appointmentColumns = `id, number, doctor_id, patient_id, appt_date, appt_time, duration_minutes,
	status, type, booked_by, reason, notes, cancellation_reason, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var apptTime string

	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&apptTime,
		&a.DurationMinutes,
		&a.Status,
		&a.Type,
		&a.BookedBy,
		&a.Reason,
		&a.Notes,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if a.Time, err = schedule.ParseClock(apptTime); err != nil {
		return nil, fmt.Errorf("appointment %s time: %w", a.ID, err)
	}
	a.Date = schedule.Day(a.Date)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// isActiveSlotConflict reports whether err is the partial unique index
// rejecting a second active appointment for the same doctor, date and time.
func isActiveSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeSlotIndex
}

func activeStatusNames() []string {
	names := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		names[i] = string(s)
	}
	return names
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, name, email, created_at, updated_at
	`, p.ID, p.Name, p.Email)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActive(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appt_date = $2
		  AND status = ANY($3)
		ORDER BY appt_time
	`, doctorID, schedule.Day(date), activeStatusNames())
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appt_date = $2
		ORDER BY appt_time, created_at
	`, doctorID, schedule.Day(date))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appt_date DESC, appt_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Insert draws the appointment number from a database sequence so that
// concurrent bookings can never share a number. A failed insert leaves a gap
// in the sequence, which is fine.
func (r *PgRepository) Insert(ctx context.Context, in NewAppointment) (*Appointment, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('appointment_number_seq')`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next appointment number: %w", err)
	}

	id := uuid.New()
	number := FormatNumber(time.Now().Year(), seq)

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, number, doctor_id, patient_id, appt_date, appt_time, duration_minutes,
		                          status, type, booked_by, reason, notes, cancellation_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '', now(), now())
		RETURNING `+appointmentColumns,
		id, number, in.DoctorID, in.PatientID, schedule.Day(in.Date), in.Time.String(), in.DurationMinutes,
		StatusScheduled, in.Type, in.BookedBy, in.Reason, in.Notes)

	appt, err := scanAppointment(row)
	if err != nil {
		if isActiveSlotConflict(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

// Reschedule moves the appointment in place, keeping id and number, and puts
// it back to SCHEDULED. The partial unique index still applies to the new
// slot; the row's own old slot never conflicts because it is the same row.
func (r *PgRepository) Reschedule(ctx context.Context, id uuid.UUID, from AppointmentStatus, date time.Time, at schedule.Clock) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET appt_date = $2,
		    appt_time = $3,
		    status = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = $5
		RETURNING `+appointmentColumns,
		id, schedule.Day(date), at.String(), StatusScheduled, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if isActiveSlotConflict(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, change StatusChange) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = CASE WHEN $4 = '' THEN notes ELSE $4 END,
		    cancellation_reason = CASE WHEN $5 = '' THEN cancellation_reason ELSE $5 END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		change.ID, change.To, change.From, change.Notes, change.CancellationReason)

	return scanAppointment(row)
}

func (r *PgRepository) FindOverdue(ctx context.Context, onOrBefore time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('SCHEDULED', 'CONFIRMED')
		  AND appt_date <= $1
		ORDER BY appt_date, appt_time
	`, schedule.Day(onOrBefore))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
