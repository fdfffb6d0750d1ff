package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore reads doctor profiles, weekly hours and blocked intervals from
// Postgres. The write methods exist for seeding and admin tooling.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var from, to *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.IsAvailable,
		&from,
		&to,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if d.AvailableFrom, err = optionalClock(from); err != nil {
		return nil, fmt.Errorf("doctor %s available_from: %w", d.ID, err)
	}
	if d.AvailableTo, err = optionalClock(to); err != nil {
		return nil, fmt.Errorf("doctor %s available_to: %w", d.ID, err)
	}
	return &d, nil
}

func optionalClock(s *string) (*Clock, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	c, err := ParseClock(*s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func clockText(c *Clock) *string {
	if c == nil {
		return nil
	}
	s := c.String()
	return &s
}

func (s *PgStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, specialty, is_available, available_from, available_to, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (s *PgStore) GetWeekly(ctx context.Context, doctorID uuid.UUID, day time.Weekday) (*WeeklyEntry, error) {
	var e WeeklyEntry
	var dow int16
	var start, end string

	err := s.pool.QueryRow(ctx, `
		SELECT doctor_id, day_of_week, is_available, start_time, end_time
		FROM weekly_schedules
		WHERE doctor_id = $1 AND day_of_week = $2
	`, doctorID, int16(day)).Scan(&e.DoctorID, &dow, &e.IsAvailable, &start, &end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	e.DayOfWeek = time.Weekday(dow)
	if e.Start, err = ParseClock(start); err != nil {
		return nil, fmt.Errorf("weekly start_time: %w", err)
	}
	if e.End, err = ParseClock(end); err != nil {
		return nil, fmt.Errorf("weekly end_time: %w", err)
	}
	return &e, nil
}

func (s *PgStore) ListBlocks(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Block, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, doctor_id, block_date, start_time, end_time, kind, COALESCE(reason, '')
		FROM blocked_intervals
		WHERE doctor_id = $1 AND block_date = $2
		ORDER BY start_time
	`, doctorID, Day(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Block
	for rows.Next() {
		var b Block
		var start, end, kind string
		if err := rows.Scan(&b.ID, &b.DoctorID, &b.Date, &start, &end, &kind, &b.Reason); err != nil {
			return nil, err
		}
		if b.Start, err = ParseClock(start); err != nil {
			return nil, fmt.Errorf("block %s start_time: %w", b.ID, err)
		}
		if b.End, err = ParseClock(end); err != nil {
			return nil, fmt.Errorf("block %s end_time: %w", b.ID, err)
		}
		b.Kind = BlockKind(kind)
		result = append(result, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialty, is_available, available_from, available_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, name, specialty, is_available, available_from, available_to, created_at, updated_at
	`, d.ID, d.Name, d.Specialty, d.IsAvailable, clockText(d.AvailableFrom), clockText(d.AvailableTo))
	return scanDoctor(row)
}

// UpsertWeekly replaces the entry for (doctor, weekday); there is never more
// than one.
func (s *PgStore) UpsertWeekly(ctx context.Context, e WeeklyEntry) error {
	if e.IsAvailable && !(Interval{Start: e.Start, End: e.End}).Valid() {
		return ErrInvalidInterval
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO weekly_schedules (doctor_id, day_of_week, is_available, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doctor_id, day_of_week)
		DO UPDATE SET is_available = EXCLUDED.is_available,
		              start_time   = EXCLUDED.start_time,
		              end_time     = EXCLUDED.end_time
	`, e.DoctorID, int16(e.DayOfWeek), e.IsAvailable, e.Start.String(), e.End.String())
	if err != nil {
		return fmt.Errorf("upsert weekly schedule: %w", err)
	}
	return nil
}

func (s *PgStore) AddBlock(ctx context.Context, b Block) (*Block, error) {
	if !b.Interval().Valid() {
		return nil, ErrInvalidInterval
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Kind == "" {
		b.Kind = BlockOther
	}
	b.Date = Day(b.Date)

	var reason *string
	if b.Reason != "" {
		reason = &b.Reason
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO blocked_intervals (id, doctor_id, block_date, start_time, end_time, kind, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, b.ID, b.DoctorID, b.Date, b.Start.String(), b.End.String(), string(b.Kind), reason)
	if err != nil {
		return nil, fmt.Errorf("insert blocked interval: %w", err)
	}
	return &b, nil
}
