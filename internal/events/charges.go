package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgChargeStore struct {
	pool *pgxpool.Pool
}

func NewPgChargeStore(pool *pgxpool.Pool) *PgChargeStore {
	return &PgChargeStore{pool: pool}
}

// CreateCharge inserts at most one charge per appointment; redelivered tasks
// are no-ops.
func (s *PgChargeStore) CreateCharge(ctx context.Context, p ChargePayload) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO charges (id, appointment_id, patient_id, description, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (appointment_id) DO NOTHING
	`, uuid.New(), p.AppointmentID, p.PatientID, chargeDescription(p))
	if err != nil {
		return false, fmt.Errorf("insert charge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func chargeDescription(p ChargePayload) string {
	kind := strings.ToLower(strings.ReplaceAll(string(p.Type), "_", " "))
	if kind == "" {
		kind = "consultation"
	}
	return fmt.Sprintf("%s %s on %s %s", kind, p.Number, p.Date, p.Time)
}
