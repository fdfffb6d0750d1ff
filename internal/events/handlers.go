package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Notifier delivers an appointment event to the patient.
type Notifier interface {
	Notify(ctx context.Context, ev appointment.Event) error
}

// ChargeStore records a charge. created is false when the appointment was
// already charged.
type ChargeStore interface {
	CreateCharge(ctx context.Context, p ChargePayload) (created bool, err error)
}

// NewServeMux routes notify and charge tasks to their handlers.
func NewServeMux(notifier Notifier, charges ChargeStore, logger zerolog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotify, handleNotify(notifier, logger))
	mux.HandleFunc(TypeCharge, handleCharge(charges, logger))
	return mux
}

func handleNotify(notifier Notifier, logger zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var ev appointment.Event
		if err := json.Unmarshal(task.Payload(), &ev); err != nil {
			logger.Error().Err(err).Str("task", task.Type()).Msg("invalid notify payload")
			return fmt.Errorf("decode notify payload: %v: %w", err, asynq.SkipRetry)
		}

		if err := notifier.Notify(ctx, ev); err != nil {
			logger.Warn().Err(err).
				Str("event", ev.Type).
				Str("appointment_id", ev.AppointmentID.String()).
				Msg("notification failed, will retry")
			return err
		}
		return nil
	}
}

func handleCharge(charges ChargeStore, logger zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p ChargePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error().Err(err).Str("task", task.Type()).Msg("invalid charge payload")
			return fmt.Errorf("decode charge payload: %v: %w", err, asynq.SkipRetry)
		}

		created, err := charges.CreateCharge(ctx, p)
		if err != nil {
			return fmt.Errorf("create charge for %s: %w", p.AppointmentID, err)
		}

		logger.Info().
			Str("appointment_id", p.AppointmentID.String()).
			Str("number", p.Number).
			Bool("created", created).
			Msg("charge processed")
		return nil
	}
}
