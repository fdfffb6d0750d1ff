package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Enqueuer is the part of *asynq.Client the publisher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher turns committed appointment changes into asynq tasks. It is both
// the service's EventPublisher and its BillingHook.
type Publisher struct {
	client Enqueuer
}

func NewPublisher(client Enqueuer) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, ev appointment.Event) error {
	task, opts, err := NewNotifyTask(ev)
	if err != nil {
		return fmt.Errorf("build notify task: %w", err)
	}
	if _, err := p.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", ev.Type, ev.AppointmentID, err)
	}
	return nil
}

func (p *Publisher) OnBooked(ctx context.Context, appt appointment.Appointment) error {
	task, opts, err := NewChargeTask(appt)
	if err != nil {
		return fmt.Errorf("build charge task: %w", err)
	}
	_, err = p.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue charge for %s: %w", appt.ID, err)
	}
	return nil
}
