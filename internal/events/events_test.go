package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type fakeNotifier struct {
	got []appointment.Event
	err error
}

func (f *fakeNotifier) Notify(_ context.Context, ev appointment.Event) error {
	f.got = append(f.got, ev)
	return f.err
}

type fakeCharges struct {
	charged map[uuid.UUID]bool
}

func (f *fakeCharges) CreateCharge(_ context.Context, p ChargePayload) (bool, error) {
	if f.charged[p.AppointmentID] {
		return false, nil
	}
	f.charged[p.AppointmentID] = true
	return true, nil
}

func sampleAppointment() appointment.Appointment {
	return appointment.Appointment{
		ID:        uuid.New(),
		Number:    "APT-2025-000042",
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		Date:      time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Time:      schedule.MustParseClock("10:30"),
		Status:    appointment.StatusScheduled,
		Type:      appointment.TypeFollowUp,
	}
}

func TestPublisher_Publish(t *testing.T) {
	q := &fakeEnqueuer{}
	p := NewPublisher(q)

	ev := appointment.Event{
		Type:          appointment.EventAppointmentBooked,
		AppointmentID: uuid.New(),
		Number:        "APT-2025-000001",
		Date:          "2025-06-02",
		Time:          "10:00",
		Status:        appointment.StatusScheduled,
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(q.tasks) != 1 || q.tasks[0].Type() != TypeNotify {
		t.Fatalf("expected one %s task, got %+v", TypeNotify, q.tasks)
	}
	var got appointment.Event
	if err := json.Unmarshal(q.tasks[0].Payload(), &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.AppointmentID != ev.AppointmentID || got.Type != ev.Type {
		t.Errorf("payload = %+v", got)
	}
	if !strings.Contains(string(q.tasks[0].Payload()), `"appointmentId"`) {
		t.Errorf("expected camelCase keys, got %s", q.tasks[0].Payload())
	}
}

func TestPublisher_PublishError(t *testing.T) {
	p := NewPublisher(&fakeEnqueuer{err: errors.New("redis down")})
	if err := p.Publish(context.Background(), appointment.Event{Type: appointment.EventAppointmentCancelled}); err == nil {
		t.Fatal("expected enqueue error to be returned")
	}
}

func TestPublisher_OnBooked(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"enqueued", nil, false},
		{"already queued", asynq.ErrTaskIDConflict, false},
		{"redis down", errors.New("redis down"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPublisher(&fakeEnqueuer{err: tt.err})
			err := p.OnBooked(context.Background(), sampleAppointment())
			if (err != nil) != tt.wantErr {
				t.Errorf("OnBooked error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewChargeTask(t *testing.T) {
	appt := sampleAppointment()
	task, opts, err := NewChargeTask(appt)
	if err != nil {
		t.Fatalf("NewChargeTask: %v", err)
	}
	if task.Type() != TypeCharge {
		t.Errorf("Type = %s", task.Type())
	}

	var taskID string
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			taskID = o.Value().(string)
		}
	}
	if taskID != "charge:"+appt.ID.String() {
		t.Errorf("task id = %q", taskID)
	}

	var p ChargePayload
	json.Unmarshal(task.Payload(), &p)
	if p.Date != "2025-06-02" || p.Time != "10:30" || p.Number != appt.Number {
		t.Errorf("payload = %+v", p)
	}
}

func TestServeMux_Notify(t *testing.T) {
	n := &fakeNotifier{}
	mux := NewServeMux(n, &fakeCharges{charged: map[uuid.UUID]bool{}}, zerolog.Nop())

	ev := appointment.Event{Type: appointment.EventAppointmentRescheduled, AppointmentID: uuid.New()}
	task, _, _ := NewNotifyTask(ev)

	if err := mux.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(n.got) != 1 || n.got[0].AppointmentID != ev.AppointmentID {
		t.Errorf("notifier got %+v", n.got)
	}

	n.err = errors.New("smtp down")
	if err := mux.ProcessTask(context.Background(), task); err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Errorf("delivery failure should be retried, got %v", err)
	}
}

func TestServeMux_ChargeIsIdempotent(t *testing.T) {
	charges := &fakeCharges{charged: map[uuid.UUID]bool{}}
	mux := NewServeMux(&fakeNotifier{}, charges, zerolog.Nop())

	appt := sampleAppointment()
	task, _, _ := NewChargeTask(appt)

	for i := 0; i < 3; i++ {
		if err := mux.ProcessTask(context.Background(), task); err != nil {
			t.Fatalf("ProcessTask #%d: %v", i, err)
		}
	}
	if len(charges.charged) != 1 || !charges.charged[appt.ID] {
		t.Errorf("expected one charge for %s, got %v", appt.ID, charges.charged)
	}
}

func TestServeMux_BadPayloadSkipsRetry(t *testing.T) {
	mux := NewServeMux(&fakeNotifier{}, &fakeCharges{charged: map[uuid.UUID]bool{}}, zerolog.Nop())

	for _, typ := range []string{TypeNotify, TypeCharge} {
		err := mux.ProcessTask(context.Background(), asynq.NewTask(typ, []byte("{not json")))
		if !errors.Is(err, asynq.SkipRetry) {
			t.Errorf("%s: expected SkipRetry, got %v", typ, err)
		}
	}
}

func TestMessage(t *testing.T) {
	base := appointment.Event{Number: "APT-2025-000007", Date: "2025-06-02", Time: "10:00"}

	tests := []struct {
		typ    string
		reason string
		status appointment.AppointmentStatus
		want   string
	}{
		{appointment.EventAppointmentBooked, "", "", "Appointment APT-2025-000007 booked for 2025-06-02 at 10:00."},
		{appointment.EventAppointmentRescheduled, "", "", "Appointment APT-2025-000007 moved to 2025-06-02 at 10:00."},
		{appointment.EventAppointmentCancelled, "doctor ill", "", "Appointment APT-2025-000007 on 2025-06-02 at 10:00 was cancelled: doctor ill."},
		{appointment.EventAppointmentStatusChanged, "", appointment.StatusConfirmed, "Appointment APT-2025-000007 on 2025-06-02 at 10:00 is now CONFIRMED."},
	}
	for _, tt := range tests {
		ev := base
		ev.Type, ev.Reason, ev.Status = tt.typ, tt.reason, tt.status
		if got := Message(ev); got != tt.want {
			t.Errorf("Message(%s) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestChargeDescription(t *testing.T) {
	p := ChargePayload{Number: "APT-2025-000001", Type: appointment.TypeRoutineCheckup, Date: "2025-06-02", Time: "09:00"}
	if got := chargeDescription(p); got != "routine checkup APT-2025-000001 on 2025-06-02 09:00" {
		t.Errorf("chargeDescription = %q", got)
	}
}
