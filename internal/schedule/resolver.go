package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ReasonDoctorUnavailable = "DOCTOR_UNAVAILABLE"
	ReasonClosedThisWeekday = "CLOSED_THIS_WEEKDAY"
)

// DefaultHours applies when a doctor has neither a weekly entry for the day
// nor general hours on the profile.
var DefaultHours = Interval{Start: NewClock(9, 0), End: NewClock(17, 0)}

// Window is a doctor's open time on one date, before appointments are
// taken into account.
type Window struct {
	DoctorID uuid.UUID
	Date     time.Time
	Open     []Interval
	Excluded []Block
	// Reason is set when Open is empty.
	Reason string
}

func (w Window) IsOpen() bool {
	return len(w.Open) > 0
}

// Resolver merges weekly hours, profile hours and blocked intervals into a
// Window. It only reads, so callers may run it without coordination.
type Resolver struct {
	doctors      DoctorStore
	weekly       WeeklyStore
	blocks       BlockStore
	defaultHours Interval
}

// NewResolver builds a Resolver. A zero or invalid defaultHours falls back to
// DefaultHours.
func NewResolver(doctors DoctorStore, weekly WeeklyStore, blocks BlockStore, defaultHours Interval) *Resolver {
	if !defaultHours.Valid() {
		defaultHours = DefaultHours
	}
	return &Resolver{
		doctors:      doctors,
		weekly:       weekly,
		blocks:       blocks,
		defaultHours: defaultHours,
	}
}

func (r *Resolver) DefaultHours() Interval {
	return r.defaultHours
}

func (r *Resolver) ResolveWindow(ctx context.Context, doctorID uuid.UUID, date time.Time) (Window, error) {
	date = Day(date)
	w := Window{DoctorID: doctorID, Date: date}

	doc, err := r.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		return Window{}, err
	}
	if !doc.IsAvailable {
		w.Reason = ReasonDoctorUnavailable
		return w, nil
	}

	entry, err := r.weekly.GetWeekly(ctx, doctorID, date.Weekday())
	if err != nil {
		return Window{}, fmt.Errorf("load weekly schedule: %w", err)
	}

	switch {
	case entry != nil && !entry.IsAvailable:
		w.Reason = ReasonClosedThisWeekday
		return w, nil
	case entry != nil:
		w.Open = []Interval{{Start: entry.Start, End: entry.End}}
	default:
		if general, ok := doc.GeneralHours(); ok {
			w.Open = []Interval{general}
		} else {
			w.Open = []Interval{r.defaultHours}
		}
	}

	blocks, err := r.blocks.ListBlocks(ctx, doctorID, date)
	if err != nil {
		return Window{}, fmt.Errorf("load blocked intervals: %w", err)
	}
	w.Excluded = blocks

	return w, nil
}
