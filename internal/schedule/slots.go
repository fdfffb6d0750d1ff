package schedule

import "slices"

const (
	DefaultSlotMinutes = 30
	ReasonBooked       = "Booked"
)

type Slot struct {
	Time      Clock  `json:"time"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Occupant is anything sitting on the slot grid. HoldsSlot reports whether
// it still makes its start time unavailable.
type Occupant interface {
	SlotTime() Clock
	HoldsSlot() bool
}

// GenerateSlots walks every open interval in slotMinutes steps and marks each
// start time booked, blocked or available. Slots come out in ascending time
// order. A trailing slot that would run past the interval end is dropped.
func GenerateSlots[T Occupant](open []Interval, excluded []Block, existing []T, slotMinutes int) []Slot {
	if slotMinutes <= 0 {
		slotMinutes = DefaultSlotMinutes
	}

	booked := make(map[Clock]bool, len(existing))
	for _, o := range existing {
		if o.HoldsSlot() {
			booked[o.SlotTime()] = true
		}
	}

	slots := make([]Slot, 0)
	for _, iv := range sortedIntervals(open) {
		for t := iv.Start; t.Add(slotMinutes) <= iv.End; t = t.Add(slotMinutes) {
			slots = append(slots, annotate(t, booked, excluded))
		}
	}
	return slots
}

func annotate(t Clock, booked map[Clock]bool, excluded []Block) Slot {
	if booked[t] {
		return Slot{Time: t, Available: false, Reason: ReasonBooked}
	}
	for _, b := range excluded {
		if b.Interval().Contains(t) {
			return Slot{Time: t, Available: false, Reason: b.Label()}
		}
	}
	return Slot{Time: t, Available: true}
}

func sortedIntervals(in []Interval) []Interval {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b Interval) int {
		return int(a.Start) - int(b.Start)
	})
	return out
}

// FindSlot returns the slot starting at t, if the grid has one.
func FindSlot(slots []Slot, t Clock) (Slot, bool) {
	for _, s := range slots {
		if s.Time == t {
			return s, true
		}
	}
	return Slot{}, false
}
