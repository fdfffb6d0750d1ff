package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var monday = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func newTestResolver(store *MemoryStore) *Resolver {
	return NewResolver(store, store, store, Interval{})
}

func clockPtr(s string) *Clock {
	c := MustParseClock(s)
	return &c
}

func TestResolveWindow_WeeklyEntry(t *testing.T) {
	store := NewMemoryStore()
	docID := uuid.New()
	store.PutDoctor(Doctor{ID: docID, IsAvailable: true, AvailableFrom: clockPtr("07:00"), AvailableTo: clockPtr("11:00")})
	store.PutWeekly(WeeklyEntry{DoctorID: docID, DayOfWeek: time.Monday, IsAvailable: true, Start: MustParseClock("10:00"), End: MustParseClock("14:00")})

	w, err := newTestResolver(store).ResolveWindow(context.Background(), docID, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.Open) != 1 || w.Open[0].String() != "10:00-14:00" {
		t.Errorf("expected weekly hours 10:00-14:00 to win over profile hours, got %v", w.Open)
	}
	if w.Reason != "" {
		t.Errorf("expected no reason, got %q", w.Reason)
	}
}

func TestResolveWindow_DoctorUnavailable(t *testing.T) {
	store := NewMemoryStore()
	docID := uuid.New()
	store.PutDoctor(Doctor{ID: docID, IsAvailable: false})
	store.PutWeekly(WeeklyEntry{DoctorID: docID, DayOfWeek: time.Monday, IsAvailable: true, Start: NewClock(9, 0), End: NewClock(12, 0)})

	w, err := newTestResolver(store).ResolveWindow(context.Background(), docID, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.IsOpen() {
		t.Errorf("expected empty window, got %v", w.Open)
	}
	if w.Reason != ReasonDoctorUnavailable {
		t.Errorf("expected %s, got %q", ReasonDoctorUnavailable, w.Reason)
	}
}

func TestResolveWindow_ClosedWeekday(t *testing.T) {
	store := NewMemoryStore()
	docID := uuid.New()
	store.PutDoctor(Doctor{ID: docID, IsAvailable: true})
	store.PutWeekly(WeeklyEntry{DoctorID: docID, DayOfWeek: time.Monday, IsAvailable: false})

	w, err := newTestResolver(store).ResolveWindow(context.Background(), docID, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.IsOpen() || w.Reason != ReasonClosedThisWeekday {
		t.Errorf("expected closed weekday, got open=%v reason=%q", w.Open, w.Reason)
	}
}

func TestResolveWindow_FallsBackToGeneralHours(t *testing.T) {
	store := NewMemoryStore()
	docID := uuid.New()
	store.PutDoctor(Doctor{ID: docID, IsAvailable: true, AvailableFrom: clockPtr("08:00"), AvailableTo: clockPtr("12:00")})

	w, err := newTestResolver(store).ResolveWindow(context.Background(), docID, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.Open) != 1 || w.Open[0].String() != "08:00-12:00" {
		t.Errorf("expected general hours 08:00-12:00, got %v", w.Open)
	}
}

func TestResolveWindow_DefaultHours(t *testing.T) {
	store := NewMemoryStore()
	docID := uuid.New()
	// Only one end set counts as unset.
	store.PutDoctor(Doctor{ID: docID, IsAvailable: true, AvailableFrom: clockPtr("08:00")})

	r := newTestResolver(store)
	w, err := r.ResolveWindow(context.Background(), docID, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.Open) != 1 || w.Open[0] != DefaultHours {
		t.Errorf("expected default hours %s, got %v", DefaultHours, w.Open)
	}
	if DefaultHours.String() != "09:00-17:00" {
		t.Errorf("default hours changed: %s", DefaultHours)
	}

	custom := NewResolver(store, store, store, Interval{Start: NewClock(10, 0), End: NewClock(16, 0)})
	w, err = custom.ResolveWindow(context.Background(), docID, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Open[0].String() != "10:00-16:00" {
		t.Errorf("expected configured default 10:00-16:00, got %v", w.Open)
	}
}

func TestResolveWindow_CollectsBlocksUnmerged(t *testing.T) {
	store := NewMemoryStore()
	docID := uuid.New()
	store.PutDoctor(Doctor{ID: docID, IsAvailable: true})
	store.AddBlock(Block{DoctorID: docID, Date: monday, Start: NewClock(10, 0), End: NewClock(11, 0), Kind: BlockProcedure, Reason: "Endoscopy"})
	store.AddBlock(Block{DoctorID: docID, Date: monday, Start: NewClock(10, 30), End: NewClock(12, 0), Kind: BlockLeave})
	store.AddBlock(Block{DoctorID: docID, Date: monday.AddDate(0, 0, 1), Start: NewClock(9, 0), End: NewClock(10, 0), Kind: BlockOther})

	w, err := newTestResolver(store).ResolveWindow(context.Background(), docID, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.Excluded) != 2 {
		t.Fatalf("expected 2 overlapping blocks kept separately, got %d", len(w.Excluded))
	}
	if w.Excluded[0].Label() != "PROCEDURE: Endoscopy" || w.Excluded[1].Label() != "LEAVE" {
		t.Errorf("unexpected labels %q, %q", w.Excluded[0].Label(), w.Excluded[1].Label())
	}
}

func TestResolveWindow_UnknownDoctor(t *testing.T) {
	store := NewMemoryStore()
	_, err := newTestResolver(store).ResolveWindow(context.Background(), uuid.New(), monday)
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}
