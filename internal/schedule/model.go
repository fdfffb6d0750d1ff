package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrInvalidInterval  = errors.New("start time must be before end time")
	ErrInvalidBlockKind = errors.New("block kind must be LEAVE, PROCEDURE or OTHER")
)

// Interval is a half-open [Start, End) range of a single day.
type Interval struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

func (i Interval) Contains(c Clock) bool {
	return i.Start <= c && c < i.End
}

func (i Interval) Valid() bool {
	return i.Start.Valid() && i.End.Valid() && i.Start < i.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

type BlockKind string

const (
	BlockLeave     BlockKind = "LEAVE"
	BlockProcedure BlockKind = "PROCEDURE"
	BlockOther     BlockKind = "OTHER"
)

func ParseBlockKind(s string) (BlockKind, error) {
	switch k := BlockKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case BlockLeave, BlockProcedure, BlockOther:
		return k, nil
	case "":
		return BlockOther, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBlockKind, s)
	}
}

// Block is a one-off unavailability carved out of a doctor's day.
type Block struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
	Date     time.Time
	Start    Clock
	End      Clock
	Kind     BlockKind
	Reason   string
}

func (b Block) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// Label is the text shown against a slot the block covers.
func (b Block) Label() string {
	if b.Reason == "" {
		return string(b.Kind)
	}
	return string(b.Kind) + ": " + b.Reason
}

// WeeklyEntry is a doctor's recurring hours for one weekday.
type WeeklyEntry struct {
	DoctorID    uuid.UUID
	DayOfWeek   time.Weekday
	IsAvailable bool
	Start       Clock
	End         Clock
}

// Doctor holds the parts of the doctor profile the scheduler reads.
type Doctor struct {
	ID            uuid.UUID
	Name          string
	Specialty     *string
	IsAvailable   bool
	AvailableFrom *Clock
	AvailableTo   *Clock
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GeneralHours returns the profile-level working hours when both ends are set
// and form a valid interval.
func (d Doctor) GeneralHours() (Interval, bool) {
	if d.AvailableFrom == nil || d.AvailableTo == nil {
		return Interval{}, false
	}
	iv := Interval{Start: *d.AvailableFrom, End: *d.AvailableTo}
	return iv, iv.Valid()
}

type DoctorStore interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
}

// WeeklyStore returns (nil, nil) when the doctor has no entry for the weekday.
type WeeklyStore interface {
	GetWeekly(ctx context.Context, doctorID uuid.UUID, day time.Weekday) (*WeeklyEntry, error)
}

type BlockStore interface {
	ListBlocks(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Block, error)
}
