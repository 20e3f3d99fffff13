package appointment

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Business hours are fixed for the center, local to the configured zone.
const (
	BusinessOpenHour   = 9
	BusinessCloseHour  = 18
	DefaultSlotMinutes = 30
	MaxSlotMinutes     = (BusinessCloseHour - BusinessOpenHour) * 60
)

// Slot is a candidate interval inside business hours. It is derived on every
// query and never stored.
type Slot struct {
	Date           string    `json:"date"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	IsAvailable    bool      `json:"is_available"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect. Back-to-back
// intervals do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Conflicts returns the blocking appointments in existing that overlap
// [start,end), skipping excludeID.
func Conflicts(existing []*Appointment, start, end time.Time, excludeID *uuid.UUID) []*Appointment {
	var out []*Appointment
	for _, a := range existing {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if !a.BlocksSchedule() {
			continue
		}
		if Overlaps(start, end, a.StartTime, a.EndTime) {
			out = append(out, a)
		}
	}
	return out
}

// DayBounds returns [midnight, next midnight) in loc for the calendar fields of date.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// CalendarDate normalizes date to the stored form of the Date column.
func CalendarDate(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateInterval checks start < end and that both fall inside date's calendar day.
func ValidateInterval(date, start, end time.Time, loc *time.Location) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return ErrInvalidInterval
	}
	dayStart, dayEnd := DayBounds(date, loc)
	if start.Before(dayStart) || end.After(dayEnd) {
		return ErrOutsideCalendarDay
	}
	return nil
}

// ValidateSlotMinutes applies the default and bounds the slot length.
func ValidateSlotMinutes(minutes int) (int, error) {
	if minutes == 0 {
		return DefaultSlotMinutes, nil
	}
	if minutes < 0 || minutes > MaxSlotMinutes {
		return 0, ErrInvalidSlotDuration
	}
	return minutes, nil
}

// GenerateSlots walks business hours of date in fixed steps and marks each slot
// unavailable exactly when Conflicts would report an overlap for it. A trailing
// remainder shorter than one step is not offered.
func GenerateSlots(practitionerID uuid.UUID, date time.Time, slotMinutes int, loc *time.Location, existing []*Appointment) []Slot {
	dayStart, _ := DayBounds(date, loc)
	y, m, d := dayStart.Date()
	open := time.Date(y, m, d, BusinessOpenHour, 0, 0, 0, loc)
	closing := time.Date(y, m, d, BusinessCloseHour, 0, 0, 0, loc)
	step := time.Duration(slotMinutes) * time.Minute
	label := dayStart.Format("2006-01-02")

	ordered := append([]*Appointment(nil), existing...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartTime.Before(ordered[j].StartTime)
	})

	slots := make([]Slot, 0, int(closing.Sub(open)/step))
	for cursor := open; !cursor.Add(step).After(closing); cursor = cursor.Add(step) {
		end := cursor.Add(step)
		slots = append(slots, Slot{
			Date:           label,
			StartTime:      cursor,
			EndTime:        end,
			IsAvailable:    len(Conflicts(ordered, cursor, end, nil)) == 0,
			PractitionerID: practitionerID,
		})
	}
	return slots
}
