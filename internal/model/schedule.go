package model

import "time"

// Schedule represents a fixed daily time slot that patients can book.
// The catalog of slots is immutable at runtime; an appointment claims
// a (schedule, date) pair, so the same slot exists independently on
// every calendar date.
//
// Fields:
//  ID        – primary key identifier.
//  StartTime – slot start time of day, formatted HH:MM:SS.
//  EndTime   – slot end time of day, formatted HH:MM:SS.
//  Capacity  – how many concurrent appointments the slot admits
//              (normally 1).
//  CreatedAt – timestamp of creation.
type Schedule struct {
    ID        uint64    // schedules.id
    StartTime string    // schedules.start_time
    EndTime   string    // schedules.end_time
    Capacity  uint32    // schedules.capacity
    CreatedAt time.Time // schedules.created_at
}

// StartOn combines the slot's start time with a calendar date and
// returns the effective start of a visit on that date in UTC.  It is
// used for cancellation lead-time checks.
func (s Schedule) StartOn(date time.Time) (time.Time, error) {
    t, err := time.Parse("15:04:05", s.StartTime)
    if err != nil {
        return time.Time{}, err
    }
    d := date.UTC()
    return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
}
