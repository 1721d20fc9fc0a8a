// Package calendar talks to the doctors' external calendars. A process holds
// one long-lived client, built at startup; when it cannot be built the
// process runs with Unavailable instead.
package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/hackgods/doctor-appointment-scheduling/internal/slots"
)

var ErrUnavailable = errors.New("calendar service unavailable")

// Reminder is one reminder override on a created event.
type Reminder struct {
	Method  string // email, popup
	Minutes int64
}

// DefaultReminders emails a day ahead and pops up ten minutes before.
func DefaultReminders() []Reminder {
	return []Reminder{
		{Method: "email", Minutes: 24 * 60},
		{Method: "popup", Minutes: 10},
	}
}

type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
	Reminders   []Reminder
	// Conference asks the provider to attach a video meeting.
	Conference bool
}

// Client is implemented by Google and Unavailable.
type Client interface {
	QueryBusy(ctx context.Context, calendarID string, start, end time.Time) ([]slots.BusyInterval, error)
	CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error)
	Available() bool
}

// Unavailable stands in for a calendar that failed to initialise.
type Unavailable struct {
	Reason string
}

func (u Unavailable) QueryBusy(context.Context, string, time.Time, time.Time) ([]slots.BusyInterval, error) {
	return nil, u.err()
}

func (u Unavailable) CreateEvent(context.Context, string, Event) (string, error) {
	return "", u.err()
}

func (u Unavailable) Available() bool { return false }

func (u Unavailable) err() error {
	if u.Reason == "" {
		return ErrUnavailable
	}
	return &unavailableError{reason: u.Reason}
}

type unavailableError struct{ reason string }

func (e *unavailableError) Error() string { return ErrUnavailable.Error() + ": " + e.reason }
func (e *unavailableError) Unwrap() error { return ErrUnavailable }
