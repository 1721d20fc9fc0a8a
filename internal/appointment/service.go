package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/metrics"
	"github.com/hackgods/doctor-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
	"github.com/hackgods/doctor-appointment-scheduling/internal/slots"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRequested   = "APPOINTMENT_REQUESTED"
	EventCalendarEventLinked    = "CALENDAR_EVENT_LINKED"
	EventCalendarEventOrphaned  = "CALENDAR_EVENT_ORPHANED"
	EventConfirmationEmailSent  = "CONFIRMATION_EMAIL_SENT"
	EventConfirmationEmailError = "CONFIRMATION_EMAIL_FAILED"
)

// Calendar is the part of the external calendar the service talks to.
type Calendar interface {
	QueryBusy(ctx context.Context, calendarID string, start, end time.Time) ([]slots.BusyInterval, error)
	CreateEvent(ctx context.Context, calendarID string, ev calendar.Event) (string, error)
}

type Deps struct {
	Repo     Repository
	Locker   redisclient.Locker
	Calendar Calendar
	Mailer   notify.EmailSender
	Metrics  *metrics.SchedulingMetrics
	Logger   zerolog.Logger
}

type Options struct {
	Location      *time.Location
	NotifyTimeout time.Duration
	Now           func() time.Time
}

type Service struct {
	repo          Repository
	locker        redisclient.Locker
	calendar      Calendar
	mailer        notify.EmailSender
	metrics       *metrics.SchedulingMetrics
	logger        zerolog.Logger
	loc           *time.Location
	notifyTimeout time.Duration
	now           func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	s := &Service{
		repo:          deps.Repo,
		locker:        deps.Locker,
		calendar:      deps.Calendar,
		mailer:        deps.Mailer,
		metrics:       deps.Metrics,
		logger:        deps.Logger.With().Str("component", "appointment").Logger(),
		loc:           opts.Location,
		notifyTimeout: opts.NotifyTimeout,
		now:           opts.Now,
	}
	if s.locker == nil {
		s.locker = redisclient.NoopLocker{}
	}
	if s.calendar == nil {
		s.calendar = calendar.Unavailable{Reason: "no calendar client configured"}
	}
	if s.mailer == nil {
		s.mailer = notify.NewStubEmailSender(s.logger)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = 10 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Location is the zone every date and slot is interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// dayOf moves a stored DATE, which comes back as UTC midnight, into the
// service zone.
func (s *Service) dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return KindOf(err)
}

// resolveDoctor finds a doctor by display name.
func (s *Service) resolveDoctor(ctx context.Context, name string) (*Doctor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, opErr(ErrValidation, nil, "Doctor name is required.")
	}
	d, err := s.repo.FindDoctorByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, opErr(ErrNotFound, err, "Doctor '%s' not found.", name)
		}
		return nil, fmt.Errorf("find doctor: %w", err)
	}
	return d, nil
}

func (s *Service) getDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, opErr(ErrNotFound, err, "Doctor %s not found.", id)
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return d, nil
}

func requireCalendarID(d *Doctor) error {
	if strings.TrimSpace(d.Email) == "" {
		return opErr(ErrConfiguration, nil, "Doctor '%s' does not have an email/calendar ID configured.", d.Name)
	}
	return nil
}

func (s *Service) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, opErr(ErrValidation, nil, "Date is required. Please use YYYY-MM-DD.")
	}
	day, err := slots.ParseDate(raw, s.loc)
	if err != nil {
		return time.Time{}, opErr(ErrValidation, err, "Invalid date format '%s'. Please use YYYY-MM-DD.", raw)
	}
	return day, nil
}

func validateSlot(label string) error {
	if !slots.Valid(label) {
		return opErr(ErrValidation, nil, "Invalid time slot '%s'. Valid slots are %s to %s in 30 minute steps.",
			label, slots.All()[0], slots.All()[len(slots.All())-1])
	}
	return nil
}

// validateEmail accepts a bare address only, no display name.
func validateEmail(raw string) error {
	if raw == "" {
		return opErr(ErrValidation, nil, "Patient email is required.")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return opErr(ErrValidation, err, "Invalid email address '%s'.", raw)
	}
	return nil
}

// calendarError maps a failed calendar call to the caller-facing kind.
func calendarError(err error, msg string) error {
	if errors.Is(err, calendar.ErrUnavailable) {
		return opErr(ErrConfiguration, err, "Calendar service is not configured. Please contact the clinic administrator.")
	}
	return opErr(ErrExternalService, err, "%s", msg)
}

func (s *Service) queryBusy(ctx context.Context, calendarID string, start, end time.Time) ([]slots.BusyInterval, error) {
	begin := time.Now()
	busy, err := s.calendar.QueryBusy(ctx, calendarID, start, end)
	s.metrics.ObserveCalendar("freebusy", err == nil, time.Since(begin).Seconds())
	return busy, err
}

func (s *Service) createEvent(ctx context.Context, calendarID string, ev calendar.Event) (string, error) {
	begin := time.Now()
	id, err := s.calendar.CreateEvent(ctx, calendarID, ev)
	if err == nil && id == "" {
		err = errors.New("calendar returned an event without an id")
	}
	s.metrics.ObserveCalendar("events.insert", err == nil, time.Since(begin).Seconds())
	return id, err
}

func buildEvent(doctorName, doctorEmail, patientName, patientEmail string, notes *string, start time.Time) calendar.Event {
	desc := fmt.Sprintf("Patient: %s\nEmail: %s", patientName, patientEmail)
	if notes != nil && *notes != "" {
		desc += "\nNotes: " + *notes
	}
	return calendar.Event{
		Summary:     fmt.Sprintf("Appointment: %s with %s", patientName, doctorName),
		Description: desc,
		Start:       start,
		End:         start.Add(slots.Duration),
		Attendees:   []string{doctorEmail, patientEmail},
		Reminders:   calendar.DefaultReminders(),
		Conference:  true,
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("insert event log")
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
