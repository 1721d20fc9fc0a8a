package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hackgods/doctor-appointment-scheduling/internal/slots"
)

// ErrCircuitOpen is returned while the breaker is refusing calls.
var ErrCircuitOpen = errors.New("calendar circuit open")

type GoogleOptions struct {
	Location *time.Location
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Google is the Google Calendar v3 client.
type Google struct {
	svc     *gcal.Service
	loc     *time.Location
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[any]
	logger  zerolog.Logger
}

// NewGoogle builds a client. Callers pass credentials through clientOpts,
// typically option.WithCredentialsJSON.
func NewGoogle(ctx context.Context, opts GoogleOptions, clientOpts ...option.ClientOption) (*Google, error) {
	svc, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("build calendar service: %w", err)
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	logger := opts.Logger.With().Str("component", "calendar").Logger()
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "google-calendar",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("calendar breaker state change")
		},
	})

	return &Google{
		svc:     svc,
		loc:     loc,
		timeout: timeout,
		breaker: breaker,
		logger:  logger,
	}, nil
}

// FromCredentials builds the process-wide calendar from a service account
// key. Missing or broken credentials yield Unavailable rather than an error.
func FromCredentials(ctx context.Context, creds []byte, opts GoogleOptions) Client {
	if len(creds) == 0 {
		opts.Logger.Warn().Msg("no google service account credentials found, calendar features disabled")
		return Unavailable{Reason: "no credentials configured"}
	}
	g, err := NewGoogle(ctx, opts,
		option.WithCredentialsJSON(creds),
		option.WithScopes(gcal.CalendarEventsScope, gcal.CalendarReadonlyScope),
	)
	if err != nil {
		opts.Logger.Error().Err(err).Msg("google calendar init failed, calendar features disabled")
		return Unavailable{Reason: err.Error()}
	}
	opts.Logger.Info().Msg("google calendar service initialised")
	return g
}

func (g *Google) Available() bool { return true }

// QueryBusy returns the busy periods of calendarID within [start, end).
func (g *Google) QueryBusy(ctx context.Context, calendarID string, start, end time.Time) ([]slots.BusyInterval, error) {
	res, err := g.call(ctx, "freebusy", func(ctx context.Context) (any, error) {
		req := &gcal.FreeBusyRequest{
			TimeMin:  start.In(g.loc).Format(time.RFC3339),
			TimeMax:  end.In(g.loc).Format(time.RFC3339),
			TimeZone: g.loc.String(),
			Items:    []*gcal.FreeBusyRequestItem{{Id: calendarID}},
		}
		return g.svc.Freebusy.Query(req).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	resp := res.(*gcal.FreeBusyResponse)
	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("freebusy %s: calendar missing from response", calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("freebusy %s: %s", calendarID, cal.Errors[0].Reason)
	}

	out := make([]slots.BusyInterval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		s, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", p.Start, err)
		}
		e, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", p.End, err)
		}
		out = append(out, slots.BusyInterval{Start: s.In(g.loc), End: e.In(g.loc)})
	}
	return out, nil
}

// CreateEvent inserts ev into calendarID and returns the new event id.
// Google does not email attendees; confirmations go out separately.
func (g *Google) CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error) {
	body := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.In(g.loc).Format(time.RFC3339), TimeZone: g.loc.String()},
		End:         &gcal.EventDateTime{DateTime: ev.End.In(g.loc).Format(time.RFC3339), TimeZone: g.loc.String()},
	}
	for _, email := range ev.Attendees {
		body.Attendees = append(body.Attendees, &gcal.EventAttendee{Email: email})
	}
	if len(ev.Reminders) > 0 {
		body.Reminders = &gcal.EventReminders{UseDefault: false, ForceSendFields: []string{"UseDefault"}}
		for _, r := range ev.Reminders {
			body.Reminders.Overrides = append(body.Reminders.Overrides, &gcal.EventReminder{Method: r.Method, Minutes: r.Minutes})
		}
	}
	if ev.Conference {
		body.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}

	res, err := g.call(ctx, "events.insert", func(ctx context.Context) (any, error) {
		return g.svc.Events.Insert(calendarID, body).
			ConferenceDataVersion(1).
			SendUpdates("none").
			Context(ctx).
			Do()
	})
	if err != nil {
		return "", err
	}

	created := res.(*gcal.Event)
	if created.Id == "" {
		return "", errors.New("calendar returned an event without id")
	}
	g.logger.Info().Str("calendar_id", calendarID).Str("event_id", created.Id).Str("link", created.HtmlLink).Msg("calendar event created")
	return created.Id, nil
}

func (g *Google) call(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	res, err := g.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", op, ErrCircuitOpen)
		}
		g.logger.Error().Err(err).Str("op", op).Msg("calendar request failed")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}
