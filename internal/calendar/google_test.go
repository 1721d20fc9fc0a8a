package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestGoogle(t *testing.T, handler http.HandlerFunc) *Google {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	g, err := NewGoogle(context.Background(),
		GoogleOptions{Location: loc, Timeout: 2 * time.Second, Logger: zerolog.Nop()},
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return g
}

func TestQueryBusyParsesPeriods(t *testing.T) {
	var gotBody map[string]any
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/freeBusy", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"calendars": {
				"dr.ahuja@example.com": {
					"busy": [
						{"start": "2025-07-02T04:30:00Z", "end": "2025-07-02T05:30:00Z"}
					]
				}
			}
		}`))
	})

	loc := g.loc
	start := time.Date(2025, 7, 2, 9, 0, 0, 0, loc)
	end := time.Date(2025, 7, 2, 17, 0, 0, 0, loc)

	busy, err := g.QueryBusy(context.Background(), "dr.ahuja@example.com", start, end)
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, time.Date(2025, 7, 2, 10, 0, 0, 0, loc), busy[0].Start)
	assert.Equal(t, time.Date(2025, 7, 2, 11, 0, 0, 0, loc), busy[0].End)

	assert.Equal(t, "Asia/Kolkata", gotBody["timeZone"])
	assert.Equal(t, "2025-07-02T09:00:00+05:30", gotBody["timeMin"])
	items := gotBody["items"].([]any)
	assert.Equal(t, "dr.ahuja@example.com", items[0].(map[string]any)["id"])
}

func TestQueryBusyCalendarErrors(t *testing.T) {
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"calendars": {"x@example.com": {"errors": [{"domain": "global", "reason": "notFound"}]}}}`))
	})

	_, err := g.QueryBusy(context.Background(), "x@example.com", time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notFound")
}

func TestQueryBusyMissingCalendarIsAnError(t *testing.T) {
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"calendars": {"someone-else@example.com": {"busy": []}}}`))
	})

	busy, err := g.QueryBusy(context.Background(), "dr.ahuja@example.com", time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Nil(t, busy)
	assert.Contains(t, err.Error(), "calendar missing from response")
}

func TestCreateEventSendsRemindersAttendeesAndConference(t *testing.T) {
	var body map[string]any
	var query map[string][]string
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/calendars/dr.ahuja@example.com/events", r.URL.Path)
		query = r.URL.Query()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "evt-123", "htmlLink": "https://calendar.example/evt-123"}`))
	})

	start := time.Date(2025, 7, 2, 10, 0, 0, 0, g.loc)
	id, err := g.CreateEvent(context.Background(), "dr.ahuja@example.com", Event{
		Summary:     "Appointment",
		Description: "Patient: Jane",
		Start:       start,
		End:         start.Add(30 * time.Minute),
		Attendees:   []string{"dr.ahuja@example.com", "jane@example.com"},
		Reminders:   DefaultReminders(),
		Conference:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-123", id)

	assert.Equal(t, []string{"1"}, query["conferenceDataVersion"])
	assert.Equal(t, []string{"none"}, query["sendUpdates"])

	startField := body["start"].(map[string]any)
	assert.Equal(t, "2025-07-02T10:00:00+05:30", startField["dateTime"])
	assert.Equal(t, "Asia/Kolkata", startField["timeZone"])

	attendees := body["attendees"].([]any)
	assert.Len(t, attendees, 2)

	reminders := body["reminders"].(map[string]any)
	assert.Equal(t, false, reminders["useDefault"])
	overrides := reminders["overrides"].([]any)
	require.Len(t, overrides, 2)
	assert.Equal(t, "email", overrides[0].(map[string]any)["method"])
	assert.EqualValues(t, 1440, overrides[0].(map[string]any)["minutes"])

	conf := body["conferenceData"].(map[string]any)["createRequest"].(map[string]any)
	assert.NotEmpty(t, conf["requestId"])
}

func TestCreateEventWithoutIDFails(t *testing.T) {
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := g.CreateEvent(context.Background(), "x@example.com", Event{Start: time.Now(), End: time.Now()})
	assert.Error(t, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "forbidden"}}`))
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := g.QueryBusy(ctx, "x@example.com", time.Now(), time.Now().Add(time.Hour))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	before := atomic.LoadInt32(&hits)

	_, err := g.QueryBusy(ctx, "x@example.com", time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, atomic.LoadInt32(&hits), "open breaker must not reach the server")
}

func TestCallTimesOut(t *testing.T) {
	release := make(chan struct{})
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	g.timeout = 50 * time.Millisecond

	_, err := g.QueryBusy(context.Background(), "x@example.com", time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnavailable(t *testing.T) {
	var c Client = Unavailable{Reason: "no credentials configured"}
	assert.False(t, c.Available())

	_, err := c.QueryBusy(context.Background(), "x", time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "no credentials configured")

	_, err = c.CreateEvent(context.Background(), "x", Event{})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = Unavailable{}.QueryBusy(context.Background(), "x", time.Now(), time.Now())
	assert.Equal(t, ErrUnavailable, err)
}

func TestFromCredentialsWithoutKeyIsUnavailable(t *testing.T) {
	c := FromCredentials(context.Background(), nil, GoogleOptions{Logger: zerolog.Nop()})
	assert.False(t, c.Available())

	c = FromCredentials(context.Background(), []byte("not json"), GoogleOptions{Logger: zerolog.Nop()})
	assert.False(t, c.Available())
}

func TestDefaultReminders(t *testing.T) {
	assert.Equal(t, []Reminder{{Method: "email", Minutes: 1440}, {Method: "popup", Minutes: 10}}, DefaultReminders())
}
