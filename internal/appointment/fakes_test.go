package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
	"github.com/hackgods/doctor-appointment-scheduling/internal/slots"
)

const dateFmt = "2006-01-02"

// memRepo is an in-memory Repository that enforces the same uniqueness
// rules as the schema.
type memRepo struct {
	mu       sync.Mutex
	doctors  []Doctor
	patients []Patient
	appts    []Appointment
	events   []EventLog

	beforeCreatePatient func(r *memRepo)
	beforeCreateAppt    func(r *memRepo)
	createApptErr       error
	unsyncedCalls       int
}

func newMemRepo() *memRepo { return &memRepo{} }

func (r *memRepo) FindDoctorByName(_ context.Context, name string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.doctors {
		if strings.EqualFold(d.Name, name) {
			d := d
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.doctors {
		if d.ID == id {
			d := d
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *memRepo) ListDoctors(context.Context) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Doctor(nil), r.doctors...), nil
}

func (r *memRepo) CreateDoctor(_ context.Context, in NewDoctor) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.doctors {
		if d.Email == in.Email {
			return nil, ErrDuplicateDoctor
		}
	}
	d := Doctor{ID: uuid.New(), Name: in.Name, Specialty: in.Specialty, Email: in.Email, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.doctors = append(r.doctors, d)
	return &d, nil
}

func (r *memRepo) GetPatientByEmail(_ context.Context, email string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.Email == email {
			p := p
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *memRepo) ListPatients(_ context.Context, limit, offset int) ([]Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset >= len(r.patients) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.patients) {
		end = len(r.patients)
	}
	return append([]Patient(nil), r.patients[offset:end]...), nil
}

func (r *memRepo) CreatePatient(_ context.Context, in NewPatient) (*Patient, error) {
	if r.beforeCreatePatient != nil {
		hook := r.beforeCreatePatient
		r.beforeCreatePatient = nil
		hook(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.Email == in.Email {
			return nil, ErrDuplicatePatient
		}
	}
	p := Patient{ID: uuid.New(), Name: in.Name, Email: in.Email, Phone: in.Phone, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.patients = append(r.patients, p)
	return &p, nil
}

func (r *memRepo) GetActiveAppointment(_ context.Context, doctorID uuid.UUID, d time.Time, slot string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Date.Format(dateFmt) == d.Format(dateFmt) && a.TimeSlot == slot && a.Status.Active() {
			a := a
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) ListBookedSlots(_ context.Context, doctorID uuid.UUID, d time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Date.Format(dateFmt) == d.Format(dateFmt) && a.Status.Active() {
			out = append(out, a.TimeSlot)
		}
	}
	return out, nil
}

func (r *memRepo) CreateAppointment(_ context.Context, in NewAppointment, audit AuditEvent) (*Appointment, error) {
	if r.beforeCreateAppt != nil {
		hook := r.beforeCreateAppt
		r.beforeCreateAppt = nil
		hook(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createApptErr != nil {
		return nil, r.createApptErr
	}
	for _, a := range r.appts {
		if a.DoctorID == in.DoctorID && a.Date.Format(dateFmt) == in.Date.Format(dateFmt) && a.TimeSlot == in.TimeSlot && a.Status.Active() {
			return nil, ErrSlotTaken
		}
	}
	a := Appointment{
		ID:              uuid.New(),
		DoctorID:        in.DoctorID,
		PatientID:       in.PatientID,
		Date:            in.Date,
		TimeSlot:        in.TimeSlot,
		Status:          in.Status,
		Notes:           in.Notes,
		CalendarEventID: in.CalendarEventID,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	r.appts = append(r.appts, a)
	id := a.ID
	r.events = append(r.events, EventLog{EventType: audit.Type, AppointmentID: &id})
	return &a, nil
}

func (r *memRepo) SetCalendarEventID(_ context.Context, id uuid.UUID, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.appts {
		a := &r.appts[i]
		if a.ID == id && a.CalendarEventID == nil && a.Status.Active() {
			a.CalendarEventID = &eventID
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListAppointmentsOn(_ context.Context, doctorID uuid.UUID, d time.Time) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Date.Format(dateFmt) == d.Format(dateFmt) {
			out = append(out, r.detailLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeSlot < out[j].TimeSlot })
	return out, nil
}

func (r *memRepo) CountAppointments(_ context.Context, f AppointmentFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appts {
		if f.DoctorID != uuid.Nil && a.DoctorID != f.DoctorID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
			continue
		}
		if f.From != nil && a.Date.Format(dateFmt) < f.From.Format(dateFmt) {
			continue
		}
		if f.To != nil && a.Date.Format(dateFmt) > f.To.Format(dateFmt) {
			continue
		}
		n++
	}
	return n, nil
}

func (r *memRepo) CountByStatus(_ context.Context, doctorID uuid.UUID, from, to time.Time) (map[Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Status]int)
	for _, a := range r.appts {
		d := a.Date.Format(dateFmt)
		if a.DoctorID == doctorID && d >= from.Format(dateFmt) && d <= to.Format(dateFmt) {
			out[a.Status]++
		}
	}
	return out, nil
}

func (r *memRepo) ListUnsyncedAppointments(_ context.Context, from time.Time, after *SweepCursor, limit int) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range r.appts {
		if a.CalendarEventID == nil && a.Status.Active() && a.Date.Format(dateFmt) >= from.Format(dateFmt) {
			if after != nil && !sweepKeyLess(*after, cursorAfter(AppointmentDetail{Appointment: a})) {
				continue
			}
			out = append(out, r.detailLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return sweepKeyLess(*cursorAfter(out[i]), cursorAfter(out[j])) })
	if len(out) > limit {
		out = out[:limit]
	}
	r.unsyncedCalls++
	return out, nil
}

// sweepKeyLess orders rows the way the reconcile query does.
func sweepKeyLess(a SweepCursor, b *SweepCursor) bool {
	if da, db := a.Date.Format(dateFmt), b.Date.Format(dateFmt); da != db {
		return da < db
	}
	if a.TimeSlot != b.TimeSlot {
		return a.TimeSlot < b.TimeSlot
	}
	return a.ID.String() < b.ID.String()
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) detailLocked(a Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: a}
	for _, doc := range r.doctors {
		if doc.ID == a.DoctorID {
			d.DoctorName, d.DoctorEmail = doc.Name, doc.Email
		}
	}
	for _, p := range r.patients {
		if p.ID == a.PatientID {
			d.PatientName, d.PatientEmail = p.Name, p.Email
		}
	}
	return d
}

func (r *memRepo) appointments() []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Appointment(nil), r.appts...)
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

// seedAppointment writes a row directly, bypassing uniqueness.
func (r *memRepo) seedAppointment(doctorID, patientID uuid.UUID, date time.Time, slot string, status Status) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := Appointment{ID: uuid.New(), DoctorID: doctorID, PatientID: patientID, Date: date, TimeSlot: slot, Status: status}
	r.appts = append(r.appts, a)
	return a
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type fakeCalendar struct {
	mu        sync.Mutex
	busy      []slots.BusyInterval
	queryErr  error
	createErr error
	failFor   map[string]error
	emptyID   bool
	created   []calendar.Event
	queries   int
}

func (c *fakeCalendar) QueryBusy(_ context.Context, _ string, start, end time.Time) ([]slots.BusyInterval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	var out []slots.BusyInterval
	for _, iv := range c.busy {
		if iv.Start.Before(end) && iv.End.After(start) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (c *fakeCalendar) CreateEvent(_ context.Context, calendarID string, ev calendar.Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	if err := c.failFor[calendarID]; err != nil {
		return "", err
	}
	c.created = append(c.created, ev)
	if c.emptyID {
		return "", nil
	}
	return fmt.Sprintf("evt-%d", len(c.created)), nil
}

func (c *fakeCalendar) events() []calendar.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]calendar.Event(nil), c.created...)
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []notify.EmailMessage
}

func (m *fakeMailer) Send(_ context.Context, msg notify.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type failingLocker struct{ err error }

func (l failingLocker) WithSlotLock(context.Context, redisclient.SlotKey, func(context.Context) error) error {
	return l.err
}

var errBoom = errors.New("boom")

type fixture struct {
	svc    *Service
	repo   *memRepo
	cal    *fakeCalendar
	mailer *fakeMailer
	doctor Doctor
	loc    *time.Location
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	f := &fixture{
		repo:   newMemRepo(),
		cal:    &fakeCalendar{},
		mailer: &fakeMailer{},
		loc:    loc,
		now:    time.Date(2025, 7, 1, 10, 0, 0, 0, loc),
	}
	doc, err := f.repo.CreateDoctor(context.Background(), NewDoctor{Name: "Dr. Ahuja", Specialty: "Cardiology", Email: "dr.ahuja@example.com"})
	require.NoError(t, err)
	f.doctor = *doc
	f.svc = f.newService(redisclient.NoopLocker{})
	return f
}

func (f *fixture) newService(locker redisclient.Locker) *Service {
	return NewService(Deps{
		Repo:     f.repo,
		Locker:   locker,
		Calendar: f.cal,
		Mailer:   f.mailer,
		Logger:   zerolog.Nop(),
	}, Options{
		Location:      f.loc,
		NotifyTimeout: time.Second,
		Now:           func() time.Time { return f.now },
	})
}

func (f *fixture) at(date string, hh, mm int) time.Time {
	d, _ := time.ParseInLocation(dateFmt, date, f.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, f.loc)
}

func (f *fixture) date(s string) time.Time {
	d, _ := time.ParseInLocation(dateFmt, s, f.loc)
	return d
}

func (f *fixture) patient(t *testing.T, name, email string) Patient {
	t.Helper()
	p, err := f.repo.CreatePatient(context.Background(), NewPatient{Name: name, Email: email})
	require.NoError(t, err)
	return *p
}
