package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// Unique index violations.
	ErrSlotTaken        = errors.New("slot already has an active appointment")
	ErrDuplicatePatient = errors.New("patient email already registered")
	ErrDuplicateDoctor  = errors.New("doctor email already registered")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// FindDoctorByName matches case-insensitively; the oldest row wins on duplicates.
	FindDoctorByName(ctx context.Context, name string) (*Doctor, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	CreateDoctor(ctx context.Context, in NewDoctor) (*Doctor, error)

	GetPatientByEmail(ctx context.Context, email string) (*Patient, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListPatients(ctx context.Context, limit, offset int) ([]Patient, error)
	CreatePatient(ctx context.Context, in NewPatient) (*Patient, error)

	// For conflict checks
	GetActiveAppointment(ctx context.Context, doctorID uuid.UUID, day time.Time, slot string) (*Appointment, error)
	ListBookedSlots(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]string, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, in NewAppointment, audit AuditEvent) (*Appointment, error)
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) (bool, error)

	// Reporting
	ListAppointmentsOn(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]AppointmentDetail, error)
	CountAppointments(ctx context.Context, f AppointmentFilter) (int, error)
	CountByStatus(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[Status]int, error)

	// Reconcile worker
	ListUnsyncedAppointments(ctx context.Context, from time.Time, after *SweepCursor, limit int) ([]AppointmentDetail, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// SweepCursor is the position of the last row a reconcile sweep has seen.
// Rows are visited in (date, slot, id) order.
type SweepCursor struct {
	Date     time.Time
	TimeSlot string
	ID       uuid.UUID
}

func cursorAfter(a AppointmentDetail) *SweepCursor {
	return &SweepCursor{Date: a.Date, TimeSlot: a.TimeSlot, ID: a.ID}
}
