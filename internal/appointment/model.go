package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that hold a slot.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Doctor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Email     string    `json:"email"` // doubles as the external calendar id
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Appointment struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	Date            time.Time `json:"-"`
	TimeSlot        string    `json:"time_slot"`
	Status          Status    `json:"status"`
	Notes           *string   `json:"notes,omitempty"`
	CalendarEventID *string   `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DateString renders the appointment date as YYYY-MM-DD.
func (a Appointment) DateString() string {
	return a.Date.Format("2006-01-02")
}

// AppointmentDetail is an appointment joined with the names and addresses
// of both parties.
type AppointmentDetail struct {
	Appointment
	DoctorName   string
	DoctorEmail  string
	PatientName  string
	PatientEmail string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type NewDoctor struct {
	Name      string
	Specialty string
	Email     string
}

type NewPatient struct {
	Name  string
	Email string
	Phone *string
}

type NewAppointment struct {
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Date            time.Time
	TimeSlot        string
	Status          Status
	Notes           *string
	CalendarEventID *string
}

// AuditEvent is written in the same transaction as the row it describes.
type AuditEvent struct {
	Type    string
	Payload map[string]any
}

// AppointmentFilter narrows CountAppointments. Zero fields do not filter.
type AppointmentFilter struct {
	DoctorID uuid.UUID
	Statuses []Status
	From     *time.Time // inclusive date
	To       *time.Time // inclusive date
}
