package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// dbtx is the subset of *pgxpool.Pool the repository needs. pgxmock
// satisfies it in tests.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db dbtx
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

func newPgRepositoryWithDB(db dbtx) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const doctorColumns = `id, name, specialty, email, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Email, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

const patientColumns = `id, name, email, phone, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

const appointmentColumns = `id, doctor_id, patient_id, appointment_date, time_slot, status, notes, calendar_event_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.TimeSlot,
		&status,
		&a.Notes,
		&a.CalendarEventID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	return &a, nil
}

const detailColumns = `a.id, a.doctor_id, a.patient_id, a.appointment_date, a.time_slot, a.status, a.notes, a.calendar_event_id, a.created_at, a.updated_at,
	d.name, d.email, p.name, p.email`

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var status string

	err := row.Scan(
		&d.ID,
		&d.DoctorID,
		&d.PatientID,
		&d.Date,
		&d.TimeSlot,
		&status,
		&d.Notes,
		&d.CalendarEventID,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.DoctorName,
		&d.DoctorEmail,
		&d.PatientName,
		&d.PatientEmail,
	)
	if err != nil {
		return nil, err
	}

	d.Status = Status(status)
	return &d, nil
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Doctors

func (r *PgRepository) FindDoctorByName(ctx context.Context, name string) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE lower(name) = lower($1)
		ORDER BY created_at, id
		LIMIT 1
	`, name)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		ORDER BY name, created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, in NewDoctor) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialty, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING `+doctorColumns,
		uuid.New(), in.Name, in.Specialty, in.Email)

	d, err := scanDoctor(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateDoctor
		}
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return d, nil
}

// Patients

func (r *PgRepository) GetPatientByEmail(ctx context.Context, email string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE email = $1
	`, email)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) ListPatients(ctx context.Context, limit, offset int) ([]Patient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CreatePatient(ctx context.Context, in NewPatient) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING `+patientColumns,
		uuid.New(), in.Name, in.Email, in.Phone)

	p, err := scanPatient(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePatient
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return p, nil
}

// Appointments

func (r *PgRepository) GetActiveAppointment(ctx context.Context, doctorID uuid.UUID, day time.Time, slot string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND time_slot = $3
		  AND status = ANY($4)
		LIMIT 1
	`, doctorID, day, slot, statusStrings(ActiveStatuses))
	return scanAppointment(row)
}

func (r *PgRepository) ListBookedSlots(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT time_slot
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status = ANY($3)
		ORDER BY time_slot
	`, doctorID, day, statusStrings(ActiveStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		result = append(result, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateAppointment inserts the appointment and its audit row in one
// transaction. A clash on the active-slot index yields ErrSlotTaken.
func (r *PgRepository) CreateAppointment(ctx context.Context, in NewAppointment, audit AuditEvent) (*Appointment, error) {
	payload, err := json.Marshal(audit.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, appointment_date, time_slot, status, notes, calendar_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns,
		uuid.New(), in.DoctorID, in.PatientID, in.Date, in.TimeSlot, string(in.Status), in.Notes, in.CalendarEventID)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, audit.Type, appt.ID, payload); err != nil {
		return nil, fmt.Errorf("insert event log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit appointment: %w", err)
	}
	return appt, nil
}

// SetCalendarEventID attaches an event id to a row that has none yet.
// It reports false when the row was already linked or is no longer active.
func (r *PgRepository) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET calendar_event_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND calendar_event_id IS NULL
		  AND status = ANY($3)
	`, id, eventID, statusStrings(ActiveStatuses))
	if err != nil {
		return false, fmt.Errorf("set calendar event id: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Reporting

func (r *PgRepository) ListAppointmentsOn(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+detailColumns+`
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN patients p ON p.id = a.patient_id
		WHERE a.doctor_id = $1
		  AND a.appointment_date = $2
		ORDER BY a.time_slot, a.created_at
	`, doctorID, day)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (r *PgRepository) CountAppointments(ctx context.Context, f AppointmentFilter) (int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.DoctorID != uuid.Nil {
		add("doctor_id = $%d", f.DoctorID)
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if f.From != nil {
		add("appointment_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("appointment_date <= $%d", *f.To)
	}

	query := `SELECT COUNT(*) FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	var n int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) CountByStatus(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[Status]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		GROUP BY status
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		result[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Reconcile worker

func (r *PgRepository) ListUnsyncedAppointments(ctx context.Context, from time.Time, after *SweepCursor, limit int) ([]AppointmentDetail, error) {
	query := `
		SELECT ` + detailColumns + `
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN patients p ON p.id = a.patient_id
		WHERE a.calendar_event_id IS NULL
		  AND a.status = ANY($1)
		  AND a.appointment_date >= $2`
	args := []any{statusStrings(ActiveStatuses), from}

	if after != nil {
		query += `
		  AND (a.appointment_date, a.time_slot, a.id) > ($3, $4, $5)`
		args = append(args, after.Date, after.TimeSlot, after.ID)
	}

	args = append(args, limit)
	query += fmt.Sprintf(`
		ORDER BY a.appointment_date, a.time_slot, a.id
		LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
