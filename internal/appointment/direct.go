package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
	"github.com/hackgods/doctor-appointment-scheduling/internal/slots"
)

type DoctorInput struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Email     string `json:"email"`
}

type PatientInput struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
}

type DirectBookingRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"appointment_date"`
	TimeSlot  string    `json:"time_slot"`
	Notes     string    `json:"notes,omitempty"`
}

func (s *Service) CreateDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	name := strings.TrimSpace(in.Name)
	specialty := strings.TrimSpace(in.Specialty)
	email := strings.TrimSpace(in.Email)
	if name == "" || specialty == "" {
		return nil, opErr(ErrValidation, nil, "Doctor name and specialty are required.")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	d, err := s.repo.CreateDoctor(ctx, NewDoctor{Name: name, Specialty: specialty, Email: email})
	if err != nil {
		if errors.Is(err, ErrDuplicateDoctor) {
			return nil, opErr(ErrConflict, err, "A doctor with email '%s' is already registered.", email)
		}
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.getDoctor(ctx, id)
}

func (s *Service) CreatePatient(ctx context.Context, in PatientInput) (*Patient, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" {
		return nil, opErr(ErrValidation, nil, "Patient name is required.")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	p, err := s.repo.CreatePatient(ctx, NewPatient{Name: name, Email: email, Phone: in.Phone})
	if err != nil {
		if errors.Is(err, ErrDuplicatePatient) {
			return nil, opErr(ErrConflict, err, "A patient with email '%s' is already registered.", email)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]Patient, error) {
	limit, offset = clampPage(limit, offset)
	patients, err := s.repo.ListPatients(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// DirectBook stores a pending appointment without touching the calendar.
// The reconcile worker links an event later.
func (s *Service) DirectBook(ctx context.Context, req DirectBookingRequest) (appt *Appointment, err error) {
	defer func() { s.metrics.ObserveBooking(outcome(err)) }()

	doctor, err := s.getDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	patient, err := s.repo.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, opErr(ErrNotFound, err, "Patient %s not found.", req.PatientID)
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	day, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	slot := strings.TrimSpace(req.TimeSlot)
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	dateLabel := day.Format(slots.DateLayout)
	var notes *string
	if n := strings.TrimSpace(req.Notes); n != "" {
		notes = &n
	}

	reserve := func(ctx context.Context) error {
		if err := s.ensureSlotFree(ctx, doctor, day, slot); err != nil {
			return err
		}
		created, err := s.repo.CreateAppointment(ctx, NewAppointment{
			DoctorID:  doctor.ID,
			PatientID: patient.ID,
			Date:      day,
			TimeSlot:  slot,
			Status:    StatusPending,
			Notes:     notes,
		}, AuditEvent{
			Type: EventAppointmentRequested,
			Payload: map[string]any{
				"doctor_id":  doctor.ID.String(),
				"patient_id": patient.ID.String(),
				"date":       dateLabel,
				"time_slot":  slot,
			},
		})
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return opErr(ErrConflict, err, "Time slot %s on %s is already booked for %s. Please choose another slot.", slot, dateLabel, doctor.Name)
			}
			return fmt.Errorf("store appointment: %w", err)
		}
		appt = created
		return nil
	}

	key := redisclient.SlotKey{DoctorID: doctor.ID, Date: dateLabel, Slot: slot}
	err = s.locker.WithSlotLock(ctx, key, reserve)
	if errors.Is(err, redisclient.ErrLockUnavailable) {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("slot lock unavailable, relying on unique index")
		err = reserve(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, opErr(ErrConflict, err, "Time slot %s on %s is currently being booked by someone else. Please choose another slot.", slot, dateLabel)
		}
		return nil, err
	}
	return appt, nil
}
