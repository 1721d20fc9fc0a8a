package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
	"github.com/hackgods/doctor-appointment-scheduling/internal/slots"
)

type BookingRequest struct {
	DoctorName   string
	PatientName  string
	PatientEmail string
	Date         string
	TimeSlot     string
	Notes        string
}

type BookingConfirmation struct {
	Success             bool      `json:"success"`
	Message             string    `json:"message"`
	AppointmentID       uuid.UUID `json:"appointment_id"`
	CalendarEventID     string    `json:"calendar_event_id"`
	ConfirmationEmailTo string    `json:"confirmation_email_to"`
	NotificationSent    bool      `json:"notification_sent"`
}

// BookAppointment reserves a slot for a patient. The calendar event is
// created before the row is written, so a calendar failure leaves no local
// state behind. A confirmation email follows on a best-effort basis.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (result *BookingConfirmation, err error) {
	defer func() { s.metrics.ObserveBooking(outcome(err)) }()

	doctor, err := s.resolveDoctor(ctx, req.DoctorName)
	if err != nil {
		return nil, err
	}
	if err := requireCalendarID(doctor); err != nil {
		return nil, err
	}

	day, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	slot := strings.TrimSpace(req.TimeSlot)
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(req.PatientEmail)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.PatientName)
	if name == "" {
		return nil, opErr(ErrValidation, nil, "Patient name is required.")
	}

	patient, err := s.upsertPatient(ctx, name, email)
	if err != nil {
		return nil, err
	}

	start, _ := slots.Start(day, slot)
	dateLabel := day.Format(slots.DateLayout)
	var notes *string
	if n := strings.TrimSpace(req.Notes); n != "" {
		notes = &n
	}

	var appt *Appointment
	reserve := func(ctx context.Context) error {
		var err error
		appt, err = s.reserveConfirmed(ctx, doctor, patient, day, slot, start, notes)
		return err
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

	sent := s.sendConfirmation(ctx, doctor, patient, appt, dateLabel)

	msg := fmt.Sprintf("Appointment confirmed for %s with %s on %s at %s.", patient.Name, doctor.Name, dateLabel, slot)
	if sent {
		msg += fmt.Sprintf(" A confirmation email has been sent to %s.", patient.Email)
	} else {
		msg += fmt.Sprintf(" We could not send a confirmation email to %s.", patient.Email)
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor", doctor.Name).
		Str("date", dateLabel).
		Str("slot", slot).
		Bool("notification_sent", sent).
		Msg("appointment booked")

	return &BookingConfirmation{
		Success:             true,
		Message:             msg,
		AppointmentID:       appt.ID,
		CalendarEventID:     *appt.CalendarEventID,
		ConfirmationEmailTo: patient.Email,
		NotificationSent:    sent,
	}, nil
}

// reserveConfirmed runs inside the slot lock: local check, calendar
// re-check, event creation, then the row.
func (s *Service) reserveConfirmed(ctx context.Context, doctor *Doctor, patient *Patient, day time.Time, slot string, start time.Time, notes *string) (*Appointment, error) {
	dateLabel := day.Format(slots.DateLayout)

	if err := s.ensureSlotFree(ctx, doctor, day, slot); err != nil {
		return nil, err
	}

	end := start.Add(slots.Duration)
	busy, err := s.queryBusy(ctx, doctor.Email, start, end)
	if err != nil {
		return nil, calendarError(err, "Could not verify the doctor's calendar. Please try again later.")
	}
	for _, iv := range busy {
		if iv.Start.Before(end) && iv.End.After(start) {
			return nil, opErr(ErrConflict, nil, "%s is unexpectedly busy at %s on %s according to their calendar. Please choose another slot.", doctor.Name, slot, dateLabel)
		}
	}

	ev := buildEvent(doctor.Name, doctor.Email, patient.Name, patient.Email, notes, start)
	eventID, err := s.createEvent(ctx, doctor.Email, ev)
	if err != nil {
		s.logger.Error().Err(err).Str("doctor", doctor.Name).Str("date", dateLabel).Str("slot", slot).Msg("create calendar event")
		return nil, calendarError(err, "Failed to create calendar event. Appointment not booked. Please try again later.")
	}

	appt, err := s.repo.CreateAppointment(ctx, NewAppointment{
		DoctorID:        doctor.ID,
		PatientID:       patient.ID,
		Date:            day,
		TimeSlot:        slot,
		Status:          StatusConfirmed,
		Notes:           notes,
		CalendarEventID: &eventID,
	}, AuditEvent{
		Type: EventAppointmentBooked,
		Payload: map[string]any{
			"doctor_id":         doctor.ID.String(),
			"patient_id":        patient.ID.String(),
			"date":              dateLabel,
			"time_slot":         slot,
			"calendar_event_id": eventID,
		},
	})
	if err != nil {
		s.metrics.ObserveOrphanedEvent()
		s.logger.Error().Err(err).Str("calendar_event_id", eventID).Str("doctor", doctor.Name).
			Str("date", dateLabel).Str("slot", slot).Msg("calendar event created but appointment not stored")
		s.logEvent(context.WithoutCancel(ctx), nil, EventCalendarEventOrphaned, map[string]any{
			"calendar_event_id": eventID,
			"doctor_id":         doctor.ID.String(),
			"date":              dateLabel,
			"time_slot":         slot,
			"error":             err.Error(),
		})
		if errors.Is(err, ErrSlotTaken) {
			return nil, opErr(ErrConflict, err, "Time slot %s on %s is already booked for %s. Please choose another slot.", slot, dateLabel, doctor.Name)
		}
		return nil, fmt.Errorf("store appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) ensureSlotFree(ctx context.Context, doctor *Doctor, day time.Time, slot string) error {
	existing, err := s.repo.GetActiveAppointment(ctx, doctor.ID, day, slot)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check active appointment: %w", err)
	}
	if existing != nil {
		return opErr(ErrConflict, nil, "Time slot %s on %s is already booked for %s. Please choose another slot.",
			slot, day.Format(slots.DateLayout), doctor.Name)
	}
	return nil
}

// upsertPatient returns the patient registered under email, creating one
// if needed. Name and phone of an existing patient are left untouched.
func (s *Service) upsertPatient(ctx context.Context, name, email string) (*Patient, error) {
	p, err := s.repo.GetPatientByEmail(ctx, email)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	p, err = s.repo.CreatePatient(ctx, NewPatient{Name: name, Email: email})
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrDuplicatePatient) {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	// Lost the insert race to a concurrent booking for the same email.
	p, err = s.repo.GetPatientByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("reload patient: %w", err)
	}
	return p, nil
}

// sendConfirmation never fails the booking. It runs detached from the
// request so a client disconnect after commit does not drop the email.
func (s *Service) sendConfirmation(ctx context.Context, doctor *Doctor, patient *Patient, appt *Appointment, dateLabel string) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	msg := notify.EmailMessage{
		To:      patient.Email,
		ToName:  patient.Name,
		Subject: fmt.Sprintf("Appointment Confirmation with %s", doctor.Name),
		Body: fmt.Sprintf(
			"Dear %s,\n\nYour appointment with %s (%s) is confirmed for %s at %s (%s).\n\n"+
				"Appointment ID: %s\n\nPlease arrive 10 minutes early.\n\nSmart Doctor Assistant",
			patient.Name, doctor.Name, doctor.Specialty, dateLabel, appt.TimeSlot, s.loc.String(), appt.ID,
		),
	}

	err := s.mailer.Send(ctx, msg)
	s.metrics.ObserveNotification(err == nil)

	id := appt.ID
	if err != nil {
		reason := "confirmation email failed"
		if errors.Is(err, notify.ErrNotConfigured) {
			reason = "confirmation email not sent, email provider not configured"
		}
		s.logger.Warn().Err(err).Str("appointment_id", id.String()).Str("to", patient.Email).Msg(reason)
		s.logEvent(ctx, &id, EventConfirmationEmailError, map[string]any{"to": patient.Email, "error": err.Error()})
		return false
	}
	s.logEvent(ctx, &id, EventConfirmationEmailSent, map[string]any{"to": patient.Email})
	return true
}
