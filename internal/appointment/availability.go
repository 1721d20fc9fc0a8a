package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/slots"
)

type Availability struct {
	DoctorName     string   `json:"doctor_name"`
	Date           string   `json:"date"`
	AvailableSlots []string `json:"available_slots"`
}

// CheckAvailability returns the free grid slots of a doctor on a date,
// combining the doctor's calendar with active local bookings.
func (s *Service) CheckAvailability(ctx context.Context, doctorName, date string) (result *Availability, err error) {
	defer func() { s.metrics.ObserveAvailability(outcome(err)) }()

	doctor, err := s.resolveDoctor(ctx, doctorName)
	if err != nil {
		return nil, err
	}
	if err := requireCalendarID(doctor); err != nil {
		return nil, err
	}
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}

	dayStart, dayEnd := slots.Bounds(day)
	busy, err := s.queryBusy(ctx, doctor.Email, dayStart, dayEnd)
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor", doctor.Name).Str("date", date).Msg("freebusy query failed")
		return nil, calendarError(err, "Could not retrieve calendar availability. Please try again later.")
	}

	occupied := make([][]string, 0, len(busy)+1)
	for _, iv := range busy {
		occupied = append(occupied, slots.Occupied(iv, day))
	}

	booked, err := s.repo.ListBookedSlots(ctx, doctor.ID, day)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	occupied = append(occupied, booked)

	return &Availability{
		DoctorName:     doctor.Name,
		Date:           day.Format(slots.DateLayout),
		AvailableSlots: slots.Available(occupied...),
	}, nil
}

// DirectAvailability answers from local bookings only. It never calls the
// calendar.
func (s *Service) DirectAvailability(ctx context.Context, doctorID uuid.UUID, date string) (*Availability, error) {
	doctor, err := s.getDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}

	booked, err := s.repo.ListBookedSlots(ctx, doctor.ID, day)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}

	return &Availability{
		DoctorName:     doctor.Name,
		Date:           day.Format(slots.DateLayout),
		AvailableSlots: slots.Available(booked),
	}, nil
}
