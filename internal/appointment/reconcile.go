package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/slots"
)

const (
	reconcileBatchSize = 100
	reconcileMaxRows   = 2000
)

type ReconcileResult struct {
	Scanned int
	Linked  int
	Skipped int
	Failed  int
}

// ReconcileCalendarEvents creates calendar events for active, upcoming
// appointments that have none. Intended to be called by the worker
// periodically. Rows are paged with a keyset cursor so rows that keep
// failing do not hide the ones behind them. The sweep stops early when the
// calendar is not configured or its circuit breaker is open.
func (s *Service) ReconcileCalendarEvents(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	from := s.today()
	var cursor *SweepCursor

	for res.Scanned < reconcileMaxRows {
		page, err := s.repo.ListUnsyncedAppointments(ctx, from, cursor, reconcileBatchSize)
		if err != nil {
			return res, fmt.Errorf("list unsynced appointments: %w", err)
		}

		for _, a := range page {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Scanned++
			if err := s.reconcileOne(ctx, a, &res); err != nil {
				return res, err
			}
		}

		if len(page) < reconcileBatchSize {
			break
		}
		cursor = cursorAfter(page[len(page)-1])
	}

	return res, nil
}

// reconcileOne links a single appointment. It only returns an error when the
// whole sweep should stop.
func (s *Service) reconcileOne(ctx context.Context, a AppointmentDetail, res *ReconcileResult) error {
	log := s.logger.With().Str("appointment_id", a.ID.String()).Logger()

	if a.DoctorEmail == "" {
		s.reconcileSkip(res, log.Warn().Str("doctor", a.DoctorName), "doctor has no calendar id, skipping")
		return nil
	}

	day := s.dayOf(a.Date)
	start, err := slots.Start(day, a.TimeSlot)
	if err != nil {
		s.reconcileSkip(res, log.Warn().Err(err), "stored slot is not on the grid, skipping")
		return nil
	}

	ev := buildEvent(a.DoctorName, a.DoctorEmail, a.PatientName, a.PatientEmail, a.Notes, start)
	eventID, err := s.createEvent(ctx, a.DoctorEmail, ev)
	if err != nil {
		res.Failed++
		s.metrics.ObserveReconcile("failed")
		switch {
		case errors.Is(err, calendar.ErrUnavailable):
			return calendarError(err, "")
		case errors.Is(err, calendar.ErrCircuitOpen):
			return opErr(ErrExternalService, err, "Calendar is refusing calls. Reconciliation will resume on the next run.")
		}
		log.Error().Err(err).Msg("create calendar event")
		return nil
	}

	linked, err := s.repo.SetCalendarEventID(ctx, a.ID, eventID)
	if err != nil {
		res.Failed++
		s.metrics.ObserveReconcile("failed")
		s.metrics.ObserveOrphanedEvent()
		log.Error().Err(err).Str("calendar_event_id", eventID).Msg("calendar event created but not linked")
		return nil
	}
	if !linked {
		// Linked or cancelled by someone else since the scan.
		s.metrics.ObserveOrphanedEvent()
		s.reconcileSkip(res, log.Warn().Str("calendar_event_id", eventID), "appointment changed during sweep, event left unlinked")
		return nil
	}

	res.Linked++
	s.metrics.ObserveReconcile("linked")
	id := a.ID
	s.logEvent(ctx, &id, EventCalendarEventLinked, map[string]any{"calendar_event_id": eventID})
	return nil
}

func (s *Service) reconcileSkip(res *ReconcileResult, ev *zerolog.Event, msg string) {
	res.Skipped++
	s.metrics.ObserveReconcile("skipped")
	ev.Msg(msg)
}
