package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
)

// handleServiceError maps the appointment error kinds onto HTTP statuses.
// Anything unclassified is logged and hidden behind a generic message.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	var op *appointment.OpError
	if !errors.As(err, &op) {
		logger.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, appointment.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, appointment.ErrConfiguration):
		status = http.StatusServiceUnavailable
	case errors.Is(err, appointment.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, appointment.ErrExternalService):
		status = http.StatusBadGateway
	}
	writeError(w, status, op.Message)
}

// Tool endpoints

func checkAvailabilityHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckAvailabilityRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON body")
			return
		}

		res, err := svc.CheckAvailability(r.Context(), req.DoctorName, req.Date)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func bookAppointmentHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON body")
			return
		}

		res, err := svc.BookAppointment(r.Context(), appointment.BookingRequest{
			DoctorName:   req.DoctorName,
			PatientName:  req.PatientName,
			PatientEmail: req.PatientEmail,
			Date:         req.Date,
			TimeSlot:     req.TimeSlot,
			Notes:        req.Notes,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func listDoctorsToolHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.ListDoctors(r.Context())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		if len(doctors) == 0 {
			writeJSON(w, http.StatusOK, ListDoctorsResponse{Message: "No doctors are currently available."})
			return
		}

		resp := ListDoctorsResponse{Doctors: make([]DoctorListing, 0, len(doctors))}
		for _, d := range doctors {
			resp.Doctors = append(resp.Doctors, DoctorListing{ID: d.ID, Name: d.Name, Specialty: d.Specialty})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func summaryReportHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SummaryReportRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON body")
			return
		}

		res, err := svc.SummaryReport(r.Context(), appointment.ReportRequest{
			DoctorName: req.DoctorName,
			ReportType: req.ReportType,
			Date:       req.Date,
			StartDate:  req.StartDate,
			EndDate:    req.EndDate,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// Direct endpoints

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func createDoctorHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.DoctorInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON body")
			return
		}

		d, err := svc.CreateDoctor(r.Context(), req)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func listDoctorsHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.ListDoctors(r.Context())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		if doctors == nil {
			doctors = []appointment.Doctor{}
		}
		writeJSON(w, http.StatusOK, doctors)
	}
}

func getDoctorHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		d, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func doctorAvailabilityHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		res, err := svc.DirectAvailability(r.Context(), id, r.URL.Query().Get("date"))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func doctorSummaryHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		res, err := svc.DirectSummary(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func createPatientHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.PatientInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON body")
			return
		}

		p, err := svc.CreatePatient(r.Context(), req)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func listPatientsHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		patients, err := svc.ListPatients(r.Context(), limit, offset)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		if patients == nil {
			patients = []appointment.Patient{}
		}
		writeJSON(w, http.StatusOK, patients)
	}
}

func createAppointmentHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.DirectBookingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON body")
			return
		}
		if req.DoctorID == uuid.Nil || req.PatientID == uuid.Nil {
			writeError(w, http.StatusBadRequest, "doctor_id and patient_id are required")
			return
		}

		appt, err := svc.DirectBook(r.Context(), req)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, AppointmentResponse{
			ID:              appt.ID,
			DoctorID:        appt.DoctorID,
			PatientID:       appt.PatientID,
			Date:            appt.DateString(),
			TimeSlot:        appt.TimeSlot,
			Status:          string(appt.Status),
			Notes:           appt.Notes,
			CalendarEventID: appt.CalendarEventID,
		})
	}
}
