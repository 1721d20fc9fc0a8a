package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type CheckAvailabilityRequest struct {
	DoctorName string `json:"doctor_name"`
	Date       string `json:"date"`
}

type BookAppointmentRequest struct {
	DoctorName   string `json:"doctor_name"`
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	Date         string `json:"date"`
	TimeSlot     string `json:"time_slot"`
	Notes        string `json:"notes,omitempty"`
}

type SummaryReportRequest struct {
	DoctorName string `json:"doctor_name"`
	ReportType string `json:"report_type"`
	Date       string `json:"date,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
}

type DoctorListing struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
}

type ListDoctorsResponse struct {
	Doctors []DoctorListing `json:"doctors,omitempty"`
	Message string          `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	Date            string    `json:"appointment_date"`
	TimeSlot        string    `json:"time_slot"`
	Status          string    `json:"status"`
	Notes           *string   `json:"notes,omitempty"`
	CalendarEventID *string   `json:"calendar_event_id,omitempty"`
}
