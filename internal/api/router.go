package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
)

// Scheduler is the set of service operations exposed over HTTP.
type Scheduler interface {
	CheckAvailability(ctx context.Context, doctorName, date string) (*appointment.Availability, error)
	BookAppointment(ctx context.Context, req appointment.BookingRequest) (*appointment.BookingConfirmation, error)
	SummaryReport(ctx context.Context, req appointment.ReportRequest) (*appointment.Report, error)

	CreateDoctor(ctx context.Context, in appointment.DoctorInput) (*appointment.Doctor, error)
	ListDoctors(ctx context.Context) ([]appointment.Doctor, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*appointment.Doctor, error)
	CreatePatient(ctx context.Context, in appointment.PatientInput) (*appointment.Patient, error)
	ListPatients(ctx context.Context, limit, offset int) ([]appointment.Patient, error)
	DirectAvailability(ctx context.Context, doctorID uuid.UUID, date string) (*appointment.Availability, error)
	DirectBook(ctx context.Context, req appointment.DirectBookingRequest) (*appointment.Appointment, error)
	DirectSummary(ctx context.Context, doctorID uuid.UUID) (*appointment.DoctorSummary, error)
}

type RouterConfig struct {
	Service Scheduler
	Health  *HealthHandler
	Limiter *RateLimiter
	Metrics http.Handler
	Logger  zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger

	// Apply middleware
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	svc := cfg.Service
	r.Group(func(r chi.Router) {
		r.Use(cfg.Limiter.Middleware)

		// Assistant tool endpoints
		r.Post("/tools/check_doctor_availability", checkAvailabilityHandler(svc, logger))
		r.Post("/tools/book_appointment", bookAppointmentHandler(svc, logger))
		r.Post("/tools/list_doctors", listDoctorsToolHandler(svc, logger))
		r.Post("/tools/get_doctor_summary_report", summaryReportHandler(svc, logger))

		// Direct endpoints
		r.Post("/doctors", createDoctorHandler(svc, logger))
		r.Get("/doctors", listDoctorsHandler(svc, logger))
		r.Get("/doctors/{id}", getDoctorHandler(svc, logger))
		r.Get("/doctors/{id}/availability", doctorAvailabilityHandler(svc, logger))
		r.Get("/doctors/{id}/summary", doctorSummaryHandler(svc, logger))
		r.Post("/patients", createPatientHandler(svc, logger))
		r.Get("/patients", listPatientsHandler(svc, logger))
		r.Post("/appointments", createAppointmentHandler(svc, logger))
	})

	return r
}
