package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/slots"
)

const (
	ReportDaily         = "daily"
	ReportTotalPatients = "total_patients"
	ReportDateRange     = "date_range"

	maxReportRangeDays = 366
)

type ReportRequest struct {
	DoctorName string
	ReportType string
	Date       string
	StartDate  string
	EndDate    string
}

type AppointmentSummary struct {
	PatientName string `json:"patient_name"`
	TimeSlot    string `json:"time_slot"`
	Status      Status `json:"status"`
}

type Report struct {
	DoctorName           string                `json:"doctor_name"`
	ReportType           string                `json:"report_type"`
	Date                 string                `json:"date,omitempty"`
	StartDate            string                `json:"start_date,omitempty"`
	EndDate              string                `json:"end_date,omitempty"`
	AppointmentsCount    *int                  `json:"appointments_count,omitempty"`
	AppointmentsDetails  *[]AppointmentSummary `json:"appointments_details,omitempty"`
	TotalPatientsVisited *int                  `json:"total_patients_visited,omitempty"`
	StatusCounts         map[Status]int        `json:"status_counts,omitempty"`
	Message              string                `json:"message"`
}

// SummaryReport builds one of the doctor reports. Unknown report types are
// answered with a message, not an error.
func (s *Service) SummaryReport(ctx context.Context, req ReportRequest) (*Report, error) {
	doctor, err := s.resolveDoctor(ctx, req.DoctorName)
	if err != nil {
		return nil, err
	}

	reportType := strings.ToLower(strings.TrimSpace(req.ReportType))
	if reportType == "" {
		reportType = ReportDaily
	}

	var report *Report
	switch reportType {
	case ReportDaily:
		report, err = s.dailyReport(ctx, doctor, req.Date)
	case ReportTotalPatients:
		report, err = s.totalPatientsReport(ctx, doctor)
	case ReportDateRange:
		report, err = s.dateRangeReport(ctx, doctor, req.StartDate, req.EndDate)
	default:
		report = &Report{
			DoctorName: doctor.Name,
			ReportType: reportType,
			Message:    fmt.Sprintf("Report type '%s' is not supported. Supported types: %s, %s, %s.", reportType, ReportDaily, ReportTotalPatients, ReportDateRange),
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("doctor", doctor.Name).
		Str("report_type", reportType).
		Str("audit", "doctor_report").
		Msg("summary report generated")

	return report, nil
}

func (s *Service) dailyReport(ctx context.Context, doctor *Doctor, date string) (*Report, error) {
	day := s.today()
	if strings.TrimSpace(date) != "" {
		var err error
		if day, err = s.parseDate(date); err != nil {
			return nil, err
		}
	}
	dateLabel := day.Format(slots.DateLayout)

	rows, err := s.repo.ListAppointmentsOn(ctx, doctor.ID, day)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	details := make([]AppointmentSummary, 0, len(rows))
	for _, r := range rows {
		details = append(details, AppointmentSummary{PatientName: r.PatientName, TimeSlot: r.TimeSlot, Status: r.Status})
	}
	n := len(details)

	return &Report{
		DoctorName:          doctor.Name,
		ReportType:          ReportDaily,
		Date:                dateLabel,
		AppointmentsCount:   &n,
		AppointmentsDetails: &details,
		Message:             fmt.Sprintf("%s has %d appointment(s) on %s.", doctor.Name, n, dateLabel),
	}, nil
}

func (s *Service) totalPatientsReport(ctx context.Context, doctor *Doctor) (*Report, error) {
	n, err := s.repo.CountAppointments(ctx, AppointmentFilter{
		DoctorID: doctor.ID,
		Statuses: []Status{StatusCompleted},
	})
	if err != nil {
		return nil, err
	}

	return &Report{
		DoctorName:           doctor.Name,
		ReportType:           ReportTotalPatients,
		TotalPatientsVisited: &n,
		Message:              fmt.Sprintf("%s has seen %d patient(s) in completed appointments.", doctor.Name, n),
	}, nil
}

func (s *Service) dateRangeReport(ctx context.Context, doctor *Doctor, startRaw, endRaw string) (*Report, error) {
	if strings.TrimSpace(startRaw) == "" || strings.TrimSpace(endRaw) == "" {
		return nil, opErr(ErrValidation, nil, "Both start_date and end_date are required for a date_range report.")
	}
	from, err := s.parseDate(startRaw)
	if err != nil {
		return nil, err
	}
	to, err := s.parseDate(endRaw)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, opErr(ErrValidation, nil, "end_date must not be before start_date.")
	}
	if to.Sub(from) > maxReportRangeDays*24*time.Hour {
		return nil, opErr(ErrValidation, nil, "Date range must not exceed %d days.", maxReportRangeDays)
	}

	counts, err := s.repo.CountByStatus(ctx, doctor.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	fromLabel, toLabel := from.Format(slots.DateLayout), to.Format(slots.DateLayout)
	return &Report{
		DoctorName:        doctor.Name,
		ReportType:        ReportDateRange,
		StartDate:         fromLabel,
		EndDate:           toLabel,
		AppointmentsCount: &total,
		StatusCounts:      counts,
		Message:           fmt.Sprintf("%s has %d appointment(s) between %s and %s.", doctor.Name, total, fromLabel, toLabel),
	}, nil
}

type DoctorSummary struct {
	DoctorID              uuid.UUID `json:"doctor_id"`
	DoctorName            string    `json:"doctor_name"`
	TotalPatientsVisited  int       `json:"total_patients_visited"`
	AppointmentsToday     int       `json:"appointments_today"`
	AppointmentsYesterday int       `json:"appointments_yesterday"`
	ReportGeneratedAt     time.Time `json:"report_generated_at"`
}

// DirectSummary counts completed visits overall, active bookings today and
// every booking yesterday.
func (s *Service) DirectSummary(ctx context.Context, doctorID uuid.UUID) (*DoctorSummary, error) {
	doctor, err := s.getDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	yesterday := today.AddDate(0, 0, -1)

	completed, err := s.repo.CountAppointments(ctx, AppointmentFilter{DoctorID: doctor.ID, Statuses: []Status{StatusCompleted}})
	if err != nil {
		return nil, err
	}
	active, err := s.repo.CountAppointments(ctx, AppointmentFilter{DoctorID: doctor.ID, Statuses: ActiveStatuses, From: &today, To: &today})
	if err != nil {
		return nil, err
	}
	past, err := s.repo.CountAppointments(ctx, AppointmentFilter{DoctorID: doctor.ID, From: &yesterday, To: &yesterday})
	if err != nil {
		return nil, err
	}

	return &DoctorSummary{
		DoctorID:              doctor.ID,
		DoctorName:            doctor.Name,
		TotalPatientsVisited:  completed,
		AppointmentsToday:     active,
		AppointmentsYesterday: past,
		ReportGeneratedAt:     s.now().In(s.loc),
	}, nil
}
