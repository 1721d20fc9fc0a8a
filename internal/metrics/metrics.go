package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for availability and booking flows.
type SchedulingMetrics struct {
	availabilityTotal *prometheus.CounterVec
	bookingTotal      *prometheus.CounterVec
	calendarLatency   *prometheus.HistogramVec
	notificationTotal *prometheus.CounterVec
	reconcileTotal    *prometheus.CounterVec
	orphanedEvents    prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "availability",
			Name:      "checks_total",
			Help:      "Availability checks by outcome",
		}, []string{"outcome"}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking transactions by outcome",
		}, []string{"outcome"}),
		calendarLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scheduling",
			Subsystem: "calendar",
			Name:      "request_duration_seconds",
			Help:      "Latency of external calendar calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		notificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "notification",
			Name:      "sent_total",
			Help:      "Confirmation emails by status",
		}, []string{"status"}),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "reconcile",
			Name:      "appointments_total",
			Help:      "Appointments visited by the calendar reconciliation sweep",
		}, []string{"status"}),
		orphanedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "booking",
			Name:      "orphaned_calendar_events_total",
			Help:      "Calendar events created whose local appointment row was never written",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.availabilityTotal, m.bookingTotal, m.calendarLatency, m.notificationTotal, m.reconcileTotal, m.orphanedEvents)
	return m
}

func (m *SchedulingMetrics) ObserveAvailability(outcome string) {
	if m == nil {
		return
	}
	m.availabilityTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveCalendar(op string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.calendarLatency.WithLabelValues(op, status).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveNotification(sent bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !sent {
		status = "failed"
	}
	m.notificationTotal.WithLabelValues(status).Inc()
}

func (m *SchedulingMetrics) ObserveReconcile(status string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(status).Inc()
}

func (m *SchedulingMetrics) ObserveOrphanedEvent() {
	if m == nil {
		return
	}
	m.orphanedEvents.Inc()
}
