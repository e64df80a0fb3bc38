// Package metrics defines the Prometheus collectors the booking workflow
// reports to and the /metrics handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes used as the "outcome" label.
const (
	OutcomeSuccess        = "success"
	OutcomeReplayed       = "replayed"
	OutcomeValidation     = "validation_error"
	OutcomeDoctorNotFound = "doctor_not_found"
	OutcomeInProgress     = "in_progress"
	OutcomeError          = "error"
)

// BookingMetrics exposes counters/histograms for the booking workflow. A nil
// *BookingMetrics is valid and records nothing.
type BookingMetrics struct {
	bookings *prometheus.CounterVec
	duration *prometheus.HistogramVec
	patients *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "total",
			Help:      "Booking requests by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "duration_seconds",
			Help:      "Time spent processing a booking request",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		patients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "patients_total",
			Help:      "Patients resolved during booking, created or matched by name and phone",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.duration, m.patients)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) ObservePatient(created bool) {
	if m == nil {
		return
	}
	result := "matched"
	if created {
		result = "created"
	}
	m.patients.WithLabelValues(result).Inc()
}

// Handler serves the collectors registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
