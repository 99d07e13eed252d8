package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flow.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	checkoutsTotal     *prometheus.CounterVec
	confirmationsTotal *prometheus.CounterVec
	checkoutLatency    *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Total booking requests by outcome",
		}, []string{"path", "status"}),
		checkoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "booking",
			Name:      "checkouts_created_total",
			Help:      "Total gateway checkout sessions created",
		}, []string{"gateway"}),
		confirmationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "booking",
			Name:      "confirmations_total",
			Help:      "Total payment confirmations by outcome",
		}, []string{"gateway", "outcome"}),
		checkoutLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "booking",
			Name:      "checkout_latency_seconds",
			Help:      "Latency of gateway checkout creation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"gateway"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.checkoutsTotal, m.confirmationsTotal, m.checkoutLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(path, status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(path, status).Inc()
}

func (m *BookingMetrics) ObserveCheckoutCreated(gateway string) {
	if m == nil {
		return
	}
	m.checkoutsTotal.WithLabelValues(gateway).Inc()
}

func (m *BookingMetrics) ObserveConfirmation(gateway, outcome string) {
	if m == nil {
		return
	}
	m.confirmationsTotal.WithLabelValues(gateway, outcome).Inc()
}

func (m *BookingMetrics) ObserveCheckoutLatency(gateway string, seconds float64) {
	if m == nil {
		return
	}
	m.checkoutLatency.WithLabelValues(gateway).Observe(seconds)
}
