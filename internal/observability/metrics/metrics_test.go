package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveBooking("free", "confirmed")
	m.ObserveCheckoutCreated("stripe")
	m.ObserveConfirmation("stripe", "succeeded")
	m.ObserveCheckoutLatency("stripe", 0.42)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("free", "confirmed")
	m.ObserveCheckoutCreated("stripe")
	m.ObserveConfirmation("paypal", "failed")
	m.ObserveCheckoutLatency("paypal", 0.1)
}
