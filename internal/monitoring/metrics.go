package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walkin_bookings_created_total",
			Help: "Bookings created per channel and booking type",
		},
		[]string{"channel", "booking_type"},
	)

	bookingRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walkin_booking_rejections_total",
			Help: "Booking requests rejected, by reason",
		},
		[]string{"reason"},
	)

	bookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walkin_booking_transitions_total",
			Help: "Booking state changes, by trigger and resulting status",
		},
		[]string{"trigger", "status"},
	)

	paymentEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walkin_payment_events_total",
			Help: "Provider events received, by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	sweepRuns = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walkin_sweep_duration_seconds",
			Help:    "Duration of background sweeps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)

	sweepAffected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walkin_sweep_affected_total",
			Help: "Bookings changed by background sweeps",
		},
		[]string{"sweep"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walkin_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Monitor records domain metrics. A nil *Monitor is a no-op so services can
// be built without metrics in tests.
type Monitor struct{}

// NewMonitor returns a Monitor backed by the default Prometheus registry
func NewMonitor() *Monitor {
	return &Monitor{}
}

// TrackBookingCreated counts a new booking
func (m *Monitor) TrackBookingCreated(channel, bookingType string) {
	if m == nil {
		return
	}
	bookingsCreated.WithLabelValues(channel, bookingType).Inc()
}

// TrackBookingRejected counts a rejected booking request
func (m *Monitor) TrackBookingRejected(reason string) {
	if m == nil {
		return
	}
	bookingRejections.WithLabelValues(reason).Inc()
}

// TrackTransition counts a booking state change
func (m *Monitor) TrackTransition(trigger, status string) {
	if m == nil {
		return
	}
	bookingTransitions.WithLabelValues(trigger, status).Inc()
}

// TrackPaymentEvent counts a provider event by outcome
func (m *Monitor) TrackPaymentEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	paymentEvents.WithLabelValues(eventType, outcome).Inc()
}

// TrackSweep records a background sweep run
func (m *Monitor) TrackSweep(sweep string, affected int, duration time.Duration) {
	if m == nil {
		return
	}
	sweepRuns.WithLabelValues(sweep).Observe(duration.Seconds())
	sweepAffected.WithLabelValues(sweep).Add(float64(affected))
}

// GinMiddleware observes request latency per matched route
func (m *Monitor) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
