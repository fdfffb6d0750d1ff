package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Metrics implements appointment.Metrics on top of OpenTelemetry counters.
type Metrics struct {
	bookings    metric.Int64Counter
	transitions metric.Int64Counter
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	bookings, err := meter.Int64Counter(
		"scheduling_booking_attempts",
		metric.WithDescription("Booking and reschedule attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"scheduling_transitions",
		metric.WithDescription("Appointment status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{bookings: bookings, transitions: transitions}, nil
}

func (m *Metrics) BookingOutcome(ctx context.Context, op, outcome string) {
	m.bookings.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) Transition(ctx context.Context, from, to appointment.AppointmentStatus) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

// HTTPMiddleware counts requests and records their latency per chi route
// pattern, so path parameters do not explode label cardinality.
func HTTPMiddleware(mp metric.MeterProvider) func(http.Handler) http.Handler {
	meter := mp.Meter(meterName)

	requestCounter, _ := meter.Int64Counter(
		"http_server_request_count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	requestDuration, _ := meter.Float64Histogram(
		"http_server_request_duration_ms",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			requestCounter.Add(r.Context(), 1, attrs)
			requestDuration.Record(r.Context(), float64(time.Since(start).Microseconds())/1000, attrs)
		})
	}
}
