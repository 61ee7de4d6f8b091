package obs

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stayvista/internal/app/services/reservation"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	operations    *prometheus.CounterVec
	opDuration    *prometheus.HistogramVec
	compensations *prometheus.CounterVec
	outbox        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_operations_total",
			Help: "Reservation coordinator operations by outcome kind",
		}, []string{"operation", "outcome"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reservation_operation_duration_seconds",
			Help:    "Reservation coordinator operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_compensations_total",
			Help: "Compensating actions by result",
		}, []string{"action", "result"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_deliveries_total",
			Help: "Outbox deliveries by result",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(m.requests, m.duration, m.operations, m.opDuration, m.compensations, m.outbox)
	return m
}

// ObserveOperation records one coordinator call. An empty kind means success.
func (m *Metrics) ObserveOperation(op string, kind reservation.Kind, elapsed time.Duration) {
	outcome := string(kind)
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.opDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCompensation(action string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveDelivery(ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.outbox.WithLabelValues(result).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}

var _ reservation.Metrics = (*Metrics)(nil)
