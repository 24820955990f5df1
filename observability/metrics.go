package observability

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	namespace = "landescrow"
	meterName = "landescrow/escrow"

	// OTLPEventCounter mirrors escrow_events_total for OTLP collectors.
	OTLPEventCounter = "landescrow.escrow.events"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status is the HTTP
// status for transport failures or the JSON-RPC error code otherwise; zero
// means success.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	failed := status >= 400 || status < 0
	outcome := "success"
	if failed {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if failed {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// EscrowMetrics tracks escrow lifecycle activity derived from committed events.
type EscrowMetrics struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	deposited   prometheus.Counter
	refunded    prometheus.Counter
	feeBps      prometheus.Gauge
	openEscrows prometheus.Gauge

	mu       sync.RWMutex
	exported metric.Int64Counter
}

// Escrow returns the singleton escrow metrics registry.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "escrow",
				Name:      "events_total",
				Help:      "Count of committed escrow events segmented by type.",
			}, []string{"type"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "escrow",
				Name:      "transitions_total",
				Help:      "Count of escrow events segmented by the state the escrow was left in.",
			}, []string{"state"}),
			deposited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "escrow",
				Name:      "deposited_total",
				Help:      "Sum of deposits locked into escrow in base units.",
			}),
			refunded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "escrow",
				Name:      "refunded_total",
				Help:      "Sum of funds returned to buyers in base units.",
			}),
			feeBps: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "escrow",
				Name:      "platform_fee_bps",
				Help:      "Current platform fee in basis points.",
			}),
			openEscrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "escrow",
				Name:      "open",
				Help:      "Escrows created by this process that have not reached a terminal state.",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.events,
			escrowRegistry.transitions,
			escrowRegistry.deposited,
			escrowRegistry.refunded,
			escrowRegistry.feeBps,
			escrowRegistry.openEscrows,
		)
		if err := escrowRegistry.UseMeter(otel.Meter(meterName)); err != nil {
			otel.Handle(err)
		}
	})
	return escrowRegistry
}

// UseMeter routes the OTLP event counter through meter. The default is the
// global meter, which starts exporting once telemetry is initialised.
func (m *EscrowMetrics) UseMeter(meter metric.Meter) error {
	counter, err := meter.Int64Counter(OTLPEventCounter,
		metric.WithDescription("Committed escrow events segmented by type."))
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.exported = counter
	m.mu.Unlock()
	return nil
}

// RecordEvent folds a committed event, identified by its type and flat
// attributes, into the escrow collectors.
func (m *EscrowMetrics) RecordEvent(eventType string, attrs map[string]string) {
	if m == nil {
		return
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
	m.mu.RLock()
	if m.exported != nil {
		m.exported.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", eventType)))
	}
	m.mu.RUnlock()
	if state := strings.TrimSpace(attrs["state"]); state != "" {
		m.transitions.WithLabelValues(state).Inc()
	}
	switch eventType {
	case "escrow.created":
		m.deposited.Add(parseAmount(attrs["amount"]))
		m.openEscrows.Inc()
	case "escrow.completed":
		m.openEscrows.Dec()
	case "escrow.refunded":
		m.refunded.Add(parseAmount(attrs["amount"]))
		m.openEscrows.Dec()
	case "escrow.partial_refund":
		m.refunded.Add(parseAmount(attrs["amount"]))
	case "escrow.dispute_resolved":
		// A refund resolution is closed out by the refunded event that follows.
		if attrs["state"] == "completed" {
			m.openEscrows.Dec()
		}
	case "escrow.fee_updated":
		m.feeBps.Set(parseAmount(attrs["newFeeBps"]))
	}
}

// SetPlatformFee seeds the fee gauge at startup.
func (m *EscrowMetrics) SetPlatformFee(bps uint32) {
	if m == nil {
		return
	}
	m.feeBps.Set(float64(bps))
}

func parseAmount(raw string) float64 {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() < 0 {
		return 0
	}
	return bigToFloat(value)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
