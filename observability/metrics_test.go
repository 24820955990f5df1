package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestEscrowMetricsFollowLifecycle(t *testing.T) {
	m := Escrow()
	require.Same(t, m, Escrow())

	openBefore := testutil.ToFloat64(m.openEscrows)
	depositedBefore := testutil.ToFloat64(m.deposited)
	refundedBefore := testutil.ToFloat64(m.refunded)
	createdBefore := testutil.ToFloat64(m.events.WithLabelValues("escrow.created"))

	m.RecordEvent("escrow.created", map[string]string{"escrowId": "1", "state": "created", "amount": "1000"})
	m.RecordEvent("escrow.created", map[string]string{"escrowId": "2", "state": "created", "amount": "500"})
	m.RecordEvent("escrow.partial_refund", map[string]string{"escrowId": "1", "state": "confirmed", "amount": "100"})
	m.RecordEvent("escrow.completed", map[string]string{"escrowId": "1", "state": "completed"})
	m.RecordEvent("escrow.cancelled", map[string]string{"escrowId": "2", "state": "refunded"})
	m.RecordEvent("escrow.refunded", map[string]string{"escrowId": "2", "state": "refunded", "amount": "500"})

	require.Equal(t, openBefore, testutil.ToFloat64(m.openEscrows))
	require.Equal(t, depositedBefore+1500, testutil.ToFloat64(m.deposited))
	require.Equal(t, refundedBefore+600, testutil.ToFloat64(m.refunded))
	require.Equal(t, createdBefore+2, testutil.ToFloat64(m.events.WithLabelValues("escrow.created")))

	m.RecordEvent("escrow.fee_updated", map[string]string{"oldFeeBps": "100", "newFeeBps": "250"})
	require.Equal(t, 250.0, testutil.ToFloat64(m.feeBps))
	m.SetPlatformFee(100)
	require.Equal(t, 100.0, testutil.ToFloat64(m.feeBps))
}

func TestEscrowMetricsIgnoresMalformedAmounts(t *testing.T) {
	m := Escrow()
	before := testutil.ToFloat64(m.deposited)
	m.RecordEvent("escrow.created", map[string]string{"amount": "-5"})
	m.RecordEvent("escrow.created", map[string]string{"amount": "lots"})
	require.Equal(t, before, testutil.ToFloat64(m.deposited))

	var nilMetrics *EscrowMetrics
	nilMetrics.RecordEvent("escrow.created", nil)
	nilMetrics.SetPlatformFee(1)
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.errors.WithLabelValues("escrow", "escrow_get", "-32021"))
	m.Observe("escrow", "escrow_get", -32021, 5*time.Millisecond)
	m.Observe("escrow", "escrow_get", 0, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.errors.WithLabelValues("escrow", "escrow_get", "-32021")))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.requests.WithLabelValues("escrow", "escrow_get", "success")), 1.0)

	m.RecordThrottle("", "")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")), 1.0)
}

func TestEscrowEventsExportedOverOTLP(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := Escrow()
	require.NoError(t, m.UseMeter(provider.Meter("test")))
	t.Cleanup(func() { _ = m.UseMeter(otel.Meter(meterName)) })

	m.RecordEvent("escrow.created", map[string]string{"state": "created", "amount": "1"})
	m.RecordEvent("escrow.confirmed", map[string]string{"state": "confirmed"})
	m.RecordEvent("escrow.created", map[string]string{"state": "created", "amount": "1"})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	counts := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != OTLPEventCounter {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, point := range sum.DataPoints {
				eventType, _ := point.Attributes.Value(attribute.Key("type"))
				counts[eventType.AsString()] += point.Value
			}
		}
	}
	require.Equal(t, map[string]int64{"escrow.created": 2, "escrow.confirmed": 1}, counts)
}

func TestFeeGaugeGathered(t *testing.T) {
	Escrow().SetPlatformFee(175)
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var gauge *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "landescrow_escrow_platform_fee_bps" {
			gauge = family
		}
	}
	require.NotNil(t, gauge)
	require.Equal(t, dto.MetricType_GAUGE, gauge.GetType())
	require.Equal(t, 175.0, gauge.GetMetric()[0].GetGauge().GetValue())
}
