package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-txbridge/internal/config"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestResourceDescribesBridge(t *testing.T) {
	cfg := config.Default()
	cfg.STT.Engine = "vosk"
	cfg.Bridge.Channel = "voiceoutliner.saga.chat/androidtx"

	res, err := newResource(context.Background(), cfg, "1.2.3")
	if err != nil {
		t.Fatalf("new resource: %v", err)
	}
	want := map[attribute.Key]string{
		"service.name":        "loqa-txbridge",
		"service.version":     "1.2.3",
		"service.instance.id": "txbridge-node-1",
		"txbridge.channel":    "voiceoutliner.saga.chat/androidtx",
		"txbridge.stt.engine": "vosk",
	}
	set := res.Set()
	for key, value := range want {
		got, ok := set.Value(key)
		if !ok || got.AsString() != value {
			t.Fatalf("expected %s=%q, got %q (present=%v)", key, value, got.AsString(), ok)
		}
	}
}

func TestRequestDurationUsesBridgeBuckets(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := newMeterProvider(resource.Empty(), reader)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	hist, err := provider.Meter("test").Float64Histogram(requestDurationMetric)
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	hist.Record(context.Background(), 42)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != requestDurationMetric {
				continue
			}
			data, ok := m.Data.(metricdata.Histogram[float64])
			if !ok || len(data.DataPoints) != 1 {
				t.Fatalf("unexpected histogram data %#v", m.Data)
			}
			bounds := data.DataPoints[0].Bounds
			if len(bounds) != len(requestDurationBuckets) || bounds[len(bounds)-1] != 120000 {
				t.Fatalf("expected bridge buckets, got %v", bounds)
			}
			return
		}
	}
	t.Fatal("request duration metric not collected")
}

func TestTracerWithoutExporter(t *testing.T) {
	tp, err := initTracer(context.Background(), config.TelemetryConfig{}, resource.Empty(), newLogger())
	if err != nil {
		t.Fatalf("init tracer: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
