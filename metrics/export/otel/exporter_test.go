package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/tokenauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot tokenauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() tokenauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := tokenauth.MetricsSnapshot{
		Counters:   make(map[tokenauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[tokenauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func sumValue(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader(t)
	meter := provider.Meter("tokenauth-test")

	src := &fakeSource{
		snapshot: tokenauth.MetricsSnapshot{
			Counters: map[tokenauth.MetricID]uint64{
				tokenauth.MetricLoginSuccess:  3,
				tokenauth.MetricAccountLocked: 1,
			},
			Histograms: map[tokenauth.MetricID][]uint64{
				tokenauth.MetricAuthenticateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	checks := map[string]int64{
		"tokenauth_login_success_total":                         3,
		"tokenauth_account_locked_total":                        1,
		"tokenauth_audit_dropped_total":                         1,
		"tokenauth_authenticate_latency_seconds_count":          8,
		"tokenauth_authenticate_latency_seconds_bucket_le_0_01": 2,
	}
	for name, want := range checks {
		got, ok := sumValue(rm, name)
		if !ok {
			t.Fatalf("metric %s not collected", name)
		}
		if got != want {
			t.Fatalf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader(t)

	if _, err := NewExporterFromSource(provider.Meter("tokenauth-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)
	meter := provider.Meter("tokenauth-test")

	src := &fakeSource{
		snapshot: tokenauth.MetricsSnapshot{
			Counters: map[tokenauth.MetricID]uint64{
				tokenauth.MetricLoginSuccess: 1,
			},
			Histograms: map[tokenauth.MetricID][]uint64{
				tokenauth.MetricAuthenticateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[tokenauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
