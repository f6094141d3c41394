package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/tokenauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot tokenauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() tokenauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestCollectNothingWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: tokenauth.MetricsSnapshot{
			Counters:   map[tokenauth.MetricID]uint64{},
			Histograms: map[tokenauth.MetricID][]uint64{},
		},
	})

	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestCollectCountersAndHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: tokenauth.MetricsSnapshot{
			Counters: map[tokenauth.MetricID]uint64{
				tokenauth.MetricLoginSuccess:  7,
				tokenauth.MetricAccountLocked: 2,
			},
			Histograms: map[tokenauth.MetricID][]uint64{
				tokenauth.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	expected := `
# HELP tokenauth_login_success_total Logins that issued a token pair.
# TYPE tokenauth_login_success_total counter
tokenauth_login_success_total 7
# HELP tokenauth_account_locked_total Accounts that crossed the failure threshold.
# TYPE tokenauth_account_locked_total counter
tokenauth_account_locked_total 2
# HELP tokenauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE tokenauth_audit_dropped_total counter
tokenauth_audit_dropped_total 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"tokenauth_login_success_total",
		"tokenauth_account_locked_total",
		"tokenauth_audit_dropped_total",
	)
	require.NoError(t, err)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "tokenauth_authenticate_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(36), h.GetSampleCount())
		assert.Equal(t, uint64(1), h.GetBucket()[0].GetCumulativeCount())
	}
	assert.True(t, found, "expected latency histogram")
}

func TestHandlerServesTextFormat(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: tokenauth.MetricsSnapshot{
			Counters:   map[tokenauth.MetricID]uint64{tokenauth.MetricLoginSuccess: 1},
			Histograms: map[tokenauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "tokenauth_login_success_total 1")
}

func BenchmarkCollect(b *testing.B) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: tokenauth.MetricsSnapshot{
			Counters: map[tokenauth.MetricID]uint64{
				tokenauth.MetricLoginSuccess:   1000,
				tokenauth.MetricLoginFailure:   40,
				tokenauth.MetricRefreshSuccess: 800,
				tokenauth.MetricRefreshFailure: 10,
			},
			Histograms: map[tokenauth.MetricID][]uint64{
				tokenauth.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = testutil.CollectAndCount(c)
	}
}
