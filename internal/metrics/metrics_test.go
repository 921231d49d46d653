package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAndServe(t *testing.T) {
	m := New()
	m.ObserveRun("done", "")
	m.ObserveRun("failed", "collecting")
	m.ObserveFetch("ok")
	m.ObserveFetch("ok")
	m.ObserveLLM("rate_limited")
	m.ObserveStage("collecting", 2*time.Second)
	m.ObserveReport(4, 420)
	m.SetQueueDepth(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("failed", "collecting")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Fetches.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `reportgest_runs_total{stage="collecting",status="failed"} 1`)
	assert.Contains(t, string(body), "reportgest_stage_duration_seconds_bucket")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRun("done", "")
	m.ObserveFetch("ok")
	m.ObserveLLM("ok")
	m.ObserveStage("x", time.Second)
	m.ObserveReport(1, 1)
	m.SetQueueDepth(1)
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveFetch("ok")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Fetches.WithLabelValues("ok")))
}
