package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recording(t *testing.T) {
	t.Parallel()
	m := New()

	m.Submitted()
	m.Submitted()
	m.Dropped("queue_full", 3)
	m.Dropped("shutdown", 0)
	m.QueueDepth(7)
	m.Attempt("transient")
	m.Attempt("sent")
	m.Result("sent", 150*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submitted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.dropped.WithLabelValues("queue_full")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("sent")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.Submitted()
	m.Dropped("queue_full", 1)
	m.Result("sent", time.Second)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()
	m := New()
	m.Ingest("join", http.StatusAccepted)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `telenotify_ingest_requests_total{kind="join",status="Accepted"} 1`)
}
