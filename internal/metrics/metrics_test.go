package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()

	m.RecordInsert("SUCCESS", 10*time.Millisecond)
	m.RecordQueryDuration("get_by_transaction_id", time.Millisecond)
	m.SetQueueDepth(5)
	m.RecordHTTPRequest("POST", "/api/v1/audit", 201, time.Millisecond)

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 204, rec.Code)
}

func TestPrometheusMetrics_RecordInsert(t *testing.T) {
	m := NewPrometheusMetrics()

	m.RecordInsert("SUCCESS", 10*time.Millisecond)
	m.RecordInsert("SUCCESS", 20*time.Millisecond)
	m.RecordInsert("ERROR", 5*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.insertsTotal.WithLabelValues("SUCCESS")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.insertsTotal.WithLabelValues("ERROR")))
}

func TestPrometheusMetrics_QueueDepth(t *testing.T) {
	m := NewPrometheusMetrics()

	m.SetQueueDepth(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(m.queueDepth))

	m.SetQueueDepth(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.queueDepth))
}

func TestPrometheusMetrics_HTTPHandler(t *testing.T) {
	m := NewPrometheusMetrics()
	m.RecordHTTPRequest("GET", "/api/v1/audit/{transactionID}", 200, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "audit_http_requests_total"))
}
