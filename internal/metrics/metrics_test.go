package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCall(t *testing.T) {
	m := New()
	m.RecordCall("file", nil, time.Second)
	m.RecordCall("file", errors.New("boom"), time.Second)
	m.RecordCall("directory", nil, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("file", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("file", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("directory", OutcomeSuccess)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.callDuration))
}

func TestRecordRetryAndOutcome(t *testing.T) {
	m := New()
	m.RecordRetry("file")
	m.RecordRetry("file")
	m.RecordOutcome(OutcomeSkipped)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.retries.WithLabelValues("file")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues(OutcomeSkipped)))
}

func TestInFlight(t *testing.T) {
	m := New()
	done1 := m.CallStarted()
	done2 := m.CallStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inFlight))
	done1()
	done2()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCall("file", nil, time.Second)
		m.RecordRetry("file")
		m.RecordOutcome(OutcomeSuccess)
		m.CallStarted()()
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordOutcome(OutcomeSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `archdoc_scheduler_files_total{outcome="success"} 1`))
}
