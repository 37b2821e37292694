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

func TestTableEditCounts(t *testing.T) {
	m := New()
	m.TableEdit("importantDates", "replaced")
	m.TableEdit("importantDates", "replaced")
	m.TableEdit("", "dropped")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tableEdits.WithLabelValues("importantDates", "replaced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tableEdits.WithLabelValues("none", "dropped")))
}

func TestHandlerExposesRequests(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/api/jobs", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `jobboard_http_requests_total{method="GET",route="/api/jobs",status="200"} 1`)
	assert.Contains(t, string(body), "jobboard_http_request_duration_seconds_bucket")
}
