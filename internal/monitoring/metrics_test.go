package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_UsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/tools/:service", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, svc := range []string{"git", "memory"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tools/"+svc, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/tools/:service", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestRecorders(t *testing.T) {
	m := NewMetrics()
	m.RecordToolCall("git", "success", 10*time.Millisecond)
	m.RecordToolCall("git", "timeout", time.Second)
	m.SetConnected(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("git", "timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BackendsConnected))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "headyrouter_tool_calls_total")
	assert.Contains(t, w.Body.String(), "headyrouter_backends_connected 3")
}

func TestNewMetrics_Independent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.GovernanceDenied.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.GovernanceDenied))
}
