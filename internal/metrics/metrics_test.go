package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashr/internal/tasks"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/orders/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Contains(t, scrape(t, m), `dashr_http_requests_total{method="GET",path="/api/orders/:id",status="200"} 2`)
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.OrderCreated()
	m.RoundDispatched(0, 3)
	m.RoundDispatched(1, 0)
	m.TaskDone(tasks.TypePaymentRefund, "ok", 5*time.Millisecond)
	m.TaskDone("", "dropped", time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, "dashr_orders_created_total 1")
	assert.Contains(t, out, "dashr_dispatch_delivery_requests_total 3")
	assert.Contains(t, out, `dashr_dispatch_rounds_total{found="false"} 1`)
	assert.Contains(t, out, `dashr_tasks_processed_total{outcome="ok",type="payment.refund"} 1`)
	assert.Contains(t, out, `dashr_tasks_processed_total{outcome="dropped",type="unknown"} 1`)
}
