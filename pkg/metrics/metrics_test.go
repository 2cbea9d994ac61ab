package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OrderCreated()
	m.OrderCreated()
	m.PaymentAttempt("failed")
	m.StockConflict("v1")
	m.Confirmation("duplicate")
	m.HTTPRequest("GET", "/api/v1/products", "200", 5*time.Millisecond)
	m.ObserveOperation("create_order", time.Now(), errors.New("x"))

	assert.Equal(t, 2.0, counterValue(t, reg, "storefront_orders_created_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "storefront_payment_attempts_total", map[string]string{"outcome": "failed"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "storefront_stock_conflicts_total", map[string]string{"variant_id": "v1"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "storefront_http_requests_total",
		map[string]string{"method": "GET", "route": "/api/v1/products", "status": "200"}))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderCreated()
		m.PaymentAttempt("ok")
		m.StockConflict("v")
		m.Confirmation("ok")
		m.HTTPRequest("GET", "/", "200", time.Second)
		m.ObserveOperation("x", time.Now(), nil)
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).OrderCreated()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_orders_created_total 1")
}
