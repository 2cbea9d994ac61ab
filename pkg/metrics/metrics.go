// Package metrics holds the prometheus collectors shared by the gateway and
// the notifier. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	operationTime  *prometheus.HistogramVec
	ordersCreated  prometheus.Counter
	paymentAttempt *prometheus.CounterVec
	stockConflicts *prometheus.CounterVec
	confirmations  *prometheus.CounterVec
}

// New 在 reg 上注册全部指标，reg 为 nil 时使用默认注册表
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help: "HTTP request latency.", Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		operationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "operation_duration_seconds",
			Help: "Duration of workflow operations.", Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		ordersCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Orders committed.",
		}),
		paymentAttempt: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_attempts_total",
			Help: "Payment initiations by outcome.",
		}, []string{"outcome"}),
		stockConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_conflicts_total",
			Help: "Order lines rejected for insufficient stock.",
		}, []string{"variant_id"}),
		confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_confirmations_total",
			Help: "Order confirmation messages handled by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) HTTPRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveOperation 记录一次业务操作耗时，err 非空时 outcome=error
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operationTime.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) PaymentAttempt(outcome string) {
	if m == nil {
		return
	}
	m.paymentAttempt.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StockConflict(variantID string) {
	if m == nil {
		return
	}
	m.stockConflicts.WithLabelValues(variantID).Inc()
}

func (m *Metrics) Confirmation(result string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(result).Inc()
}

// Handler 暴露 /metrics
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
