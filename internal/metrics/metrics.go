// Package metrics собирает метрики HTTP и доменных операций в Prometheus.
// Все методы безопасно вызывать на nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry
	service  string

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	statusCategory  *prometheus.CounterVec

	negotiation     *prometheus.CounterVec
	commits         *prometheus.CounterVec
	partialCommits  *prometheus.CounterVec
	appendConflicts prometheus.Counter
	lockFallbacks   prometheus.Counter
	refreshes       *prometheus.CounterVec
	activeViews     prometheus.Gauge
}

// New регистрирует метрики в отдельном реестре, чтобы тесты не делили глобальный
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		service:  service,

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"service", "method", "path", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "method", "path", "status"}),

		statusCategory: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_status_category_total",
			Help: "Total number of responses by status category (2xx, 4xx, 5xx)",
		}, []string{"service", "category"}),

		negotiation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negotiation_operations_total",
			Help: "Negotiation operations by kind and result",
		}, []string{"operation", "result"}),

		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_commits_total",
			Help: "Purchase commits by path and result",
		}, []string{"path", "result"}),

		partialCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_partial_commits_total",
			Help: "Stock decremented without an order, by compensation outcome",
		}, []string{"compensated"}),

		appendConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_append_conflicts_total",
			Help: "Compare-and-set conflicts while appending chat messages",
		}),

		lockFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thread_lock_fallbacks_total",
			Help: "Thread creations that proceeded without the lock",
		}),

		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_refreshes_total",
			Help: "Synchronizer refresh cycles by outcome",
		}, []string{"outcome"}),

		activeViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_active_views",
			Help: "Number of open polling views",
		}),
	}

	reg.MustRegister(
		m.requests, m.requestDuration, m.statusCategory,
		m.negotiation, m.commits, m.partialCommits,
		m.appendConflicts, m.lockFallbacks, m.refreshes, m.activeViews,
	)
	return m
}

// Handler отдаёт метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest учитывает один HTTP-запрос
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.requests.WithLabelValues(m.service, method, path, statusStr).Inc()
	m.requestDuration.WithLabelValues(m.service, method, path, statusStr).Observe(elapsed.Seconds())

	category := ""
	switch {
	case status >= 200 && status < 300:
		category = "2xx"
	case status >= 400 && status < 500:
		category = "4xx"
	case status >= 500 && status < 600:
		category = "5xx"
	}
	if category != "" {
		m.statusCategory.WithLabelValues(m.service, category).Inc()
	}
}

func (m *Metrics) NegotiationOp(operation, result string) {
	if m == nil {
		return
	}
	m.negotiation.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Commit(path, result string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(path, result).Inc()
}

func (m *Metrics) PartialCommit(compensated bool) {
	if m == nil {
		return
	}
	m.partialCommits.WithLabelValues(strconv.FormatBool(compensated)).Inc()
}

func (m *Metrics) AppendConflict() {
	if m == nil {
		return
	}
	m.appendConflicts.Inc()
}

func (m *Metrics) LockFallback() {
	if m == nil {
		return
	}
	m.lockFallbacks.Inc()
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ViewOpened() {
	if m == nil {
		return
	}
	m.activeViews.Inc()
}

func (m *Metrics) ViewClosed() {
	if m == nil {
		return
	}
	m.activeViews.Dec()
}
