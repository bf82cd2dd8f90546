package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solve-it-project/solveit/internal/core"
)

// metrics lives on a private registry so several servers (tests) can coexist
// in one process.
type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(engine *core.Engine) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solveit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "solveit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	entities := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "solveit",
		Subsystem: "kb",
		Name:      "entities",
		Help:      "Loaded entities by kind.",
	}, []string{"kind"})
	m.registry.MustRegister(
		m.requests,
		m.duration,
		collectors.NewGoCollector(),
		&kbCollector{engine: engine, entities: entities},
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeLabel(r.URL.Path)
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses ids and names out of a path so label cardinality
// stays bounded: /api/v1/techniques/T1001/weaknesses becomes
// /api/v1/techniques/{id}/weaknesses.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v1" {
		switch path {
		case "/health", "/metrics":
			return path
		}
		return "other"
	}
	switch parts[2] {
	case "techniques", "weaknesses", "mitigations", "objectives":
		if len(parts) > 5 {
			return "other"
		}
		if len(parts) >= 4 {
			parts[3] = "{id}"
		}
	case "status", "logs", "issues", "search", "mappings", "reload":
		if len(parts) > 3 {
			return "other"
		}
	default:
		return "other"
	}
	return "/" + strings.Join(parts, "/")
}

// kbCollector reports entity counts of whatever knowledge base is current
// at scrape time.
type kbCollector struct {
	engine   *core.Engine
	entities *prometheus.GaugeVec
}

func (c *kbCollector) Describe(ch chan<- *prometheus.Desc) {
	c.entities.Describe(ch)
}

func (c *kbCollector) Collect(ch chan<- prometheus.Metric) {
	base := c.engine.KB()
	if base == nil {
		return
	}
	st := base.Stats()
	c.entities.WithLabelValues("techniques").Set(float64(st.Techniques))
	c.entities.WithLabelValues("weaknesses").Set(float64(st.Weaknesses))
	c.entities.WithLabelValues("mitigations").Set(float64(st.Mitigations))
	c.entities.WithLabelValues("objectives").Set(float64(st.Objectives))
	c.entities.WithLabelValues("issues").Set(float64(st.Issues))
	c.entities.Collect(ch)
}
