package api

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the HTTP surface. A private
// registry keeps the /metrics output limited to what we register.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests          *prometheus.CounterVec
	FoodLogged            prometheus.Counter
	RecommendationsServed prometheus.Counter
	AnalysisRequests      *prometheus.CounterVec
	MenuImportsQueued     prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mealwise_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		FoodLogged: factory.NewCounter(prometheus.CounterOpts{
			Name: "mealwise_food_logged_total",
			Help: "Food log entries recorded.",
		}),
		RecommendationsServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mealwise_recommendations_served_total",
			Help: "Recommendation list responses served.",
		}),
		AnalysisRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mealwise_analysis_requests_total",
			Help: "Food image analysis requests by outcome.",
		}, []string{"outcome"}),
		MenuImportsQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "mealwise_menu_imports_queued_total",
			Help: "Menu import jobs enqueued via the admin API.",
		}),
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts every request by method and response status.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
