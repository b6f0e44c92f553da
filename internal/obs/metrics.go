package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Init registers the HTTP metrics in the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Collapsible route segments: anything under these prefixes carries an
// identifier in the next segment.
var idPrefixes = map[string]string{
	"accounts":  ":id",
	"employees": ":code",
	"requests":  ":id",
	"workflows": ":id",
}

// Fixed action routes under /accounts that must not be collapsed.
var literalActions = map[string]bool{
	"authenticate":         true,
	"refresh-token":        true,
	"revoke-token":         true,
	"register":             true,
	"verify-email":         true,
	"forgot-password":      true,
	"validate-reset-token": true,
	"reset-password":       true,
	"available":            true,
}

// CanonicalPath collapses identifier segments so metric label cardinality
// stays bounded regardless of how many entities exist.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) >= 2 {
		if placeholder, ok := idPrefixes[segs[0]]; ok && !literalActions[segs[1]] {
			// /accounts/<id>, /employees/<code>/workflows and friends
			if len(segs) == 2 || (len(segs) == 3 && segs[2] == "workflows") {
				segs[1] = placeholder
			}
		}
	}
	return "/" + strings.Join(segs, "/")
}

// Instrument wraps a handler with RPS, latency and in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter remembers the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
