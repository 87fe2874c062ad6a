package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Page metrics, labelled by the matched route rather than the raw path.
var (
	PageRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_requests_total",
			Help:      "Page requests served, by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	PageDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_duration_seconds",
			Help:      "Time to serve a page, including calls to the events API",
			// 5ms up to about 10s; pages wait on the remote API.
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"route"},
	)

	PagesInFlight = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pages_in_flight",
			Help:      "Pages currently being served",
		},
	)

	PageBytes = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_bytes",
			Help:      "Size of rendered page bodies",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"route"},
	)
)

// pageRecorder remembers the status and body size of a response.
type pageRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (p *pageRecorder) WriteHeader(status int) {
	if p.status == 0 {
		p.status = status
	}
	p.ResponseWriter.WriteHeader(status)
}

func (p *pageRecorder) Write(b []byte) (int, error) {
	if p.status == 0 {
		p.status = http.StatusOK
	}
	n, err := p.ResponseWriter.Write(b)
	p.size += n
	return n, err
}

// HTTPMiddleware records page metrics. It must wrap the ServeMux itself: the
// mux sets r.Pattern on the request it is handed, and that pattern becomes
// the route label so event ids never reach label values.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		PagesInFlight.Inc()
		defer PagesInFlight.Dec()

		start := time.Now()
		rec := &pageRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		observePage(r.Method, routeLabel(r.Pattern), rec, time.Since(start))
	})
}

func observePage(method, route string, rec *pageRecorder, elapsed time.Duration) {
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	PageRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	PageDuration.WithLabelValues(route).Observe(elapsed.Seconds())
	PageBytes.WithLabelValues(route).Observe(float64(rec.size))
}

// routeLabel drops the method prefix from a ServeMux pattern ("GET /events/{id}").
func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if _, route, ok := strings.Cut(pattern, " "); ok {
		return route
	}
	return pattern
}
