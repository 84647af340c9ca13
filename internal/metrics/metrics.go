package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects corpus service metrics on its own registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	loadsTotal    *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
	fetchedTotal  *prometheus.CounterVec
	requestsTotal *prometheus.CounterVec
	queriesTotal  *prometheus.CounterVec
	corpusSize    *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	loadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpus",
			Subsystem: "loader",
			Name:      "loads_total",
			Help:      "Corpus loads by origin (snapshot, fetch, topup) and status.",
		},
		[]string{"origin", "status"},
	)
	loadDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "corpus",
			Subsystem: "loader",
			Name:      "load_duration_seconds",
			Help:      "Corpus load duration in seconds by origin.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"origin"},
	)
	fetchedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpus",
			Subsystem: "fetcher",
			Name:      "documents_total",
			Help:      "Documents kept from each source.",
		},
		[]string{"source"},
	)
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpus",
			Subsystem: "fetcher",
			Name:      "requests_total",
			Help:      "Source requests by source and status.",
		},
		[]string{"source", "status"},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpus",
			Subsystem: "engine",
			Name:      "queries_total",
			Help:      "Queries served by kind.",
		},
		[]string{"kind"},
	)
	corpusSize := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "corpus",
			Subsystem: "engine",
			Name:      "documents",
			Help:      "Documents held by each loaded corpus.",
		},
		[]string{"corpus"},
	)

	registry.MustRegister(loadsTotal, loadDuration, fetchedTotal, requestsTotal, queriesTotal, corpusSize)

	return &Recorder{
		registry:      registry,
		loadsTotal:    loadsTotal,
		loadDuration:  loadDuration,
		fetchedTotal:  fetchedTotal,
		requestsTotal: requestsTotal,
		queriesTotal:  queriesTotal,
		corpusSize:    corpusSize,
	}
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and custom collectors
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveLoad(origin string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.loadsTotal.WithLabelValues(origin, status).Inc()
	r.loadDuration.WithLabelValues(origin).Observe(duration.Seconds())
}

func (r *Recorder) AddFetched(source string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.fetchedTotal.WithLabelValues(source).Add(float64(n))
}

func (r *Recorder) ObserveRequest(source string, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.requestsTotal.WithLabelValues(source, status).Inc()
}

func (r *Recorder) IncQuery(kind string) {
	if r == nil {
		return
	}
	r.queriesTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetCorpusSize(corpus string, n int) {
	if r == nil {
		return
	}
	r.corpusSize.WithLabelValues(corpus).Set(float64(n))
}
