package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer; every method becomes a no-op.
type Metrics struct {
	scansTotal       *prometheus.CounterVec
	denialsTotal     *prometheus.CounterVec
	ruleMatchesTotal *prometheus.CounterVec
	fallbacksTotal   *prometheus.CounterVec
	geoLookups       *prometheus.HistogramVec
	scanDuration     prometheus.Histogram
	cacheHits        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "smartqr_scans_total", Help: "Total QR code scans"},
			[]string{"outcome", "device"},
		),
		denialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "smartqr_denials_total", Help: "Scans denied by an access gate"},
			[]string{"gate"},
		),
		ruleMatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "smartqr_rule_matches_total", Help: "Routing rule matches by action"},
			[]string{"action"},
		),
		fallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "smartqr_fallbacks_total", Help: "Scans routed to the default URL"},
			[]string{"reason"},
		),
		geoLookups: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartqr_geo_lookup_duration_seconds",
				Help:    "Geolocation lookup latency",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"result"},
		),
		scanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "smartqr_scan_duration_seconds",
				Help:    "Time to decide a scan",
				Buckets: prometheus.DefBuckets,
			},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "smartqr_cache_lookups_total", Help: "QR code cache lookups"},
			[]string{"result"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.scansTotal,
		m.denialsTotal,
		m.ruleMatchesTotal,
		m.fallbacksTotal,
		m.geoLookups,
		m.scanDuration,
		m.cacheHits,
	)
	return m
}

// Handler serves the registry, or the default gatherer when reg is nil.
func Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAllowed(device, action string, fallback bool, degraded bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues("allowed", device).Inc()
	m.scanDuration.Observe(elapsed.Seconds())
	switch {
	case !fallback:
		m.ruleMatchesTotal.WithLabelValues(action).Inc()
	case degraded:
		m.fallbacksTotal.WithLabelValues("error").Inc()
	default:
		m.fallbacksTotal.WithLabelValues("no_match").Inc()
	}
}

func (m *Metrics) ObserveDenied(device, gate string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if gate == "" {
		gate = "unknown"
	}
	m.scansTotal.WithLabelValues("denied", device).Inc()
	m.denialsTotal.WithLabelValues(gate).Inc()
	m.scanDuration.Observe(elapsed.Seconds())
}

// ObserveGeoLookup matches the scancontext.Options.OnLookup signature.
func (m *Metrics) ObserveGeoLookup(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.geoLookups.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheHits.WithLabelValues(result).Inc()
}
