package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements Collector on a private registry.
type Prometheus struct {
	installs    *prometheus.CounterVec
	requests    *prometheus.CounterVec
	present     prometheus.Gauge
	transitions *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheus creates a collector whose metric names start with namespace
// ("bundlego" when empty). Go runtime and process collectors are registered alongside.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "bundlego"
	}

	p := &Prometheus{
		registry: prometheus.NewRegistry(),
	}

	p.installs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_installs_total",
			Help:      "Total number of packaged entries processed by the installer",
		},
		[]string{"result"},
	)

	p.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_requests_total",
			Help:      "Total number of requests handled by the bridge",
		},
		[]string{"outcome"},
	)

	p.present = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delegate_present",
			Help:      "1 while a request delegate is tracked",
		},
	)

	p.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_transitions_total",
			Help:      "Total number of delegate tracker transitions",
		},
		[]string{"to"},
	)

	p.registry.MustRegister(
		p.installs,
		p.requests,
		p.present,
		p.transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return p
}

// BundleInstall implements Collector.
func (p *Prometheus) BundleInstall(result string) {
	p.installs.WithLabelValues(result).Inc()
}

// BridgeRequest implements Collector.
func (p *Prometheus) BridgeRequest(outcome string) {
	p.requests.WithLabelValues(outcome).Inc()
}

// DelegatePresent implements Collector.
func (p *Prometheus) DelegatePresent(present bool) {
	if present {
		p.present.Set(1)
		return
	}
	p.present.Set(0)
}

// TrackerTransition implements Collector.
func (p *Prometheus) TrackerTransition(to string) {
	p.transitions.WithLabelValues(to).Inc()
}

// Registry returns the private registry the metrics live in.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
