package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"peerctl/internal/model"
)

const namespace = "peerctl"

// Collector exposes registry, daemon and HTTP activity as Prometheus metrics.
// It is fed from the event bus through Observe.
type Collector struct {
	registry *prometheus.Registry

	peers          prometheus.Gauge
	peerOps        *prometheus.CounterVec
	daemonCalls    *prometheus.CounterVec
	daemonDuration *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of registered peers.",
		}),
		peerOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_operations_total",
			Help:      "Successful peer registry mutations.",
		}, []string{"op"}),
		daemonCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daemon_calls_total",
			Help:      "Daemon sync and restart calls by outcome.",
		}, []string{"kind", "outcome"}),
		daemonDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "daemon_call_duration_seconds",
			Help:      "Duration of daemon sync and restart calls.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Observe updates the collectors for one event. It matches the event bus subscriber signature.
func (c *Collector) Observe(ev model.Event) error {
	switch ev.Kind {
	case model.EventPeerAdded:
		c.peerOps.WithLabelValues("add").Inc()
		c.peers.Inc()
	case model.EventPeerRemoved:
		c.peerOps.WithLabelValues("remove").Inc()
		c.peers.Dec()
	case model.EventRegistryReconciled:
		c.peerOps.WithLabelValues("reconcile").Inc()
	case model.EventDaemonSync, model.EventDaemonRestart:
		c.daemonCalls.WithLabelValues(ev.Kind, ev.Outcome).Inc()
		c.daemonDuration.WithLabelValues(ev.Kind).Observe(ev.Duration.Seconds())
	}
	return nil
}

// SetPeers sets the peer gauge, e.g. after the registry loaded at startup.
func (c *Collector) SetPeers(n int) {
	c.peers.Set(float64(n))
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
