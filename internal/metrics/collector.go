// Package metrics exposes routing counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"kitmsg/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives routing events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Delivered(t domain.MessageType)
	HandlerFailed(t domain.MessageType)
	Published(t domain.MessageType)
	PublishRejected(t domain.MessageType)
	ObserveDispatch(t domain.MessageType, d time.Duration)
	SetSubscriptions(n int)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	reg *prometheus.Registry

	delivered     *prometheus.CounterVec
	failures      *prometheus.CounterVec
	published     *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	dispatch      *prometheus.HistogramVec
	subscriptions prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		reg: reg,
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kitmsg_events_delivered_total", Help: "Inbound events delivered to handlers",
		}, []string{"type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kitmsg_handler_failures_total", Help: "Handler invocations that returned an error or panicked",
		}, []string{"type"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kitmsg_events_published_total", Help: "Outbound events handed to sinks",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kitmsg_publish_rejected_total", Help: "Publish calls for undeclared outbound types",
		}, []string{"type"}),
		dispatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kitmsg_dispatch_seconds",
			Help:    "Handler run time per inbound event",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"type"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kitmsg_active_subscriptions", Help: "Handler subscriptions currently bound",
		}),
	}
	reg.MustRegister(c.delivered, c.failures, c.published, c.rejected, c.dispatch, c.subscriptions)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Delivered(t domain.MessageType) {
	c.delivered.WithLabelValues(string(t)).Inc()
}

func (c *Collector) HandlerFailed(t domain.MessageType) {
	c.failures.WithLabelValues(string(t)).Inc()
}

func (c *Collector) Published(t domain.MessageType) {
	c.published.WithLabelValues(string(t)).Inc()
}

func (c *Collector) PublishRejected(t domain.MessageType) {
	c.rejected.WithLabelValues(string(t)).Inc()
}

func (c *Collector) ObserveDispatch(t domain.MessageType, d time.Duration) {
	c.dispatch.WithLabelValues(string(t)).Observe(d.Seconds())
}

func (c *Collector) SetSubscriptions(n int) {
	c.subscriptions.Set(float64(n))
}

// Noop discards everything.
type Noop struct{}

func (Noop) Delivered(domain.MessageType)                      {}
func (Noop) HandlerFailed(domain.MessageType)                  {}
func (Noop) Published(domain.MessageType)                      {}
func (Noop) PublishRejected(domain.MessageType)                {}
func (Noop) ObserveDispatch(domain.MessageType, time.Duration) {}
func (Noop) SetSubscriptions(int)                              {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Noop{}
)
