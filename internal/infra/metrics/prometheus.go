package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricealert"

type Prometheus struct {
	registry           *prometheus.Registry
	ticks              *prometheus.CounterVec
	triggered          prometheus.Counter
	reconnects         prometheus.Counter
	connected          prometheus.Gauge
	subscribedChannels prometheus.Gauge
	notifyFailures     prometheus.Counter
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Price ticks processed by the match engine.",
		}, []string{"symbol"}),
		triggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Alerts transitioned to triggered.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_reconnects_total",
			Help:      "Feed sessions that ended and were retried.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_connected",
			Help:      "1 while the feed session is connected.",
		}),
		subscribedChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribed_channels",
			Help:      "Channels with at least one created alert.",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered.",
		}),
	}
	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.ticks,
		p.triggered,
		p.reconnects,
		p.connected,
		p.subscribedChannels,
		p.notifyFailures,
	)
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) Gatherer() prometheus.Gatherer { return p.registry }

func (p *Prometheus) TickProcessed(symbol string) { p.ticks.WithLabelValues(symbol).Inc() }

func (p *Prometheus) AlertsTriggered(count int) { p.triggered.Add(float64(count)) }

func (p *Prometheus) FeedReconnect() { p.reconnects.Inc() }

func (p *Prometheus) FeedConnected(connected bool) {
	if connected {
		p.connected.Set(1)
		return
	}
	p.connected.Set(0)
}

func (p *Prometheus) SubscribedChannels(count int) { p.subscribedChannels.Set(float64(count)) }

func (p *Prometheus) NotificationFailed() { p.notifyFailures.Inc() }
