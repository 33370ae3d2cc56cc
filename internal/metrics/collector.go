// Package metrics exposes Prometheus collectors for the order lifecycle and
// the push channel.
package metrics

import (
	"net/http"
	"time"

	"coffeenet/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector handles metrics collection and reporting
type Collector struct {
	registry *prometheus.Registry
	metrics  map[string]prometheus.Collector
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coffeenet_orders_created_total",
		Help: "Orders accepted into the received status",
	})

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeenet_order_transitions_total",
			Help: "Accepted status transitions",
		},
		[]string{"from", "to"},
	)

	rejections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeenet_mutation_rejections_total",
			Help: "Rejected mutations by reason",
		},
		[]string{"reason"},
	)

	lifetime := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coffeenet_order_lifetime_seconds",
			Help:    "Time from creation to a terminal status",
			Buckets: prometheus.ExponentialBuckets(15, 2, 10),
		},
		[]string{"status"},
	)

	pushMessages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeenet_push_messages_total",
			Help: "Messages enqueued on push connections",
		},
		[]string{"type"},
	)

	viewers := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coffeenet_connected_viewers",
			Help: "Open push connections by role",
		},
		[]string{"role"},
	)

	slowConsumers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coffeenet_push_slow_consumer_disconnects_total",
		Help: "Push connections closed because their send buffer was full",
	})

	metrics := map[string]prometheus.Collector{
		"orders_created": ordersCreated,
		"transitions":    transitions,
		"rejections":     rejections,
		"lifetime":       lifetime,
		"push_messages":  pushMessages,
		"viewers":        viewers,
		"slow_consumers": slowConsumers,
	}

	for _, metric := range metrics {
		registry.MustRegister(metric)
	}
	registry.MustRegister(collectors.NewGoCollector())

	return &Collector{
		registry: registry,
		metrics:  metrics,
	}
}

// Handler serves the registry in the Prometheus text format.
func (mc *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// OrderCreated counts a newly placed order.
func (mc *Collector) OrderCreated() {
	if counter, ok := mc.metrics["orders_created"].(prometheus.Counter); ok {
		counter.Inc()
	}
}

// Transition records an accepted status change. lifetime is only observed
// when the order reached a terminal status.
func (mc *Collector) Transition(from, to models.OrderStatus, lifetime time.Duration) {
	if counter, ok := mc.metrics["transitions"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(from.String(), to.String()).Inc()
	}
	if !to.IsTerminal() {
		return
	}
	if histogram, ok := mc.metrics["lifetime"].(*prometheus.HistogramVec); ok {
		histogram.WithLabelValues(to.String()).Observe(lifetime.Seconds())
	}
}

// Rejected counts a mutation refused with the given error code.
func (mc *Collector) Rejected(reason string) {
	if counter, ok := mc.metrics["rejections"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(reason).Inc()
	}
}

// MessageSent counts a push message by envelope type.
func (mc *Collector) MessageSent(messageType string) {
	if counter, ok := mc.metrics["push_messages"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(messageType).Inc()
	}
}

// ViewerConnected adjusts the connected viewers gauge by delta.
func (mc *Collector) ViewerConnected(role models.Role, delta int) {
	if gauge, ok := mc.metrics["viewers"].(*prometheus.GaugeVec); ok {
		gauge.WithLabelValues(string(role)).Add(float64(delta))
	}
}

// SlowConsumer counts a connection dropped for not keeping up.
func (mc *Collector) SlowConsumer() {
	if counter, ok := mc.metrics["slow_consumers"].(prometheus.Counter); ok {
		counter.Inc()
	}
}
