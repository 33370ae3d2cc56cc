package monitoring

import (
	"time"

	"coffeenet/internal/metrics"
	"coffeenet/internal/models"
)

// Recorder feeds lifecycle and push events to Prometheus and to the
// health-check stats at once.
type Recorder struct {
	metrics *metrics.Collector
	monitor *Monitor
}

// NewRecorder pairs a collector with a monitor.
func NewRecorder(collector *metrics.Collector, monitor *Monitor) *Recorder {
	return &Recorder{metrics: collector, monitor: monitor}
}

func (r *Recorder) OrderCreated() {
	r.metrics.OrderCreated()
	r.monitor.RecordEvent("orders_created")
}

func (r *Recorder) Transition(from, to models.OrderStatus, lifetime time.Duration) {
	r.metrics.Transition(from, to, lifetime)
	r.monitor.RecordEvent("transitions")
	if to.IsTerminal() {
		r.monitor.RecordMetric("last_lifetime_seconds", lifetime.Seconds())
	}
}

func (r *Recorder) Rejected(reason string) {
	r.metrics.Rejected(reason)
	r.monitor.RecordEvent("rejected_" + reason)
}

func (r *Recorder) MessageSent(messageType string) {
	r.metrics.MessageSent(messageType)
	r.monitor.Add("push_messages_total", 1)
}

func (r *Recorder) ViewerConnected(role models.Role, delta int) {
	r.metrics.ViewerConnected(role, delta)
	r.monitor.Add("viewers_"+string(role), delta)
}

func (r *Recorder) SlowConsumer() {
	r.metrics.SlowConsumer()
	r.monitor.RecordEvent("slow_consumer_disconnects")
}
