package metrics

import "github.com/prometheus/client_golang/prometheus"

// QueueMetrics exposes counters/histograms for queue and broadcast flows.
type QueueMetrics struct {
	checkinsTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	broadcastFanout    prometheus.Histogram
	subscribers        prometheus.Gauge
}

func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		checkinsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicqueue",
			Subsystem: "engine",
			Name:      "checkins_total",
			Help:      "Total check-ins by kind",
		}, []string{"kind"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicqueue",
			Subsystem: "engine",
			Name:      "transitions_total",
			Help:      "Total queue entry transitions by action and outcome",
		}, []string{"action", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicqueue",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total patient notifications by channel and status",
		}, []string{"channel", "status"}),
		broadcastFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicqueue",
			Subsystem: "realtime",
			Name:      "broadcast_fanout",
			Help:      "Subscribers reached per clinic publish",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinicqueue",
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Currently connected realtime subscribers",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.checkinsTotal, m.transitionsTotal, m.notificationsTotal, m.broadcastFanout, m.subscribers)
	return m
}

func (m *QueueMetrics) ObserveCheckIn(kind string) {
	if m == nil {
		return
	}
	m.checkinsTotal.WithLabelValues(kind).Inc()
}

func (m *QueueMetrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *QueueMetrics) ObserveNotification(channel, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}

func (m *QueueMetrics) ObserveBroadcastFanout(subscribers int) {
	if m == nil {
		return
	}
	m.broadcastFanout.Observe(float64(subscribers))
}

func (m *QueueMetrics) SubscriberConnected() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *QueueMetrics) SubscriberDisconnected() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}
