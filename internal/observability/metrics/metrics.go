// Package metrics holds the Prometheus instruments for the ODE engine, its
// delivery queue and its sinks.
//
// A nil *Metrics is valid and records nothing, so components take an optional
// pointer and never branch on whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "odeflow"

// Metrics is the set of engine instruments.
type Metrics struct {
	batchesTotal      prometheus.Counter
	framesTotal       prometheus.Counter
	objectsTotal      prometheus.Counter
	batchDuration     prometheus.Histogram
	triggersActive    prometheus.Gauge
	triggerFiresTotal *prometheus.CounterVec
	triggerPanics     *prometheus.CounterVec
	actionsTotal      *prometheus.CounterVec
	actionsSkipped    *prometheus.CounterVec
	queueDepth        prometheus.Gauge
	queueJobsTotal    *prometheus.CounterVec
	queueDropped      prometheus.Counter
	sinkDeliveries    *prometheus.CounterVec
	sinkDuration      *prometheus.HistogramVec
}

// New creates the instruments and registers them with reg. A nil registerer
// yields a nil *Metrics.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "batches_total",
			Help:      "Batches processed by the ODE handler",
		}),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "frames_total",
			Help:      "Frames processed by the ODE handler",
		}),
		objectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "objects_total",
			Help:      "Detected objects evaluated by the ODE handler",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "batch_duration_seconds",
			Help:      "Time spent evaluating one batch",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		triggersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "triggers",
			Help:      "Triggers registered with the handler",
		}),
		triggerFiresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "fires_total",
			Help:      "Trigger fires",
		}, []string{"trigger", "kind"}),
		triggerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "panics_total",
			Help:      "Recovered panics during trigger evaluation",
		}, []string{"trigger"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "invocations_total",
			Help:      "Action invocations",
		}, []string{"action", "kind"}),
		actionsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "skipped_total",
			Help:      "Action invocations skipped at fire time",
		}, []string{"action", "reason"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "queue_depth",
			Help:      "Jobs waiting in the delivery queue",
		}),
		queueJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "jobs_total",
			Help:      "Delivery jobs run, by result",
		}, []string{"result"}),
		queueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "dropped_total",
			Help:      "Delivery jobs dropped because the queue was full or stopped",
		}),
		sinkDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "deliveries_total",
			Help:      "Occurrence deliveries per sink, by result",
		}, []string{"sink", "result"}),
		sinkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering one occurrence",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
	}

	for _, c := range []prometheus.Collector{
		m.batchesTotal,
		m.framesTotal,
		m.objectsTotal,
		m.batchDuration,
		m.triggersActive,
		m.triggerFiresTotal,
		m.triggerPanics,
		m.actionsTotal,
		m.actionsSkipped,
		m.queueDepth,
		m.queueJobsTotal,
		m.queueDropped,
		m.sinkDeliveries,
		m.sinkDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// BatchProcessed records one batch of frames and objects.
func (m *Metrics) BatchProcessed(frames, objects int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batchesTotal.Inc()
	m.framesTotal.Add(float64(frames))
	m.objectsTotal.Add(float64(objects))
	m.batchDuration.Observe(elapsed.Seconds())
}

// SetTriggers records the number of registered triggers.
func (m *Metrics) SetTriggers(n int) {
	if m == nil {
		return
	}
	m.triggersActive.Set(float64(n))
}

// TriggerFired counts one fire.
func (m *Metrics) TriggerFired(trigger, kind string) {
	if m == nil {
		return
	}
	m.triggerFiresTotal.WithLabelValues(trigger, kind).Inc()
}

// TriggerPanicked counts a recovered evaluation panic.
func (m *Metrics) TriggerPanicked(trigger string) {
	if m == nil {
		return
	}
	m.triggerPanics.WithLabelValues(trigger).Inc()
}

// ActionInvoked counts one action invocation.
func (m *Metrics) ActionInvoked(action, kind string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(action, kind).Inc()
}

// ActionSkipped counts an invocation skipped for reason.
func (m *Metrics) ActionSkipped(action, reason string) {
	if m == nil {
		return
	}
	m.actionsSkipped.WithLabelValues(action, reason).Inc()
}

// SetQueueDepth records the current delivery queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// JobDone counts a finished delivery job. result is "ok", "error" or "panic".
func (m *Metrics) JobDone(result string) {
	if m == nil {
		return
	}
	m.queueJobsTotal.WithLabelValues(result).Inc()
}

// JobDropped counts a job the queue refused.
func (m *Metrics) JobDropped() {
	if m == nil {
		return
	}
	m.queueDropped.Inc()
}

// SinkDelivered records one sink delivery attempt.
func (m *Metrics) SinkDelivered(sink string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sinkDeliveries.WithLabelValues(sink, result).Inc()
	m.sinkDuration.WithLabelValues(sink).Observe(elapsed.Seconds())
}
