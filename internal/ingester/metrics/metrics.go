package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/G-Research/eventhouse/internal/ingester/model"
)

const MetricsPrefix = "eventhouse_"

type (
	FlushOutcome string
	FlushReason  string
)

const (
	FlushOutcomeSuccess   FlushOutcome = "success"
	FlushOutcomePermanent FlushOutcome = "permanent_failure"
	FlushOutcomeTransient FlushOutcome = "transient_failure"

	FlushReasonSize     FlushReason = "size"
	FlushReasonTimer    FlushReason = "timer"
	FlushReasonShutdown FlushReason = "shutdown"
)

type Metrics struct {
	eventsReceived    *prometheus.CounterVec
	pullErrors        prometheus.Counter
	unroutable        *prometheus.CounterVec
	dispositions      *prometheus.CounterVec
	dispositionErrors *prometheus.CounterVec
	flushes           *prometheus.CounterVec
	flushRows         *prometheus.HistogramVec
	flushBytes        *prometheus.HistogramVec
	flushLatency      *prometheus.HistogramVec
	pendingRows       prometheus.Gauge
}

// New registers the ingester metrics with registerer
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricsPrefix + "events_received_total",
			Help: "Number of events pulled from the queue grouped by subject",
		}, []string{"subject"}),
		pullErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: MetricsPrefix + "pull_errors_total",
			Help: "Number of failed pulls from the queue",
		}),
		unroutable: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricsPrefix + "unroutable_events_total",
			Help: "Number of events rejected because their subject has no route",
		}, []string{"subject"}),
		dispositions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricsPrefix + "dispositions_total",
			Help: "Number of messages settled grouped by disposition",
		}, []string{"disposition"}),
		dispositionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricsPrefix + "disposition_errors_total",
			Help: "Number of dispositions the queue failed to accept grouped by disposition",
		}, []string{"disposition"}),
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricsPrefix + "flushes_total",
			Help: "Number of batch flushes grouped by table, reason and outcome",
		}, []string{"table", "reason", "outcome"}),
		flushRows: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricsPrefix + "flush_rows",
			Help:    "Number of rows per flushed batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"table"}),
		flushBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricsPrefix + "flush_bytes",
			Help:    "Number of payload bytes per flushed batch",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"table"}),
		flushLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricsPrefix + "flush_latency_seconds",
			Help:    "Time taken to insert a batch into ClickHouse",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"table"}),
		pendingRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: MetricsPrefix + "pending_rows",
			Help: "Number of rows held in memory waiting to be flushed",
		}),
	}
}

func (m *Metrics) RecordEventReceived(subject string) {
	m.eventsReceived.WithLabelValues(subject).Inc()
}

func (m *Metrics) RecordPullError() {
	m.pullErrors.Inc()
}

func (m *Metrics) RecordUnroutable(subject string) {
	m.unroutable.WithLabelValues(subject).Inc()
}

func (m *Metrics) RecordDisposition(d model.Disposition, err error) {
	if err != nil {
		m.dispositionErrors.WithLabelValues(d.String()).Inc()
		return
	}
	m.dispositions.WithLabelValues(d.String()).Inc()
}

func (m *Metrics) RecordFlush(table string, reason FlushReason, outcome FlushOutcome, rows, bytes int, seconds float64) {
	m.flushes.WithLabelValues(table, string(reason), string(outcome)).Inc()
	m.flushRows.WithLabelValues(table).Observe(float64(rows))
	m.flushBytes.WithLabelValues(table).Observe(float64(bytes))
	m.flushLatency.WithLabelValues(table).Observe(seconds)
}

func (m *Metrics) SetPendingRows(rows int) {
	m.pendingRows.Set(float64(rows))
}
