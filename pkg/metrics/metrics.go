package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	// fast path (0 - 500ms)
	5, 10, 25, 50, 75, 100, 150, 200, 300, 400, 500,
	// slow DB / Stripe round trips
	750, 1000, 1500, 2000, 3000, 5000, 10000, 30000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case "counter_vec":
		return prometheus.NewCounterVec(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "counter":
		return prometheus.NewCounter(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description})
	case "gauge_vec":
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "histogram_vec":
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets}, m.Args)
	case "summary_vec":
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	}
	return nil
}

var webhookEvents = &Metric{
	ID:          "webhookEvents",
	Name:        "webhook_event_total",
	Description: "Stripe webhook events processed, partitioned by event type and result.",
	Type:        "counter_vec",
	Args:        []string{"type", "result"},
}

var roleTransitions = &Metric{
	ID:          "roleTransitions",
	Name:        "role_transition_total",
	Description: "Role reconciliation outcomes, partitioned by transition kind.",
	Type:        "counter_vec",
	Args:        []string{"transition"},
}

var reconcileDur = &Metric{
	ID:          "reconcileDur",
	Name:        "reconcile_dur_ms",
	Description: "Subscription event processing latency in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"type"},
}

// Recorder exposes the billing business metrics. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

func NewRecorder(reg prometheus.Registerer, subsystem string) (*Recorder, error) {
	r := &Recorder{
		events:      NewMetric(webhookEvents, subsystem).(*prometheus.CounterVec),
		transitions: NewMetric(roleTransitions, subsystem).(*prometheus.CounterVec),
		duration:    NewMetric(reconcileDur, subsystem).(*prometheus.HistogramVec),
	}
	for _, c := range []prometheus.Collector{r.events, r.transitions, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) WebhookEvent(eventType, result string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(eventType, result).Inc()
}

func (r *Recorder) RoleTransition(kind string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(kind).Inc()
}

func (r *Recorder) ObserveProcessing(eventType string, start time.Time) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(eventType).Observe(MillisecondsSince(start))
}

// MillisecondsSince returns the elapsed time since start in fractional milliseconds.
func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

const (
	RefererKey = "X-Referer"
)
