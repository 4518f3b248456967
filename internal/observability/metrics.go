package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	InvokerAttempts    *prometheus.CounterVec
	InvokerRetries     *prometheus.CounterVec
	InvokerLatency     *prometheus.HistogramVec
	CredentialReselect prometheus.Counter

	ActiveLiveSessions prometheus.Gauge
	LiveEvents         *prometheus.CounterVec
	LiveFrames         *prometheus.CounterVec
	LiveInterruptions  prometheus.Counter

	OneShotPlaybacks *prometheus.CounterVec
}

// NewMetrics builds the instruments on a private registry so that several
// instances can coexist in one process.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		InvokerAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoker_attempts_total",
			Help:      "Remote call attempts by capability and outcome.",
		}, []string{"capability", "outcome"}),
		InvokerRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoker_retries_total",
			Help:      "Backoff retries scheduled after a quota error.",
		}, []string{"capability"}),
		InvokerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoker_call_duration_ms",
			Help:      "End-to-end duration of an invoked call including retries, in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000, 64000},
		}, []string{"capability"}),
		CredentialReselect: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_reselections_total",
			Help:      "Credential re-selection requests triggered by not-found errors.",
		}),
		ActiveLiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of live voice sessions holding devices.",
		}),
		LiveEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_session_events_total",
			Help:      "Live session lifecycle events by type.",
		}, []string{"event"}),
		LiveFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_frames_total",
			Help:      "Live audio frames by direction and result.",
		}, []string{"direction", "result"}),
		LiveInterruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_interruptions_total",
			Help:      "Barge-in interruptions received from the model.",
		}),
		OneShotPlaybacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oneshot_playbacks_total",
			Help:      "One-shot speech playbacks by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveAttempt(capability, outcome string) {
	if m == nil {
		return
	}
	m.InvokerAttempts.WithLabelValues(capability, outcome).Inc()
}

func (m *Metrics) ObserveRetry(capability string) {
	if m == nil {
		return
	}
	m.InvokerRetries.WithLabelValues(capability).Inc()
}

func (m *Metrics) ObserveCall(capability string, d time.Duration) {
	if m == nil {
		return
	}
	m.InvokerLatency.WithLabelValues(capability).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveReselect() {
	if m == nil {
		return
	}
	m.CredentialReselect.Inc()
}

func (m *Metrics) LiveEvent(event string) {
	if m == nil {
		return
	}
	m.LiveEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) LiveSessionOpened() {
	if m == nil {
		return
	}
	m.ActiveLiveSessions.Inc()
}

func (m *Metrics) LiveSessionClosed() {
	if m == nil {
		return
	}
	m.ActiveLiveSessions.Dec()
}

func (m *Metrics) LiveFrame(direction, result string) {
	if m == nil {
		return
	}
	m.LiveFrames.WithLabelValues(direction, result).Inc()
}

func (m *Metrics) Interruption() {
	if m == nil {
		return
	}
	m.LiveInterruptions.Inc()
}

func (m *Metrics) OneShot(result string) {
	if m == nil {
		return
	}
	m.OneShotPlaybacks.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
