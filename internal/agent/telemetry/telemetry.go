package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry aggregates the pipeline's Prometheus metrics. It carries its
// own registry so tests can build isolated instances.
type Telemetry struct {
	registry *prometheus.Registry

	agentRuns     *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec
	llmCalls      *prometheus.CounterVec
	llmDuration   *prometheus.HistogramVec
	cacheOps      *prometheus.CounterVec
	criticRetries prometheus.Counter
	lowConfidence prometheus.Counter
}

func New() *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		agentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountplan_agent_runs_total",
			Help: "Agent invocations by agent name and outcome.",
		}, []string{"agent", "outcome"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accountplan_agent_duration_seconds",
			Help:    "Agent run duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountplan_llm_calls_total",
			Help: "LLM calls by model and outcome.",
		}, []string{"model", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accountplan_llm_duration_seconds",
			Help:    "LLM call duration.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountplan_cache_ops_total",
			Help: "Cache operations by result (hit, miss, expired).",
		}, []string{"result"}),
		criticRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accountplan_critic_retries_total",
			Help: "Synthesis attempts rejected by the critic.",
		}),
		lowConfidence: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accountplan_low_confidence_total",
			Help: "Answers returned after the critic retry budget ran out.",
		}),
	}
	t.registry.MustRegister(
		t.agentRuns, t.agentDuration,
		t.llmCalls, t.llmDuration,
		t.cacheOps, t.criticRetries, t.lowConfidence,
	)
	return t
}

func (t *Telemetry) RecordAgentRun(agent string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	t.agentRuns.WithLabelValues(agent, outcome).Inc()
	t.agentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

func (t *Telemetry) RecordLLMCall(model string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	t.llmCalls.WithLabelValues(model, outcome).Inc()
	t.llmDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (t *Telemetry) RecordCache(result string) { t.cacheOps.WithLabelValues(result).Inc() }
func (t *Telemetry) RecordCriticRetry()        { t.criticRetries.Inc() }
func (t *Telemetry) RecordLowConfidence()      { t.lowConfidence.Inc() }

// Handler serves the metrics endpoint for this instance's registry.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
