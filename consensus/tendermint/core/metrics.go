package core

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clearmatics/tendermint-core/consensus/tendermint/algorithm"
)

// Metrics exposes the Driver's progress as Prometheus series, grounded on
// the metrics stack the example pack's Bedrock ControlPlane service wires
// up with github.com/prometheus/client_golang.
type Metrics struct {
	Round     prometheus.Gauge
	Step      *prometheus.GaugeVec
	Decisions prometheus.Counter
	Timeouts  *prometheus.CounterVec
}

// NewMetrics registers a fresh Metrics set against reg. Passing a
// dedicated *prometheus.Registry (rather than the global one) keeps
// multiple simulated Drivers in the same test process from colliding.
func NewMetrics(reg *prometheus.Registry, namespace string) *Metrics {
	m := &Metrics{
		Round: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round",
			Help:      "Current consensus round for the active height.",
		}),
		Step: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step",
			Help:      "1 if the replica currently occupies this round step, else 0.",
		}, []string{"step"}),
		Decisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Number of heights decided.",
		}),
		Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeouts_armed_total",
			Help:      "Number of timeouts armed, by step.",
		}, []string{"step"}),
	}
	reg.MustRegister(m.Round, m.Step, m.Decisions, m.Timeouts)
	return m
}

// Observe updates the gauges from a post-transition State and accounts for
// a just-emitted Message, if any.
func (m *Metrics) Observe(s algorithm.State, msg *algorithm.Message) {
	m.Round.Set(float64(s.Round))
	for _, step := range []algorithm.RoundStep{algorithm.NewRound, algorithm.Propose, algorithm.Prevote, algorithm.Precommit, algorithm.Commit} {
		value := 0.0
		if step == s.Step {
			value = 1.0
		}
		m.Step.WithLabelValues(step.String()).Set(value)
	}
	if msg == nil {
		return
	}
	switch msg.Type {
	case algorithm.MessageDecision:
		m.Decisions.Inc()
	case algorithm.MessageTimeout:
		m.Timeouts.WithLabelValues(msg.TimeoutStep.String()).Inc()
	}
}
