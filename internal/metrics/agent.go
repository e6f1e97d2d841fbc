package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var agentInvocationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "coachsim",
		Subsystem: "agent",
		Name:      "invocations_total",
		Help:      "Total agent invocations by outcome.",
	},
	[]string{"outcome"},
)

// AgentInvocation counts one agent invocation outcome ("ok", an exception
// kind, or "transport_error").
func AgentInvocation(outcome string) {
	agentInvocationsTotal.WithLabelValues(outcome).Inc()
}
