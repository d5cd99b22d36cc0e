package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by every counter.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAbsent  = "absent"
)

var (
	// AuthOperations counts Session Manager calls by operation and outcome.
	AuthOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth_gateway",
		Name:      "operations_total",
		Help:      "Identity operations issued against the identity service.",
	}, []string{"operation", "outcome"})

	// CallbackResolutions counts post-redirect callback outcomes.
	CallbackResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth_gateway",
		Name:      "callback_resolutions_total",
		Help:      "Federated callback resolutions by final state.",
	}, []string{"state"})
)

// Observe records an operation outcome derived from err.
func Observe(operation string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	AuthOperations.WithLabelValues(operation, outcome).Inc()
}
