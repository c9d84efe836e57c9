// Package metrics records deployment and verification outcomes of one run in
// a private Prometheus registry and can dump them in the textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contract_deployer"

const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeTimeout     = "timeout"
	OutcomeRejected    = "rejected"
	OutcomeSkipped     = "skipped"
	OutcomeConfigError = "configuration_error"
)

// Recorder is safe for concurrent use. A nil Recorder records nothing.
type Recorder struct {
	network  string
	registry *prometheus.Registry

	deploymentsTotal   *prometheus.CounterVec
	deploymentDuration *prometheus.HistogramVec
	verificationsTotal *prometheus.CounterVec
}

// NewRecorder creates a recorder labelling every series with network
func NewRecorder(network string) *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		network:  network,
		registry: registry,
		deploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Contract deployments by outcome",
			},
			[]string{"network", "contract", "outcome"},
		),
		deploymentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deployment_duration_seconds",
				Help:      "Time from submission to confirmation",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"network", "contract"},
		),
		verificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifications_total",
				Help:      "Source verifications by outcome",
			},
			[]string{"network", "contract", "outcome"},
		),
	}
}

func (r *Recorder) ObserveDeployment(contract, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.deploymentsTotal.WithLabelValues(r.network, contract, outcome).Inc()
	if outcome == OutcomeSuccess {
		r.deploymentDuration.WithLabelValues(r.network, contract).Observe(elapsed.Seconds())
	}
}

func (r *Recorder) ObserveVerification(contract, outcome string) {
	if r == nil {
		return
	}
	r.verificationsTotal.WithLabelValues(r.network, contract, outcome).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all series to path in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
