package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Signing paths.
const (
	PathInteractive = "interactive"
	PathDirect      = "direct"
)

// Signing outcomes.
const (
	OutcomeSigned         = "signed"
	OutcomeRejected       = "rejected"
	OutcomeSigningFailed  = "signing_failed"
	OutcomeKeyNotFound    = "key_not_found"
	OutcomeConsentTimeout = "consent_timeout"
)

// Metrics contains the Prometheus collectors for the signing pipeline.
type Metrics struct {
	// Signing broker metrics
	SigningRequests *prometheus.CounterVec
	SignerDispatch  *prometheus.CounterVec
	ConsentWait     prometheus.Histogram

	// Network client cache metrics
	ClientsConstructed  *prometheus.CounterVec
	ClientConstructFail *prometheus.CounterVec
}

// New registers metrics on the default registerer.
func New() *Metrics {
	return NewWithRegistry(nil)
}

// NewWithRegistry initializes and registers metrics with a custom registry.
func NewWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		SigningRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_signing_requests_total",
			Help: "Signing requests by path and terminal outcome",
		}, []string{"path", "outcome"}),
		SignerDispatch: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_signer_dispatch_total",
			Help: "Signer invocations by capability kind",
		}, []string{"kind"}),
		ConsentWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_consent_wait_seconds",
			Help:    "Time spent waiting for a consent result",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		ClientsConstructed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_network_clients_constructed_total",
			Help: "Network clients constructed by the client cache",
		}, []string{"blockchain"}),
		ClientConstructFail: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_network_client_construction_failures_total",
			Help: "Network client constructions that failed",
		}, []string{"blockchain"}),
	}
}

// ObserveOutcome records a terminal signing outcome. Safe on a nil receiver.
func (m *Metrics) ObserveOutcome(path, outcome string) {
	if m == nil {
		return
	}
	m.SigningRequests.WithLabelValues(path, outcome).Inc()
}

// ObserveDispatch records which signer kind produced (or attempted) a signature.
func (m *Metrics) ObserveDispatch(kind string) {
	if m == nil {
		return
	}
	m.SignerDispatch.WithLabelValues(kind).Inc()
}

// ObserveConsentWait records how long the consent channel took to answer.
func (m *Metrics) ObserveConsentWait(d time.Duration) {
	if m == nil {
		return
	}
	m.ConsentWait.Observe(d.Seconds())
}

// ObserveClientConstruction records a client build attempt for blockchain.
func (m *Metrics) ObserveClientConstruction(blockchain string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ClientConstructFail.WithLabelValues(blockchain).Inc()
		return
	}
	m.ClientsConstructed.WithLabelValues(blockchain).Inc()
}
