package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOutcomeCountsByLabels(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.ObserveOutcome(PathInteractive, OutcomeRejected)
	m.ObserveOutcome(PathInteractive, OutcomeRejected)
	m.ObserveOutcome(PathDirect, OutcomeSigned)

	if got := testutil.ToFloat64(m.SigningRequests.WithLabelValues(PathInteractive, OutcomeRejected)); got != 2 {
		t.Fatalf("expected 2 rejected, got %v", got)
	}
	if got := testutil.ToFloat64(m.SigningRequests.WithLabelValues(PathDirect, OutcomeSigned)); got != 1 {
		t.Fatalf("expected 1 signed, got %v", got)
	}
}

func TestObserveClientConstructionSplitsFailures(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.ObserveClientConstruction("trx", nil)
	m.ObserveClientConstruction("trx", errors.New("dial"))

	if got := testutil.ToFloat64(m.ClientsConstructed.WithLabelValues("trx")); got != 1 {
		t.Fatalf("expected 1 construction, got %v", got)
	}
	if got := testutil.ToFloat64(m.ClientConstructFail.WithLabelValues("trx")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveOutcome(PathDirect, OutcomeSigned)
	m.ObserveDispatch("software")
	m.ObserveClientConstruction("trx", nil)
}
