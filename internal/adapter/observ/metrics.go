package observ

import (
	"context"

	"github.com/lumora/storefront-api/internal/cart"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cartMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Orchestrated cart mutations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	cartRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_recoveries_total",
			Help: "Mutations that succeeded only after recreate-and-replay",
		},
	)

	cartNoOps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_noop_mutations_total",
			Help: "Mutations the remote service silently ignored",
		},
	)
)

// Metrics implements cart.ResultSink on Prometheus counters.
type Metrics struct{}

func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) Record(_ context.Context, _ string, op cart.Op, res cart.MutationResult) {
	outcome := "success"
	if !res.Success {
		outcome = string(res.FirstKind())
	}
	cartMutations.WithLabelValues(string(op), outcome).Inc()

	if res.WasRecovered {
		cartRecoveries.Inc()
	}
	if res.HasKind(cart.KindNoOpMutation) {
		cartNoOps.Inc()
	}
}

var _ cart.ResultSink = (*Metrics)(nil)
