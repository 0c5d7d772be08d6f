package escrow

import (
	"math"
	"math/big"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

func (b *Bank) initMetrics() {
	meter := global.Meter("oraclefs")
	b.metricCharged = metric.Must(meter).NewInt64Counter("oraclefs.escrow.charged.total")
	b.metricPaid = metric.Must(meter).NewInt64Counter("oraclefs.escrow.paid.total")
}

// counterValue returns amount as a counter increment. Amounts that
// don't fit an int64 are clamped to math.MaxInt64.
func counterValue(amount *big.Int) int64 {
	if amount.IsInt64() {
		return amount.Int64()
	}
	if amount.Sign() < 0 {
		return 0
	}
	return math.MaxInt64
}
