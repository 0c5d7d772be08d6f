package settlement

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

func (s *Settler) initMetrics() {
	meter := global.Meter("oraclefs")
	s.metricSettled = metric.Must(meter).NewInt64Counter("oraclefs.settlement.rounds.total")
	s.metricLate = metric.Must(meter).NewInt64Counter("oraclefs.settlement.late.total")
}
