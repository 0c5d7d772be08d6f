package reencrypt

import (
	"github.com/textileio/oraclefs/oracles"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

func (co *Coordinator) initMetrics() {
	meter := global.Meter("oraclefs")
	co.metricTransitions = metric.Must(meter).NewInt64Counter("oraclefs.reencrypt.jobs.total")
}

func (co *Coordinator) count(c *oracles.Call, transition string) {
	co.metricTransitions.Add(c.Ctx, 1, attribute.Key("transition").String(transition))
}
