package rounds

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

var (
	attrVoteAccept = attribute.Key("vote").String("accept")
	attrVoteReject = attribute.Key("vote").String("reject")
)

func (e *Engine) initMetrics() {
	meter := global.Meter("oraclefs")
	e.metricOpened = metric.Must(meter).NewInt64Counter("oraclefs.rounds.opened.total")
	e.metricVotes = metric.Must(meter).NewInt64Counter("oraclefs.rounds.votes.total")
	e.metricFinalized = metric.Must(meter).NewInt64Counter("oraclefs.rounds.votes.finalized.total")
}
