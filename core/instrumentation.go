package turntaking

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-voice/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	turnCounter, _ = meter.Int64Counter("voice.turns",
		metric.WithDescription("Utterances handed to the transport"))
	silenceCutoffCounter, _ = meter.Int64Counter("voice.silence_cutoffs",
		metric.WithDescription("Utterances ended by the silence grace period"))
	turnFailureCounter, _ = meter.Int64Counter("voice.turn_failures",
		metric.WithDescription("Turns that ended in Error or Disconnected"))
	replyLatency, _ = meter.Float64Histogram("voice.reply_latency",
		metric.WithDescription("Time from utterance send to reply"),
		metric.WithUnit("s"))
)
