package socket

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-voice/core/transport/socket"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	dialAttemptCounter, _ = meter.Int64Counter("voice.transport.dial_attempts",
		metric.WithDescription("Dial attempts against the assistant endpoint"))
	inboundCounter, _ = meter.Int64Counter("voice.transport.inbound_messages",
		metric.WithDescription("Messages received from the assistant"))
)
