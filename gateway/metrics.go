package gateway

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/lipvoice/voice-client/gateway"

type metrics struct {
	refreshes       metric.Int64Counter
	refreshFailures metric.Int64Counter
	queued          metric.Int64Counter
	replays         metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider, log zerolog.Logger) *metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	fallback := noop.Meter{}

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Warn().Err(err).Str("instrument", name).Msg("metric disabled")
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	return &metrics{
		refreshes:       counter("gateway.refresh.attempts", "Credential refresh calls issued"),
		refreshFailures: counter("gateway.refresh.failures", "Credential refresh calls that failed"),
		queued:          counter("gateway.requests.queued", "Requests parked behind a credential refresh"),
		replays:         counter("gateway.requests.replayed", "Requests reissued after a credential refresh"),
	}
}
