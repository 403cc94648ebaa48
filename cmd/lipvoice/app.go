package main

import (
	"context"
	"io"

	"github.com/lipvoice/voice-client/api"
	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/gateway"
	"github.com/lipvoice/voice-client/identity"
	"github.com/lipvoice/voice-client/internal/config"
	"github.com/lipvoice/voice-client/internal/logging"
	"github.com/lipvoice/voice-client/internal/storage"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// app is everything a command may need, wired from config.
type app struct {
	cfg    config.Config
	out    io.Writer
	log    zerolog.Logger
	store  *storage.Store
	guests *identity.Manager
	creds  credentials.Store
	client *api.Client

	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

func newApp(ctx context.Context, cfg config.Config, out io.Writer) (*app, error) {
	logger := logging.Init(cfg.GetLogLevel(), cfg.GetLogPretty())

	store, err := storage.Open(ctx, cfg.GetStorePath(), logger)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	guests := identity.NewManager(identity.NewStoreRepo(store),
		identity.WithLifetime(cfg.GetGuestLifetime()),
		identity.WithLogger(logger),
	)
	creds := credentials.NewLocalStore(store)

	client, err := api.New(cfg.GetBaseURL(), creds,
		api.WithRequestTimeout(cfg.GetRequestTimeout()),
		api.WithGuests(guests),
		api.WithClientLogger(logger),
		api.WithGatewayOptions(
			gateway.WithExpiryStatus(cfg.GetExpiryStatusCode()),
			gateway.WithRefreshTimeout(cfg.GetRefreshTimeout()),
			gateway.WithMeterProvider(provider),
			gateway.OnSessionExpired(func(err error) {
				logger.Warn().Err(err).Msg("session expired, run `lipvoice login` again")
			}),
		),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		out:      out,
		log:      logger,
		store:    store,
		guests:   guests,
		creds:    creds,
		client:   client,
		reader:   reader,
		provider: provider,
	}, nil
}

func (a *app) close(stats bool) {
	ctx := context.Background()
	if stats {
		a.logStats(ctx)
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		a.log.Debug().Err(err).Msg("meter provider shutdown")
	}
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("close local store")
	}
}

func (a *app) logStats(ctx context.Context) {
	var rm metricdata.ResourceMetrics
	if err := a.reader.Collect(ctx, &rm); err != nil {
		a.log.Warn().Err(err).Msg("collect metrics")
		return
	}
	ev := a.log.Info()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			ev = ev.Int64(m.Name, total)
		}
	}
	ev.Msg("gateway stats")
}
