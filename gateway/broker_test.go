package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/gateway"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/oauth2"
)

func TestBrokerReplaysInArrivalOrder(t *testing.T) {
	refresher := &countingRefresher{release: make(chan struct{})}
	broker := gateway.NewBroker(refresher, signedIn(t, staleToken), gateway.WithBrokerLogger(zerolog.Nop()))

	var (
		mu    sync.Mutex
		order []int
	)
	type result struct {
		caller int
		status int
		err    error
	}
	results := make([]chan result, 3)

	for i := 0; i < 3; i++ {
		i := i
		results[i] = make(chan result, 1)
		go func() {
			resp, err := broker.Enqueue(context.Background(), staleToken, func(ctx context.Context) (*http.Response, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				rec := httptest.NewRecorder()
				rec.WriteHeader(http.StatusOK + i)
				return rec.Result(), nil
			})
			if err != nil {
				results[i] <- result{caller: i, err: err}
				return
			}
			results[i] <- result{caller: i, status: resp.StatusCode}
		}()
		// enqueue strictly one after the other
		require.Eventually(t, func() bool { return broker.Pending() == i+1 }, 2*time.Second, time.Millisecond)
	}

	close(refresher.release)
	for i := 0; i < 3; i++ {
		r := <-results[i]
		require.NoError(t, r.err)
		require.Equal(t, http.StatusOK+i, r.status, "caller %d got someone else's response", i)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2}, order)
	require.EqualValues(t, 1, refresher.calls.Load())
}

func TestBrokerRefreshWithoutStoredSession(t *testing.T) {
	store := credentials.NewInMemoryStore()
	var seen *credentials.Session
	refresher := gateway.RefresherFunc(func(ctx context.Context, s *credentials.Session) (*oauth2.Token, error) {
		seen = s
		return &oauth2.Token{AccessToken: freshToken, TokenType: "Bearer"}, nil
	})
	broker := gateway.NewBroker(refresher, store, gateway.WithBrokerLogger(zerolog.Nop()))

	resp, err := broker.Enqueue(context.Background(), "", func(ctx context.Context) (*http.Response, error) {
		return httptest.NewRecorder().Result(), nil
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, seen)

	session, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, freshToken, session.AccessToken())
	require.Empty(t, session.RefreshToken())
	require.False(t, broker.Refreshing())
	require.Zero(t, broker.Pending())
}

func TestBrokerMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	b := newBackend(t)
	g := gateway.New(b.server.URL, signedIn(t, staleToken), &countingRefresher{},
		gateway.WithLogger(zerolog.Nop()),
		gateway.WithMeterProvider(provider),
	)
	resp, err := get(t, g, b.server.URL+"/voices/system")
	require.NoError(t, err)
	resp.Body.Close()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	require.Equal(t, int64(1), totals["gateway.refresh.attempts"])
	require.Equal(t, int64(1), totals["gateway.requests.queued"])
	require.Equal(t, int64(1), totals["gateway.requests.replayed"])
	require.Zero(t, totals["gateway.refresh.failures"])
}
