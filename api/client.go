package api

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/gateway"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the API root the web front end talks to.
const DefaultBaseURL = "http://localhost:3000/api/v1"

// Client bundles the API services behind one authenticated gateway.
type Client struct {
	Auth   *AuthService
	Voices *VoiceService
	Speech *SpeechService

	gateway *gateway.Gateway
}

type clientConfig struct {
	timeout time.Duration
	guests  gateway.GuestSource
	log     zerolog.Logger
	gwOpts  []gateway.Option
	http    *http.Client
}

type ClientOption func(*clientConfig)

func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithGuests attaches the guest identity to API calls and to the refresh call.
func WithGuests(guests gateway.GuestSource) ClientOption {
	return func(c *clientConfig) {
		c.guests = guests
	}
}

func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.log = logger
	}
}

// WithGatewayOptions passes options straight to the gateway (expiry status,
// refresh timeout, session-expired hook, meter provider).
func WithGatewayOptions(options ...gateway.Option) ClientOption {
	return func(c *clientConfig) {
		c.gwOpts = append(c.gwOpts, options...)
	}
}

// WithHTTPClient replaces the cookie-carrying client. The client should have a
// cookie jar if the backend delivers the refresh token as a cookie.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.http = client
	}
}

// NewHTTPClient returns a client with a cookie jar, standing in for the
// browser's cookie handling of the refresh token.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "[NewHTTPClient] cookie jar")
	}
	return &http.Client{Timeout: timeout, Jar: jar}, nil
}

// New wires the refresher, gateway and services for the API at baseURL.
func New(baseURL string, store credentials.Store, options ...ClientOption) (*Client, error) {
	if store == nil {
		return nil, errors.New("[api.New] credential store is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg := &clientConfig{timeout: 10 * time.Second, log: log.Logger}
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.http == nil {
		hc, err := NewHTTPClient(cfg.timeout)
		if err != nil {
			return nil, err
		}
		cfg.http = hc
	}

	refresher := NewTokenRefresher(baseURL, cfg.http,
		WithRefreshGuests(cfg.guests),
		WithRefresherLogger(cfg.log),
	)

	gwOpts := []gateway.Option{
		gateway.WithHTTPClient(cfg.http),
		gateway.WithLogger(cfg.log),
	}
	if cfg.guests != nil {
		gwOpts = append(gwOpts, gateway.WithGuestIdentity(cfg.guests))
	}
	gwOpts = append(gwOpts, cfg.gwOpts...)
	g := gateway.New(baseURL, store, refresher, gwOpts...)

	return &Client{
		Auth:    NewAuthService(g, store, cfg.log),
		Voices:  NewVoiceService(g),
		Speech:  NewSpeechService(g),
		gateway: g,
	}, nil
}

// Gateway returns the underlying gateway.
func (c *Client) Gateway() *gateway.Gateway {
	return c.gateway
}
