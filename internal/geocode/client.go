// Package geocode resolves warehouse site addresses to coordinates through a
// Google-compatible geocoding API.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/JonMunkholm/warehouse/internal/config"
	"github.com/JonMunkholm/warehouse/internal/importer"
)

// ErrNoResults is returned when the API knows no location for the address.
var ErrNoResults = errors.New("geocode: no results")

// Client is an importer.Geocoder guarded by a rate limiter and a circuit
// breaker. Addresses with no result do not count as breaker failures.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[importer.Coordinates]
	metrics *Metrics
}

var _ importer.Geocoder = (*Client)(nil)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records breaker state and request outcomes.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New builds a Client from cfg. It returns nil when no API key is set; use
// FromConfig to get a Geocoder that is always usable.
func New(cfg config.GeocodeConfig, opts ...Option) *Client {
	if cfg.APIKey == "" {
		return nil
	}

	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(rate.Limit(max(cfg.RatePerSecond, 1)), max(cfg.RatePerSecond, 1)),
	}
	for _, opt := range opts {
		opt(c)
	}

	failures := uint32(max(cfg.BreakerFailures, 1))
	c.metrics.setState(gobreaker.StateClosed)
	c.cb = gobreaker.NewCircuitBreaker[importer.Coordinates](gobreaker.Settings{
		Name:        "geocode",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("geocode circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			c.metrics.setState(to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoResults)
		},
	})
	return c
}

// FromConfig returns a live Client, or importer.NoopGeocoder when
// geocoding is not configured.
func FromConfig(cfg config.GeocodeConfig, opts ...Option) importer.Geocoder {
	if c := New(cfg, opts...); c != nil {
		return c
	}
	return importer.NoopGeocoder{}
}

// Geocode implements importer.Geocoder.
func (c *Client) Geocode(ctx context.Context, address string) (importer.Coordinates, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return importer.Coordinates{}, fmt.Errorf("geocode: %w", err)
	}

	coords, err := c.cb.Execute(func() (importer.Coordinates, error) {
		return c.lookup(ctx, address)
	})
	switch {
	case err == nil:
		c.metrics.observe("success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.observe("rejected")
		return importer.Coordinates{}, fmt.Errorf("geocode: %w", err)
	case errors.Is(err, ErrNoResults):
		c.metrics.observe("no_results")
	default:
		c.metrics.observe("failure")
	}
	return coords, err
}

// response is the subset of the Google Geocoding API reply we read.
type response struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *Client) lookup(ctx context.Context, address string) (importer.Coordinates, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return importer.Coordinates{}, fmt.Errorf("geocode: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the API key; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return importer.Coordinates{}, fmt.Errorf("geocode: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return importer.Coordinates{}, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return importer.Coordinates{}, fmt.Errorf("geocode: decode response: %w", err)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return importer.Coordinates{}, ErrNoResults
	default:
		if body.ErrorMessage != "" {
			return importer.Coordinates{}, fmt.Errorf("geocode: %s: %s", body.Status, body.ErrorMessage)
		}
		return importer.Coordinates{}, fmt.Errorf("geocode: status %s", body.Status)
	}

	if len(body.Results) == 0 {
		return importer.Coordinates{}, ErrNoResults
	}
	loc := body.Results[0].Geometry.Location
	return importer.Coordinates{Lat: loc.Lat, Lng: loc.Lng}, nil
}
