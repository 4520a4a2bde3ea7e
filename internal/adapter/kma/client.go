// Package kma fetches the raw hourly observation feeds from the KMA API Hub.
package kma

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-feature-etl/internal/config"
	"github.com/couchcryptid/weather-feature-etl/internal/domain"
	"github.com/couchcryptid/weather-feature-etl/internal/observability"
)

// requestTimeLayout is the only time format the API accepts; minutes are
// always zero because observations are published on the hour.
const requestTimeLayout = "200601021504"

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// endpoints maps each feed to its API path.
var endpoints = map[domain.SourceType]string{
	domain.SourceThermal:     "kma_sfctm2.php",
	domain.SourceParticulate: "kma_pm10.php",
	domain.SourceUV:          "kma_sfctm_uv.php",
}

// Client requests single feeds from the KMA API Hub.
type Client struct {
	baseURL    string
	apiKey     string
	stationID  string
	httpClient *http.Client
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a KMA client from the service configuration.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   cfg.KMABaseURL,
		apiKey:    cfg.KMAAPIKey,
		stationID: cfg.KMAStationID,
		httpClient: &http.Client{
			Timeout: cfg.KMATimeout,
		},
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  logger,
	}
}

// FetchSource requests a single feed for the hour containing tick.
func (c *Client) FetchSource(ctx context.Context, source domain.SourceType, tick time.Time) (domain.RawBlob, error) {
	endpoint, ok := endpoints[source]
	if !ok {
		return domain.RawBlob{}, fmt.Errorf("unknown source %q", source)
	}

	start := c.clock.Now()
	text, err := c.doRequest(ctx, c.requestURL(endpoint, source, tick), source)
	c.metrics.FetchDuration.WithLabelValues(string(source)).Observe(c.clock.Since(start).Seconds())
	if err != nil {
		c.metrics.BlobsFetched.WithLabelValues(string(source), "error").Inc()
		return domain.RawBlob{}, err
	}
	c.metrics.BlobsFetched.WithLabelValues(string(source), "success").Inc()

	c.logger.Debug("fetched source", "source", source, "bytes", len(text))
	return domain.RawBlob{
		Source:      source,
		CollectedAt: c.clock.Now().UTC(),
		Text:        text,
	}, nil
}

func (c *Client) requestURL(endpoint string, source domain.SourceType, tick time.Time) string {
	tm := tick.UTC().Truncate(time.Hour).Format(requestTimeLayout)
	params := url.Values{
		"stn":     {c.stationID},
		"authKey": {c.apiKey},
	}
	if source == domain.SourceParticulate {
		params.Set("tm1", tm)
		params.Set("tm2", tm)
	} else {
		params.Set("tm", tm)
	}
	return c.baseURL + "/" + endpoint + "?" + params.Encode()
}

func (c *Client) doRequest(ctx context.Context, fullURL string, source domain.SourceType) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("kma API error: %s: status %d: %s", source, resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", source, err)
	}
	return string(body), nil
}
