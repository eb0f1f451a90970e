// Package geocoder resolves free-text addresses to coordinates.
//
// The LocationIQ client sends one upstream request per call with the
// default HTTP client. A retrying HTTPDoer installed with SetHTTPClient
// (geocoder.max_retries > 0) may send more, all inside the caller's
// deadline. The shipped configuration leaves retries off.
package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/placebook/placebook/internal/domain"
	"github.com/placebook/placebook/internal/pkg/httpretry"
)

// Resolver turns an address into a location.
type Resolver interface {
	Resolve(ctx context.Context, address string) (domain.Location, error)
}

// Config holds LocationIQ settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is the LocationIQ forward-geocoding client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a client with a plain http.Client. Use SetHTTPClient to
// add retries or to point tests at a fake.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// searchResult is one element of the LocationIQ search response. Errors come
// back as an object with "error"; legacy proxies answer with "status".
type searchResult struct {
	Lat    string `json:"lat"`
	Lon    string `json:"lon"`
	Status string `json:"status"`
}

// Resolve returns the coordinates of the first search result.
func (c *Client) Resolve(ctx context.Context, address string) (domain.Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.Location{}, ErrAddressNotResolvable
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", address)
	q.Set("format", "json")
	reqURL := fmt.Sprintf("%s/v1/search.php?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Location{}, fmt.Errorf("%w: build request: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Location{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Location{}, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// LocationIQ answers {"error":"Unable to geocode"} with a 404.
		return domain.Location{}, ErrAddressNotResolvable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return domain.Location{}, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return domain.Location{}, fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}
	return firstLocation(results)
}

func firstLocation(results []searchResult) (domain.Location, error) {
	if len(results) == 0 || results[0].Status == "ZERO_RESULTS" {
		return domain.Location{}, ErrAddressNotResolvable
	}

	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lng, errLng := strconv.ParseFloat(results[0].Lon, 64)
	if err := errors.Join(errLat, errLng); err != nil {
		return domain.Location{}, fmt.Errorf("%w: bad coordinates: %v", ErrAddressNotResolvable, err)
	}

	loc := domain.Location{Lat: lat, Lng: lng}
	if !loc.Valid() {
		return domain.Location{}, fmt.Errorf("%w: coordinates out of range", ErrAddressNotResolvable)
	}
	return loc, nil
}
