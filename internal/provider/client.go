package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/models"
)

const maxBodyBytes = 4 << 20

// Client queries a street-view metadata endpoint over HTTP
type Client struct {
	Format  string
	BaseURL string
	APIKey  string
	RadiusM int

	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a provider client from configuration
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.ProviderURL == "" && cfg.ProviderFormat != config.ProviderFormatGoogle {
		return nil, fmt.Errorf("SVI_PROVIDER_URL is required for format %q", cfg.ProviderFormat)
	}

	baseURL := cfg.ProviderURL
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com/maps/api/streetview/metadata"
	}

	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		Format:     cfg.ProviderFormat,
		BaseURL:    baseURL,
		APIKey:     cfg.ProviderAPIKey,
		RadiusM:    cfg.ProviderRadiusM,
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.ProviderQPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.ProviderQPS), 1)
	}
	return c, nil
}

// Panoramas returns the panoramas the provider reports near (lat, lon)
func (c *Client) Panoramas(ctx context.Context, lat, lon float64) ([]models.RawPanorama, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqURL, err := c.requestURL(lat, lon)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("provider returned HTTP %d", resp.StatusCode)
	}

	if c.Format == config.ProviderFormatGoogle {
		return ParseGoogleMetadata(body)
	}
	return ParsePanoids(body)
}

func (c *Client) requestURL(lat, lon float64) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid provider URL: %w", err)
	}

	q := u.Query()
	latText := strconv.FormatFloat(lat, 'f', -1, 64)
	lonText := strconv.FormatFloat(lon, 'f', -1, 64)
	if c.Format == config.ProviderFormatGoogle {
		q.Set("location", latText+","+lonText)
		if c.RadiusM > 0 {
			q.Set("radius", strconv.Itoa(c.RadiusM))
		}
		if c.APIKey != "" {
			q.Set("key", c.APIKey)
		}
	} else {
		q.Set("lat", latText)
		q.Set("lon", lonText)
		if c.APIKey != "" {
			q.Set("key", c.APIKey)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParsePanoids parses a JSON array of {panoid, lat, lon, year?, month?} objects.
// Entries without a panoid are dropped. Missing or non-numeric year/month stay nil.
func ParsePanoids(body []byte) ([]models.RawPanorama, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected array", ErrMalformedResponse)
	}

	var panos []models.RawPanorama
	for _, item := range root.Array() {
		id := item.Get("panoid").String()
		if id == "" {
			continue
		}
		p := models.RawPanorama{
			PanoID: id,
			Lat:    item.Get("lat").Float(),
			Lon:    item.Get("lon").Float(),
			Year:   intField(item.Get("year")),
			Month:  intField(item.Get("month")),
		}
		panos = append(panos, p)
	}
	return panos, nil
}

// ParseGoogleMetadata parses a Street View Static metadata response
func ParseGoogleMetadata(body []byte) ([]models.RawPanorama, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}

	root := gjson.ParseBytes(body)
	switch status := root.Get("status").String(); status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return nil, nil
	case "OVER_QUERY_LIMIT":
		return nil, ErrRateLimited
	case "":
		return nil, fmt.Errorf("%w: missing status", ErrMalformedResponse)
	default:
		return nil, fmt.Errorf("provider status %s: %s", status, root.Get("error_message").String())
	}

	id := root.Get("pano_id").String()
	if id == "" {
		return nil, fmt.Errorf("%w: missing pano_id", ErrMalformedResponse)
	}

	p := models.RawPanorama{
		PanoID: id,
		Lat:    root.Get("location.lat").Float(),
		Lon:    root.Get("location.lng").Float(),
	}
	p.Year, p.Month = parseCaptureDate(root.Get("date").String())
	return []models.RawPanorama{p}, nil
}

// parseCaptureDate splits "YYYY-MM" or "YYYY" into year and month
func parseCaptureDate(s string) (*int, *int) {
	if s == "" {
		return nil, nil
	}
	parts := strings.SplitN(s, "-", 3)

	y, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, nil
	}
	year := models.IntPtr(y)
	if len(parts) < 2 {
		return year, nil
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return year, nil
	}
	return year, models.IntPtr(m)
}

func intField(r gjson.Result) *int {
	switch r.Type {
	case gjson.Number:
		return models.IntPtr(int(r.Float()))
	case gjson.String:
		f, err := strconv.ParseFloat(r.String(), 64)
		if err != nil {
			return nil
		}
		return models.IntPtr(int(f))
	}
	return nil
}
