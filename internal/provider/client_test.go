package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/svi-coverage-go/internal/config"
)

func newTestClient(t *testing.T, format string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(&config.Config{
		ProviderFormat: format,
		ProviderURL:    srv.URL,
		ProviderAPIKey: "k",
	})
	require.NoError(t, err)
	return c
}

func TestPanoidsFormat(t *testing.T) {
	var gotLat, gotLon string
	c := newTestClient(t, config.ProviderFormatPanoids, func(w http.ResponseWriter, r *http.Request) {
		gotLat = r.URL.Query().Get("lat")
		gotLon = r.URL.Query().Get("lon")
		w.Write([]byte(`[
			{"panoid":"A","lat":55.86,"lon":-4.25,"year":2019,"month":3},
			{"panoid":"B","lat":55.87,"lon":-4.26},
			{"lat":1,"lon":2}
		]`))
	})

	panos, err := c.Panoramas(context.Background(), 55.8642, -4.2518)
	require.NoError(t, err)
	assert.Equal(t, "55.8642", gotLat)
	assert.Equal(t, "-4.2518", gotLon)

	require.Len(t, panos, 2)
	assert.Equal(t, "A", panos[0].PanoID)
	require.NotNil(t, panos[0].Year)
	assert.Equal(t, 2019, *panos[0].Year)
	assert.Equal(t, 3, *panos[0].Month)
	assert.Nil(t, panos[1].Year)
	assert.Nil(t, panos[1].Month)
}

func TestPanoidsMalformed(t *testing.T) {
	c := newTestClient(t, config.ProviderFormatPanoids, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	})

	_, err := c.Panoramas(context.Background(), 1, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestHTTP429IsRateLimited(t *testing.T) {
	c := newTestClient(t, config.ProviderFormatPanoids, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Panoramas(context.Background(), 1, 2)
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestServerErrorIsReported(t *testing.T) {
	c := newTestClient(t, config.ProviderFormatPanoids, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Panoramas(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestGoogleFormat(t *testing.T) {
	var gotLocation, gotKey string
	c := newTestClient(t, config.ProviderFormatGoogle, func(w http.ResponseWriter, r *http.Request) {
		gotLocation = r.URL.Query().Get("location")
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte(`{"status":"OK","pano_id":"P1","date":"2021-07","location":{"lat":55.1,"lng":-4.2}}`))
	})

	panos, err := c.Panoramas(context.Background(), 55.1, -4.2)
	require.NoError(t, err)
	assert.Equal(t, "55.1,-4.2", gotLocation)
	assert.Equal(t, "k", gotKey)

	require.Len(t, panos, 1)
	assert.Equal(t, "P1", panos[0].PanoID)
	assert.Equal(t, -4.2, panos[0].Lon)
	assert.Equal(t, 2021, *panos[0].Year)
	assert.Equal(t, 7, *panos[0].Month)
}

func TestGoogleStatuses(t *testing.T) {
	panos, err := ParseGoogleMetadata([]byte(`{"status":"ZERO_RESULTS"}`))
	require.NoError(t, err)
	assert.Empty(t, panos)

	_, err = ParseGoogleMetadata([]byte(`{"status":"OVER_QUERY_LIMIT"}`))
	assert.True(t, errors.Is(err, ErrRateLimited))

	_, err = ParseGoogleMetadata([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")

	_, err = ParseGoogleMetadata([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestGoogleYearOnlyDate(t *testing.T) {
	panos, err := ParseGoogleMetadata([]byte(`{"status":"OK","pano_id":"P","date":"2015","location":{"lat":1,"lng":2}}`))
	require.NoError(t, err)
	require.Len(t, panos, 1)
	assert.Equal(t, 2015, *panos[0].Year)
	assert.Nil(t, panos[0].Month)
}

func TestNewClientRequiresURLForPanoids(t *testing.T) {
	_, err := NewClient(&config.Config{ProviderFormat: config.ProviderFormatPanoids})
	assert.Error(t, err)

	c, err := NewClient(&config.Config{ProviderFormat: config.ProviderFormatGoogle, ProviderQPS: 2})
	require.NoError(t, err)
	assert.Contains(t, c.BaseURL, "streetview/metadata")
	assert.NotNil(t, c.limiter)
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, config.ProviderFormatPanoids, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Panoramas(ctx, 1, 2)
	assert.True(t, errors.Is(err, context.Canceled))
}
