package provider

import (
	"context"
	"errors"

	"github.com/jengzang/svi-coverage-go/internal/models"
)

var (
	// ErrRateLimited is returned when the provider rejects a query for quota reasons
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrMalformedResponse is returned when a response body cannot be interpreted
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Provider resolves a coordinate to the panoramas near it
type Provider interface {
	Panoramas(ctx context.Context, lat, lon float64) ([]models.RawPanorama, error)
}

// Func adapts a plain function to the Provider interface
type Func func(ctx context.Context, lat, lon float64) ([]models.RawPanorama, error)

// Panoramas calls f
func (f Func) Panoramas(ctx context.Context, lat, lon float64) ([]models.RawPanorama, error) {
	return f(ctx, lat, lon)
}
