package location

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"rakshak/internal/models"
)

// Provider produces a single coordinate fix.
type Provider interface {
	Fix(ctx context.Context) (models.Location, error)
}

// GoogleProvider resolves the device position through the Google Geolocation API.
type GoogleProvider struct {
	client     *maps.Client
	considerIP bool
	radioType  maps.RadioType
}

func NewGoogleProvider(apiKey string, considerIP bool, radioType string) (*GoogleProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return NewGoogleProviderFromClient(client, considerIP, radioType), nil
}

func NewGoogleProviderFromClient(client *maps.Client, considerIP bool, radioType string) *GoogleProvider {
	return &GoogleProvider{
		client:     client,
		considerIP: considerIP,
		radioType:  maps.RadioType(radioType),
	}
}

func (g *GoogleProvider) Fix(ctx context.Context) (models.Location, error) {
	req := &maps.GeolocationRequest{
		ConsiderIP: g.considerIP,
		RadioType:  g.radioType,
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return models.Location{}, fmt.Errorf("geolocation failed: %w", err)
	}

	return models.Location{
		Lat:       resp.Location.Lat,
		Lng:       resp.Location.Lng,
		Accuracy:  resp.Accuracy,
		Timestamp: time.Now(),
	}, nil
}

// StaticProvider always reports the same position. Used on fixed installations
// and in development.
type StaticProvider struct {
	Lat      float64
	Lng      float64
	Accuracy float64
}

func (s StaticProvider) Fix(ctx context.Context) (models.Location, error) {
	if err := ctx.Err(); err != nil {
		return models.Location{}, err
	}
	return models.Location{
		Lat:       s.Lat,
		Lng:       s.Lng,
		Accuracy:  s.Accuracy,
		Timestamp: time.Now(),
	}, nil
}
