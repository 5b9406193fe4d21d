package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/pkg/utils"
	"googlemaps.github.io/maps"
)

// DistanceEstimator returns the road distance in km between two addresses.
type DistanceEstimator interface {
	DistanceKm(ctx context.Context, from, to models.Address) (float64, error)
}

// HaversineEstimator approximates road distance from coordinates alone.
type HaversineEstimator struct{}

func (HaversineEstimator) DistanceKm(_ context.Context, from, to models.Address) (float64, error) {
	if !utils.ValidCoordinates(from.Lat, from.Lng) || !utils.ValidCoordinates(to.Lat, to.Lng) {
		return 0, ErrValidation.With("pickup and dropoff need valid coordinates")
	}
	return utils.EstimateRoadDistance(from.Lat, from.Lng, to.Lat, to.Lng), nil
}

// MapsEstimator asks the Google Directions API for a driving route and
// falls back to the haversine estimate when the API fails.
type MapsEstimator struct {
	client   *maps.Client
	fallback HaversineEstimator
	log      *slog.Logger
}

func NewMapsEstimator(apiKey string, log *slog.Logger) (*MapsEstimator, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &MapsEstimator{client: client, log: log}, nil
}

func latLng(a models.Address) string {
	return fmt.Sprintf("%f,%f", a.Lat, a.Lng)
}

func (e *MapsEstimator) DistanceKm(ctx context.Context, from, to models.Address) (float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Region:      "KE",
	}

	routes, _, err := e.client.Directions(ctx, r)
	if err == nil && len(routes) > 0 && len(routes[0].Legs) > 0 {
		km := float64(routes[0].Legs[0].Distance.Meters) / 1000
		return math.Round(km*100) / 100, nil
	}

	if err == nil {
		err = fmt.Errorf("no route found")
	}
	e.log.Warn("maps distance unavailable, using haversine", "error", err)
	return e.fallback.DistanceKm(ctx, from, to)
}
