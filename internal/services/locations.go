package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/pkg/utils"
	"github.com/redis/go-redis/v9"
)

// LocationService caches driver positions and forwards them to whoever is
// watching the driver's live bookings.
type LocationService struct {
	store  Store
	cache  *RedisCache
	events EventSink
	log    *slog.Logger
	now    func() time.Time
}

func NewLocationService(store Store, cache *RedisCache, events EventSink, log *slog.Logger) *LocationService {
	return &LocationService{store: store, cache: cache, events: events, log: log, now: time.Now}
}

func inFlight(s models.BookingStatus) bool {
	return s == models.BookingStatusConfirmed || s == models.BookingStatusPickupReached || s == models.BookingStatusInTransit
}

// Report records the driver's position and returns the number of bookings
// it was broadcast to.
func (s *LocationService) Report(ctx context.Context, driverID uint, lat, lng, heading float64) (int, error) {
	if !utils.ValidCoordinates(lat, lng) {
		return 0, ErrValidation.With("invalid coordinates")
	}
	loc := DriverLocation{DriverID: driverID, Lat: lat, Lng: lng, Heading: heading, UpdatedAt: s.now().UTC()}

	if err := s.cache.SetDriverLocation(ctx, loc); err != nil {
		s.log.Warn("driver location cache failed", "driver_id", driverID, "error", err)
	}

	bookings, err := s.store.BookingsForDriver(ctx, driverID)
	if err != nil {
		return 0, err
	}

	evt := Event{Type: EventDriverLocation, Data: loc, Timestamp: loc.UpdatedAt}
	n := 0
	for _, b := range bookings {
		if !inFlight(b.Status) {
			continue
		}
		publishAll(ctx, s.events, s.log, evt, BookingChannel(b.ID), UserChannel(b.CustomerID))
		n++
	}
	publishAll(ctx, s.events, s.log, evt, AdminChannel)
	return n, nil
}

// Last returns the cached position of a driver.
func (s *LocationService) Last(ctx context.Context, driverID uint) (*DriverLocation, error) {
	loc, err := s.cache.GetDriverLocation(ctx, driverID)
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoLocation
	}
	if err != nil {
		return nil, ErrCacheUnavailable.Wrap(err)
	}
	return loc, nil
}

// ForBooking returns the live position of the driver carrying b.
func (s *LocationService) ForBooking(ctx context.Context, b *models.Booking) (*DriverLocation, error) {
	if b.DriverID == nil || !inFlight(b.Status) {
		return nil, ErrNoLocation.With("booking %s is not on the road", b.Reference)
	}
	return s.Last(ctx, *b.DriverID)
}
