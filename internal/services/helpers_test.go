package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/logger"
	"github.com/chachabrian/mooveit-freight/internal/models"
)

type published struct {
	channel string
	evt     Event
}

// recordingSink captures events instead of delivering them.
type recordingSink struct {
	mu     sync.Mutex
	events []published
	fail   bool
}

func (s *recordingSink) Publish(_ context.Context, channel string, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, published{channel: channel, evt: evt})
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *recordingSink) on(channel string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, p := range s.events {
		if p.channel == channel {
			out = append(out, p.evt)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

type fixture struct {
	store    *MemoryStore
	sink     *recordingSink
	customer *models.User
	drivers  []*models.User
	now      time.Time
}

func newFixture(t *testing.T, drivers int) *fixture {
	t.Helper()
	f := &fixture{
		store: NewMemoryStore(),
		sink:  &recordingSink{},
		now:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	ctx := context.Background()
	f.customer = &models.User{Name: "Wanjiru", Email: "wanjiru@example.com", Role: models.RoleCustomer}
	if err := f.store.CreateUser(ctx, f.customer); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < drivers; i++ {
		d := &models.User{
			Name:         "Driver",
			Email:        fmt.Sprintf("driver%d@example.com", i),
			Role:         models.RoleDriver,
			VehiclePlate: fmt.Sprintf("KDA %03dA", i+1),
			VehicleClass: models.VehicleVan,
		}
		if err := f.store.CreateUser(ctx, d); err != nil {
			t.Fatal(err)
		}
		f.drivers = append(f.drivers, d)
	}
	return f
}

func (f *fixture) clock() time.Time { return f.now }

// booking seeds a pending booking with a 800-1000 band picked up after
// pickupIn.
func (f *fixture) booking(t *testing.T, pickupIn time.Duration) *models.Booking {
	t.Helper()
	b := &models.Booking{
		Reference:     fmt.Sprintf("B%09d", len(f.store.state.bookings)+1),
		CustomerID:    f.customer.ID,
		Pickup:        models.Address{Text: "Westlands", Lat: -1.2676, Lng: 36.8108},
		Dropoff:       models.Address{Text: "Industrial Area", Lat: -1.3080, Lng: 36.8510},
		GoodsType:     "furniture",
		VehicleClass:  models.VehicleVan,
		ScheduledDate: f.now.Add(pickupIn),
		Estimated:     models.PriceBand{Min: 800, Max: 1000},
		Status:        models.BookingStatusPending,
	}
	err := f.store.WithTx(context.Background(), func(tx Tx) error {
		if err := tx.InsertBooking(b); err != nil {
			return err
		}
		return tx.AppendTracking(&models.TrackingUpdate{
			BookingID: b.ID, Status: models.BookingStatusPending, Message: "Booking created",
			ActorRole: models.RoleCustomer, ActorID: f.customer.ID, CreatedAt: f.now,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (f *fixture) ledger() *BidLedger {
	l := NewBidLedger(f.store, DefaultBiddingRules(), f.sink, logger.Discard())
	l.now = f.clock
	return l
}

func (f *fixture) confirmations() *ConfirmationService {
	s := NewConfirmationService(f.store, DefaultBiddingRules(), ReferencePaymentVerifier{}, f.sink, logger.Discard())
	s.now = f.clock
	return s
}

func (f *fixture) bookings() *BookingService {
	s := NewBookingService(f.store, DefaultBiddingRules(), HaversineEstimator{}, nil, f.sink, logger.Discard())
	s.now = f.clock
	return s
}

func (f *fixture) customerPrincipal() Principal {
	return Principal{Role: models.RoleCustomer, UserID: f.customer.ID}
}

func (f *fixture) driverPrincipal(i int) Principal {
	return Principal{Role: models.RoleDriver, UserID: f.drivers[i].ID}
}

func mustCode(t *testing.T, err error, want *AppError) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %s", err, want.Code)
	}
}
