package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
)

// BidEvent is the payload of every bid event. Driver fields are left empty
// on the booking channel, which competing drivers and guests can watch.
type BidEvent struct {
	BidID        uint             `json:"bidId"`
	BookingID    uint             `json:"bookingId"`
	Reference    string           `json:"reference"`
	Amount       float64          `json:"amount"`
	Status       models.BidStatus `json:"status"`
	BidCount     int              `json:"bidCount"`
	LowestAmount float64          `json:"lowestAmount,omitempty"`

	DriverID     uint   `json:"driverId,omitempty"`
	DriverName   string `json:"driverName,omitempty"`
	VehiclePlate string `json:"vehiclePlate,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// BidLedger records driver bids against pending bookings.
type BidLedger struct {
	store  Store
	rules  BiddingRules
	events EventSink
	log    *slog.Logger
	now    func() time.Time
}

func NewBidLedger(store Store, rules BiddingRules, events EventSink, log *slog.Logger) *BidLedger {
	return &BidLedger{store: store, rules: rules, events: events, log: log, now: time.Now}
}

// checkBiddable applies the status and lock-window rules shared by every
// bid mutation.
func (l *BidLedger) checkBiddable(b *models.Booking) error {
	if b.Status != models.BookingStatusPending {
		return ErrBookingNotBiddable.With("booking %s is %s", b.Reference, b.Status)
	}
	if l.rules.Locked(b.PickupTime(), l.now()) {
		return ErrBiddingLocked
	}
	return nil
}

// Place creates the driver's bid on a booking, or updates the one they
// already have. created reports which happened.
func (l *BidLedger) Place(ctx context.Context, bookingID, driverID uint, amount float64, notes string) (*models.Bid, bool, error) {
	notes = strings.TrimSpace(notes)
	var (
		bid     *models.Bid
		booking *models.Booking
		created bool
	)

	err := l.store.WithTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(bookingID, false)
		if err != nil {
			return notFoundAs(err, ErrBookingNotFound)
		}
		if err := l.checkBiddable(b); err != nil {
			return err
		}
		if err := l.rules.CheckAmount(amount, b.Estimated); err != nil {
			return err
		}
		booking = b
		bid, created, err = upsertBid(tx, b.ID, driverID, amount, notes)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	l.log.Info("bid placed",
		"booking_id", booking.ID, "bid_id", bid.ID, "driver_id", driverID,
		"amount", amount, "created", created)

	evtType := EventBidUpdated
	if created {
		evtType = EventNewBid
	}
	l.announce(ctx, evtType, booking, bid)
	return bid, created, nil
}

func upsertBid(tx Tx, bookingID, driverID uint, amount float64, notes string) (*models.Bid, bool, error) {
	existing, err := tx.ActiveBid(bookingID, driverID)
	if err != nil && !isNotFound(err) {
		return nil, false, err
	}

	if existing == nil {
		bid := &models.Bid{
			BookingID: bookingID,
			DriverID:  driverID,
			Amount:    amount,
			Notes:     notes,
			Status:    models.BidStatusPending,
			IsActive:  true,
		}
		err := tx.InsertBid(bid)
		if err == nil {
			return bid, true, nil
		}
		if !errors.Is(err, ErrDuplicateKey) {
			return nil, false, err
		}
		// A concurrent request from the same driver won the insert; fold
		// this one into an update of that row.
		existing, err = tx.ActiveBid(bookingID, driverID)
		if err != nil {
			return nil, false, err
		}
	}

	existing.Amount = amount
	existing.Notes = notes
	existing.Status = models.BidStatusPending
	if err := tx.SaveBid(existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Cancel withdraws the driver's active bid.
func (l *BidLedger) Cancel(ctx context.Context, bidID, driverID uint) (*models.Bid, error) {
	var (
		bid     *models.Bid
		booking *models.Booking
	)

	err := l.store.WithTx(ctx, func(tx Tx) error {
		found, err := tx.Bid(bidID, false)
		if err != nil {
			return notFoundAs(err, ErrBidNotFound)
		}
		if found.DriverID != driverID || !found.IsActive {
			return ErrBidNotFound
		}

		b, err := tx.LockBooking(found.BookingID, false)
		if err != nil {
			return notFoundAs(err, ErrBookingNotFound)
		}
		if err := l.checkBiddable(b); err != nil {
			return err
		}

		found, err = tx.Bid(bidID, true)
		if err != nil {
			return notFoundAs(err, ErrBidNotFound)
		}
		if !found.IsActive {
			return ErrBidNotFound
		}
		found.IsActive = false
		found.Status = models.BidStatusCancelled
		if err := tx.SaveBid(found); err != nil {
			return err
		}
		bid, booking = found, b
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("bid cancelled", "booking_id", booking.ID, "bid_id", bid.ID, "driver_id", driverID)
	l.announce(ctx, EventBidCancelled, booking, bid)
	return bid, nil
}

// ListForBooking returns the active bids on a booking, cheapest first.
func (l *BidLedger) ListForBooking(ctx context.Context, bookingID uint) ([]models.Bid, error) {
	if _, err := l.store.Booking(ctx, bookingID); err != nil {
		return nil, notFoundAs(err, ErrBookingNotFound)
	}
	return l.store.BidsForBooking(ctx, bookingID)
}

// ListForDriver returns the driver's active bids with their bookings.
func (l *BidLedger) ListForDriver(ctx context.Context, driverID uint) ([]models.Bid, error) {
	return l.store.BidsForDriver(ctx, driverID)
}

func (l *BidLedger) announce(ctx context.Context, evtType string, booking *models.Booking, bid *models.Bid) {
	public := BidEvent{
		BidID:     bid.ID,
		BookingID: booking.ID,
		Reference: booking.Reference,
		Amount:    bid.Amount,
		Status:    bid.Status,
	}
	if active, err := l.store.BidsForBooking(ctx, booking.ID); err == nil {
		public.BidCount = len(active)
		if len(active) > 0 {
			public.LowestAmount = active[0].Amount
		}
	}

	full := public
	full.DriverID = bid.DriverID
	full.Notes = bid.Notes
	if driver, err := l.store.User(ctx, bid.DriverID); err == nil {
		full.DriverName = driver.Name
		full.VehiclePlate = driver.VehiclePlate
	}

	now := l.now().UTC()
	publishAll(ctx, l.events, l.log, Event{Type: evtType, Data: full, Timestamp: now}, UserChannel(booking.CustomerID))
	publishAll(ctx, l.events, l.log, Event{Type: evtType, Data: public, Timestamp: now}, BookingChannel(booking.ID))

	ack := EventBidPlaced
	if evtType == EventBidCancelled {
		ack = EventBidCancelled
	}
	publishAll(ctx, l.events, l.log, Event{Type: ack, Data: full, Timestamp: now}, DriverChannel(bid.DriverID))
}
