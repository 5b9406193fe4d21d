package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
)

// PaymentVerifier checks that a payment reference settles the chosen bid.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, reference string, bookingID, bidID uint) error
}

// ReferencePaymentVerifier accepts any well-formed reference. Settlement is
// reconciled outside this service.
type ReferencePaymentVerifier struct{}

func (ReferencePaymentVerifier) VerifyPayment(_ context.Context, reference string, _, _ uint) error {
	ref := strings.TrimSpace(reference)
	if len(ref) < 6 || strings.ContainsAny(ref, " \t\n") {
		return ErrPaymentNotVerified.With("payment reference %q is not valid", reference)
	}
	return nil
}

// ConfirmationService turns a pending booking into a confirmed one by
// accepting one bid.
type ConfirmationService struct {
	store    Store
	rules    BiddingRules
	payments PaymentVerifier
	events   EventSink
	log      *slog.Logger
	now      func() time.Time
}

func NewConfirmationService(store Store, rules BiddingRules, payments PaymentVerifier, events EventSink, log *slog.Logger) *ConfirmationService {
	return &ConfirmationService{store: store, rules: rules, payments: payments, events: events, log: log, now: time.Now}
}

// ConfirmPayment verifies the payment reference and then confirms.
func (s *ConfirmationService) ConfirmPayment(ctx context.Context, bookingID, bidID, customerID uint, reference string) (*models.Booking, error) {
	if s.payments != nil {
		if err := s.payments.VerifyPayment(ctx, reference, bookingID, bidID); err != nil {
			return nil, err
		}
	}
	return s.Confirm(ctx, bookingID, bidID, customerID)
}

// Confirm accepts bidID for bookingID. Everything happens in one
// transaction holding the booking row exclusively, so of two concurrent
// confirmations exactly one wins and the other sees AlreadyConfirmed.
func (s *ConfirmationService) Confirm(ctx context.Context, bookingID, bidID, customerID uint) (*models.Booking, error) {
	var (
		booking  *models.Booking
		accepted *models.Bid
		rejected []models.Bid
	)

	err := s.store.WithTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(bookingID, true)
		if err != nil {
			return notFoundAs(err, ErrBookingNotFound)
		}
		if b.CustomerID != customerID {
			return ErrNotBookingOwner
		}
		if b.Status != models.BookingStatusPending {
			return ErrAlreadyConfirmed.With("booking %s is already %s", b.Reference, b.Status)
		}
		now := s.now().UTC()
		if s.rules.Locked(b.PickupTime(), now) {
			return ErrBiddingLocked
		}

		bid, err := tx.Bid(bidID, true)
		if err != nil {
			return notFoundAs(err, ErrBidNotFound)
		}
		if bid.BookingID != b.ID || !bid.IsActive || bid.Status != models.BidStatusPending {
			return ErrBidNotFound
		}

		bid.Status = models.BidStatusAccepted
		if err := tx.SaveBid(bid); err != nil {
			return fmt.Errorf("accept bid: %w", err)
		}
		rejected, err = tx.RejectOtherBids(b.ID, bid.ID)
		if err != nil {
			return fmt.Errorf("reject sibling bids: %w", err)
		}

		driverID, price, acceptedID := bid.DriverID, bid.Amount, bid.ID
		b.DriverID = &driverID
		b.FinalPrice = &price
		b.AcceptedBidID = &acceptedID

		actor := Principal{Role: models.RoleCustomer, UserID: customerID}
		msg := fmt.Sprintf("Booking confirmed at KES %.2f", price)
		if err := recordTransition(tx, b, models.BookingStatusConfirmed, actor, msg, nil, nil, now); err != nil {
			return err
		}
		booking, accepted = b, bid
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fresh, err := s.store.Booking(ctx, booking.ID); err == nil {
		booking = fresh
	}
	s.log.Info("booking confirmed", "booking_id", booking.ID, "reference", booking.Reference,
		"bid_id", accepted.ID, "driver_id", accepted.DriverID, "price", accepted.Amount, "rejected", len(rejected))

	s.announce(ctx, booking, accepted, rejected)
	return booking, nil
}

// announce runs after commit. Nothing here can undo the confirmation.
func (s *ConfirmationService) announce(ctx context.Context, b *models.Booking, accepted *models.Bid, rejected []models.Bid) {
	now := s.now().UTC()
	public := BookingEvent{
		BookingID: b.ID,
		Reference: b.Reference,
		Status:    b.Status,
		Message:   "Booking confirmed",
	}
	full := public
	full.DriverID = b.DriverID
	full.FinalPrice = b.FinalPrice

	publishAll(ctx, s.events, s.log, Event{Type: EventBookingConfirmed, Data: full, Timestamp: now},
		DriverChannel(accepted.DriverID), UserChannel(b.CustomerID), AdminChannel)
	publishAll(ctx, s.events, s.log, Event{Type: EventBookingConfirmed, Data: public, Timestamp: now},
		BookingChannel(b.ID))

	for _, r := range rejected {
		evt := Event{Type: EventBidRejected, Timestamp: now, Data: BidEvent{
			BidID:     r.ID,
			BookingID: b.ID,
			Reference: b.Reference,
			Amount:    r.Amount,
			Status:    r.Status,
			DriverID:  r.DriverID,
		}}
		publishAll(ctx, s.events, s.log, evt, DriverChannel(r.DriverID))
	}
}
