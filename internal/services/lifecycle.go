package services

import (
	"math"
	"strings"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
)

// AllowedTransitions lists every legal edge of the booking lifecycle.
// Cancellation is only possible before a driver is confirmed.
var AllowedTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingStatusPending:       {models.BookingStatusConfirmed, models.BookingStatusCancelled},
	models.BookingStatusConfirmed:     {models.BookingStatusPickupReached},
	models.BookingStatusPickupReached: {models.BookingStatusInTransit},
	models.BookingStatusInTransit:     {models.BookingStatusDelivered},
}

func CanTransition(from, to models.BookingStatus) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NormalizeStatus accepts loose client spellings such as "In-Transit",
// "pickup reached" or "intransit".
func NormalizeStatus(raw string) (models.BookingStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case "intransit":
		s = string(models.BookingStatusInTransit)
	case "pickupreached":
		s = string(models.BookingStatusPickupReached)
	}
	switch st := models.BookingStatus(s); st {
	case models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusPickupReached,
		models.BookingStatusInTransit, models.BookingStatusDelivered, models.BookingStatusCancelled:
		return st, true
	}
	return "", false
}

// BiddingRules holds the pricing and timing constraints applied to every bid
// mutation and to confirmation.
type BiddingRules struct {
	LockWindow     time.Duration
	CeilingPercent float64
}

func DefaultBiddingRules() BiddingRules {
	return BiddingRules{LockWindow: 24 * time.Hour, CeilingPercent: 115}
}

// Locked reports whether pickup is closer than the lock window. It is
// evaluated on every access so there is nothing to sweep.
func (r BiddingRules) Locked(pickup, now time.Time) bool {
	return pickup.Sub(now) < r.LockWindow
}

// Ceiling is the highest acceptable amount for band, rounded to cents.
func (r BiddingRules) Ceiling(band models.PriceBand) float64 {
	return math.Round(band.Max*r.CeilingPercent) / 100
}

// CheckAmount enforces min <= amount <= ceiling.
func (r BiddingRules) CheckAmount(amount float64, band models.PriceBand) error {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ErrValidation.With("amount must be a positive number")
	}
	if amount < band.Min || amount > r.Ceiling(band) {
		return ErrAmountOutOfRange.With("amount must be between %.2f and %.2f", band.Min, r.Ceiling(band))
	}
	return nil
}

// transitionTimestamp points at the per-stage timestamp column for status.
func transitionTimestamp(b *models.Booking, status models.BookingStatus) **time.Time {
	switch status {
	case models.BookingStatusConfirmed:
		return &b.ConfirmedAt
	case models.BookingStatusPickupReached:
		return &b.PickupReachedAt
	case models.BookingStatusInTransit:
		return &b.InTransitAt
	case models.BookingStatusDelivered:
		return &b.DeliveredAt
	case models.BookingStatusCancelled:
		return &b.CancelledAt
	}
	return nil
}

// applyTransition moves b to status and stamps the stage timestamp. The
// caller has already checked legality and holds the row lock.
func applyTransition(b *models.Booking, status models.BookingStatus, at time.Time) {
	b.Status = status
	if ts := transitionTimestamp(b, status); ts != nil {
		t := at
		*ts = &t
	}
}
