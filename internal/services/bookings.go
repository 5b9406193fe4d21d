package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/pkg/utils"
)

// BookingEvent is the payload of booking lifecycle events. Driver and price
// fields are only filled on personal and admin channels.
type BookingEvent struct {
	BookingID uint                 `json:"bookingId"`
	Reference string               `json:"reference"`
	Status    models.BookingStatus `json:"status"`
	Message   string               `json:"message,omitempty"`
	Lat       *float64             `json:"lat,omitempty"`
	Lng       *float64             `json:"lng,omitempty"`

	DriverID   *uint    `json:"driverId,omitempty"`
	FinalPrice *float64 `json:"finalPrice,omitempty"`
}

// NewBookingInput is what a customer submits to request a shipment.
type NewBookingInput struct {
	Pickup        models.Address
	Dropoff       models.Address
	GoodsType     string
	Items         []models.GoodsItem
	VehicleClass  string
	ScheduledDate time.Time
	TimeSlot      string
	Urgent        bool
	Instructions  string
}

const referenceAttempts = 5

// BookingService owns booking creation and every status transition other
// than confirmation.
type BookingService struct {
	store    Store
	rules    BiddingRules
	distance DistanceEstimator
	receipts *ReceiptService
	events   EventSink
	log      *slog.Logger
	now      func() time.Time
}

func NewBookingService(store Store, rules BiddingRules, distance DistanceEstimator, receipts *ReceiptService, events EventSink, log *slog.Logger) *BookingService {
	return &BookingService{
		store:    store,
		rules:    rules,
		distance: distance,
		receipts: receipts,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

func newReference() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("B%09d", n.Int64()), nil
}

func (s *BookingService) validate(in NewBookingInput) error {
	switch {
	case strings.TrimSpace(in.Pickup.Text) == "" || strings.TrimSpace(in.Dropoff.Text) == "":
		return ErrValidation.With("pickup and dropoff addresses are required")
	case strings.TrimSpace(in.GoodsType) == "":
		return ErrValidation.With("goodsType is required")
	case !slices.Contains(models.VehicleClasses, in.VehicleClass):
		return ErrValidation.With("unknown vehicle class %q", in.VehicleClass)
	case in.ScheduledDate.IsZero():
		return ErrValidation.With("scheduledDate is required")
	}
	for _, it := range in.Items {
		if it.WeightKg < 0 || it.Quantity < 0 {
			return ErrValidation.With("item weight and quantity must not be negative")
		}
	}
	probe := models.Booking{ScheduledDate: in.ScheduledDate, TimeSlot: in.TimeSlot}
	if !probe.PickupTime().After(s.now()) {
		return ErrValidation.With("pickup must be in the future")
	}
	return nil
}

// Create stores a new pending booking with its distance and price band.
func (s *BookingService) Create(ctx context.Context, customerID uint, in NewBookingInput) (*models.Booking, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	distanceKm, err := s.distance.DistanceKm(ctx, in.Pickup, in.Dropoff)
	if err != nil {
		return nil, err
	}

	b := &models.Booking{
		CustomerID:    customerID,
		Pickup:        in.Pickup,
		Dropoff:       in.Dropoff,
		GoodsType:     strings.TrimSpace(in.GoodsType),
		Items:         in.Items,
		VehicleClass:  in.VehicleClass,
		ScheduledDate: in.ScheduledDate,
		TimeSlot:      strings.TrimSpace(in.TimeSlot),
		Urgent:        in.Urgent,
		Instructions:  strings.TrimSpace(in.Instructions),
		DistanceKm:    distanceKm,
		Status:        models.BookingStatusPending,
	}

	est := utils.EstimateFare(utils.FareInput{
		DistanceKm:   distanceKm,
		VehicleClass: b.VehicleClass,
		WeightKg:     b.TotalWeightKg(),
		Urgent:       b.Urgent,
		PickupAt:     b.PickupTime(),
		PickupLat:    b.Pickup.Lat,
		PickupLng:    b.Pickup.Lng,
		DropoffLat:   b.Dropoff.Lat,
		DropoffLng:   b.Dropoff.Lng,
	})
	b.Estimated = models.PriceBand{Min: est.Min, Max: est.Max}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		for attempt := 0; ; attempt++ {
			ref, err := newReference()
			if err != nil {
				return err
			}
			b.Reference = ref
			err = tx.InsertBooking(b)
			if err == nil {
				break
			}
			if !errors.Is(err, ErrDuplicateKey) || attempt+1 >= referenceAttempts {
				return fmt.Errorf("insert booking: %w", err)
			}
		}
		return tx.AppendTracking(&models.TrackingUpdate{
			BookingID: b.ID,
			Status:    models.BookingStatusPending,
			Message:   "Booking created",
			ActorRole: models.RoleCustomer,
			ActorID:   customerID,
			CreatedAt: s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking created", "booking_id", b.ID, "reference", b.Reference, "customer_id", customerID,
		"distance_km", distanceKm, "band_min", b.Estimated.Min, "band_max", b.Estimated.Max)

	evt := Event{Type: EventBookingCreated, Data: openBookingSummary(b), Timestamp: s.now().UTC()}
	publishAll(ctx, s.events, s.log, evt, PublicChannel, AdminChannel)
	return b, nil
}

// OpenBooking is the driver-facing summary of a booking open for bids.
type OpenBooking struct {
	ID             uint             `json:"id"`
	Reference      string           `json:"reference"`
	PickupAddress  string           `json:"pickupAddress"`
	DropoffAddress string           `json:"dropoffAddress"`
	GoodsType      string           `json:"goodsType"`
	WeightKg       float64          `json:"weightKg"`
	VehicleClass   string           `json:"vehicleClass"`
	ScheduledDate  time.Time        `json:"scheduledDate"`
	TimeSlot       string           `json:"timeSlot,omitempty"`
	Urgent         bool             `json:"urgent"`
	DistanceKm     float64          `json:"distanceKm"`
	EtaMinutes     int              `json:"etaMinutes"`
	EstimatedPrice models.PriceBand `json:"estimatedPrice"`
}

func openBookingSummary(b *models.Booking) OpenBooking {
	return OpenBooking{
		ID:             b.ID,
		Reference:      b.Reference,
		PickupAddress:  b.Pickup.Text,
		DropoffAddress: b.Dropoff.Text,
		GoodsType:      b.GoodsType,
		WeightKg:       b.TotalWeightKg(),
		VehicleClass:   b.VehicleClass,
		ScheduledDate:  b.ScheduledDate,
		TimeSlot:       b.TimeSlot,
		Urgent:         b.Urgent,
		DistanceKm:     b.DistanceKm,
		EtaMinutes:     utils.CalculateETA(b.DistanceKm, 0),
		EstimatedPrice: b.Estimated,
	}
}

// Resolve accepts a numeric id or a booking reference.
func (s *BookingService) Resolve(ctx context.Context, idOrRef string) (*models.Booking, error) {
	idOrRef = strings.TrimSpace(idOrRef)
	var (
		b   *models.Booking
		err error
	)
	if id, convErr := strconv.ParseUint(idOrRef, 10, 64); convErr == nil {
		b, err = s.store.Booking(ctx, uint(id))
	} else {
		b, err = s.store.BookingByReference(ctx, strings.ToUpper(idOrRef))
	}
	if err != nil {
		return nil, notFoundAs(err, ErrBookingNotFound)
	}
	return b, nil
}

func (s *BookingService) ListForCustomer(ctx context.Context, customerID uint) ([]models.Booking, error) {
	return s.store.BookingsForCustomer(ctx, customerID)
}

func (s *BookingService) ListForDriver(ctx context.Context, driverID uint) ([]models.Booking, error) {
	return s.store.BookingsForDriver(ctx, driverID)
}

// Open lists pending bookings whose bidding window is still open, optionally
// filtered by vehicle class.
func (s *BookingService) Open(ctx context.Context, vehicleClass string) ([]OpenBooking, error) {
	pending, err := s.store.PendingBookings(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]OpenBooking, 0, len(pending))
	for i := range pending {
		b := &pending[i]
		if s.rules.Locked(b.PickupTime(), now) {
			continue
		}
		if vehicleClass != "" && b.VehicleClass != vehicleClass {
			continue
		}
		out = append(out, openBookingSummary(b))
	}
	return out, nil
}

// Cancel moves a pending booking to cancelled on behalf of its customer.
func (s *BookingService) Cancel(ctx context.Context, bookingID uint, actor Principal, reason string) (*models.Booking, error) {
	reason = strings.TrimSpace(reason)
	msg := "Booking cancelled by customer"
	if reason != "" {
		msg += ": " + reason
	}
	return s.transition(ctx, bookingID, models.BookingStatusCancelled, actor, msg, nil, nil, func(b *models.Booking) {
		b.CancelReason = reason
	})
}

// AdvanceStatus applies a driver-requested status change given as free text.
func (s *BookingService) AdvanceStatus(ctx context.Context, bookingID uint, actor Principal, rawStatus, message string, lat, lng *float64) (*models.Booking, error) {
	target, ok := NormalizeStatus(rawStatus)
	if !ok {
		return nil, ErrValidation.With("unknown status %q", rawStatus)
	}
	if strings.TrimSpace(message) == "" {
		message = defaultTransitionMessage(target)
	}
	return s.transition(ctx, bookingID, target, actor, message, lat, lng, nil)
}

func defaultTransitionMessage(status models.BookingStatus) string {
	switch status {
	case models.BookingStatusPickupReached:
		return "Driver arrived at pickup"
	case models.BookingStatusInTransit:
		return "Goods loaded and in transit"
	case models.BookingStatusDelivered:
		return "Goods delivered"
	}
	return "Status changed to " + string(status)
}

// authorizeTransition checks that actor may request target on b.
func authorizeTransition(b *models.Booking, target models.BookingStatus, actor Principal) error {
	switch target {
	case models.BookingStatusConfirmed:
		return ErrInvalidTransition.With("bookings are confirmed by accepting a bid")
	case models.BookingStatusCancelled:
		if actor.Role != models.RoleCustomer {
			return ErrForbidden.With("only the customer can cancel a booking")
		}
		if b.CustomerID != actor.UserID {
			return ErrNotBookingOwner
		}
	case models.BookingStatusPickupReached, models.BookingStatusInTransit, models.BookingStatusDelivered:
		if actor.Role != models.RoleDriver || b.DriverID == nil || *b.DriverID != actor.UserID {
			return ErrForbidden.With("only the assigned driver can update this booking")
		}
	default:
		return ErrInvalidTransition.With("cannot move booking %s from %s to %s", b.Reference, b.Status, target)
	}
	return nil
}

// recordTransition writes the new status and its tracking entry. Callers
// hold the booking row lock and have checked legality.
func recordTransition(tx Tx, b *models.Booking, target models.BookingStatus, actor Principal, message string, lat, lng *float64, at time.Time) error {
	applyTransition(b, target, at)
	if err := tx.SaveBooking(b); err != nil {
		return fmt.Errorf("save booking: %w", err)
	}
	entry := &models.TrackingUpdate{
		BookingID: b.ID,
		Status:    target,
		Lat:       lat,
		Lng:       lng,
		Message:   message,
		ActorRole: actor.Role,
		ActorID:   actor.UserID,
		CreatedAt: at,
	}
	if err := tx.AppendTracking(entry); err != nil {
		return fmt.Errorf("append tracking: %w", err)
	}
	return nil
}

// transition moves a booking along its lifecycle and appends exactly one
// tracking entry in the same transaction. Confirmation goes through
// ConfirmationService instead.
func (s *BookingService) transition(ctx context.Context, bookingID uint, target models.BookingStatus, actor Principal, message string, lat, lng *float64, mutate func(*models.Booking)) (*models.Booking, error) {
	if (lat == nil) != (lng == nil) || (lat != nil && !utils.ValidCoordinates(*lat, *lng)) {
		return nil, ErrValidation.With("lat and lng must be given together and be valid")
	}

	var booking *models.Booking
	err := s.store.WithTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(bookingID, true)
		if err != nil {
			return notFoundAs(err, ErrBookingNotFound)
		}
		if err := authorizeTransition(b, target, actor); err != nil {
			return err
		}
		if !CanTransition(b.Status, target) {
			return ErrInvalidTransition.With("cannot move booking %s from %s to %s", b.Reference, b.Status, target)
		}
		if mutate != nil {
			mutate(b)
		}
		if err := recordTransition(tx, b, target, actor, message, lat, lng, s.now().UTC()); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fresh, err := s.store.Booking(ctx, booking.ID); err == nil {
		booking = fresh
	}
	s.log.Info("booking transitioned", "booking_id", booking.ID, "reference", booking.Reference,
		"status", booking.Status, "actor_role", actor.Role, "actor_id", actor.UserID)

	evtType := EventTrackingUpdate
	if target == models.BookingStatusCancelled {
		evtType = EventBookingCancelled
	}
	s.announce(ctx, evtType, booking, message, lat, lng)

	if target == models.BookingStatusDelivered {
		s.archiveReceipt(ctx, booking)
	}
	return booking, nil
}

// AddTrackingNote appends a progress note, optionally with a position, to a
// booking the driver is currently carrying. The status does not change.
func (s *BookingService) AddTrackingNote(ctx context.Context, bookingID uint, actor Principal, message string, lat, lng *float64) (*models.TrackingUpdate, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrValidation.With("message is required")
	}
	if (lat == nil) != (lng == nil) || (lat != nil && !utils.ValidCoordinates(*lat, *lng)) {
		return nil, ErrValidation.With("lat and lng must be given together and be valid")
	}

	var (
		booking *models.Booking
		entry   *models.TrackingUpdate
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(bookingID, true)
		if err != nil {
			return notFoundAs(err, ErrBookingNotFound)
		}
		if actor.Role != models.RoleDriver || b.DriverID == nil || *b.DriverID != actor.UserID {
			return ErrForbidden.With("only the assigned driver can add tracking notes")
		}
		if b.Status == models.BookingStatusPending || b.Status.Terminal() {
			return ErrInvalidTransition.With("booking %s is %s and cannot be tracked", b.Reference, b.Status)
		}
		entry = &models.TrackingUpdate{
			BookingID: b.ID,
			Status:    b.Status,
			Lat:       lat,
			Lng:       lng,
			Message:   message,
			ActorRole: actor.Role,
			ActorID:   actor.UserID,
			CreatedAt: s.now().UTC(),
		}
		booking = b
		return tx.AppendTracking(entry)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, EventTrackingUpdate, booking, message, lat, lng)
	return entry, nil
}

func (s *BookingService) announce(ctx context.Context, evtType string, b *models.Booking, message string, lat, lng *float64) {
	public := BookingEvent{
		BookingID: b.ID,
		Reference: b.Reference,
		Status:    b.Status,
		Message:   message,
		Lat:       lat,
		Lng:       lng,
	}
	full := public
	full.DriverID = b.DriverID
	full.FinalPrice = b.FinalPrice

	now := s.now().UTC()
	publishAll(ctx, s.events, s.log, Event{Type: evtType, Data: public, Timestamp: now}, BookingChannel(b.ID))

	channels := []string{UserChannel(b.CustomerID), AdminChannel}
	if b.DriverID != nil {
		channels = append(channels, DriverChannel(*b.DriverID))
	}
	publishAll(ctx, s.events, s.log, Event{Type: evtType, Data: full, Timestamp: now}, channels...)
}

// archiveReceipt stores the delivery receipt. Failure is logged and never
// affects the delivered booking.
func (s *BookingService) archiveReceipt(ctx context.Context, b *models.Booking) {
	if s.receipts == nil {
		return
	}
	if _, err := s.receipts.Archive(ctx, b); err != nil {
		s.log.Warn("receipt archive failed", "booking_id", b.ID, "kind", KindTransientInfra, "error", err)
	}
}
