package handlers

import (
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/internal/services"
)

type DriverSummary struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	VehiclePlate string `json:"vehiclePlate,omitempty"`
	VehicleClass string `json:"vehicleClass,omitempty"`
}

func driverSummary(u *models.User, withContact bool) *DriverSummary {
	if u == nil {
		return nil
	}
	d := &DriverSummary{ID: u.ID, Name: u.Name, VehiclePlate: u.VehiclePlate, VehicleClass: u.VehicleClass}
	if withContact {
		d.PhoneNumber = u.PhoneNumber
	}
	return d
}

// BidView is a bid as one particular caller may see it.
type BidView struct {
	ID        uint             `json:"id"`
	BookingID uint             `json:"bookingId"`
	Amount    float64          `json:"amount"`
	Status    models.BidStatus `json:"status"`
	Notes     string           `json:"notes,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	IsOwnBid  bool             `json:"isOwnBid"`
	IsLowest  bool             `json:"isLowest"`
	Driver    *DriverSummary   `json:"driver,omitempty"`
}

// bidViews decorates bids, which must already be sorted cheapest first.
// Driver identity and notes are only shown to the booking owner, admins and
// the driver who placed the bid.
func bidViews(bids []models.Bid, booking *models.Booking, viewer services.Principal) []BidView {
	out := make([]BidView, 0, len(bids))
	lowest := 0.0
	for i, b := range bids {
		if i == 0 || b.Amount < lowest {
			lowest = b.Amount
		}
	}
	privileged := viewer.Role == models.RoleAdmin ||
		(viewer.Role == models.RoleCustomer && viewer.UserID == booking.CustomerID)

	for _, b := range bids {
		own := viewer.Role == models.RoleDriver && viewer.UserID == b.DriverID
		v := BidView{
			ID:        b.ID,
			BookingID: b.BookingID,
			Amount:    b.Amount,
			Status:    b.Status,
			CreatedAt: b.CreatedAt,
			UpdatedAt: b.UpdatedAt,
			IsOwnBid:  own,
			IsLowest:  b.Amount == lowest,
		}
		if privileged || own {
			v.Notes = b.Notes
			v.Driver = driverSummary(b.Driver, false)
		}
		out = append(out, v)
	}
	return out
}

func ownBidView(b *models.Bid) BidView {
	return BidView{
		ID:        b.ID,
		BookingID: b.BookingID,
		Amount:    b.Amount,
		Status:    b.Status,
		Notes:     b.Notes,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
		IsOwnBid:  true,
	}
}

// DriverBidView is a driver's own bid with the booking it targets.
type DriverBidView struct {
	BidView
	Booking *BookingSummary `json:"booking,omitempty"`
}

type BookingSummary struct {
	ID             uint                 `json:"id"`
	Reference      string               `json:"reference"`
	Status         models.BookingStatus `json:"status"`
	PickupAddress  string               `json:"pickupAddress"`
	DropoffAddress string               `json:"dropoffAddress"`
	VehicleClass   string               `json:"vehicleClass"`
	ScheduledDate  time.Time            `json:"scheduledDate"`
	TimeSlot       string               `json:"timeSlot,omitempty"`
	EstimatedPrice models.PriceBand     `json:"estimatedPrice"`
	FinalPrice     *float64             `json:"finalPrice,omitempty"`
}

func bookingSummary(b *models.Booking) *BookingSummary {
	if b == nil {
		return nil
	}
	return &BookingSummary{
		ID:             b.ID,
		Reference:      b.Reference,
		Status:         b.Status,
		PickupAddress:  b.Pickup.Text,
		DropoffAddress: b.Dropoff.Text,
		VehicleClass:   b.VehicleClass,
		ScheduledDate:  b.ScheduledDate,
		TimeSlot:       b.TimeSlot,
		EstimatedPrice: b.Estimated,
		FinalPrice:     b.FinalPrice,
	}
}

type TrackingView struct {
	Status    models.BookingStatus `json:"status"`
	Message   string               `json:"message"`
	Lat       *float64             `json:"lat,omitempty"`
	Lng       *float64             `json:"lng,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

// PublicBookingView is what guests and non-participating drivers see: enough
// to track a shipment or decide whether to bid, without personal data.
type PublicBookingView struct {
	BookingSummary
	GoodsType  string         `json:"goodsType"`
	WeightKg   float64        `json:"weightKg"`
	DistanceKm float64        `json:"distanceKm"`
	Urgent     bool           `json:"urgent"`
	Tracking   []TrackingView `json:"tracking"`
}

func publicBookingView(b *models.Booking) PublicBookingView {
	summary := bookingSummary(b)
	summary.FinalPrice = nil
	v := PublicBookingView{
		BookingSummary: *summary,
		GoodsType:      b.GoodsType,
		WeightKg:       b.TotalWeightKg(),
		DistanceKm:     b.DistanceKm,
		Urgent:         b.Urgent,
		Tracking:       make([]TrackingView, 0, len(b.TrackingUpdates)),
	}
	for _, u := range b.TrackingUpdates {
		v.Tracking = append(v.Tracking, TrackingView{Status: u.Status, Message: u.Message, Lat: u.Lat, Lng: u.Lng, CreatedAt: u.CreatedAt})
	}
	return v
}

// canSeeBooking reports whether viewer participates in b.
func canSeeBooking(b *models.Booking, viewer services.Principal) bool {
	switch viewer.Role {
	case models.RoleAdmin:
		return viewer.Authenticated()
	case models.RoleCustomer:
		return viewer.UserID == b.CustomerID
	case models.RoleDriver:
		return b.DriverID != nil && *b.DriverID == viewer.UserID
	}
	return false
}

// bookingDetail returns the full booking with the driver's contact for
// participants.
func bookingDetail(b *models.Booking) any {
	type detail struct {
		*models.Booking
		Driver *DriverSummary `json:"driver,omitempty"`
	}
	return detail{Booking: b, Driver: driverSummary(b.Driver, true)}
}
