package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingStatusPending       BookingStatus = "pending"
	BookingStatusConfirmed     BookingStatus = "confirmed"
	BookingStatusPickupReached BookingStatus = "pickup_reached"
	BookingStatusInTransit     BookingStatus = "in_transit"
	BookingStatusDelivered     BookingStatus = "delivered"
	BookingStatusCancelled     BookingStatus = "cancelled"
)

// Terminal reports whether no further transitions can leave s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusDelivered || s == BookingStatusCancelled
}

// Vehicle classes a booking may request.
const (
	VehicleMotorbike  = "motorbike"
	VehiclePickup     = "pickup"
	VehicleVan        = "van"
	VehicleTruckSmall = "truck_small"
	VehicleTruckLarge = "truck_large"
)

var VehicleClasses = []string{VehicleMotorbike, VehiclePickup, VehicleVan, VehicleTruckSmall, VehicleTruckLarge}

type Address struct {
	Text string  `json:"address" gorm:"not null"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type GoodsItem struct {
	Description string  `json:"description"`
	WeightKg    float64 `json:"weightKg"`
	Quantity    int     `json:"quantity"`
}

type PriceBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Booking struct {
	gorm.Model
	Reference  string `json:"reference" gorm:"size:10;uniqueIndex;not null"`
	CustomerID uint   `json:"customerId" gorm:"not null;index"`
	Customer   *User  `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	DriverID   *uint  `json:"driverId,omitempty" gorm:"index"`
	Driver     *User  `json:"driver,omitempty" gorm:"foreignKey:DriverID"`

	Pickup  Address `json:"pickup" gorm:"embedded;embeddedPrefix:pickup_"`
	Dropoff Address `json:"dropoff" gorm:"embedded;embeddedPrefix:dropoff_"`

	GoodsType    string      `json:"goodsType" gorm:"not null"`
	Items        []GoodsItem `json:"items" gorm:"serializer:json"`
	VehicleClass string      `json:"vehicleClass" gorm:"not null"`

	ScheduledDate time.Time `json:"scheduledDate" gorm:"not null"`
	TimeSlot      string    `json:"timeSlot,omitempty"` // "HH:MM-HH:MM"
	Urgent        bool      `json:"urgent" gorm:"not null;default:false"`
	Instructions  string    `json:"instructions,omitempty"`

	DistanceKm    float64   `json:"distanceKm"`
	Estimated     PriceBand `json:"estimatedPrice" gorm:"embedded;embeddedPrefix:estimated_"`
	FinalPrice    *float64  `json:"finalPrice,omitempty"`
	AcceptedBidID *uint     `json:"acceptedBidId,omitempty"`

	Status          BookingStatus `json:"status" gorm:"not null;default:'pending';index"`
	ConfirmedAt     *time.Time    `json:"confirmedAt,omitempty"`
	PickupReachedAt *time.Time    `json:"pickupReachedAt,omitempty"`
	InTransitAt     *time.Time    `json:"inTransitAt,omitempty"`
	DeliveredAt     *time.Time    `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time    `json:"cancelledAt,omitempty"`
	CancelReason    string        `json:"cancelReason,omitempty"`

	TrackingUpdates []TrackingUpdate `json:"trackingUpdates,omitempty" gorm:"foreignKey:BookingID"`
}

func (Booking) TableName() string {
	return "bookings"
}

// PickupTime is the scheduled date with the start of the time slot applied,
// or the scheduled date itself when no slot was given.
func (b *Booking) PickupTime() time.Time {
	start, _, ok := strings.Cut(b.TimeSlot, "-")
	if !ok {
		start = b.TimeSlot
	}
	t, err := time.Parse("15:04", strings.TrimSpace(start))
	if err != nil {
		return b.ScheduledDate
	}
	d := b.ScheduledDate
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, d.Location())
}

// TotalWeightKg sums weight times quantity over the itemized goods list.
func (b *Booking) TotalWeightKg() float64 {
	var total float64
	for _, it := range b.Items {
		q := it.Quantity
		if q <= 0 {
			q = 1
		}
		total += it.WeightKg * float64(q)
	}
	return total
}

// TrackingUpdate is one append-only entry in a booking's status history.
type TrackingUpdate struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	BookingID uint          `json:"bookingId" gorm:"not null;index"`
	Status    BookingStatus `json:"status" gorm:"not null"`
	Lat       *float64      `json:"lat,omitempty"`
	Lng       *float64      `json:"lng,omitempty"`
	Message   string        `json:"message"`
	ActorRole Role          `json:"actorRole"`
	ActorID   uint          `json:"actorId,omitempty"`
	CreatedAt time.Time     `json:"createdAt" gorm:"not null"`
}

func (TrackingUpdate) TableName() string {
	return "tracking_updates"
}
