package models

import "time"

type BidStatus string

const (
	BidStatusPending   BidStatus = "pending"
	BidStatusAccepted  BidStatus = "accepted"
	BidStatusRejected  BidStatus = "rejected"
	BidStatusCancelled BidStatus = "cancelled"
	BidStatusExpired   BidStatus = "expired"
)

// Bid is a driver's offer on a booking. At most one active bid exists per
// (booking, driver) pair; the migration backs this with a partial unique index.
type Bid struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	BookingID uint      `json:"bookingId" gorm:"not null;index"`
	Booking   *Booking  `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
	DriverID  uint      `json:"driverId" gorm:"not null;index"`
	Driver    *User     `json:"driver,omitempty" gorm:"foreignKey:DriverID"`
	Amount    float64   `json:"amount" gorm:"not null"`
	Notes     string    `json:"notes,omitempty"`
	Status    BidStatus `json:"status" gorm:"not null;default:'pending'"`
	IsActive  bool      `json:"isActive" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Bid) TableName() string {
	return "bids"
}
