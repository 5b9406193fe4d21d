package services

import (
	"context"
	"errors"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"gorm.io/gorm"
)

// ErrDuplicateKey is returned by a Store when a write hits a unique index:
// user email, booking reference or the one-active-bid-per-driver index.
var ErrDuplicateKey = errors.New("store: duplicate key")

// Store is the persistence boundary of the marketplace. Missing rows are
// reported as gorm.ErrRecordNotFound by every implementation.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Booking(ctx context.Context, id uint) (*models.Booking, error)
	BookingByReference(ctx context.Context, ref string) (*models.Booking, error)
	BookingsForCustomer(ctx context.Context, customerID uint) ([]models.Booking, error)
	BookingsForDriver(ctx context.Context, driverID uint) ([]models.Booking, error)
	PendingBookings(ctx context.Context) ([]models.Booking, error)

	// BidsForBooking returns active bids, cheapest first, earliest first on ties.
	BidsForBooking(ctx context.Context, bookingID uint) ([]models.Bid, error)
	// BidsForDriver returns the driver's active bids with their booking attached.
	BidsForDriver(ctx context.Context, driverID uint) ([]models.Bid, error)

	User(ctx context.Context, id uint) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UsersByRole(ctx context.Context, role models.Role) ([]models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateFCMToken(ctx context.Context, userID uint, token string) error
}

// Tx is the set of writes that must happen under a row lock. It is only
// valid inside the WithTx callback that produced it.
type Tx interface {
	InsertBooking(b *models.Booking) error
	// LockBooking loads a booking and locks its row, exclusively or shared.
	LockBooking(id uint, exclusive bool) (*models.Booking, error)
	SaveBooking(b *models.Booking) error
	AppendTracking(u *models.TrackingUpdate) error

	ActiveBid(bookingID, driverID uint) (*models.Bid, error)
	// Bid loads a bid, locking its row when forUpdate is set.
	Bid(id uint, forUpdate bool) (*models.Bid, error)
	InsertBid(b *models.Bid) error
	SaveBid(b *models.Bid) error
	// RejectOtherBids marks every other pending active bid on the booking as
	// rejected and returns them.
	RejectOtherBids(bookingID, keepBidID uint) ([]models.Bid, error)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// notFoundAs maps a missing row onto the domain error and passes anything
// else through unchanged.
func notFoundAs(err error, domain *AppError) error {
	if isNotFound(err) {
		return domain
	}
	return err
}
