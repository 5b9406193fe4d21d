package database

import (
	"github.com/chachabrian/mooveit-freight/internal/models"
	"gorm.io/gorm"
)

// RunMigrations creates the tables and the constraints AutoMigrate cannot
// express.
func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Booking{},
		&models.TrackingUpdate{},
		&models.Bid{},
	)
	if err != nil {
		return err
	}

	statements := []string{
		// One live bid per driver and booking. Cancelled bids fall out of the index.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_active_booking_driver ON bids (booking_id, driver_id) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_bids_booking_amount ON bids (booking_id, amount) WHERE is_active`,
		`ALTER TABLE bookings DROP CONSTRAINT IF EXISTS bookings_status_check`,
		`ALTER TABLE bookings ADD CONSTRAINT bookings_status_check CHECK (status IN ('pending', 'confirmed', 'pickup_reached', 'in_transit', 'delivered', 'cancelled'))`,
		`ALTER TABLE users DROP CONSTRAINT IF EXISTS users_role_check`,
		`ALTER TABLE users ADD CONSTRAINT users_role_check CHECK (role IN ('customer', 'driver', 'admin'))`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
