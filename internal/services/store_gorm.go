package services

import (
	"context"
	"errors"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pgUniqueViolation = "23505"

// GormStore persists the marketplace in postgres through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func withTracking(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

func (s *GormStore) Booking(ctx context.Context, id uint) (*models.Booking, error) {
	var b models.Booking
	err := s.db.WithContext(ctx).
		Preload("TrackingUpdates", withTracking).
		Preload("Driver").
		First(&b, id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *GormStore) BookingByReference(ctx context.Context, ref string) (*models.Booking, error) {
	var b models.Booking
	err := s.db.WithContext(ctx).
		Preload("TrackingUpdates", withTracking).
		Preload("Driver").
		Where("reference = ?", ref).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *GormStore) BookingsForCustomer(ctx context.Context, customerID uint) ([]models.Booking, error) {
	var out []models.Booking
	err := s.db.WithContext(ctx).
		Preload("Driver").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) BookingsForDriver(ctx context.Context, driverID uint) ([]models.Booking, error) {
	var out []models.Booking
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Where("driver_id = ?", driverID).
		Order("scheduled_date ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) PendingBookings(ctx context.Context) ([]models.Booking, error) {
	var out []models.Booking
	err := s.db.WithContext(ctx).
		Where("status = ?", models.BookingStatusPending).
		Order("scheduled_date ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) BidsForBooking(ctx context.Context, bookingID uint) ([]models.Bid, error) {
	var out []models.Bid
	err := s.db.WithContext(ctx).
		Preload("Driver").
		Where("booking_id = ? AND is_active", bookingID).
		Order("amount ASC, created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) BidsForDriver(ctx context.Context, driverID uint) ([]models.Bid, error) {
	var out []models.Bid
	err := s.db.WithContext(ctx).
		Preload("Booking").
		Where("driver_id = ? AND is_active", driverID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) User(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) UsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	var out []models.User
	err := s.db.WithContext(ctx).Where("role = ?", role).Find(&out).Error
	return out, err
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return translateWriteError(s.db.WithContext(ctx).Create(u).Error)
}

func (s *GormStore) UpdateFCMToken(ctx context.Context, userID uint, token string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", token)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type gormTx struct {
	db *gorm.DB
}

// insert runs create inside a savepoint so a unique violation leaves the
// surrounding transaction usable for a retry.
func (t *gormTx) insert(v any) error {
	err := t.db.Transaction(func(sp *gorm.DB) error {
		return sp.Omit(clause.Associations).Create(v).Error
	})
	return translateWriteError(err)
}

func (t *gormTx) InsertBooking(b *models.Booking) error {
	return t.insert(b)
}

func (t *gormTx) LockBooking(id uint, exclusive bool) (*models.Booking, error) {
	strength := "SHARE"
	if exclusive {
		strength = "UPDATE"
	}
	var b models.Booking
	if err := t.db.Clauses(clause.Locking{Strength: strength}).First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *gormTx) SaveBooking(b *models.Booking) error {
	return t.db.Omit(clause.Associations).Save(b).Error
}

func (t *gormTx) AppendTracking(u *models.TrackingUpdate) error {
	return t.db.Create(u).Error
}

func (t *gormTx) ActiveBid(bookingID, driverID uint) (*models.Bid, error) {
	var b models.Bid
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("booking_id = ? AND driver_id = ? AND is_active", bookingID, driverID).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *gormTx) Bid(id uint, forUpdate bool) (*models.Bid, error) {
	q := t.db
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var b models.Bid
	if err := q.First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *gormTx) InsertBid(b *models.Bid) error {
	return t.insert(b)
}

func (t *gormTx) SaveBid(b *models.Bid) error {
	return t.db.Omit(clause.Associations).Save(b).Error
}

func (t *gormTx) RejectOtherBids(bookingID, keepBidID uint) ([]models.Bid, error) {
	var others []models.Bid
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("booking_id = ? AND id <> ? AND is_active AND status = ?", bookingID, keepBidID, models.BidStatusPending).
		Find(&others).Error
	if err != nil || len(others) == 0 {
		return nil, err
	}
	ids := make([]uint, len(others))
	for i := range others {
		ids[i] = others[i].ID
		others[i].Status = models.BidStatusRejected
	}
	err = t.db.Model(&models.Bid{}).Where("id IN ?", ids).Update("status", models.BidStatusRejected).Error
	if err != nil {
		return nil, err
	}
	return others, nil
}

func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateKey
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}
