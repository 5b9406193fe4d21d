package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/chachabrian/mooveit-freight/internal/database"
	"github.com/chachabrian/mooveit-freight/internal/logger"
	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewGormStore(gdb), mock
}

func TestGormStoreBookingNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.Booking(context.Background(), 42)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want record not found", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGormStoreUpdateFCMTokenUnknownUser(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "users" SET "fcm_token"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateFCMToken(context.Background(), 9, "tok")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want record not found", err)
	}
}

func TestGormStoreDuplicateBid(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`SAVEPOINT`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO "bids"`).WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})
	mock.ExpectExec(`ROLLBACK TO SAVEPOINT`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertBid(&models.Bid{BookingID: 1, DriverID: 2, Amount: 900, Status: models.BidStatusPending, IsActive: true})
	})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("err = %v, want ErrDuplicateKey", err)
	}
}

func TestTranslateWriteError(t *testing.T) {
	if !errors.Is(translateWriteError(gorm.ErrDuplicatedKey), ErrDuplicateKey) {
		t.Fatal("gorm duplicate not translated")
	}
	other := errors.New("boom")
	if translateWriteError(other) != other {
		t.Fatal("unrelated error changed")
	}
	if translateWriteError(nil) != nil {
		t.Fatal("nil changed")
	}
}

// TestPostgresConcurrentConfirm runs the confirmation race against a real
// database. Set MOVEIT_TEST_DSN to enable it.
func TestPostgresConcurrentConfirm(t *testing.T) {
	dsn := os.Getenv("MOVEIT_TEST_DSN")
	if dsn == "" {
		t.Skip("MOVEIT_TEST_DSN not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard, TranslateError: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := database.RunMigrations(gdb); err != nil {
		t.Fatal(err)
	}
	store := NewGormStore(gdb)
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	customer := &models.User{Name: "Race Customer", Email: fmt.Sprintf("race-%d@example.com", suffix), PasswordHash: "x", Role: models.RoleCustomer}
	if err := store.CreateUser(ctx, customer); err != nil {
		t.Fatal(err)
	}
	booking := &models.Booking{
		Reference:     fmt.Sprintf("R%09d", suffix%1_000_000_000),
		CustomerID:    customer.ID,
		Pickup:        models.Address{Text: "Westlands", Lat: -1.2676, Lng: 36.8108},
		Dropoff:       models.Address{Text: "Karen", Lat: -1.3190, Lng: 36.7070},
		GoodsType:     "boxes",
		VehicleClass:  models.VehiclePickup,
		ScheduledDate: time.Now().Add(96 * time.Hour),
		Estimated:     models.PriceBand{Min: 800, Max: 1000},
		Status:        models.BookingStatusPending,
	}
	if err := store.WithTx(ctx, func(tx Tx) error { return tx.InsertBooking(booking) }); err != nil {
		t.Fatal(err)
	}

	ledger := NewBidLedger(store, DefaultBiddingRules(), &recordingSink{}, logger.Discard())
	var bidIDs []uint
	for i := 0; i < 4; i++ {
		d := &models.User{Name: "Race Driver", Email: fmt.Sprintf("race-%d-%d@example.com", suffix, i), PasswordHash: "x", Role: models.RoleDriver}
		if err := store.CreateUser(ctx, d); err != nil {
			t.Fatal(err)
		}
		bid, _, err := ledger.Place(ctx, booking.ID, d.ID, 850+float64(i*10), "")
		if err != nil {
			t.Fatal(err)
		}
		bidIDs = append(bidIDs, bid.ID)
	}

	s := NewConfirmationService(store, DefaultBiddingRules(), nil, &recordingSink{}, logger.Discard())
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for _, id := range bidIDs {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := s.Confirm(ctx, booking.ID, id, customer.ID)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, ErrAlreadyConfirmed) {
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}
	final, err := store.Booking(ctx, booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(final.TrackingUpdates) != 1 {
		t.Fatalf("tracking entries = %d, want 1", len(final.TrackingUpdates))
	}
}
