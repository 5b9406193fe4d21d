package services

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"gorm.io/gorm"
)

// MemoryStore keeps everything in process. Transactions are serialized on a
// single lock and applied to a staged copy that is swapped in on commit, so
// a failed callback leaves no partial writes behind.
type MemoryStore struct {
	mu    sync.RWMutex
	state memState
}

type memState struct {
	users    map[uint]models.User
	bookings map[uint]models.Booking
	tracking map[uint][]models.TrackingUpdate
	bids     map[uint]models.Bid

	nextUser, nextBooking, nextBid, nextTracking uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		users:    map[uint]models.User{},
		bookings: map[uint]models.Booking{},
		tracking: map[uint][]models.TrackingUpdate{},
		bids:     map[uint]models.Bid{},
	}}
}

func (s memState) clone() memState {
	c := s
	c.users = maps.Clone(s.users)
	c.bookings = maps.Clone(s.bookings)
	c.tracking = maps.Clone(s.tracking)
	c.bids = maps.Clone(s.bids)
	return c
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(&memTx{st: &staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *MemoryStore) withBookingRelations(b models.Booking, withTracking bool) *models.Booking {
	if withTracking {
		b.TrackingUpdates = slices.Clone(s.state.tracking[b.ID])
	}
	if b.DriverID != nil {
		if u, ok := s.state.users[*b.DriverID]; ok {
			b.Driver = &u
		}
	}
	if u, ok := s.state.users[b.CustomerID]; ok {
		b.Customer = &u
	}
	return &b
}

func (s *MemoryStore) Booking(_ context.Context, id uint) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.bookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s.withBookingRelations(b, true), nil
}

func (s *MemoryStore) BookingByReference(_ context.Context, ref string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.state.bookings {
		if b.Reference == ref {
			return s.withBookingRelations(b, true), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *MemoryStore) filterBookings(keep func(models.Booking) bool) []models.Booking {
	var out []models.Booking
	for _, b := range s.state.bookings {
		if keep(b) {
			out = append(out, *s.withBookingRelations(b, false))
		}
	}
	return out
}

func (s *MemoryStore) BookingsForCustomer(_ context.Context, customerID uint) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterBookings(func(b models.Booking) bool { return b.CustomerID == customerID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) BookingsForDriver(_ context.Context, driverID uint) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterBookings(func(b models.Booking) bool { return b.DriverID != nil && *b.DriverID == driverID })
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (s *MemoryStore) PendingBookings(_ context.Context) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterBookings(func(b models.Booking) bool { return b.Status == models.BookingStatusPending })
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (s *MemoryStore) BidsForBooking(_ context.Context, bookingID uint) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Bid
	for _, b := range s.state.bids {
		if b.BookingID != bookingID || !b.IsActive {
			continue
		}
		if u, ok := s.state.users[b.DriverID]; ok {
			b.Driver = &u
		}
		out = append(out, b)
	}
	sortBids(out)
	return out, nil
}

func sortBids(bids []models.Bid) {
	sort.Slice(bids, func(i, j int) bool {
		a, b := bids[i], bids[j]
		if a.Amount != b.Amount {
			return a.Amount < b.Amount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (s *MemoryStore) BidsForDriver(_ context.Context, driverID uint) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Bid
	for _, b := range s.state.bids {
		if b.DriverID != driverID || !b.IsActive {
			continue
		}
		if bk, ok := s.state.bookings[b.BookingID]; ok {
			b.Booking = &bk
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) User(_ context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.state.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *MemoryStore) UsersByRole(_ context.Context, role models.Role) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for _, u := range s.state.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.state.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateKey
		}
	}
	s.state.nextUser++
	u.ID = s.state.nextUser
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.state.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) UpdateFCMToken(_ context.Context, userID uint, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.state.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.FCMToken = token
	s.state.users[userID] = u
	return nil
}

type memTx struct {
	st *memState
}

func (t *memTx) InsertBooking(b *models.Booking) error {
	for _, existing := range t.st.bookings {
		if existing.Reference == b.Reference {
			return ErrDuplicateKey
		}
	}
	t.st.nextBooking++
	b.ID = t.st.nextBooking
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	stored := *b
	stored.Customer, stored.Driver, stored.TrackingUpdates = nil, nil, nil
	t.st.bookings[b.ID] = stored
	return nil
}

func (t *memTx) LockBooking(id uint, _ bool) (*models.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &b, nil
}

func (t *memTx) SaveBooking(b *models.Booking) error {
	if _, ok := t.st.bookings[b.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	b.UpdatedAt = time.Now()
	stored := *b
	stored.Customer, stored.Driver, stored.TrackingUpdates = nil, nil, nil
	t.st.bookings[b.ID] = stored
	return nil
}

func (t *memTx) AppendTracking(u *models.TrackingUpdate) error {
	t.st.nextTracking++
	u.ID = t.st.nextTracking
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	// Clip so the committed slice's backing array is never shared with a
	// staged append.
	t.st.tracking[u.BookingID] = append(slices.Clip(t.st.tracking[u.BookingID]), *u)
	return nil
}

func (t *memTx) ActiveBid(bookingID, driverID uint) (*models.Bid, error) {
	for _, b := range t.st.bids {
		if b.BookingID == bookingID && b.DriverID == driverID && b.IsActive {
			return &b, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (t *memTx) Bid(id uint, _ bool) (*models.Bid, error) {
	b, ok := t.st.bids[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &b, nil
}

func (t *memTx) InsertBid(b *models.Bid) error {
	if b.IsActive {
		if _, err := t.ActiveBid(b.BookingID, b.DriverID); err == nil {
			return ErrDuplicateKey
		}
	}
	t.st.nextBid++
	b.ID = t.st.nextBid
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	stored := *b
	stored.Booking, stored.Driver = nil, nil
	t.st.bids[b.ID] = stored
	return nil
}

func (t *memTx) SaveBid(b *models.Bid) error {
	if _, ok := t.st.bids[b.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	b.UpdatedAt = time.Now()
	stored := *b
	stored.Booking, stored.Driver = nil, nil
	t.st.bids[b.ID] = stored
	return nil
}

func (t *memTx) RejectOtherBids(bookingID, keepBidID uint) ([]models.Bid, error) {
	var rejected []models.Bid
	for id, b := range t.st.bids {
		if b.BookingID != bookingID || id == keepBidID || !b.IsActive || b.Status != models.BidStatusPending {
			continue
		}
		b.Status = models.BidStatusRejected
		b.UpdatedAt = time.Now()
		t.st.bids[id] = b
		rejected = append(rejected, b)
	}
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].ID < rejected[j].ID })
	return rejected, nil
}
