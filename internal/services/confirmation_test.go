package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
)

func placeBids(t *testing.T, f *fixture, b *models.Booking, amounts ...float64) []*models.Bid {
	t.Helper()
	l := f.ledger()
	out := make([]*models.Bid, 0, len(amounts))
	for i, amount := range amounts {
		bid, _, err := l.Place(context.Background(), b.ID, f.drivers[i].ID, amount, "")
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, bid)
	}
	return out
}

func TestConfirmAcceptsBidAndRejectsOthers(t *testing.T) {
	f := newFixture(t, 3)
	b := f.booking(t, 72*time.Hour)
	bids := placeBids(t, f, b, 900, 850, 1000)
	f.sink.reset()
	ctx := context.Background()

	confirmed, err := f.confirmations().Confirm(ctx, b.ID, bids[1].ID, f.customer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if confirmed.Status != models.BookingStatusConfirmed {
		t.Fatalf("status = %s", confirmed.Status)
	}
	if confirmed.DriverID == nil || *confirmed.DriverID != f.drivers[1].ID {
		t.Fatalf("driver = %v", confirmed.DriverID)
	}
	if confirmed.FinalPrice == nil || *confirmed.FinalPrice != 850 {
		t.Fatalf("final price = %v", confirmed.FinalPrice)
	}
	if confirmed.ConfirmedAt == nil {
		t.Fatal("confirmedAt not stamped")
	}
	if n := len(confirmed.TrackingUpdates); n != 2 {
		t.Fatalf("tracking entries = %d, want 2", n)
	}

	all, err := f.store.BidsForBooking(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, bid := range all {
		want := models.BidStatusRejected
		if bid.ID == bids[1].ID {
			want = models.BidStatusAccepted
		}
		if bid.Status != want {
			t.Fatalf("bid %d status = %s, want %s", bid.ID, bid.Status, want)
		}
	}

	if evts := f.sink.on(DriverChannel(f.drivers[1].ID)); len(evts) != 1 || evts[0].Type != EventBookingConfirmed {
		t.Fatalf("winner events = %+v", evts)
	}
	for _, i := range []int{0, 2} {
		evts := f.sink.on(DriverChannel(f.drivers[i].ID))
		if len(evts) != 1 || evts[0].Type != EventBidRejected {
			t.Fatalf("driver %d events = %+v", i, evts)
		}
	}
	if evts := f.sink.on(AdminChannel); len(evts) != 1 {
		t.Fatalf("admin events = %d", len(evts))
	}
}

func TestConfirmIsNotRepeatable(t *testing.T) {
	f := newFixture(t, 2)
	b := f.booking(t, 72*time.Hour)
	bids := placeBids(t, f, b, 900, 950)
	s := f.confirmations()
	ctx := context.Background()

	if _, err := s.Confirm(ctx, b.ID, bids[0].ID, f.customer.ID); err != nil {
		t.Fatal(err)
	}
	_, err := s.Confirm(ctx, b.ID, bids[0].ID, f.customer.ID)
	mustCode(t, err, ErrAlreadyConfirmed)
	_, err = s.Confirm(ctx, b.ID, bids[1].ID, f.customer.ID)
	mustCode(t, err, ErrAlreadyConfirmed)

	got, _ := f.store.Booking(ctx, b.ID)
	if *got.DriverID != f.drivers[0].ID || len(got.TrackingUpdates) != 2 {
		t.Fatalf("booking changed after repeat: driver %d, tracking %d", *got.DriverID, len(got.TrackingUpdates))
	}
}

func TestConfirmConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, 5)
	b := f.booking(t, 72*time.Hour)
	bids := placeBids(t, f, b, 900, 910, 920, 930, 940)
	s := f.confirmations()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		conflict int
	)
	for _, bid := range bids {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := s.Confirm(context.Background(), b.ID, id, f.customer.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case KindOf(err) == KindStateConflict:
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(bid.ID)
	}
	wg.Wait()

	if winners != 1 || conflict != len(bids)-1 {
		t.Fatalf("winners = %d conflicts = %d", winners, conflict)
	}

	all, _ := f.store.BidsForBooking(context.Background(), b.ID)
	accepted := 0
	for _, bid := range all {
		if bid.Status == models.BidStatusAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted bids = %d, want 1", accepted)
	}
}

func TestConfirmRejections(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	s := f.confirmations()

	b := f.booking(t, 72*time.Hour)
	bids := placeBids(t, f, b, 900)

	_, err := s.Confirm(ctx, b.ID, bids[0].ID, f.customer.ID+100)
	mustCode(t, err, ErrNotBookingOwner)

	_, err = s.Confirm(ctx, b.ID, 9999, f.customer.ID)
	mustCode(t, err, ErrBidNotFound)

	_, err = s.Confirm(ctx, 9999, bids[0].ID, f.customer.ID)
	mustCode(t, err, ErrBookingNotFound)

	other := f.booking(t, 72*time.Hour)
	_, err = s.Confirm(ctx, other.ID, bids[0].ID, f.customer.ID)
	mustCode(t, err, ErrBidNotFound)

	if _, err := f.ledger().Cancel(ctx, bids[0].ID, f.drivers[0].ID); err != nil {
		t.Fatal(err)
	}
	_, err = s.Confirm(ctx, b.ID, bids[0].ID, f.customer.ID)
	mustCode(t, err, ErrBidNotFound)
}

func TestConfirmInsideLockWindow(t *testing.T) {
	f := newFixture(t, 1)
	b := f.booking(t, 30*time.Hour)
	bids := placeBids(t, f, b, 900)

	f.now = f.now.Add(7 * time.Hour)
	_, err := f.confirmations().Confirm(context.Background(), b.ID, bids[0].ID, f.customer.ID)
	mustCode(t, err, ErrBiddingLocked)
}

func TestConfirmSurvivesFailingSink(t *testing.T) {
	f := newFixture(t, 1)
	b := f.booking(t, 72*time.Hour)
	bids := placeBids(t, f, b, 900)
	f.sink.fail = true

	confirmed, err := f.confirmations().Confirm(context.Background(), b.ID, bids[0].ID, f.customer.ID)
	if err != nil {
		t.Fatalf("Confirm = %v, want success despite sink errors", err)
	}
	got, _ := f.store.Booking(context.Background(), confirmed.ID)
	if got.Status != models.BookingStatusConfirmed {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestConfirmPaymentRequiresReference(t *testing.T) {
	f := newFixture(t, 1)
	b := f.booking(t, 72*time.Hour)
	bids := placeBids(t, f, b, 900)
	s := f.confirmations()

	_, err := s.ConfirmPayment(context.Background(), b.ID, bids[0].ID, f.customer.ID, "abc")
	mustCode(t, err, ErrPaymentNotVerified)

	if _, err := s.ConfirmPayment(context.Background(), b.ID, bids[0].ID, f.customer.ID, "QK7TX9PL2M"); err != nil {
		t.Fatal(err)
	}
}
