package handlers

import (
	"net/http"

	"github.com/chachabrian/mooveit-freight/internal/middleware"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

type PlaceBidInput struct {
	BookingID idOrRef `json:"bookingId" binding:"required"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
	Notes     string  `json:"notes" binding:"max=500"`
}

// PlaceBid creates the driver's bid on a booking, or updates the one they
// already have.
func PlaceBid(bookings *services.BookingService, bids *services.BidLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input PlaceBidInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		ctx := c.Request.Context()
		booking, err := bookings.Resolve(ctx, string(input.BookingID))
		if err != nil {
			respondError(c, err)
			return
		}

		p := middleware.GetPrincipal(c)
		bid, created, err := bids.Place(ctx, booking.ID, p.UserID, input.Amount, input.Notes)
		if err != nil {
			respondError(c, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		respondOK(c, status, ownBidView(bid))
	}
}

func CancelBid(bids *services.BidLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "bidId")
		if !ok {
			return
		}
		p := middleware.GetPrincipal(c)
		bid, err := bids.Cancel(c.Request.Context(), id, p.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, ownBidView(bid))
	}
}

// GetBookingBids lists the active bids on a booking, cheapest first.
func GetBookingBids(bookings *services.BookingService, bids *services.BidLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		booking, err := bookings.Resolve(ctx, c.Param("bookingId"))
		if err != nil {
			respondError(c, err)
			return
		}
		list, err := bids.ListForBooking(ctx, booking.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, bidViews(list, booking, middleware.GetPrincipal(c)))
	}
}

func GetDriverBids(bids *services.BidLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := middleware.GetPrincipal(c)
		list, err := bids.ListForDriver(c.Request.Context(), p.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		out := make([]DriverBidView, 0, len(list))
		for i := range list {
			out = append(out, DriverBidView{BidView: ownBidView(&list[i]), Booking: bookingSummary(list[i].Booking)})
		}
		respondOK(c, http.StatusOK, out)
	}
}
