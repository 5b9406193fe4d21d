package handlers

import (
	"net/http"

	"github.com/chachabrian/mooveit-freight/internal/middleware"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

type VerifyPaymentInput struct {
	BookingID        idOrRef `json:"bookingId" binding:"required"`
	BidID            uint    `json:"bidId" binding:"required"`
	PaymentReference string  `json:"paymentReference" binding:"required"`
}

// VerifyPayment checks the customer's payment and confirms the booking with
// the chosen bid.
func VerifyPayment(bookings *services.BookingService, confirmations *services.ConfirmationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input VerifyPaymentInput
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
		confirmed, err := confirmations.ConfirmPayment(ctx, booking.ID, input.BidID, p.UserID, input.PaymentReference)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, bookingDetail(confirmed))
	}
}
