package handlers

import (
	"net/http"

	"github.com/chachabrian/mooveit-freight/internal/middleware"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

type LocationInput struct {
	Lat     float64 `json:"lat" binding:"required,latitude"`
	Lng     float64 `json:"lng" binding:"required,longitude"`
	Heading float64 `json:"heading" binding:"min=0,max=360"`
}

// UpdateDriverLocation caches the driver's position and pushes it to the
// customers following the driver's live bookings.
func UpdateDriverLocation(locations *services.LocationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input LocationInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		p := middleware.GetPrincipal(c)
		n, err := locations.Report(c.Request.Context(), p.UserID, input.Lat, input.Lng, input.Heading)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, gin.H{"broadcastTo": n})
	}
}

// GetBookingDriverLocation returns the last cached position of the driver
// carrying a booking, for its participants.
func GetBookingDriverLocation(bookings *services.BookingService, locations *services.LocationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		booking, err := bookings.Resolve(ctx, c.Param("bookingId"))
		if err != nil {
			respondError(c, err)
			return
		}
		if !canSeeBooking(booking, middleware.GetPrincipal(c)) {
			respondError(c, services.ErrForbidden.With("driver location is only shared with booking participants"))
			return
		}
		loc, err := locations.ForBooking(ctx, booking)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, loc)
	}
}
