package handlers

import (
	"net/http"

	"github.com/chachabrian/mooveit-freight/internal/middleware"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

type UpdateStatusInput struct {
	Status  string   `json:"status" binding:"required,bookingstatus"`
	Message string   `json:"message" binding:"max=500"`
	Lat     *float64 `json:"lat" binding:"omitempty,latitude"`
	Lng     *float64 `json:"lng" binding:"omitempty,longitude"`
}

type TrackingInput struct {
	Message string   `json:"message" binding:"required,max=500"`
	Lat     *float64 `json:"lat" binding:"omitempty,latitude"`
	Lng     *float64 `json:"lng" binding:"omitempty,longitude"`
}

// GetAssignedBookings lists the bookings the driver won.
func GetAssignedBookings(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := middleware.GetPrincipal(c)
		list, err := bookings.ListForDriver(c.Request.Context(), p.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, list)
	}
}

func UpdateBookingStatus(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := bookingParam(c, bookings)
		if !ok {
			return
		}
		var input UpdateStatusInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		booking, err := bookings.AdvanceStatus(c.Request.Context(), id, middleware.GetPrincipal(c),
			input.Status, input.Message, input.Lat, input.Lng)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, booking)
	}
}

func AddTrackingUpdate(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := bookingParam(c, bookings)
		if !ok {
			return
		}
		var input TrackingInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		entry, err := bookings.AddTrackingNote(c.Request.Context(), id, middleware.GetPrincipal(c),
			input.Message, input.Lat, input.Lng)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusCreated, entry)
	}
}
