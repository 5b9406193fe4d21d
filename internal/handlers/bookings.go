package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/middleware"
	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

type CreateBookingInput struct {
	PickupAddress  string             `json:"pickupAddress" binding:"required"`
	PickupLat      float64            `json:"pickupLat" binding:"required,latitude"`
	PickupLng      float64            `json:"pickupLng" binding:"required,longitude"`
	DropoffAddress string             `json:"dropoffAddress" binding:"required"`
	DropoffLat     float64            `json:"dropoffLat" binding:"required,latitude"`
	DropoffLng     float64            `json:"dropoffLng" binding:"required,longitude"`
	GoodsType      string             `json:"goodsType" binding:"required"`
	Items          []models.GoodsItem `json:"items" binding:"dive"`
	VehicleClass   string             `json:"vehicleClass" binding:"required,vehicleclass"`
	ScheduledDate  string             `json:"scheduledDate" binding:"required"`
	TimeSlot       string             `json:"timeSlot"`
	Urgent         bool               `json:"urgent"`
	Instructions   string             `json:"instructions"`
}

// parseScheduledDate accepts a full RFC 3339 timestamp or a bare date.
func parseScheduledDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("scheduledDate must be RFC 3339 or YYYY-MM-DD, got %q", raw)
}

func CreateBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateBookingInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		scheduled, err := parseScheduledDate(input.ScheduledDate)
		if err != nil {
			respondBindError(c, err)
			return
		}

		p := middleware.GetPrincipal(c)
		booking, err := bookings.Create(c.Request.Context(), p.UserID, services.NewBookingInput{
			Pickup:        models.Address{Text: input.PickupAddress, Lat: input.PickupLat, Lng: input.PickupLng},
			Dropoff:       models.Address{Text: input.DropoffAddress, Lat: input.DropoffLat, Lng: input.DropoffLng},
			GoodsType:     input.GoodsType,
			Items:         input.Items,
			VehicleClass:  input.VehicleClass,
			ScheduledDate: scheduled,
			TimeSlot:      input.TimeSlot,
			Urgent:        input.Urgent,
			Instructions:  input.Instructions,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusCreated, booking)
	}
}

// GetOpenBookings lists bookings drivers can still bid on.
func GetOpenBookings(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		open, err := bookings.Open(c.Request.Context(), c.Query("vehicleClass"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, open)
	}
}

func GetCustomerBookings(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := middleware.GetPrincipal(c)
		list, err := bookings.ListForCustomer(c.Request.Context(), p.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, list)
	}
}

// GetBooking resolves an id or reference. Participants get the full record;
// everyone else gets the public tracking view.
func GetBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, err := bookings.Resolve(c.Request.Context(), c.Param("bookingId"))
		if err != nil {
			respondError(c, err)
			return
		}
		if canSeeBooking(booking, middleware.GetPrincipal(c)) {
			respondOK(c, http.StatusOK, bookingDetail(booking))
			return
		}
		respondOK(c, http.StatusOK, publicBookingView(booking))
	}
}

// bookingParam resolves the :bookingId path segment, an id or a reference.
func bookingParam(c *gin.Context, bookings *services.BookingService) (uint, bool) {
	booking, err := bookings.Resolve(c.Request.Context(), c.Param("bookingId"))
	if err != nil {
		respondError(c, err)
		return 0, false
	}
	return booking.ID, true
}

func CancelBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := bookingParam(c, bookings)
		if !ok {
			return
		}
		var input struct {
			Reason string `json:"reason" binding:"max=500"`
		}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&input); err != nil {
				respondBindError(c, err)
				return
			}
		}

		booking, err := bookings.Cancel(c.Request.Context(), id, middleware.GetPrincipal(c), input.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, booking)
	}
}

// GetReceipt renders the PDF receipt of a confirmed booking for its
// participants.
func GetReceipt(bookings *services.BookingService, receipts *services.ReceiptService) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, err := bookings.Resolve(c.Request.Context(), c.Param("bookingId"))
		if err != nil {
			respondError(c, err)
			return
		}
		if !canSeeBooking(booking, middleware.GetPrincipal(c)) {
			respondError(c, services.ErrForbidden.With("receipt is only available to booking participants"))
			return
		}
		if booking.Status == models.BookingStatusPending || booking.Status == models.BookingStatusCancelled {
			respondError(c, services.ErrInvalidTransition.With("booking %s has no receipt while %s", booking.Reference, booking.Status))
			return
		}

		pdf, err := receipts.Render(booking)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, booking.Reference))
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}
