package handlers

import (
	"net/http"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/chachabrian/mooveit-freight/pkg/utils"
	"github.com/gin-gonic/gin"
)

type EstimateQuery struct {
	PickupLat    float64   `form:"pickupLat" binding:"required,latitude"`
	PickupLng    float64   `form:"pickupLng" binding:"required,longitude"`
	DropoffLat   float64   `form:"dropoffLat" binding:"required,latitude"`
	DropoffLng   float64   `form:"dropoffLng" binding:"required,longitude"`
	VehicleClass string    `form:"vehicleClass" binding:"required,vehicleclass"`
	WeightKg     float64   `form:"weightKg" binding:"min=0"`
	Urgent       bool      `form:"urgent"`
	PickupAt     time.Time `form:"pickupAt" time_format:"2006-01-02T15:04:05Z07:00"`
}

type estimateResponse struct {
	DistanceKm float64            `json:"distanceKm"`
	EtaMinutes int                `json:"etaMinutes"`
	Estimated  models.PriceBand   `json:"estimatedPrice"`
	Ceiling    float64            `json:"bidCeiling"`
	Breakdown  utils.FareEstimate `json:"breakdown"`
}

// GetFareEstimate previews the price band a booking would get, without
// creating one.
func GetFareEstimate(distance services.DistanceEstimator, rules services.BiddingRules) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q EstimateQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondBindError(c, err)
			return
		}
		if q.PickupAt.IsZero() {
			q.PickupAt = time.Now()
		}

		pickup := models.Address{Lat: q.PickupLat, Lng: q.PickupLng}
		dropoff := models.Address{Lat: q.DropoffLat, Lng: q.DropoffLng}
		km, err := distance.DistanceKm(c.Request.Context(), pickup, dropoff)
		if err != nil {
			respondError(c, err)
			return
		}

		est := utils.EstimateFare(utils.FareInput{
			DistanceKm:   km,
			VehicleClass: q.VehicleClass,
			WeightKg:     q.WeightKg,
			Urgent:       q.Urgent,
			PickupAt:     q.PickupAt,
			PickupLat:    q.PickupLat,
			PickupLng:    q.PickupLng,
			DropoffLat:   q.DropoffLat,
			DropoffLng:   q.DropoffLng,
		})
		band := models.PriceBand{Min: est.Min, Max: est.Max}
		respondOK(c, http.StatusOK, estimateResponse{
			DistanceKm: km,
			EtaMinutes: utils.CalculateETA(km, 0),
			Estimated:  band,
			Ceiling:    rules.Ceiling(band),
			Breakdown:  est,
		})
	}
}
