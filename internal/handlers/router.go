package handlers

import (
	"log/slog"
	"net/http"

	"github.com/chachabrian/mooveit-freight/internal/middleware"
	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps are the services the HTTP layer routes to.
type Deps struct {
	Verifier      *services.CredentialVerifier
	Users         *services.UserService
	Bookings      *services.BookingService
	Bids          *services.BidLedger
	Confirmations *services.ConfirmationService
	Locations     *services.LocationService
	Receipts      *services.ReceiptService
	Distance      services.DistanceEstimator
	Rules         services.BiddingRules
	Gateway       *services.Gateway
	Log           *slog.Logger
	CORSOrigins   []string
}

func NewRouter(d Deps) *gin.Engine {
	RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(d.Log))

	config := cors.DefaultConfig()
	if len(d.CORSOrigins) == 0 || (len(d.CORSOrigins) == 1 && d.CORSOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = d.CORSOrigins
	}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	config.ExposeHeaders = []string{"X-Request-ID"}
	r.Use(cors.New(config))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": d.Gateway.ConnectionCount()})
	})

	strict := middleware.AuthMiddleware(d.Verifier)
	optional := middleware.OptionalAuth(d.Verifier)
	customer := middleware.RequireRoles(models.RoleCustomer)
	driver := middleware.RequireRoles(models.RoleDriver)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", Register(d.Users))
			auth.POST("/login", Login(d.Users))
		}

		api.GET("/ws", WebSocketHandler(d.Gateway))
		api.GET("/pricing/estimate", GetFareEstimate(d.Distance, d.Rules))

		users := api.Group("/users", strict)
		{
			users.GET("/profile", GetProfile(d.Users))
			users.PUT("/fcm-token", RegisterFCMToken(d.Users))
		}

		bookings := api.Group("/bookings")
		{
			bookings.POST("", strict, customer, CreateBooking(d.Bookings))
			bookings.GET("/open", strict, driver, GetOpenBookings(d.Bookings))
			bookings.GET("/mine", strict, customer, GetCustomerBookings(d.Bookings))
			bookings.GET("/:bookingId", optional, GetBooking(d.Bookings))
			bookings.POST("/:bookingId/cancel", strict, customer, CancelBooking(d.Bookings))
			bookings.GET("/:bookingId/receipt", strict, GetReceipt(d.Bookings, d.Receipts))
			bookings.GET("/:bookingId/driver-location", strict, GetBookingDriverLocation(d.Bookings, d.Locations))
		}

		bids := api.Group("/bids")
		{
			bids.POST("/place", strict, driver, PlaceBid(d.Bookings, d.Bids))
			bids.DELETE("/:bidId", strict, driver, CancelBid(d.Bids))
			bids.GET("/booking/:bookingId", optional, GetBookingBids(d.Bookings, d.Bids))
			bids.GET("/driver", strict, driver, GetDriverBids(d.Bids))
		}

		api.POST("/payments/verify", strict, customer, VerifyPayment(d.Bookings, d.Confirmations))

		admin := api.Group("/admin", strict, middleware.RequireRoles(models.RoleAdmin))
		{
			admin.GET("/users", ListUsers(d.Users))
		}

		drv := api.Group("/driver", strict, driver)
		{
			drv.GET("/bookings", GetAssignedBookings(d.Bookings))
			drv.PUT("/bookings/:bookingId/status", UpdateBookingStatus(d.Bookings))
			drv.POST("/bookings/:bookingId/tracking", AddTrackingUpdate(d.Bookings))
			drv.POST("/location", UpdateDriverLocation(d.Locations))
		}
	}

	return r
}
