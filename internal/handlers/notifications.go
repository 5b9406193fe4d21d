package handlers

import (
	"net/http"

	"github.com/chachabrian/mooveit-freight/internal/middleware"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

// RegisterFCMToken stores the device token used for push notifications. An
// empty token unregisters the device.
func RegisterFCMToken(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Token string `json:"fcmToken"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		p := middleware.GetPrincipal(c)
		if err := users.UpdateFCMToken(c.Request.Context(), p.UserID, input.Token); err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, gin.H{"registered": input.Token != ""})
	}
}
