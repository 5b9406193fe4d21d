package handlers

import (
	"net/http"

	"github.com/chachabrian/mooveit-freight/internal/middleware"
	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

func GetProfile(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := middleware.GetPrincipal(c)
		user, err := users.Profile(c.Request.Context(), p.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, user)
	}
}

// ListUsers is the admin directory, filtered by ?role=.
func ListUsers(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.Role(c.DefaultQuery("role", string(models.RoleDriver)))
		list, err := users.ListByRole(c.Request.Context(), role)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, list)
	}
}
