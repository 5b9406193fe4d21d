package handlers

import (
	"net/http"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

type RegisterInput struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	PhoneNumber  string `json:"phoneNumber"`
	Role         string `json:"role" binding:"required,oneof=customer driver"`
	VehiclePlate string `json:"vehiclePlate" binding:"required_if=Role driver"`
	VehicleClass string `json:"vehicleClass" binding:"omitempty,vehicleclass"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func Register(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RegisterInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		user, token, err := users.Register(c.Request.Context(), services.RegisterInput{
			Name:         input.Name,
			Email:        input.Email,
			Password:     input.Password,
			PhoneNumber:  input.PhoneNumber,
			Role:         models.Role(input.Role),
			VehiclePlate: input.VehiclePlate,
			VehicleClass: input.VehicleClass,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusCreated, authResponse{Token: token, User: user})
	}
}

func Login(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		user, token, err := users.Login(c.Request.Context(), input.Email, input.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, authResponse{Token: token, User: user})
	}
}
