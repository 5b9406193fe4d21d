package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/chachabrian/mooveit-freight/internal/middleware"
	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondFailure(c *gin.Context, status int, code, message string) {
	body := gin.H{"success": false, "error": message, "code": code}
	if rid := middleware.GetRequestID(c); rid != "" {
		body["requestId"] = rid
	}
	c.AbortWithStatusJSON(status, body)
}

// respondError maps service errors onto HTTP statuses. Anything outside the
// taxonomy is attached to c.Errors for the request logger and hidden from
// the client.
func respondError(c *gin.Context, err error) {
	var ae *services.AppError
	if !errors.As(err, &ae) {
		_ = c.Error(err)
		respondFailure(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch ae.Kind {
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindAuthorization:
		status = http.StatusForbidden
		if ae.Code == services.ErrInvalidCredentials.Code {
			status = http.StatusUnauthorized
		}
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindStateConflict:
		status = http.StatusConflict
	case services.KindTransientInfra:
		status = http.StatusServiceUnavailable
	}
	respondFailure(c, status, ae.Code, ae.Message)
}

func respondBindError(c *gin.Context, err error) {
	respondFailure(c, http.StatusBadRequest, services.ErrValidation.Code, err.Error())
}

// idOrRef accepts a booking id as a JSON number or string, or a reference.
type idOrRef string

func (v *idOrRef) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*v = idOrRef(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("bookingId must be a number or a reference string")
	}
	*v = idOrRef(strings.TrimSpace(s))
	return nil
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondFailure(c, http.StatusBadRequest, services.ErrValidation.Code, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

var registerValidators sync.Once

// RegisterValidators adds the domain tags used in request bindings.
func RegisterValidators() {
	registerValidators.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("vehicleclass", func(fl validator.FieldLevel) bool {
			return slices.Contains(models.VehicleClasses, fl.Field().String())
		})
		_ = v.RegisterValidation("bookingstatus", func(fl validator.FieldLevel) bool {
			_, ok := services.NormalizeStatus(fl.Field().String())
			return ok
		})
	})
}
