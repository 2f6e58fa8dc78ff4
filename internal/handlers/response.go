package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/middleware"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/services"
	"github.com/tourbook/booking-backend/internal/utils"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// CapacityDetails is returned with CAPACITY_EXCEEDED errors
type CapacityDetails struct {
	Requested     int `json:"requested"`
	Capacity      int `json:"capacity"`
	AlreadyBooked int `json:"alreadyBooked"`
	CanAccept     int `json:"canAccept"`
}

// respondError maps a service error to its HTTP status and body
func respondError(c *gin.Context, logger *logrus.Logger, err error, fallback string) {
	var capErr *models.CapacityExceededError
	switch {
	case errors.As(err, &capErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "capacity_exceeded",
			Message: "Not enough places left for this date",
			Code:    "CAPACITY_EXCEEDED",
			Details: CapacityDetails{
				Requested:     capErr.Requested,
				Capacity:      capErr.Verdict.Capacity,
				AlreadyBooked: capErr.Verdict.AlreadyBooked,
				CanAccept:     capErr.Verdict.CanAccept,
			},
		})
	case errors.Is(err, models.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Code:    "INVALID_REQUEST",
		})
	case errors.Is(err, models.ErrTourNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Tour not found",
			Code:    "TOUR_NOT_FOUND",
		})
	case errors.Is(err, models.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Booking not found",
			Code:    "BOOKING_NOT_FOUND",
		})
	case errors.Is(err, models.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "User not found",
			Code:    "USER_NOT_FOUND",
		})
	case errors.Is(err, models.ErrBookingForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "You do not have access to this booking",
			Code:    "BOOKING_FORBIDDEN",
		})
	case errors.Is(err, models.ErrBookingAlreadyCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "conflict",
			Message: "Booking is already cancelled",
			Code:    "BOOKING_ALREADY_CANCELLED",
		})
	case errors.Is(err, models.ErrTransientStore):
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Store unavailable")
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "service_unavailable",
			Message: "Booking store is temporarily unavailable, please retry",
			Code:    "STORE_UNAVAILABLE",
		})
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error(fallback)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: fallback,
		})
	}
}

// respondBindError reports a malformed request body
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
		Code:    "INVALID_REQUEST",
	})
}

// actorFromContext builds the services.Actor for the authenticated caller
func actorFromContext(c *gin.Context) (*services.Actor, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
			Code:    "MISSING_USER_CONTEXT",
		})
		return nil, false
	}
	return &services.Actor{
		UserID:    userCtx.UserID,
		IsAdmin:   userCtx.IsAdmin(),
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}, true
}

// pagination reads limit and offset query parameters
func pagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
