package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/services"
)

// TourHandler handles tour availability requests
type TourHandler struct {
	availability *services.AvailabilityService
	logger       *logrus.Logger
}

// NewTourHandler creates a new tour handler
func NewTourHandler(availability *services.AvailabilityService, logger *logrus.Logger) *TourHandler {
	return &TourHandler{
		availability: availability,
		logger:       logger,
	}
}

// CheckAvailability handles GET /api/v1/tours/:id/check-availability?date=&participants=
func (h *TourHandler) CheckAvailability(c *gin.Context) {
	date := c.Query("date")
	if strings.TrimSpace(date) == "" {
		respondError(c, h.logger, models.InvalidRequestf("date is required"), "")
		return
	}

	participants, err := strconv.Atoi(strings.TrimSpace(c.Query("participants")))
	if err != nil || participants <= 0 {
		respondError(c, h.logger, models.InvalidRequestf("participants must be a positive number"), "")
		return
	}

	verdict, err := h.availability.CheckAvailability(c.Request.Context(), c.Param("id"), date, participants)
	if err != nil {
		respondError(c, h.logger, err, "Failed to check availability")
		return
	}

	c.JSON(http.StatusOK, verdict)
}
