package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/services"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookings *services.BookingService
	audit    *services.AuditService
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings *services.BookingService, audit *services.AuditService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		audit:    audit,
		logger:   logger,
	}
}

// CreateBooking handles POST /api/v1/bookings (admin only)
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create booking")
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to retrieve booking")
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ListMyBookings handles GET /api/v1/bookings/me
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	bookings, err := h.bookings.ListMyBookings(c.Request.Context(), actor, limit, offset)
	if err != nil {
		respondError(c, h.logger, err, "Failed to retrieve bookings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"total":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}

// ListBookings handles GET /api/v1/bookings?tour=&date= (admin only)
func (h *BookingHandler) ListBookings(c *gin.Context) {
	limit, offset := pagination(c)
	bookings, err := h.bookings.ListBookings(c.Request.Context(), c.Query("tour"), c.Query("date"), limit, offset)
	if err != nil {
		respondError(c, h.logger, err, "Failed to retrieve bookings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"total":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	booking, err := h.bookings.CancelBooking(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to cancel booking")
		return
	}

	c.JSON(http.StatusOK, booking)
}

// UpdateBooking handles PATCH /api/v1/bookings/:id (admin only)
func (h *BookingHandler) UpdateBooking(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req models.UpdateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.bookings.ReviseBooking(c.Request.Context(), actor, c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to update booking")
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GetBookingHistory handles GET /api/v1/bookings/:id/history (admin only)
func (h *BookingHandler) GetBookingHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.audit.GetBookingHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.logger, err, "Failed to retrieve booking history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history": entries,
		"total":   len(entries),
	})
}
