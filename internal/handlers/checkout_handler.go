package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/middleware"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/services"
)

// CheckoutHandler starts payments for tour dates
type CheckoutHandler struct {
	checkout *services.CheckoutService
	logger   *logrus.Logger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkout *services.CheckoutService, logger *logrus.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		logger:   logger,
	}
}

// CreateSession handles POST /api/v1/checkout/session
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	userCtx, _ := middleware.GetUserContext(c)

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.checkout.CreateSession(c.Request.Context(), actor, userCtx.Email, &req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create checkout session")
		return
	}

	c.JSON(http.StatusOK, resp)
}
