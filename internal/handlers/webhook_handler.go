package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tourbook/booking-backend/internal/gateway"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/services"
)

const maxWebhookBodyBytes = 65536

// WebhookHandler receives payment provider events
type WebhookHandler struct {
	payments      *services.PaymentEventService
	webhookSecret string
	logger        *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(payments *services.PaymentEventService, webhookSecret string, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		payments:      payments,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// HandleStripeWebhook handles POST /api/v1/payments/webhook
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to read request body",
			Code:    "INVALID_PAYLOAD",
		})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.WithError(err).Warn("Rejected webhook with invalid signature")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_signature",
			Message: "Webhook signature verification failed",
			Code:    "INVALID_SIGNATURE",
		})
		return
	}

	logger := h.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	// Delayed payment methods complete unpaid and settle in a later event
	if event.Type != stripe.EventTypeCheckoutSessionCompleted &&
		event.Type != stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded {
		logger.Debug("Ignoring webhook event")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		logger.WithError(err).Error("Failed to decode checkout session")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Malformed checkout session",
			Code:    "INVALID_PAYLOAD",
		})
		return
	}

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		logger.WithField("payment_status", sess.PaymentStatus).Info("Checkout completed without payment, skipping")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	paid, err := gateway.ParseCheckoutMetadata(sess.ID, sess.Metadata)
	if err != nil {
		// Redelivery cannot fix bad metadata
		logger.WithError(err).Error("Checkout session metadata is unusable")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	paid.AmountPaid = float64(sess.AmountTotal) / 100

	h.admit(c, logger, event.ID, paid)
}

func (h *WebhookHandler) admit(c *gin.Context, logger *logrus.Entry, eventID string, paid *gateway.PaidCheckout) {
	outcome, err := h.payments.HandleCheckoutCompleted(c.Request.Context(), eventID, paid)
	if err != nil {
		if isFinalAdmissionError(err) {
			// Acknowledge so the provider stops redelivering; the payment needs a refund
			c.JSON(http.StatusOK, gin.H{"received": true, "admitted": false})
			return
		}
		logger.WithError(err).Error("Failed to process checkout, provider will redeliver")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to process event",
		})
		return
	}

	resp := gin.H{"received": true, "admitted": outcome.Booking != nil, "duplicate": outcome.Duplicate}
	if outcome.Booking != nil {
		resp["bookingId"] = outcome.Booking.ID
	}
	c.JSON(http.StatusOK, resp)
}

func isFinalAdmissionError(err error) bool {
	return errors.Is(err, models.ErrCapacityExceeded) ||
		errors.Is(err, models.ErrInvalidRequest) ||
		models.IsNotFound(err)
}

// MockPaymentHandler completes mock checkout sessions in development
type MockPaymentHandler struct {
	*WebhookHandler
	gateway *gateway.MockGateway
}

// NewMockPaymentHandler creates a new mock payment handler
func NewMockPaymentHandler(payments *services.PaymentEventService, gw *gateway.MockGateway, logger *logrus.Logger) *MockPaymentHandler {
	return &MockPaymentHandler{
		WebhookHandler: NewWebhookHandler(payments, "", logger),
		gateway:        gw,
	}
}

// CompleteSession handles POST /api/v1/payments/mock/:sessionId/complete
func (h *MockPaymentHandler) CompleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	req, ok := h.gateway.Session(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Checkout session not found",
			Code:    "SESSION_NOT_FOUND",
		})
		return
	}

	paid, err := gateway.ParseCheckoutMetadata(sessionID, req.Metadata())
	if err != nil {
		respondBindError(c, err)
		return
	}
	paid.AmountPaid = req.UnitPrice * float64(req.Quantity)

	logger := h.logger.WithFields(logrus.Fields{"session_id": sessionID, "gateway": h.gateway.Name()})
	h.admit(c, logger, "evt_mock_"+sessionID, paid)
}
