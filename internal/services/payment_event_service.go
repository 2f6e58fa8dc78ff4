package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/gateway"
	"github.com/tourbook/booking-backend/internal/models"
)

// PaymentOutcome reports what a payment event did
type PaymentOutcome struct {
	Booking   *models.BookingRecord
	Duplicate bool
}

// PaymentEventService turns payment-succeeded events into admissions
type PaymentEventService struct {
	bookings *BookingService
	lookup   PaymentRefLookup
	deduper  EventDeduper
	logger   *logrus.Logger
}

// PaymentRefLookup finds the booking created for a payment
type PaymentRefLookup interface {
	GetBookingByPaymentRef(ctx context.Context, paymentRef string) (*models.BookingRecord, error)
}

// NewPaymentEventService creates a new PaymentEventService
func NewPaymentEventService(bookings *BookingService, lookup PaymentRefLookup, deduper EventDeduper, logger *logrus.Logger) *PaymentEventService {
	if deduper == nil {
		deduper = NewMemoryEventDeduper()
	}
	return &PaymentEventService{
		bookings: bookings,
		lookup:   lookup,
		deduper:  deduper,
		logger:   logger,
	}
}

// HandleCheckoutCompleted admits the booking paid for by a completed
// checkout. Redelivered events return the booking already created for the
// session. A capacity rejection keeps the event claim; other failures release
// it so the provider's redelivery is handled again. A claim with no booking
// behind it is retried.
func (s *PaymentEventService) HandleCheckoutCompleted(ctx context.Context, eventID string, paid *gateway.PaidCheckout) (*PaymentOutcome, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"event_id":   eventID,
		"session_id": paid.SessionID,
		"tour_id":    paid.TourID,
		"date":       paid.Date,
		"party_size": paid.Quantity,
	})

	claimed, err := s.deduper.MarkProcessed(ctx, eventID)
	if err != nil {
		// Fall through: admission is idempotent on the payment reference
		logger.WithError(err).Warn("Event dedupe unavailable")
		claimed = true
	}
	if !claimed {
		existing, err := s.lookup.GetBookingByPaymentRef(ctx, paid.SessionID)
		if err != nil && !errors.Is(err, models.ErrBookingNotFound) {
			return nil, err
		}
		if existing != nil {
			logger.Info("Duplicate payment event ignored")
			return &PaymentOutcome{Booking: existing, Duplicate: true}, nil
		}
		// A claim without a booking was left by an attempt that never
		// finished; admission replays safely on the payment reference.
		logger.Warn("Payment event claimed but not admitted, retrying admission")
	}

	dateKey, err := models.ParseDateKey(paid.Date)
	if err != nil {
		return nil, err
	}

	paymentRef := paid.SessionID
	req := &models.AdmissionRequest{
		TourRef:    paid.TourID,
		DateKey:    dateKey,
		PartySize:  paid.Quantity,
		UserRef:    paid.UserID,
		Provenance: models.ProvenancePayment,
		PaymentRef: &paymentRef,
		Status:     models.BookingStatusPaid,
	}
	if paid.AmountPaid > 0 {
		amount := paid.AmountPaid
		req.Price = &amount
	}

	rec, err := s.bookings.Admit(ctx, SystemActor, req)
	if err != nil {
		if errors.Is(err, models.ErrCapacityExceeded) || errors.Is(err, models.ErrInvalidRequest) || models.IsNotFound(err) {
			logger.WithError(err).Error("Paid checkout could not be admitted, refund required")
			return nil, err
		}
		if forgetErr := s.deduper.Forget(ctx, eventID); forgetErr != nil {
			logger.WithError(forgetErr).Warn("Failed to release payment event claim")
		}
		return nil, fmt.Errorf("failed to admit paid checkout %s: %w", paid.SessionID, err)
	}

	return &PaymentOutcome{Booking: rec}, nil
}
