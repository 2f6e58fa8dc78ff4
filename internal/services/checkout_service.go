package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/gateway"
	"github.com/tourbook/booking-backend/internal/models"
)

// CheckoutService starts hosted payments for a tour date. The availability
// check here is advisory; the webhook admission is authoritative.
type CheckoutService struct {
	tours        CapacityReader
	availability *AvailabilityService
	gateway      gateway.PaymentGateway
	logger       *logrus.Logger
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(tours CapacityReader, availability *AvailabilityService, gw gateway.PaymentGateway, logger *logrus.Logger) *CheckoutService {
	return &CheckoutService{
		tours:        tours,
		availability: availability,
		gateway:      gw,
		logger:       logger,
	}
}

// CreateSession checks availability and opens a checkout session whose
// metadata carries everything the webhook needs to admit the booking
func (s *CheckoutService) CreateSession(ctx context.Context, actor *Actor, email string, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	verdict, err := s.availability.CheckAvailability(ctx, req.ItemID, req.Date, req.Quantity)
	if err != nil {
		return nil, err
	}

	dateKey, err := models.ParseDateKey(req.Date)
	if err != nil {
		return nil, err
	}

	if !verdict.Available {
		return nil, &models.CapacityExceededError{
			TourRef:   req.ItemID,
			DateKey:   dateKey,
			Requested: req.Quantity,
			Verdict:   *verdict,
		}
	}

	tour, err := s.tours.GetTour(ctx, req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tour %s: %w", req.ItemID, err)
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, &gateway.CheckoutSessionRequest{
		TourID:    tour.ID,
		TourName:  tour.Name,
		Date:      dateKey.String(),
		Quantity:  req.Quantity,
		UnitPrice: tour.Price,
		UserID:    actor.UserID,
		Email:     email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tour_id":    tour.ID,
		"date":       dateKey,
		"party_size": req.Quantity,
		"session_id": sess.ID,
		"gateway":    s.gateway.Name(),
	}).Info("Checkout session created")

	return &models.CheckoutResponse{SessionID: sess.ID, URL: sess.URL}, nil
}
