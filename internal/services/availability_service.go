package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
	"golang.org/x/sync/singleflight"
)

// availabilityReadTimeout bounds one shared round of store reads
const availabilityReadTimeout = 10 * time.Second

// CapacityReader is the read side of the booking store used for
// availability checks
type CapacityReader interface {
	GetTour(ctx context.Context, tourRef string) (*models.Tour, error)
	UsedCapacity(ctx context.Context, tourRef string, dateKey models.DateKey) (int, error)
}

// AvailabilityService answers advisory "is there room" questions.
// It never reserves capacity; admission re-checks inside the store.
type AvailabilityService struct {
	store  CapacityReader
	logger *logrus.Logger
	group  singleflight.Group
}

// NewAvailabilityService creates a new AvailabilityService
func NewAvailabilityService(store CapacityReader, logger *logrus.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:  store,
		logger: logger,
	}
}

// CheckAvailability evaluates a party of the given size against the tour on
// the given day. Parties larger than the whole tour are rejected without
// reading committed demand.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, tourRef, rawDate string, participants int) (*models.AvailabilityVerdict, error) {
	if tourRef == "" {
		return nil, models.InvalidRequestf("tour is required")
	}
	dateKey, err := models.ParseDateKey(rawDate)
	if err != nil {
		return nil, err
	}
	if participants <= 0 {
		return nil, models.InvalidRequestf("participants must be a positive number")
	}

	// Identical concurrent questions share one round of store reads. The
	// shared read runs on a context no single caller can cancel; each caller
	// still stops waiting when its own context ends.
	key := tourRef + "|" + dateKey.String() + "|" + strconv.Itoa(participants)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), availabilityReadTimeout)
		defer cancel()
		return s.evaluate(flightCtx, tourRef, dateKey, participants)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	verdict := *(res.Val.(*models.AvailabilityVerdict))
	s.logger.WithFields(logrus.Fields{
		"tour_id":        tourRef,
		"date":           dateKey,
		"party_size":     participants,
		"available":      verdict.Available,
		"already_booked": verdict.AlreadyBooked,
		"shared":         res.Shared,
	}).Debug("Availability checked")

	return &verdict, nil
}

func (s *AvailabilityService) evaluate(ctx context.Context, tourRef string, dateKey models.DateKey, participants int) (*models.AvailabilityVerdict, error) {
	tour, err := s.store.GetTour(ctx, tourRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load tour %s: %w", tourRef, err)
	}

	if models.ExceedsTourSize(tour.MaxGroupSize, participants) {
		verdict := models.OversizedPartyVerdict(tour.MaxGroupSize)
		return &verdict, nil
	}

	used, err := s.store.UsedCapacity(ctx, tourRef, dateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate bookings for tour %s on %s: %w", tourRef, dateKey, err)
	}

	verdict := models.EvaluateAvailability(tour.MaxGroupSize, used, participants)
	return &verdict, nil
}
