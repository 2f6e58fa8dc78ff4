package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/pkg/retry"
)

// BookingService is the admission controller and booking facade.
// The capacity re-check and the insert happen atomically inside the store;
// this layer validates, retries transient store failures, and fans out
// audit entries and events.
type BookingService struct {
	store     database.BookingStore
	retrier   *retry.Retrier
	audit     *AuditService
	publisher EventPublisher
	holdTTL   time.Duration
	logger    *logrus.Logger
}

// DefaultHoldTTL is how long a held booking keeps its places
const DefaultHoldTTL = 30 * time.Minute

// NewBookingService creates a new BookingService
func NewBookingService(
	store database.BookingStore,
	retryConfig *retry.Config,
	audit *AuditService,
	publisher EventPublisher,
	logger *logrus.Logger,
) *BookingService {
	if publisher == nil {
		publisher = NoopEventPublisher{}
	}
	return &BookingService{
		store:     store,
		retrier:   retry.New(retryConfig),
		audit:     audit,
		publisher: publisher,
		holdTTL:   DefaultHoldTTL,
		logger:    logger,
	}
}

// WithHoldTTL sets how long held bookings keep their places
func (s *BookingService) WithHoldTTL(ttl time.Duration) *BookingService {
	if ttl > 0 {
		s.holdTTL = ttl
	}
	return s
}

// CreateBooking handles the admin direct-create path
func (s *BookingService) CreateBooking(ctx context.Context, actor *Actor, req *models.CreateBookingRequest) (*models.BookingRecord, error) {
	dateKey, err := models.ParseDateKey(req.StartDate)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetTour(ctx, req.Tour); err != nil {
		return nil, fmt.Errorf("failed to load tour %s: %w", req.Tour, err)
	}

	exists, err := s.store.UserExists(ctx, req.User)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", req.User, err)
	}
	if !exists {
		return nil, models.ErrUserNotFound
	}

	admission := &models.AdmissionRequest{
		TourRef:    req.Tour,
		DateKey:    dateKey,
		PartySize:  req.Participants,
		UserRef:    req.User,
		Provenance: models.ProvenanceAdmin,
		Price:      req.Price,
		Status:     req.Status,
	}
	if req.Hold {
		holdUntil := time.Now().UTC().Add(s.holdTTL)
		admission.HoldUntil = &holdUntil
	}

	return s.Admit(ctx, actor, admission)
}

// Admit runs one admission attempt through the store, retrying only
// transient store failures. Capacity rejections are returned as
// *models.CapacityExceededError. A replayed payment reference returns the
// booking already admitted for it without auditing or publishing again.
func (s *BookingService) Admit(ctx context.Context, actor *Actor, req *models.AdmissionRequest) (*models.BookingRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"tour_id":    req.TourRef,
		"date":       req.DateKey,
		"party_size": req.PartySize,
		"provenance": req.Provenance,
	})

	var (
		rec     *models.BookingRecord
		created bool
	)
	err := s.withRetry(ctx, logger, "admit", func(ctx context.Context) error {
		admitted, inserted, err := s.store.AdmitBooking(ctx, req)
		if err != nil {
			return err
		}
		rec, created = admitted, inserted
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrCapacityExceeded) {
			logger.WithError(err).Info("Admission rejected")
			s.recordAudit(logger, s.audit.LogAdmissionRejected(ctx, actor, req, err))
		}
		return nil, err
	}

	if !created {
		logger.WithField("booking_id", rec.ID).Info("Payment already admitted")
		return rec, nil
	}

	logger.WithField("booking_id", rec.ID).Info("Booking admitted")
	s.recordAudit(logger, s.audit.LogBookingAdmitted(ctx, actor, rec))
	s.publish(ctx, logger, NewBookingEvent(EventBookingCommitted, rec))

	return rec, nil
}

// GetBooking returns a booking visible to the actor
func (s *BookingService) GetBooking(ctx context.Context, actor *Actor, id string) (*models.BookingRecord, error) {
	rec, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeBookingAccess(actor, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListMyBookings lists the actor's own bookings
func (s *BookingService) ListMyBookings(ctx context.Context, actor *Actor, limit, offset int) ([]*models.BookingRecord, error) {
	return s.store.ListBookings(ctx, models.BookingFilter{
		UserRef: actor.UserID,
		Limit:   limit,
		Offset:  offset,
	})
}

// ListBookings lists bookings for admins, optionally by tour and day
func (s *BookingService) ListBookings(ctx context.Context, tourRef, rawDate string, limit, offset int) ([]*models.BookingRecord, error) {
	filter := models.BookingFilter{TourRef: tourRef, Limit: limit, Offset: offset}
	if rawDate != "" {
		dateKey, err := models.ParseDateKey(rawDate)
		if err != nil {
			return nil, err
		}
		filter.DateKey = dateKey
	}
	return s.store.ListBookings(ctx, filter)
}

// CancelBooking moves a booking to cancelled, releasing its capacity.
// Owners may cancel their own bookings; admins may cancel any.
func (s *BookingService) CancelBooking(ctx context.Context, actor *Actor, id string) (*models.BookingRecord, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeBookingAccess(actor, current); err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"tour_id":    current.TourRef,
		"date":       current.DateKey,
	})

	var rec *models.BookingRecord
	err = s.withRetry(ctx, logger, "cancel", func(ctx context.Context) error {
		cancelled, err := s.store.CancelBooking(ctx, id)
		if err != nil {
			return err
		}
		rec = cancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithField("party_size", rec.PartySize).Info("Booking cancelled")
	s.recordAudit(logger, s.audit.LogBookingCancelled(ctx, actor, rec))
	s.publish(ctx, logger, NewBookingEvent(EventBookingCancelled, rec))

	return rec, nil
}

// ReviseBooking applies an admin edit of party size and/or date under the
// same atomic check as admission, excluding the booking's own party.
func (s *BookingService) ReviseBooking(ctx context.Context, actor *Actor, id string, req *models.UpdateBookingRequest) (*models.BookingRecord, error) {
	rev := models.BookingRevision{PartySize: req.Participants}
	if req.Date != nil {
		dateKey, err := models.ParseDateKey(*req.Date)
		if err != nil {
			return nil, err
		}
		rev.DateKey = &dateKey
	}
	if rev.PartySize == nil && rev.DateKey == nil {
		return nil, models.InvalidRequestf("participants or date is required")
	}
	if rev.PartySize != nil && *rev.PartySize <= 0 {
		return nil, models.InvalidRequestf("participants must be a positive number")
	}

	before, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"tour_id":    before.TourRef,
	})

	var rec *models.BookingRecord
	err = s.withRetry(ctx, logger, "revise", func(ctx context.Context) error {
		revised, err := s.store.ReviseBooking(ctx, id, rev)
		if err != nil {
			return err
		}
		rec = revised
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"date":       rec.DateKey,
		"party_size": rec.PartySize,
	}).Info("Booking revised")
	s.recordAudit(logger, s.audit.LogBookingRevised(ctx, actor, before, rec))
	s.publish(ctx, logger, NewBookingEvent(EventBookingRevised, rec))

	return rec, nil
}

// withRetry retries op while it fails with a transient store error.
// When retries run out the last transient error is returned.
func (s *BookingService) withRetry(ctx context.Context, logger *logrus.Entry, op string, fn retry.Operation) error {
	result := s.retrier.DoWithCallback(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && !errors.Is(err, models.ErrTransientStore) {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, err error, wait time.Duration) {
		logger.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"wait":    wait.String(),
		}).Warn("Transient store error, retrying")
	})

	if errors.Is(result.Err, retry.ErrMaxRetriesExceeded) {
		logger.WithError(result.LastError).WithField("attempts", result.Attempts).Error("Store still failing after retries")
		return result.LastError
	}
	return result.Err
}

func (s *BookingService) publish(ctx context.Context, logger *logrus.Entry, event *BookingEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.WithError(err).Warn("Failed to publish booking event")
	}
}

func (s *BookingService) recordAudit(logger *logrus.Entry, err error) {
	if err != nil {
		logger.WithError(err).Warn("Failed to write audit entry")
	}
}

func authorizeBookingAccess(actor *Actor, rec *models.BookingRecord) error {
	if actor == nil {
		return models.ErrBookingForbidden
	}
	if actor.IsAdmin || (rec.UserRef != "" && rec.UserRef == actor.UserID) {
		return nil
	}
	return models.ErrBookingForbidden
}
