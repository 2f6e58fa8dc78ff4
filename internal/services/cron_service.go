package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
)

// HoldExpirer cancels pending holds whose expiry has passed
type HoldExpirer interface {
	ExpireHeldBookings(ctx context.Context, now time.Time, limit int) ([]*models.BookingRecord, error)
}

const (
	holdSweepBatch      = 200
	auditRetention      = 180 * 24 * time.Hour
	auditCleanupSpec    = "0 30 3 * * *"
	cronJobRunTimeLimit = 2 * time.Minute
)

// CronService manages scheduled background jobs
type CronService struct {
	cron      *cron.Cron
	holds     HoldExpirer
	audit     *AuditService
	publisher EventPublisher
	sweepSpec string
	logger    *logrus.Logger
	now       func() time.Time
}

// NewCronService creates a new CronService
func NewCronService(holds HoldExpirer, audit *AuditService, publisher EventPublisher, sweepSpec string, logger *logrus.Logger) *CronService {
	if publisher == nil {
		publisher = NoopEventPublisher{}
	}
	return &CronService{
		// Cron format: second minute hour day month weekday
		cron:      cron.New(cron.WithSeconds()),
		holds:     holds,
		audit:     audit,
		publisher: publisher,
		sweepSpec: sweepSpec,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules the jobs and starts the scheduler
func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.sweepSpec, s.expireHoldsJob); err != nil {
		return fmt.Errorf("failed to schedule hold expiry job: %w", err)
	}
	s.logger.WithField("spec", s.sweepSpec).Info("Scheduled: expire pending holds")

	if _, err := s.cron.AddFunc(auditCleanupSpec, s.cleanupAuditLogsJob); err != nil {
		return fmt.Errorf("failed to schedule audit cleanup job: %w", err)
	}
	s.logger.WithField("spec", auditCleanupSpec).Info("Scheduled: cleanup old audit logs")

	s.cron.Start()
	s.logger.Info("Cron service started")

	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// ExpireHolds cancels pending holds whose expiry has passed and returns how
// many were released. Bookings created without a hold are never expired.
func (s *CronService) ExpireHolds(ctx context.Context) (int, error) {
	expired, err := s.holds.ExpireHeldBookings(ctx, s.now().UTC(), holdSweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to expire held bookings: %w", err)
	}

	for _, rec := range expired {
		logger := s.logger.WithFields(logrus.Fields{
			"booking_id": rec.ID,
			"tour_id":    rec.TourRef,
			"date":       rec.DateKey,
			"party_size": rec.PartySize,
		})
		if err := s.audit.LogBookingExpired(ctx, rec); err != nil {
			logger.WithError(err).Warn("Failed to write audit entry")
		}
		if err := s.publisher.Publish(ctx, NewBookingEvent(EventBookingExpired, rec)); err != nil {
			logger.WithError(err).Warn("Failed to publish booking event")
		}
	}

	return len(expired), nil
}

func (s *CronService) expireHoldsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), cronJobRunTimeLimit)
	defer cancel()

	startTime := time.Now()
	released, err := s.ExpireHolds(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Hold expiry failed")
		return
	}
	if released > 0 {
		s.logger.WithFields(logrus.Fields{
			"released": released,
			"duration": time.Since(startTime).String(),
		}).Info("[CRON] Expired pending holds")
	}
}

func (s *CronService) cleanupAuditLogsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), cronJobRunTimeLimit)
	defer cancel()

	removed, err := s.audit.CleanupOldAuditLogs(ctx, auditRetention)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Audit cleanup failed")
		return
	}
	s.logger.WithField("removed", removed).Info("[CRON] Cleaned up old audit logs")
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"total_jobs": len(entries),
		"jobs":       jobs,
	}
}
