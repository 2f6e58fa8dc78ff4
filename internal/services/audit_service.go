package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/utils"
)

// Audit actions
const (
	AuditActionBookingAdmitted  = "booking_admitted"
	AuditActionBookingRejected  = "booking_rejected"
	AuditActionBookingCancelled = "booking_cancelled"
	AuditActionBookingRevised   = "booking_revised"
	AuditActionBookingExpired   = "booking_expired"
)

// Actor identifies who triggered a booking change and from where
type Actor struct {
	UserID    string
	IsAdmin   bool
	IPAddress string
	UserAgent string
}

// SystemActor is used for webhook and scheduled changes
var SystemActor = &Actor{UserID: "system", IsAdmin: true}

// AuditService records booking changes in booking_audit_logs.
// Without a database it only writes the structured log line.
type AuditService struct {
	db     database.DB
	logger *logrus.Logger
}

// NewAuditService creates a new audit service. db may be nil.
func NewAuditService(db database.DB, logger *logrus.Logger) *AuditService {
	return &AuditService{
		db:     db,
		logger: logger,
	}
}

// AuditEvent represents a booking change to be logged
type AuditEvent struct {
	ActorID   string
	Action    string
	BookingID string
	TourID    string
	IPAddress string
	UserAgent string
	Details   map[string]interface{}
}

// AuditEntry is a stored audit event
type AuditEntry struct {
	ActorID   *string         `json:"actorId" db:"actor_id"`
	Action    string          `json:"action" db:"action"`
	BookingID *string         `json:"bookingId" db:"booking_id"`
	TourID    *string         `json:"tourId" db:"tour_id"`
	IPAddress *string         `json:"ipAddress" db:"ip_address"`
	UserAgent *string         `json:"userAgent" db:"user_agent"`
	Details   json.RawMessage `json:"details" db:"details"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// LogBookingAdmitted logs a committed admission
func (s *AuditService) LogBookingAdmitted(ctx context.Context, actor *Actor, rec *models.BookingRecord) error {
	return s.logEvent(ctx, s.newEvent(actor, AuditActionBookingAdmitted, rec.ID, rec.TourRef, map[string]interface{}{
		"date":        rec.DateKey,
		"party_size":  rec.PartySize,
		"status":      rec.Status,
		"provenance":  rec.Provenance,
		"payment_ref": rec.PaymentRef,
	}))
}

// LogAdmissionRejected logs an admission turned away for lack of capacity
func (s *AuditService) LogAdmissionRejected(ctx context.Context, actor *Actor, req *models.AdmissionRequest, cause error) error {
	details := map[string]interface{}{
		"date":       req.DateKey,
		"party_size": req.PartySize,
		"provenance": req.Provenance,
		"reason":     cause.Error(),
	}

	var capErr *models.CapacityExceededError
	if errors.As(cause, &capErr) {
		details["capacity"] = capErr.Verdict.Capacity
		details["already_booked"] = capErr.Verdict.AlreadyBooked
		details["can_accept"] = capErr.Verdict.CanAccept
	}

	return s.logEvent(ctx, s.newEvent(actor, AuditActionBookingRejected, "", req.TourRef, details))
}

// LogBookingCancelled logs a cancellation
func (s *AuditService) LogBookingCancelled(ctx context.Context, actor *Actor, rec *models.BookingRecord) error {
	return s.logEvent(ctx, s.newEvent(actor, AuditActionBookingCancelled, rec.ID, rec.TourRef, map[string]interface{}{
		"date":       rec.DateKey,
		"party_size": rec.PartySize,
	}))
}

// LogBookingRevised logs an admin edit with the before and after values
func (s *AuditService) LogBookingRevised(ctx context.Context, actor *Actor, before, after *models.BookingRecord) error {
	return s.logEvent(ctx, s.newEvent(actor, AuditActionBookingRevised, after.ID, after.TourRef, map[string]interface{}{
		"previous_date":       before.DateKey,
		"previous_party_size": before.PartySize,
		"date":                after.DateKey,
		"party_size":          after.PartySize,
	}))
}

// LogBookingExpired logs a pending hold released by the sweep
func (s *AuditService) LogBookingExpired(ctx context.Context, rec *models.BookingRecord) error {
	return s.logEvent(ctx, s.newEvent(SystemActor, AuditActionBookingExpired, rec.ID, rec.TourRef, map[string]interface{}{
		"date":       rec.DateKey,
		"party_size": rec.PartySize,
		"created_at": rec.CreatedAt,
	}))
}

func (s *AuditService) newEvent(actor *Actor, action, bookingID, tourID string, details map[string]interface{}) AuditEvent {
	if actor == nil {
		actor = SystemActor
	}
	if actor.UserAgent != "" {
		details["device_info"] = utils.ParseUserAgent(actor.UserAgent)
	}
	return AuditEvent{
		ActorID:   actor.UserID,
		Action:    action,
		BookingID: bookingID,
		TourID:    tourID,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		Details:   details,
	}
}

// logEvent writes the structured log line and, when a database is
// configured, the booking_audit_logs row
func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) error {
	s.logger.WithFields(logrus.Fields{
		"audit_action": event.Action,
		"actor_id":     event.ActorID,
		"booking_id":   event.BookingID,
		"tour_id":      event.TourID,
		"ip":           event.IPAddress,
	}).Info("Booking audit event")

	if s.db == nil {
		return nil
	}

	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO booking_audit_logs (actor_id, action, booking_id, tour_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`

	_, err = s.db.ExecContext(ctx, query,
		nullIfEmpty(event.ActorID),
		event.Action,
		nullIfEmpty(event.BookingID),
		nullIfEmpty(event.TourID),
		nullIfEmpty(event.IPAddress),
		nullIfEmpty(event.UserAgent),
		string(details),
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}

// GetBookingHistory retrieves the audit trail of a booking, newest first
func (s *AuditService) GetBookingHistory(ctx context.Context, bookingID string, limit int) ([]AuditEntry, error) {
	if s.db == nil {
		return []AuditEntry{}, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT actor_id, action, booking_id, tour_id, ip_address, user_agent, details, created_at
		FROM booking_audit_logs
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	entries := []AuditEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, bookingID, limit); err != nil {
		return nil, fmt.Errorf("failed to get booking history: %w", err)
	}

	return entries, nil
}

// CleanupOldAuditLogs removes audit logs older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.db == nil {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM booking_audit_logs WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
