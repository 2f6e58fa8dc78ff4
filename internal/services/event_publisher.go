package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tourbook/booking-backend/internal/models"
)

// Booking event routing keys
const (
	EventBookingCommitted = "booking.committed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingRevised   = "booking.revised"
	EventBookingExpired   = "booking.expired"
)

// BookingEvent is the message published when a booking changes state
type BookingEvent struct {
	Type       string               `json:"type"`
	BookingID  string               `json:"bookingId"`
	TourID     string               `json:"tourId"`
	Date       models.DateKey       `json:"date"`
	PartySize  int                  `json:"partySize"`
	Status     models.BookingStatus `json:"status"`
	UserID     string               `json:"userId,omitempty"`
	Provenance models.Provenance    `json:"provenance,omitempty"`
	OccurredAt time.Time            `json:"occurredAt"`
}

// NewBookingEvent builds an event of the given type for rec
func NewBookingEvent(eventType string, rec *models.BookingRecord) *BookingEvent {
	return &BookingEvent{
		Type:       eventType,
		BookingID:  rec.ID,
		TourID:     rec.TourRef,
		Date:       rec.DateKey,
		PartySize:  rec.PartySize,
		Status:     rec.Status,
		UserID:     rec.UserRef,
		Provenance: rec.Provenance,
		OccurredAt: time.Now().UTC(),
	}
}

// EventPublisher delivers booking events to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, event *BookingEvent) error
}

// JSONPublisher is the subset of pkg/mq.Publisher used for booking events
type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// RabbitEventPublisher publishes booking events with the event type as routing key
type RabbitEventPublisher struct {
	publisher JSONPublisher
}

// NewRabbitEventPublisher creates a new RabbitEventPublisher
func NewRabbitEventPublisher(publisher JSONPublisher) *RabbitEventPublisher {
	return &RabbitEventPublisher{publisher: publisher}
}

// Publish sends the event to the exchange
func (p *RabbitEventPublisher) Publish(ctx context.Context, event *BookingEvent) error {
	if err := p.publisher.PublishJSON(ctx, event.Type, event); err != nil {
		return fmt.Errorf("failed to publish %s for booking %s: %w", event.Type, event.BookingID, err)
	}
	return nil
}

// NoopEventPublisher drops events. Used when RabbitMQ is not configured.
type NoopEventPublisher struct{}

// Publish does nothing
func (NoopEventPublisher) Publish(ctx context.Context, event *BookingEvent) error {
	return nil
}
