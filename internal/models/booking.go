package models

import (
	"time"
)

// BookingStatus represents the lifecycle state of a booking record
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusPaid, BookingStatusCancelled:
		return true
	}
	return false
}

// Provenance records which path created a booking
type Provenance string

const (
	ProvenanceAdmin   Provenance = "admin"
	ProvenancePayment Provenance = "payment"
)

// BookingRecord is a reservation of PartySize places on one tour for one day.
// Stores may hold it in the legacy shape (start date + participants) or the
// modern shape (item date string + quantity); both normalize to DateKey.
type BookingRecord struct {
	ID          string        `json:"id"`
	TourRef     string        `json:"tour"`
	UserRef     string        `json:"user,omitempty"`
	DateKey     DateKey       `json:"date"`
	PartySize   int           `json:"participants"`
	Status      BookingStatus `json:"status"`
	Price       *float64      `json:"price,omitempty"`
	Provenance  Provenance    `json:"provenance,omitempty"`
	PaymentRef  *string       `json:"paymentRef,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	CancelledAt *time.Time    `json:"cancelledAt,omitempty"`

	// HoldExpiresAt is set only on pending holds; the sweep cancels them after it
	HoldExpiresAt *time.Time `json:"holdExpiresAt,omitempty"`

	// At most one of these is set, reflecting the stored shape
	LegacyStartDate *time.Time `json:"legacyStartDate,omitempty"`
	ModernItemDate  *string    `json:"modernItemDate,omitempty"`
}

// CountsTowardCapacity reports whether the record consumes capacity
func (b *BookingRecord) CountsTowardCapacity() bool {
	return b.Status != BookingStatusCancelled
}

// CanBeCancelled checks if the booking can move to cancelled
func (b *BookingRecord) CanBeCancelled() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusPaid
}

// IsLegacy reports whether the record was stored in the legacy shape
func (b *BookingRecord) IsLegacy() bool {
	return b.ModernItemDate == nil && b.LegacyStartDate != nil
}

// AdmissionRequest is a prospective booking presented to the admission controller
type AdmissionRequest struct {
	TourRef    string
	DateKey    DateKey
	PartySize  int
	UserRef    string
	Provenance Provenance
	PaymentRef *string
	Price      *float64
	Status     BookingStatus
	HoldUntil  *time.Time
}

// Validate checks the request shape before it reaches the store
func (r *AdmissionRequest) Validate() error {
	if r.TourRef == "" {
		return InvalidRequestf("tour is required")
	}
	if !r.DateKey.Valid() {
		return InvalidRequestf("date %q must be formatted as YYYY-MM-DD", r.DateKey)
	}
	if r.PartySize <= 0 {
		return InvalidRequestf("participants must be a positive number")
	}
	if r.Status == "" {
		r.Status = BookingStatusPaid
		if r.HoldUntil != nil {
			r.Status = BookingStatusPending
		}
	}
	if r.Status == BookingStatusCancelled || !r.Status.Valid() {
		return InvalidRequestf("status %q cannot be used for a new booking", r.Status)
	}
	if r.HoldUntil != nil && r.Status != BookingStatusPending {
		return InvalidRequestf("only pending bookings can be held")
	}
	if r.Provenance == "" {
		r.Provenance = ProvenanceAdmin
	}
	return nil
}

// NewRecord builds the record that will be persisted for this request
func (r *AdmissionRequest) NewRecord(now time.Time) *BookingRecord {
	itemDate := r.DateKey.String()
	return &BookingRecord{
		TourRef:        r.TourRef,
		UserRef:        r.UserRef,
		DateKey:        r.DateKey,
		PartySize:      r.PartySize,
		Status:         r.Status,
		Price:          r.Price,
		Provenance:     r.Provenance,
		PaymentRef:     r.PaymentRef,
		HoldExpiresAt:  r.HoldUntil,
		CreatedAt:      now,
		UpdatedAt:      now,
		ModernItemDate: &itemDate,
	}
}

// BookingRevision describes an admin edit of party size and/or date
type BookingRevision struct {
	PartySize *int
	DateKey   *DateKey
}

// BookingFilter selects bookings for admin listings
type BookingFilter struct {
	TourRef string
	DateKey DateKey
	UserRef string
	Limit   int
	Offset  int
}

// CreateBookingRequest is the admin direct-create body
type CreateBookingRequest struct {
	Tour         string        `json:"tour" binding:"required"`
	User         string        `json:"user" binding:"required"`
	Participants int           `json:"participants" binding:"required,min=1"`
	StartDate    string        `json:"startDate" binding:"required"`
	Price        *float64      `json:"price,omitempty"`
	Status       BookingStatus `json:"status,omitempty"`
	// Hold creates a pending booking that is released after the hold TTL
	Hold         bool          `json:"hold,omitempty"`
}

// UpdateBookingRequest is the admin edit body
type UpdateBookingRequest struct {
	Participants *int    `json:"participants,omitempty"`
	Date         *string `json:"date,omitempty"`
}

// CheckoutRequest starts a payment for a tour date
type CheckoutRequest struct {
	ItemID   string `json:"itemId" binding:"required"`
	Date     string `json:"date" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// CheckoutResponse returns the hosted payment page for a checkout
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}
