package database

import (
	"context"
	"errors"
	"time"

	"github.com/tourbook/booking-backend/internal/models"
)

// BookingStore is the persistence boundary of the booking core.
//
// Implementations own the two historical booking shapes: records are
// normalized to models.BookingRecord on read and always written in the modern
// shape. AdmitBooking and ReviseBooking must re-read capacity and committed
// demand and write the record as one atomic unit, serialized per
// (tour, day) by the store itself.
type BookingStore interface {
	GetTour(ctx context.Context, tourRef string) (*models.Tour, error)
	UserExists(ctx context.Context, userRef string) (bool, error)

	// UsedCapacity sums party sizes of non-cancelled bookings for the tour/day
	UsedCapacity(ctx context.Context, tourRef string, dateKey models.DateKey) (int, error)

	// AdmitBooking reports created=false when req.PaymentRef was already
	// admitted; the existing record is returned and nothing is written.
	AdmitBooking(ctx context.Context, req *models.AdmissionRequest) (rec *models.BookingRecord, created bool, err error)
	ReviseBooking(ctx context.Context, id string, rev models.BookingRevision) (*models.BookingRecord, error)
	CancelBooking(ctx context.Context, id string) (*models.BookingRecord, error)

	GetBooking(ctx context.Context, id string) (*models.BookingRecord, error)
	GetBookingByPaymentRef(ctx context.Context, paymentRef string) (*models.BookingRecord, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.BookingRecord, error)

	// ExpireHeldBookings cancels pending holds whose expiry is not after now.
	// Bookings without a hold are never touched.
	ExpireHeldBookings(ctx context.Context, now time.Time, limit int) ([]*models.BookingRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// slotKey identifies the (tour, day) pair admissions are serialized on
func slotKey(tourRef string, dateKey models.DateKey) string {
	return tourRef + "|" + dateKey.String()
}

// revisionTarget resolves the party size and day an edit ends up with
func revisionTarget(current *models.BookingRecord, rev models.BookingRevision) (int, models.DateKey, error) {
	partySize := current.PartySize
	dateKey := current.DateKey
	if rev.PartySize != nil {
		partySize = *rev.PartySize
	}
	if rev.DateKey != nil {
		dateKey = *rev.DateKey
	}
	if partySize <= 0 {
		return 0, "", models.InvalidRequestf("participants must be a positive number")
	}
	if !dateKey.Valid() {
		return 0, "", models.InvalidRequestf("date %q must be formatted as YYYY-MM-DD", dateKey)
	}
	return partySize, dateKey, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// isDomainError reports errors raised by booking rules rather than by the store
func isDomainError(err error) bool {
	var capErr *models.CapacityExceededError
	return errors.As(err, &capErr) ||
		models.IsNotFound(err) ||
		errors.Is(err, models.ErrInvalidRequest) ||
		errors.Is(err, models.ErrBookingAlreadyCancelled)
}
