package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tourbook/booking-backend/internal/models"
)

// MemoryBookingStore is an in-process BookingStore for development and tests.
// A single mutex serializes every write, which is the whole-store version of
// the per-slot serialization the database stores provide.
type MemoryBookingStore struct {
	mu       sync.Mutex
	tours    map[string]*models.Tour
	users    map[string]bool
	bookings map[string]*models.BookingRecord
	order    []string
}

// NewMemoryBookingStore creates an empty MemoryBookingStore
func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{
		tours:    make(map[string]*models.Tour),
		users:    make(map[string]bool),
		bookings: make(map[string]*models.BookingRecord),
	}
}

// AddTour registers a tour
func (s *MemoryBookingStore) AddTour(tour models.Tour) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if tour.CreatedAt.IsZero() {
		tour.CreatedAt = now
	}
	if tour.UpdatedAt.IsZero() {
		tour.UpdatedAt = now
	}
	s.tours[tour.ID] = &tour
}

// AddUser registers a user
func (s *MemoryBookingStore) AddUser(userRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userRef] = true
}

// SeedLegacyBooking stores a booking in the legacy shape, bypassing admission
func (s *MemoryBookingStore) SeedLegacyBooking(tourRef, userRef string, startDate time.Time, participants int, status models.BookingStatus) *models.BookingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := startDate.UTC()
	now := time.Now().UTC()
	rec := &models.BookingRecord{
		ID:              uuid.New().String(),
		TourRef:         tourRef,
		UserRef:         userRef,
		DateKey:         models.DateKeyFromTime(start),
		PartySize:       participants,
		Status:          status,
		Provenance:      models.ProvenanceAdmin,
		CreatedAt:       now,
		UpdatedAt:       now,
		LegacyStartDate: &start,
	}
	s.put(rec)
	return clone(rec)
}

// SeedBooking stores a modern-shape booking as given, bypassing admission
func (s *MemoryBookingStore) SeedBooking(rec models.BookingRecord) *models.BookingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
		rec.UpdatedAt = rec.CreatedAt
	}
	itemDate := rec.DateKey.String()
	rec.ModernItemDate = &itemDate
	rec.LegacyStartDate = nil
	s.put(&rec)
	return clone(&rec)
}

// GetTour retrieves a tour by ID
func (s *MemoryBookingStore) GetTour(ctx context.Context, tourRef string) (*models.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tour, ok := s.tours[tourRef]
	if !ok {
		return nil, models.ErrTourNotFound
	}
	copied := *tour
	return &copied, nil
}

// UserExists reports whether the user is known
func (s *MemoryBookingStore) UserExists(ctx context.Context, userRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userRef], nil
}

// UsedCapacity sums committed demand for a tour/day
func (s *MemoryBookingStore) UsedCapacity(ctx context.Context, tourRef string, dateKey models.DateKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedLocked(tourRef, dateKey, ""), nil
}

// usedLocked sums active bookings for the slot, optionally skipping one record
func (s *MemoryBookingStore) usedLocked(tourRef string, dateKey models.DateKey, skipID string) int {
	total := 0
	for _, rec := range s.bookings {
		if rec.ID == skipID || !rec.CountsTowardCapacity() {
			continue
		}
		if rec.TourRef == tourRef && rec.DateKey == dateKey {
			total += rec.PartySize
		}
	}
	return total
}

// AdmitBooking re-validates availability and inserts the booking atomically
func (s *MemoryBookingStore) AdmitBooking(ctx context.Context, req *models.AdmissionRequest) (*models.BookingRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.PaymentRef != nil {
		for _, rec := range s.bookings {
			if rec.PaymentRef != nil && *rec.PaymentRef == *req.PaymentRef {
				return clone(rec), false, nil
			}
		}
	}

	tour, ok := s.tours[req.TourRef]
	if !ok {
		return nil, false, models.ErrTourNotFound
	}

	used := 0
	if !models.ExceedsTourSize(tour.MaxGroupSize, req.PartySize) {
		used = s.usedLocked(req.TourRef, req.DateKey, "")
	}
	if err := models.CheckAdmission(req.TourRef, req.DateKey, req.PartySize, tour.MaxGroupSize, used); err != nil {
		return nil, false, err
	}

	rec := req.NewRecord(time.Now().UTC())
	rec.ID = uuid.New().String()
	s.put(rec)
	return clone(rec), true, nil
}

// ReviseBooking changes party size and/or day of an active booking
func (s *MemoryBookingStore) ReviseBooking(ctx context.Context, id string, rev models.BookingRevision) (*models.BookingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	if !current.CountsTowardCapacity() {
		return nil, models.ErrBookingAlreadyCancelled
	}

	partySize, dateKey, err := revisionTarget(current, rev)
	if err != nil {
		return nil, err
	}

	tour, ok := s.tours[current.TourRef]
	if !ok {
		return nil, models.ErrTourNotFound
	}

	used := 0
	if !models.ExceedsTourSize(tour.MaxGroupSize, partySize) {
		used = s.usedLocked(current.TourRef, dateKey, current.ID)
	}
	if err := models.CheckAdmission(current.TourRef, dateKey, partySize, tour.MaxGroupSize, used); err != nil {
		return nil, err
	}

	itemDate := dateKey.String()
	current.PartySize = partySize
	current.DateKey = dateKey
	current.ModernItemDate = &itemDate
	current.LegacyStartDate = nil
	current.UpdatedAt = time.Now().UTC()
	return clone(current), nil
}

// CancelBooking moves an active booking to cancelled
func (s *MemoryBookingStore) CancelBooking(ctx context.Context, id string) (*models.BookingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	if !rec.CanBeCancelled() {
		return nil, models.ErrBookingAlreadyCancelled
	}

	now := time.Now().UTC()
	rec.Status = models.BookingStatusCancelled
	rec.CancelledAt = &now
	rec.UpdatedAt = now
	return clone(rec), nil
}

// GetBooking retrieves a booking by ID
func (s *MemoryBookingStore) GetBooking(ctx context.Context, id string) (*models.BookingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	return clone(rec), nil
}

// GetBookingByPaymentRef retrieves the booking admitted for a payment
func (s *MemoryBookingStore) GetBookingByPaymentRef(ctx context.Context, paymentRef string) (*models.BookingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.bookings {
		if rec.PaymentRef != nil && *rec.PaymentRef == paymentRef {
			return clone(rec), nil
		}
	}
	return nil, models.ErrBookingNotFound
}

// ListBookings lists bookings matching the filter, newest first
func (s *MemoryBookingStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.BookingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.BookingRecord
	for _, id := range s.order {
		rec := s.bookings[id]
		if filter.TourRef != "" && rec.TourRef != filter.TourRef {
			continue
		}
		if filter.DateKey != "" && rec.DateKey != filter.DateKey {
			continue
		}
		if filter.UserRef != "" && rec.UserRef != filter.UserRef {
			continue
		}
		matched = append(matched, clone(rec))
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*models.BookingRecord{}, nil
	}
	matched = matched[filter.Offset:]
	if limit := normalizeLimit(filter.Limit); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ExpireHeldBookings cancels pending holds that expired by now
func (s *MemoryBookingStore) ExpireHeldBookings(ctx context.Context, now time.Time, limit int) ([]*models.BookingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = normalizeLimit(limit)
	var expired []*models.BookingRecord
	for _, id := range s.order {
		if len(expired) >= limit {
			break
		}
		rec := s.bookings[id]
		if rec.Status != models.BookingStatusPending || rec.HoldExpiresAt == nil || rec.HoldExpiresAt.After(now) {
			continue
		}
		cancelledAt := time.Now().UTC()
		rec.Status = models.BookingStatusCancelled
		rec.CancelledAt = &cancelledAt
		rec.UpdatedAt = cancelledAt
		expired = append(expired, clone(rec))
	}
	return expired, nil
}

// Ping always succeeds
func (s *MemoryBookingStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryBookingStore) Close() error {
	return nil
}

func (s *MemoryBookingStore) put(rec *models.BookingRecord) {
	if _, exists := s.bookings[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.bookings[rec.ID] = rec
}

func clone(rec *models.BookingRecord) *models.BookingRecord {
	copied := *rec
	return &copied
}
