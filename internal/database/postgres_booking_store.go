package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourbook/booking-backend/internal/models"
)

const bookingColumns = `id, tour_id, start_date, participants, item_id, item_date, quantity,
		user_id, status, price, provenance, payment_ref, created_at, updated_at, cancelled_at, hold_expires_at`

// bookingRow is a bookings table row in either historical shape
type bookingRow struct {
	ID           string          `db:"id"`
	TourID       sql.NullString  `db:"tour_id"`
	StartDate    sql.NullTime    `db:"start_date"`
	Participants sql.NullInt64   `db:"participants"`
	ItemID       sql.NullString  `db:"item_id"`
	ItemDate     sql.NullString  `db:"item_date"`
	Quantity     sql.NullInt64   `db:"quantity"`
	UserID       sql.NullString  `db:"user_id"`
	Status       string          `db:"status"`
	Price        sql.NullFloat64 `db:"price"`
	Provenance   string          `db:"provenance"`
	PaymentRef   sql.NullString  `db:"payment_ref"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
	CancelledAt  sql.NullTime    `db:"cancelled_at"`
	HoldExpires  sql.NullTime    `db:"hold_expires_at"`
}

// toRecord normalizes either shape into a BookingRecord. A row with an
// item_date is modern; anything else is legacy.
func (r *bookingRow) toRecord() *models.BookingRecord {
	rec := &models.BookingRecord{
		ID:         r.ID,
		UserRef:    r.UserID.String,
		Status:     models.BookingStatus(r.Status),
		Provenance: models.Provenance(r.Provenance),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}

	if r.ItemDate.Valid {
		itemDate := r.ItemDate.String
		rec.TourRef = r.ItemID.String
		rec.DateKey = models.DateKey(itemDate)
		rec.PartySize = int(r.Quantity.Int64)
		rec.ModernItemDate = &itemDate
	} else {
		rec.TourRef = r.TourID.String
		rec.PartySize = int(r.Participants.Int64)
		if r.StartDate.Valid {
			start := r.StartDate.Time
			rec.DateKey = models.DateKeyFromTime(start)
			rec.LegacyStartDate = &start
		}
	}

	if r.Price.Valid {
		price := r.Price.Float64
		rec.Price = &price
	}
	if r.PaymentRef.Valid {
		ref := r.PaymentRef.String
		rec.PaymentRef = &ref
	}
	if r.CancelledAt.Valid {
		cancelledAt := r.CancelledAt.Time
		rec.CancelledAt = &cancelledAt
	}
	if r.HoldExpires.Valid {
		holdExpires := r.HoldExpires.Time
		rec.HoldExpiresAt = &holdExpires
	}

	return rec
}

// PostgresBookingStore implements BookingStore on PostgreSQL.
// Admissions are serialized per (tour, day) with a transaction-scoped
// advisory lock, so the re-check and insert commit together.
type PostgresBookingStore struct {
	db *sqlx.DB
}

// NewPostgresBookingStore creates a new PostgresBookingStore
func NewPostgresBookingStore(db *sqlx.DB) *PostgresBookingStore {
	return &PostgresBookingStore{db: db}
}

// ============================================================================
// TOURS & USERS
// ============================================================================

// GetTour retrieves a tour by ID
func (s *PostgresBookingStore) GetTour(ctx context.Context, tourRef string) (*models.Tour, error) {
	return getTour(ctx, s.db, tourRef)
}

func getTour(ctx context.Context, q sqlx.QueryerContext, tourRef string) (*models.Tour, error) {
	var tour models.Tour
	query := `SELECT id, name, max_group_size, price, created_at, updated_at FROM tours WHERE id = $1`
	err := sqlx.GetContext(ctx, q, &tour, query, tourRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTourNotFound
	}
	if err != nil {
		return nil, classifyPostgresError("failed to get tour", err)
	}
	return &tour, nil
}

// UserExists reports whether the user is known
func (s *PostgresBookingStore) UserExists(ctx context.Context, userRef string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userRef)
	if err != nil {
		return false, classifyPostgresError("failed to check user", err)
	}
	return exists, nil
}

// ============================================================================
// CAPACITY AGGREGATION
// ============================================================================

// UsedCapacity sums committed demand for a tour/day across both shapes
func (s *PostgresBookingStore) UsedCapacity(ctx context.Context, tourRef string, dateKey models.DateKey) (int, error) {
	return usedCapacity(ctx, s.db, tourRef, dateKey)
}

// usedCapacity runs the two shape-scoped sums. Legacy rows are matched by
// day range on start_date and must not carry an item_date, so a row is never
// counted by both queries.
func usedCapacity(ctx context.Context, q sqlx.QueryerContext, tourRef string, dateKey models.DateKey) (int, error) {
	dayStart, dayEnd := dateKey.DayRange()

	var legacy int
	legacyQuery := `
		SELECT COALESCE(SUM(participants), 0)
		FROM bookings
		WHERE tour_id = $1
		  AND item_date IS NULL
		  AND start_date >= $2 AND start_date < $3
		  AND status <> 'cancelled'`
	if err := sqlx.GetContext(ctx, q, &legacy, legacyQuery, tourRef, dayStart, dayEnd); err != nil {
		return 0, classifyPostgresError("failed to sum legacy bookings", err)
	}

	var modern int
	modernQuery := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM bookings
		WHERE item_id = $1
		  AND item_date = $2
		  AND status <> 'cancelled'`
	if err := sqlx.GetContext(ctx, q, &modern, modernQuery, tourRef, dateKey.String()); err != nil {
		return 0, classifyPostgresError("failed to sum bookings", err)
	}

	return legacy + modern, nil
}

// lockSlot serializes writers of one (tour, day) until the transaction ends
func lockSlot(ctx context.Context, tx *sqlx.Tx, tourRef string, dateKey models.DateKey) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, slotKey(tourRef, dateKey))
	if err != nil {
		return classifyPostgresError("failed to lock booking slot", err)
	}
	return nil
}

// ============================================================================
// ADMISSION
// ============================================================================

// AdmitBooking re-validates availability and inserts the booking in one
// transaction. A payment reference that was already admitted returns the
// existing record with created=false instead of a second booking.
func (s *PostgresBookingStore) AdmitBooking(ctx context.Context, req *models.AdmissionRequest) (*models.BookingRecord, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, classifyPostgresError("failed to begin admission", err)
	}
	defer tx.Rollback()

	if err := lockSlot(ctx, tx, req.TourRef, req.DateKey); err != nil {
		return nil, false, err
	}

	if req.PaymentRef != nil {
		existing, err := getBookingBy(ctx, tx, "payment_ref", *req.PaymentRef)
		if err != nil && !errors.Is(err, models.ErrBookingNotFound) {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	tour, err := getTour(ctx, tx, req.TourRef)
	if err != nil {
		return nil, false, err
	}

	used := 0
	if !models.ExceedsTourSize(tour.MaxGroupSize, req.PartySize) {
		used, err = usedCapacity(ctx, tx, req.TourRef, req.DateKey)
		if err != nil {
			return nil, false, err
		}
	}

	if err := models.CheckAdmission(req.TourRef, req.DateKey, req.PartySize, tour.MaxGroupSize, used); err != nil {
		return nil, false, err
	}

	record := req.NewRecord(time.Now().UTC())
	record.ID = uuid.New().String()

	query := `
		INSERT INTO bookings (
			id, item_id, item_date, quantity, user_id, status,
			price, provenance, payment_ref, created_at, updated_at, hold_expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = tx.ExecContext(ctx, query,
		record.ID, record.TourRef, record.DateKey.String(), record.PartySize, nullString(record.UserRef), record.Status,
		record.Price, record.Provenance, record.PaymentRef, record.CreatedAt, record.UpdatedAt, record.HoldExpiresAt,
	)
	if err != nil {
		return nil, false, classifyPostgresError("failed to insert booking", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, classifyPostgresError("failed to commit admission", err)
	}

	return record, true, nil
}

// ReviseBooking changes party size and/or day of an active booking under the
// same serialization as admission. The booking's own party is excluded from
// committed demand when it stays on the same day. The row is rewritten in the
// modern shape.
func (s *PostgresBookingStore) ReviseBooking(ctx context.Context, id string, rev models.BookingRevision) (*models.BookingRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classifyPostgresError("failed to begin revision", err)
	}
	defer tx.Rollback()

	var row bookingRow
	err = tx.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, classifyPostgresError("failed to load booking", err)
	}
	current := row.toRecord()
	if !current.CountsTowardCapacity() {
		return nil, models.ErrBookingAlreadyCancelled
	}

	partySize, dateKey, err := revisionTarget(current, rev)
	if err != nil {
		return nil, err
	}

	if err := lockSlot(ctx, tx, current.TourRef, dateKey); err != nil {
		return nil, err
	}

	tour, err := getTour(ctx, tx, current.TourRef)
	if err != nil {
		return nil, err
	}

	used := 0
	if !models.ExceedsTourSize(tour.MaxGroupSize, partySize) {
		used, err = usedCapacity(ctx, tx, current.TourRef, dateKey)
		if err != nil {
			return nil, err
		}
		if dateKey == current.DateKey {
			used -= current.PartySize
		}
	}

	if err := models.CheckAdmission(current.TourRef, dateKey, partySize, tour.MaxGroupSize, used); err != nil {
		return nil, err
	}

	query := `
		UPDATE bookings SET
			tour_id = NULL, start_date = NULL, participants = NULL,
			item_id = $2, item_date = $3, quantity = $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns
	var updated bookingRow
	if err := tx.GetContext(ctx, &updated, query, id, current.TourRef, dateKey.String(), partySize); err != nil {
		return nil, classifyPostgresError("failed to update booking", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classifyPostgresError("failed to commit revision", err)
	}

	return updated.toRecord(), nil
}

// CancelBooking moves an active booking to cancelled; the row is kept
func (s *PostgresBookingStore) CancelBooking(ctx context.Context, id string) (*models.BookingRecord, error) {
	query := `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status <> 'cancelled'
		RETURNING ` + bookingColumns

	var row bookingRow
	err := s.db.GetContext(ctx, &row, query, id)
	if err == nil {
		return row.toRecord(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classifyPostgresError("failed to cancel booking", err)
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, id); err != nil {
		return nil, classifyPostgresError("failed to check booking", err)
	}
	if !exists {
		return nil, models.ErrBookingNotFound
	}
	return nil, models.ErrBookingAlreadyCancelled
}

// ============================================================================
// READS
// ============================================================================

// GetBooking retrieves a booking by ID
func (s *PostgresBookingStore) GetBooking(ctx context.Context, id string) (*models.BookingRecord, error) {
	return getBookingBy(ctx, s.db, "id", id)
}

// GetBookingByPaymentRef retrieves the booking admitted for a payment
func (s *PostgresBookingStore) GetBookingByPaymentRef(ctx context.Context, paymentRef string) (*models.BookingRecord, error) {
	return getBookingBy(ctx, s.db, "payment_ref", paymentRef)
}

func getBookingBy(ctx context.Context, q sqlx.QueryerContext, column, value string) (*models.BookingRecord, error) {
	var row bookingRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+bookingColumns+` FROM bookings WHERE `+column+` = $1`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, classifyPostgresError("failed to get booking", err)
	}
	return row.toRecord(), nil
}

// ListBookings lists bookings matching the filter, newest first
func (s *PostgresBookingStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.BookingRecord, error) {
	var (
		conditions []string
		args       []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.TourRef != "" {
		p := arg(filter.TourRef)
		conditions = append(conditions, fmt.Sprintf("(item_id = %s OR (item_date IS NULL AND tour_id = %s))", p, p))
	}
	if filter.DateKey != "" {
		dayStart, dayEnd := filter.DateKey.DayRange()
		conditions = append(conditions, fmt.Sprintf(
			"(item_date = %s OR (item_date IS NULL AND start_date >= %s AND start_date < %s))",
			arg(filter.DateKey.String()), arg(dayStart), arg(dayEnd)))
	}
	if filter.UserRef != "" {
		conditions = append(conditions, "user_id = "+arg(filter.UserRef))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ` + arg(normalizeLimit(filter.Limit)) + ` OFFSET ` + arg(filter.Offset)

	var rows []bookingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classifyPostgresError("failed to list bookings", err)
	}

	records := make([]*models.BookingRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records, nil
}

// ============================================================================
// PENDING HOLD EXPIRY
// ============================================================================

// ExpireHeldBookings cancels pending holds that expired by now
func (s *PostgresBookingStore) ExpireHeldBookings(ctx context.Context, now time.Time, limit int) ([]*models.BookingRecord, error) {
	query := `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM bookings
			WHERE status = 'pending' AND hold_expires_at IS NOT NULL AND hold_expires_at <= $1
			ORDER BY hold_expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + bookingColumns

	var rows []bookingRow
	if err := s.db.SelectContext(ctx, &rows, query, now, normalizeLimit(limit)); err != nil {
		return nil, classifyPostgresError("failed to expire held bookings", err)
	}

	records := make([]*models.BookingRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records, nil
}

// Ping checks the database connection
func (s *PostgresBookingStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresBookingStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
