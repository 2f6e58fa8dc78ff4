package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tourbook/booking-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"golang.org/x/sync/errgroup"
)

// tourDocument is a tours collection entry; _id may be an ObjectID or a string
type tourDocument struct {
	ID           interface{} `bson:"_id"`
	Name         string      `bson:"name"`
	MaxGroupSize int         `bson:"maxGroupSize"`
	Price        float64     `bson:"price"`
	CreatedAt    time.Time   `bson:"createdAt"`
	UpdatedAt    time.Time   `bson:"updatedAt"`
}

func (d *tourDocument) toTour() *models.Tour {
	return &models.Tour{
		ID:           refString(d.ID),
		Name:         d.Name,
		MaxGroupSize: d.MaxGroupSize,
		Price:        d.Price,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// bookingDocument is a bookings collection entry in either shape.
// Legacy: tour/startDate/participants/user. Modern: itemId/date/quantity/userId.
type bookingDocument struct {
	ID primitive.ObjectID `bson:"_id,omitempty"`

	Tour         *primitive.ObjectID `bson:"tour,omitempty"`
	StartDate    *time.Time          `bson:"startDate,omitempty"`
	Participants *int64              `bson:"participants,omitempty"`
	User         *primitive.ObjectID `bson:"user,omitempty"`

	ItemID   string `bson:"itemId,omitempty"`
	Date     string `bson:"date,omitempty"`
	Quantity *int64 `bson:"quantity,omitempty"`
	UserID   string `bson:"userId,omitempty"`

	Status      string     `bson:"status"`
	Price       *float64   `bson:"price,omitempty"`
	Provenance  string     `bson:"provenance,omitempty"`
	PaymentRef  *string    `bson:"paymentRef,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
	CancelledAt *time.Time `bson:"cancelledAt,omitempty"`

	HoldExpiresAt *time.Time `bson:"holdExpiresAt,omitempty"`
}

// toRecord normalizes either shape; a document with a date string is modern
func (d *bookingDocument) toRecord() *models.BookingRecord {
	rec := &models.BookingRecord{
		ID:          d.ID.Hex(),
		Status:      models.BookingStatus(d.Status),
		Price:       d.Price,
		Provenance:  models.Provenance(d.Provenance),
		PaymentRef:  d.PaymentRef,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		CancelledAt: d.CancelledAt,

		HoldExpiresAt: d.HoldExpiresAt,
	}
	if rec.Status == "" {
		rec.Status = models.BookingStatusPending
	}

	if d.Date != "" {
		itemDate := d.Date
		rec.TourRef = d.ItemID
		rec.DateKey = models.DateKey(itemDate)
		rec.ModernItemDate = &itemDate
		if d.Quantity != nil {
			rec.PartySize = int(*d.Quantity)
		}
	} else {
		if d.Tour != nil {
			rec.TourRef = d.Tour.Hex()
		}
		if d.Participants != nil {
			rec.PartySize = int(*d.Participants)
		}
		if d.StartDate != nil {
			start := d.StartDate.UTC()
			rec.DateKey = models.DateKeyFromTime(start)
			rec.LegacyStartDate = &start
		}
	}

	switch {
	case d.UserID != "":
		rec.UserRef = d.UserID
	case d.User != nil:
		rec.UserRef = d.User.Hex()
	}

	return rec
}

func newBookingDocument(rec *models.BookingRecord) *bookingDocument {
	quantity := int64(rec.PartySize)
	return &bookingDocument{
		ID:         primitive.NewObjectID(),
		ItemID:     rec.TourRef,
		Date:       rec.DateKey.String(),
		Quantity:   &quantity,
		UserID:     rec.UserRef,
		Status:     string(rec.Status),
		Price:      rec.Price,
		Provenance: string(rec.Provenance),
		PaymentRef: rec.PaymentRef,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,

		HoldExpiresAt: rec.HoldExpiresAt,
	}
}

// MongoBookingStore implements BookingStore on MongoDB.
// Admission runs in a snapshot transaction that first bumps a per-slot
// counter document, so concurrent admissions for one (tour, day) write-conflict
// and all but one are retried by the driver.
type MongoBookingStore struct {
	client   *mongo.Client
	tours    *mongo.Collection
	users    *mongo.Collection
	bookings *mongo.Collection
	slots    *mongo.Collection
}

// NewMongoBookingStore creates a new MongoBookingStore
func NewMongoBookingStore(client *mongo.Client, db *mongo.Database) *MongoBookingStore {
	return &MongoBookingStore{
		client:   client,
		tours:    db.Collection(mongoToursCollection),
		users:    db.Collection(mongoUsersCollection),
		bookings: db.Collection(mongoBookingsCollection),
		slots:    db.Collection(mongoSlotsCollection),
	}
}

// ============================================================================
// TOURS & USERS
// ============================================================================

// GetTour retrieves a tour by ID
func (s *MongoBookingStore) GetTour(ctx context.Context, tourRef string) (*models.Tour, error) {
	var doc tourDocument
	err := s.tours.FindOne(ctx, idFilter(tourRef)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrTourNotFound
	}
	if err != nil {
		return nil, classifyMongoError("failed to get tour", err)
	}
	return doc.toTour(), nil
}

// UserExists reports whether the user is known
func (s *MongoBookingStore) UserExists(ctx context.Context, userRef string) (bool, error) {
	count, err := s.users.CountDocuments(ctx, idFilter(userRef), options.Count().SetLimit(1))
	if err != nil {
		return false, classifyMongoError("failed to check user", err)
	}
	return count > 0, nil
}

// ============================================================================
// CAPACITY AGGREGATION
// ============================================================================

// UsedCapacity sums committed demand for a tour/day across both shapes.
// The two sums are independent reads and run concurrently.
func (s *MongoBookingStore) UsedCapacity(ctx context.Context, tourRef string, dateKey models.DateKey) (int, error) {
	var legacy, modern int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		legacy, err = s.sumLegacy(gctx, tourRef, dateKey)
		return err
	})
	g.Go(func() error {
		var err error
		modern, err = s.sumModern(gctx, tourRef, dateKey)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, classifyMongoError("failed to sum bookings", err)
	}

	return legacy + modern, nil
}

// usedCapacitySequential is the in-transaction variant; a session context
// must not be shared between goroutines.
func (s *MongoBookingStore) usedCapacitySequential(ctx context.Context, tourRef string, dateKey models.DateKey) (int, error) {
	legacy, err := s.sumLegacy(ctx, tourRef, dateKey)
	if err != nil {
		return 0, err
	}
	modern, err := s.sumModern(ctx, tourRef, dateKey)
	if err != nil {
		return 0, err
	}
	return legacy + modern, nil
}

// sumLegacy sums participants of legacy documents whose startDate falls on
// the day. Documents carrying a date string are modern and excluded.
func (s *MongoBookingStore) sumLegacy(ctx context.Context, tourRef string, dateKey models.DateKey) (int, error) {
	oid, err := primitive.ObjectIDFromHex(tourRef)
	if err != nil {
		// Legacy documents only reference tours by ObjectID
		return 0, nil
	}
	dayStart, dayEnd := dateKey.DayRange()
	match := bson.M{
		"tour":      oid,
		"date":      bson.M{"$exists": false},
		"startDate": bson.M{"$gte": dayStart, "$lt": dayEnd},
		"status":    bson.M{"$ne": string(models.BookingStatusCancelled)},
	}
	return s.sumField(ctx, match, "participants")
}

func (s *MongoBookingStore) sumModern(ctx context.Context, tourRef string, dateKey models.DateKey) (int, error) {
	match := bson.M{
		"itemId": tourRef,
		"date":   dateKey.String(),
		"status": bson.M{"$ne": string(models.BookingStatusCancelled)},
	}
	return s.sumField(ctx, match, "quantity")
}

func (s *MongoBookingStore) sumField(ctx context.Context, match bson.M, field string) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$" + field}}},
		}}},
	}

	cursor, err := s.bookings.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return int(results[0].Total), nil
}

// ============================================================================
// ADMISSION
// ============================================================================

func (s *MongoBookingStore) transactionOptions() *options.TransactionOptions {
	return options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
}

// ensureSlot creates the slot counter outside any transaction. Two
// transactions upserting the same missing document can fail with a
// duplicate key instead of a retryable write conflict.
func (s *MongoBookingStore) ensureSlot(ctx context.Context, tourRef string, dateKey models.DateKey) error {
	_, err := s.slots.UpdateOne(ctx,
		bson.M{"_id": slotKey(tourRef, dateKey)},
		bson.M{"$setOnInsert": bson.M{"version": 0}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return classifyMongoError("failed to create booking slot", err)
	}
	return nil
}

// bumpSlot writes the slot counter so concurrent transactions on the same
// (tour, day) conflict instead of both committing.
func (s *MongoBookingStore) bumpSlot(ctx context.Context, tourRef string, dateKey models.DateKey) error {
	_, err := s.slots.UpdateOne(ctx,
		bson.M{"_id": slotKey(tourRef, dateKey)},
		bson.M{
			"$inc": bson.M{"version": 1},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// admission is the outcome of one admission transaction
type admission struct {
	record  *models.BookingRecord
	created bool
}

// AdmitBooking re-validates availability and inserts the booking in one
// transaction. A payment reference that was already admitted returns the
// existing record with created=false.
func (s *MongoBookingStore) AdmitBooking(ctx context.Context, req *models.AdmissionRequest) (*models.BookingRecord, bool, error) {
	if err := s.ensureSlot(ctx, req.TourRef, req.DateKey); err != nil {
		return nil, false, err
	}

	session, err := s.client.StartSession()
	if err != nil {
		return nil, false, classifyMongoError("failed to start session", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if err := s.bumpSlot(sc, req.TourRef, req.DateKey); err != nil {
			return nil, err
		}

		if req.PaymentRef != nil {
			var existing bookingDocument
			err := s.bookings.FindOne(sc, bson.M{"paymentRef": *req.PaymentRef}).Decode(&existing)
			if err == nil {
				return &admission{record: existing.toRecord()}, nil
			}
			if !errors.Is(err, mongo.ErrNoDocuments) {
				return nil, err
			}
		}

		var tour tourDocument
		err := s.tours.FindOne(sc, idFilter(req.TourRef)).Decode(&tour)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrTourNotFound
		}
		if err != nil {
			return nil, err
		}

		used := 0
		if !models.ExceedsTourSize(tour.MaxGroupSize, req.PartySize) {
			used, err = s.usedCapacitySequential(sc, req.TourRef, req.DateKey)
			if err != nil {
				return nil, err
			}
		}

		if err := models.CheckAdmission(req.TourRef, req.DateKey, req.PartySize, tour.MaxGroupSize, used); err != nil {
			return nil, err
		}

		record := req.NewRecord(time.Now().UTC())
		doc := newBookingDocument(record)
		if _, err := s.bookings.InsertOne(sc, doc); err != nil {
			return nil, err
		}
		record.ID = doc.ID.Hex()
		return &admission{record: record, created: true}, nil
	}, s.transactionOptions())
	if err != nil {
		return nil, false, classifyMongoError("failed to admit booking", err)
	}

	admitted := result.(*admission)
	return admitted.record, admitted.created, nil
}

// ReviseBooking changes party size and/or day of an active booking under the
// same serialization as admission, rewriting it in the modern shape.
func (s *MongoBookingStore) ReviseBooking(ctx context.Context, id string, rev models.BookingRevision) (*models.BookingRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrBookingNotFound
	}

	current, err := s.findOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return nil, err
	}
	if _, dateKey, err := revisionTarget(current, rev); err == nil {
		if err := s.ensureSlot(ctx, current.TourRef, dateKey); err != nil {
			return nil, err
		}
	}

	session, err := s.client.StartSession()
	if err != nil {
		return nil, classifyMongoError("failed to start session", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var doc bookingDocument
		err := s.bookings.FindOne(sc, bson.M{"_id": oid}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrBookingNotFound
		}
		if err != nil {
			return nil, err
		}
		current := doc.toRecord()
		if !current.CountsTowardCapacity() {
			return nil, models.ErrBookingAlreadyCancelled
		}

		partySize, dateKey, err := revisionTarget(current, rev)
		if err != nil {
			return nil, err
		}

		if err := s.bumpSlot(sc, current.TourRef, dateKey); err != nil {
			return nil, err
		}

		var tour tourDocument
		err = s.tours.FindOne(sc, idFilter(current.TourRef)).Decode(&tour)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrTourNotFound
		}
		if err != nil {
			return nil, err
		}

		used := 0
		if !models.ExceedsTourSize(tour.MaxGroupSize, partySize) {
			used, err = s.usedCapacitySequential(sc, current.TourRef, dateKey)
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

		update := bson.M{
			"$set": bson.M{
				"itemId":    current.TourRef,
				"date":      dateKey.String(),
				"quantity":  int64(partySize),
				"userId":    current.UserRef,
				"updatedAt": time.Now().UTC(),
			},
			"$unset": bson.M{"tour": "", "startDate": "", "participants": "", "user": ""},
		}
		var updated bookingDocument
		err = s.bookings.FindOneAndUpdate(sc, bson.M{"_id": oid}, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
		if err != nil {
			return nil, err
		}
		return updated.toRecord(), nil
	}, s.transactionOptions())
	if err != nil {
		return nil, classifyMongoError("failed to revise booking", err)
	}

	return result.(*models.BookingRecord), nil
}

// CancelBooking moves an active booking to cancelled; the document is kept
func (s *MongoBookingStore) CancelBooking(ctx context.Context, id string) (*models.BookingRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrBookingNotFound
	}

	now := time.Now().UTC()
	var doc bookingDocument
	err = s.bookings.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "status": bson.M{"$ne": string(models.BookingStatusCancelled)}},
		bson.M{"$set": bson.M{
			"status":      string(models.BookingStatusCancelled),
			"cancelledAt": now,
			"updatedAt":   now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toRecord(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, classifyMongoError("failed to cancel booking", err)
	}

	count, err := s.bookings.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return nil, classifyMongoError("failed to check booking", err)
	}
	if count == 0 {
		return nil, models.ErrBookingNotFound
	}
	return nil, models.ErrBookingAlreadyCancelled
}

// ============================================================================
// READS
// ============================================================================

// GetBooking retrieves a booking by ID
func (s *MongoBookingStore) GetBooking(ctx context.Context, id string) (*models.BookingRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrBookingNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// GetBookingByPaymentRef retrieves the booking admitted for a payment
func (s *MongoBookingStore) GetBookingByPaymentRef(ctx context.Context, paymentRef string) (*models.BookingRecord, error) {
	return s.findOne(ctx, bson.M{"paymentRef": paymentRef})
}

func (s *MongoBookingStore) findOne(ctx context.Context, filter bson.M) (*models.BookingRecord, error) {
	var doc bookingDocument
	err := s.bookings.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, classifyMongoError("failed to get booking", err)
	}
	return doc.toRecord(), nil
}

// ListBookings lists bookings matching the filter, newest first
func (s *MongoBookingStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.BookingRecord, error) {
	cursor, err := s.bookings.Find(ctx, bookingListFilter(filter),
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetLimit(int64(normalizeLimit(filter.Limit))).
			SetSkip(int64(filter.Offset)),
	)
	if err != nil {
		return nil, classifyMongoError("failed to list bookings", err)
	}
	defer cursor.Close(ctx)

	var docs []bookingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("failed to decode bookings", err)
	}

	records := make([]*models.BookingRecord, 0, len(docs))
	for i := range docs {
		records = append(records, docs[i].toRecord())
	}
	return records, nil
}

// bookingListFilter matches each criterion against both shapes
func bookingListFilter(filter models.BookingFilter) bson.M {
	var clauses []bson.M

	if filter.TourRef != "" {
		either := []bson.M{{"itemId": filter.TourRef}}
		if oid, err := primitive.ObjectIDFromHex(filter.TourRef); err == nil {
			either = append(either, bson.M{"tour": oid, "date": bson.M{"$exists": false}})
		}
		clauses = append(clauses, bson.M{"$or": either})
	}

	if filter.DateKey != "" {
		dayStart, dayEnd := filter.DateKey.DayRange()
		clauses = append(clauses, bson.M{"$or": []bson.M{
			{"date": filter.DateKey.String()},
			{"date": bson.M{"$exists": false}, "startDate": bson.M{"$gte": dayStart, "$lt": dayEnd}},
		}})
	}

	if filter.UserRef != "" {
		either := []bson.M{{"userId": filter.UserRef}}
		if oid, err := primitive.ObjectIDFromHex(filter.UserRef); err == nil {
			either = append(either, bson.M{"user": oid})
		}
		clauses = append(clauses, bson.M{"$or": either})
	}

	if len(clauses) == 0 {
		return bson.M{}
	}
	return bson.M{"$and": clauses}
}

// ============================================================================
// PENDING HOLD EXPIRY
// ============================================================================

// ExpireHeldBookings cancels pending holds that expired by now.
// Each document is flipped with a status guard, so a booking paid in the
// meantime is left alone.
func (s *MongoBookingStore) ExpireHeldBookings(ctx context.Context, now time.Time, limit int) ([]*models.BookingRecord, error) {
	cursor, err := s.bookings.Find(ctx, heldBookingsFilter(now),
		options.Find().
			SetSort(bson.D{{Key: "holdExpiresAt", Value: 1}}).
			SetLimit(int64(normalizeLimit(limit))).
			SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, classifyMongoError("failed to find held bookings", err)
	}
	var stale []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &stale); err != nil {
		return nil, classifyMongoError("failed to decode held bookings", err)
	}

	var expired []*models.BookingRecord
	for _, item := range stale {
		cancelledAt := time.Now().UTC()
		var doc bookingDocument
		err := s.bookings.FindOneAndUpdate(ctx,
			bson.M{"_id": item.ID, "status": string(models.BookingStatusPending)},
			bson.M{"$set": bson.M{
				"status":      string(models.BookingStatusCancelled),
				"cancelledAt": cancelledAt,
				"updatedAt":   cancelledAt,
			}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return expired, classifyMongoError("failed to expire booking", err)
		}
		expired = append(expired, doc.toRecord())
	}

	return expired, nil
}

// heldBookingsFilter matches pending holds whose expiry is not after now
func heldBookingsFilter(now time.Time) bson.M {
	return bson.M{
		"status":        string(models.BookingStatusPending),
		"holdExpiresAt": bson.M{"$ne": nil, "$lte": now},
	}
}

// Ping checks the connection to the primary
func (s *MongoBookingStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client
func (s *MongoBookingStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// idFilter matches an _id stored either as an ObjectID or as a plain string
func idFilter(ref string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(ref); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, ref}}}
	}
	return bson.M{"_id": ref}
}

func refString(id interface{}) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// classifyMongoError marks network failures, timeouts and transient
// transaction errors as retryable. Domain errors raised inside a transaction
// pass through untouched.
func classifyMongoError(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	// A duplicate key means a concurrent writer committed first; re-running
	// the operation observes its write.
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || mongo.IsDuplicateKeyError(err) {
		return models.Transient(op, err)
	}

	var labeled mongo.LabeledError
	if errors.As(err, &labeled) &&
		(labeled.HasErrorLabel("TransientTransactionError") || labeled.HasErrorLabel("UnknownTransactionCommitResult")) {
		return models.Transient(op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
