package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourbook/booking-backend/internal/config"
	"github.com/tourbook/booking-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// setupMongoStore connects to the replica set named by MONGO_TEST_URI and
// returns a store over a throwaway database. Transactions need a replica
// set, so the tests are skipped when the variable is unset.
func setupMongoStore(t *testing.T, capacity int) (*MongoBookingStore, string) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx := context.Background()
	client, err := NewMongoConnection(ctx, config.MongoConfig{URI: uri, ConnectTimeout: 10 * time.Second})
	require.NoError(t, err)

	db := client.Database(fmt.Sprintf("booking_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	require.NoError(t, EnsureMongoIndexes(ctx, db))
	require.NoError(t, db.CreateCollection(ctx, mongoSlotsCollection))

	tourID := primitive.NewObjectID()
	_, err = db.Collection(mongoToursCollection).InsertOne(ctx, bson.M{
		"_id":          tourID,
		"name":         "Reef Snorkel",
		"maxGroupSize": capacity,
		"price":        40.0,
		"createdAt":    time.Now().UTC(),
		"updatedAt":    time.Now().UTC(),
	})
	require.NoError(t, err)

	return NewMongoBookingStore(client, db), tourID.Hex()
}

func mongoAdmission(tourRef string, party int) *models.AdmissionRequest {
	return &models.AdmissionRequest{
		TourRef:   tourRef,
		DateKey:   "2025-06-01",
		PartySize: party,
		UserRef:   "user-1",
		Status:    models.BookingStatusPaid,
	}
}

func TestMongoAdmitBooking_ConcurrentLastPlaces(t *testing.T) {
	store, tourRef := setupMongoStore(t, 5)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
		failures []error
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := store.AdmitBooking(ctx, mongoAdmission(tourRef, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && created:
				admitted++
			case errors.Is(err, models.ErrCapacityExceeded):
				rejected++
			default:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, failures)
	assert.Equal(t, 5, admitted)
	assert.Equal(t, 7, rejected)

	used, err := store.UsedCapacity(ctx, tourRef, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 5, used)
}

func TestMongoAdmitBooking_CountsLegacyDocuments(t *testing.T) {
	store, tourRef := setupMongoStore(t, 5)
	ctx := context.Background()

	tourID, err := primitive.ObjectIDFromHex(tourRef)
	require.NoError(t, err)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	participants := int64(3)
	_, err = store.bookings.InsertOne(ctx, &bookingDocument{
		ID:           primitive.NewObjectID(),
		Tour:         &tourID,
		StartDate:    &start,
		Participants: &participants,
		Status:       string(models.BookingStatusPaid),
		CreatedAt:    start,
		UpdatedAt:    start,
	})
	require.NoError(t, err)

	_, _, err = store.AdmitBooking(ctx, mongoAdmission(tourRef, 3))
	var capErr *models.CapacityExceededError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 3, capErr.Verdict.AlreadyBooked)
	assert.Equal(t, 2, capErr.Verdict.CanAccept)

	rec, created, err := store.AdmitBooking(ctx, mongoAdmission(tourRef, 2))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, rec.PartySize)
}

func TestMongoAdmitBooking_PaymentRefReplay(t *testing.T) {
	store, tourRef := setupMongoStore(t, 5)
	ctx := context.Background()

	ref := "cs_test_mongo"
	req := mongoAdmission(tourRef, 2)
	req.PaymentRef = &ref

	first, created, err := store.AdmitBooking(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := store.AdmitBooking(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	used, err := store.UsedCapacity(ctx, tourRef, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 2, used)
}

func TestMongoReviseBooking(t *testing.T) {
	store, tourRef := setupMongoStore(t, 6)
	ctx := context.Background()

	rec, _, err := store.AdmitBooking(ctx, mongoAdmission(tourRef, 4))
	require.NoError(t, err)
	_, _, err = store.AdmitBooking(ctx, mongoAdmission(tourRef, 1))
	require.NoError(t, err)

	party := 5
	revised, err := store.ReviseBooking(ctx, rec.ID, models.BookingRevision{PartySize: &party})
	require.NoError(t, err)
	assert.Equal(t, 5, revised.PartySize)

	party = 6
	_, err = store.ReviseBooking(ctx, rec.ID, models.BookingRevision{PartySize: &party})
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)

	nextDay := models.DateKey("2025-06-02")
	moved, err := store.ReviseBooking(ctx, rec.ID, models.BookingRevision{PartySize: &party, DateKey: &nextDay})
	require.NoError(t, err)
	assert.Equal(t, nextDay, moved.DateKey)

	used, err := store.UsedCapacity(ctx, tourRef, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}

func TestMongoExpireHeldBookings(t *testing.T) {
	store, tourRef := setupMongoStore(t, 10)
	ctx := context.Background()

	expiredAt := time.Now().UTC().Add(-time.Minute)
	held := mongoAdmission(tourRef, 2)
	held.Status = models.BookingStatusPending
	held.HoldUntil = &expiredAt
	hold, _, err := store.AdmitBooking(ctx, held)
	require.NoError(t, err)

	pending := mongoAdmission(tourRef, 3)
	pending.Status = models.BookingStatusPending
	_, _, err = store.AdmitBooking(ctx, pending)
	require.NoError(t, err)

	expired, err := store.ExpireHeldBookings(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, hold.ID, expired[0].ID)

	used, err := store.UsedCapacity(ctx, tourRef, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 3, used)
}
