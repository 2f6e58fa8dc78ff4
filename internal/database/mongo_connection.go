package database

import (
	"context"
	"fmt"

	"github.com/tourbook/booking-backend/internal/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names
const (
	mongoToursCollection    = "tours"
	mongoUsersCollection    = "users"
	mongoBookingsCollection = "bookings"
	mongoSlotsCollection    = "booking_slots"
)

// NewMongoConnection connects to MongoDB and verifies the primary is reachable.
// Admission relies on multi-document transactions, so the deployment must be
// a replica set or sharded cluster.
func NewMongoConnection(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return client, nil
}

// EnsureMongoIndexes creates the indexes the booking store queries on
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	bookings := db.Collection(mongoBookingsCollection)
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "tour", Value: 1}, {Key: "startDate", Value: 1}}},
		{Keys: bson.D{{Key: "itemId", Value: 1}, {Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "holdExpiresAt", Value: 1}}},
		{
			Keys:    bson.D{{Key: "paymentRef", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	}
	if _, err := bookings.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}
