package models

import "time"

// Tour is the catalog entry a booking consumes capacity from.
// The booking core only reads MaxGroupSize; Price prices checkout sessions.
type Tour struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	MaxGroupSize int       `json:"maxGroupSize" db:"max_group_size"`
	Price        float64   `json:"price" db:"price"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
