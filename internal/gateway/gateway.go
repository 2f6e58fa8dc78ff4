// Package gateway creates hosted checkout sessions with a payment provider.
package gateway

import (
	"context"
	"fmt"
	"strconv"
)

// Metadata keys stamped on a checkout session and read back by the webhook
const (
	MetadataItemID   = "itemId"
	MetadataDate     = "date"
	MetadataQuantity = "quantity"
	MetadataUserID   = "userId"
)

// CheckoutSessionRequest describes what the traveller is paying for
type CheckoutSessionRequest struct {
	TourID    string
	TourName  string
	Date      string
	Quantity  int
	UnitPrice float64
	UserID    string
	Email     string
}

// Metadata returns the session metadata that lets the webhook admit the booking
func (r *CheckoutSessionRequest) Metadata() map[string]string {
	return map[string]string{
		MetadataItemID:   r.TourID,
		MetadataDate:     r.Date,
		MetadataQuantity: strconv.Itoa(r.Quantity),
		MetadataUserID:   r.UserID,
	}
}

// CheckoutSession is a created hosted payment page
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentGateway creates checkout sessions
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error)
	Name() string
}

// PaidCheckout is the booking intent recovered from a completed session
type PaidCheckout struct {
	SessionID  string
	TourID     string
	Date       string
	Quantity   int
	UserID     string
	AmountPaid float64
}

// ParseCheckoutMetadata rebuilds the booking intent from session metadata
func ParseCheckoutMetadata(sessionID string, metadata map[string]string) (*PaidCheckout, error) {
	paid := &PaidCheckout{
		SessionID: sessionID,
		TourID:    metadata[MetadataItemID],
		Date:      metadata[MetadataDate],
		UserID:    metadata[MetadataUserID],
	}
	if paid.TourID == "" || paid.Date == "" {
		return nil, fmt.Errorf("checkout session %s is missing %s or %s metadata", sessionID, MetadataItemID, MetadataDate)
	}

	quantity, err := strconv.Atoi(metadata[MetadataQuantity])
	if err != nil || quantity <= 0 {
		return nil, fmt.Errorf("checkout session %s has invalid %s metadata %q", sessionID, MetadataQuantity, metadata[MetadataQuantity])
	}
	paid.Quantity = quantity

	return paid, nil
}
