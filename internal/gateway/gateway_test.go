package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutMetadataRoundTrip(t *testing.T) {
	req := &CheckoutSessionRequest{TourID: "tour-1", Date: "2025-06-01", Quantity: 3, UserID: "user-1"}

	paid, err := ParseCheckoutMetadata("cs_test_1", req.Metadata())
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", paid.SessionID)
	assert.Equal(t, "tour-1", paid.TourID)
	assert.Equal(t, "2025-06-01", paid.Date)
	assert.Equal(t, 3, paid.Quantity)
	assert.Equal(t, "user-1", paid.UserID)
}

func TestParseCheckoutMetadata_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
	}{
		{"Missing Item", map[string]string{MetadataDate: "2025-06-01", MetadataQuantity: "1"}},
		{"Missing Date", map[string]string{MetadataItemID: "tour-1", MetadataQuantity: "1"}},
		{"Bad Quantity", map[string]string{MetadataItemID: "tour-1", MetadataDate: "2025-06-01", MetadataQuantity: "two"}},
		{"Zero Quantity", map[string]string{MetadataItemID: "tour-1", MetadataDate: "2025-06-01", MetadataQuantity: "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCheckoutMetadata("cs_test_1", tt.metadata)
			assert.Error(t, err)
		})
	}
}

func TestStripeGateway_SessionParams(t *testing.T) {
	_, err := NewStripeGateway(&StripeGatewayConfig{})
	require.Error(t, err)

	gw, err := NewStripeGateway(&StripeGatewayConfig{
		SecretKey:  "sk_test_123",
		SuccessURL: "https://tours.example.com/ok",
		CancelURL:  "https://tours.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "stripe", gw.Name())

	params := gw.sessionParams(&CheckoutSessionRequest{
		TourID: "tour-1", TourName: "Lagoon Kayak", Date: "2025-06-01",
		Quantity: 2, UnitPrice: 49.99, UserID: "user-1", Email: "a@example.com",
	})

	assert.Equal(t, "payment", *params.Mode)
	assert.Equal(t, "usd", *params.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(4999), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, int64(2), *params.LineItems[0].Quantity)
	assert.Equal(t, "tour-1", params.Metadata[MetadataItemID])
	assert.Equal(t, "2", params.Metadata[MetadataQuantity])
	assert.Equal(t, "a@example.com", *params.CustomerEmail)
}

func TestMockGateway(t *testing.T) {
	gw := NewMockGateway("")
	ctx := context.Background()

	sess, err := gw.CreateCheckoutSession(ctx, &CheckoutSessionRequest{TourID: "tour-1", Quantity: 1})
	require.NoError(t, err)
	assert.Contains(t, sess.ID, "cs_mock_")
	assert.Contains(t, sess.URL, sess.ID)

	recorded, ok := gw.Session(sess.ID)
	require.True(t, ok)
	assert.Equal(t, "tour-1", recorded.TourID)

	gw.FailWith(errors.New("provider down"))
	_, err = gw.CreateCheckoutSession(ctx, &CheckoutSessionRequest{TourID: "tour-1", Quantity: 1})
	assert.EqualError(t, err, "provider down")
}
