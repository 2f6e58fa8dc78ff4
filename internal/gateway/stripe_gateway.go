package gateway

import (
	"context"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Currency   string
}

// StripeGateway implements PaymentGateway using Stripe Checkout
type StripeGateway struct {
	config   *StripeGatewayConfig
	sessions *session.Client
}

// NewStripeGateway creates a new Stripe gateway. The key is bound to this
// client rather than set on the stripe package globally.
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if config.Currency == "" {
		config.Currency = string(stripe.CurrencyUSD)
	}

	return &StripeGateway{
		config: config,
		sessions: &session.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: config.SecretKey,
		},
	}, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

// CreateCheckoutSession creates a hosted payment page for the tour date
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error) {
	if req == nil {
		return nil, fmt.Errorf("checkout request is required")
	}

	params := g.sessionParams(req)
	params.Context = ctx

	sess, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) sessionParams(req *CheckoutSessionRequest) *stripe.CheckoutSessionParams {
	// Stripe expects the smallest currency unit
	unitAmount := int64(math.Round(req.UnitPrice * 100))

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.config.SuccessURL),
		CancelURL:         stripe.String(g.config.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(g.config.Currency),
					UnitAmount: stripe.Int64(unitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.TourName),
						Description: stripe.String(fmt.Sprintf("%s, party of %d", req.Date, req.Quantity)),
					},
				},
				Quantity: stripe.Int64(int64(req.Quantity)),
			},
		},
		Metadata: req.Metadata(),
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	return params
}
