package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MockGateway implements PaymentGateway without calling a provider.
// It is used in development when no Stripe key is configured, and in tests.
type MockGateway struct {
	mu       sync.Mutex
	baseURL  string
	sessions map[string]*CheckoutSessionRequest
	err      error
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(baseURL string) *MockGateway {
	if baseURL == "" {
		baseURL = "http://localhost:3000/checkout/mock"
	}
	return &MockGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: make(map[string]*CheckoutSessionRequest),
	}
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

// FailWith makes subsequent calls return err
func (g *MockGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// CreateCheckoutSession records the request and returns a fake session
func (g *MockGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}
	if req == nil {
		return nil, fmt.Errorf("checkout request is required")
	}

	id := "cs_mock_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	copied := *req
	g.sessions[id] = &copied

	return &CheckoutSession{ID: id, URL: g.baseURL + "/" + id}, nil
}

// Session returns the request a session was created for
func (g *MockGateway) Session(id string) (*CheckoutSessionRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.sessions[id]
	return req, ok
}
