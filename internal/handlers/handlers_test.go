package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/gateway"
	"github.com/tourbook/booking-backend/internal/middleware"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/services"
	"github.com/tourbook/booking-backend/pkg/jwt"
	"github.com/tourbook/booking-backend/pkg/retry"
)

const (
	testJWTSecret     = "handler-test-secret"
	testWebhookSecret = "whsec_test_secret"
)

type testServer struct {
	router  *gin.Engine
	store   *database.MemoryBookingStore
	gateway *gateway.MockGateway
	jwt     *jwt.Service
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := database.NewMemoryBookingStore()
	store.AddTour(models.Tour{ID: "tour-1", Name: "Harbour Walk", MaxGroupSize: 10, Price: 20})
	store.AddUser("user-1")
	store.AddUser("user-2")

	jwtService := jwt.NewService(testJWTSecret, time.Hour)
	audit := services.NewAuditService(nil, logger)
	availability := services.NewAvailabilityService(store, logger)
	bookings := services.NewBookingService(store, &retry.Config{MaxRetries: 1, InitialInterval: time.Millisecond}, audit, nil, logger)
	gw := gateway.NewMockGateway("")
	checkout := services.NewCheckoutService(store, availability, gw, logger)
	payments := services.NewPaymentEventService(bookings, store, services.NewMemoryEventDeduper(), logger)

	tourHandler := NewTourHandler(availability, logger)
	bookingHandler := NewBookingHandler(bookings, audit, logger)
	checkoutHandler := NewCheckoutHandler(checkout, logger)
	webhookHandler := NewWebhookHandler(payments, testWebhookSecret, logger)
	mockPayments := NewMockPaymentHandler(payments, gw, logger)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.GET("/tours/:id/check-availability", tourHandler.CheckAvailability)
	v1.POST("/payments/webhook", webhookHandler.HandleStripeWebhook)
	v1.POST("/payments/mock/:sessionId/complete", mockPayments.CompleteSession)

	auth := v1.Group("")
	auth.Use(middleware.AuthMiddleware(jwtService, logger))
	auth.GET("/bookings/me", bookingHandler.ListMyBookings)
	auth.GET("/bookings/:id", bookingHandler.GetBooking)
	auth.POST("/bookings/:id/cancel", bookingHandler.CancelBooking)
	auth.POST("/checkout/session", checkoutHandler.CreateSession)

	admin := auth.Group("")
	admin.Use(middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/bookings", bookingHandler.CreateBooking)
	admin.GET("/bookings", bookingHandler.ListBookings)
	admin.PATCH("/bookings/:id", bookingHandler.UpdateBooking)
	admin.GET("/bookings/:id/history", bookingHandler.GetBookingHistory)

	return &testServer{router: router, store: store, gateway: gw, jwt: jwtService}
}

func (s *testServer) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken(userID, userID+"@example.com", roles)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestCheckAvailabilityEndpoint(t *testing.T) {
	srv := setupTestServer(t)
	srv.store.SeedLegacyBooking("tour-1", "user-1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 6, models.BookingStatusPaid)

	w := srv.do(http.MethodGet, "/api/v1/tours/tour-1/check-availability?date=2025-06-01&participants=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"available":false,"capacity":10,"alreadyBooked":6,"canAccept":4}`, w.Body.String())

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"Missing Date", "participants=2", http.StatusBadRequest},
		{"Bad Date", "date=tomorrow&participants=2", http.StatusBadRequest},
		{"Missing Participants", "date=2025-06-01", http.StatusBadRequest},
		{"Non Numeric Participants", "date=2025-06-01&participants=two", http.StatusBadRequest},
		{"Zero Participants", "date=2025-06-01&participants=0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(http.MethodGet, "/api/v1/tours/tour-1/check-availability?"+tt.query, "", nil)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	w = srv.do(http.MethodGet, "/api/v1/tours/tour-404/check-availability?date=2025-06-01&participants=1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBookingEndpoint(t *testing.T) {
	srv := setupTestServer(t)
	admin := srv.token(t, "admin-1", middleware.RoleAdmin)

	w := srv.do(http.MethodPost, "/api/v1/bookings", admin, gin.H{
		"tour": "tour-1", "user": "user-1", "participants": 6, "startDate": "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.BookingRecord
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 6, created.PartySize)

	w = srv.do(http.MethodPost, "/api/v1/bookings", admin, gin.H{
		"tour": "tour-1", "user": "user-1", "participants": 5, "startDate": "2025-06-01",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var errResp struct {
		Code    string          `json:"code"`
		Details CapacityDetails `json:"details"`
	}
	decode(t, w, &errResp)
	assert.Equal(t, "CAPACITY_EXCEEDED", errResp.Code)
	assert.Equal(t, 4, errResp.Details.CanAccept)
	assert.Equal(t, 6, errResp.Details.AlreadyBooked)

	w = srv.do(http.MethodPost, "/api/v1/bookings", admin, gin.H{
		"tour": "tour-404", "user": "user-1", "participants": 1, "startDate": "2025-06-01",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/bookings", admin, gin.H{
		"tour": "tour-1", "user": "user-404", "participants": 1, "startDate": "2025-06-01",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/bookings", admin, gin.H{"tour": "tour-1", "user": "user-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	user := srv.token(t, "user-1", middleware.RoleUser)
	w = srv.do(http.MethodPost, "/api/v1/bookings", user, gin.H{
		"tour": "tour-1", "user": "user-1", "participants": 1, "startDate": "2025-06-01",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBookingLifecycleEndpoints(t *testing.T) {
	srv := setupTestServer(t)
	admin := srv.token(t, "admin-1", middleware.RoleAdmin)
	owner := srv.token(t, "user-1", middleware.RoleUser)
	stranger := srv.token(t, "user-2", middleware.RoleUser)

	w := srv.do(http.MethodPost, "/api/v1/bookings", admin, gin.H{
		"tour": "tour-1", "user": "user-1", "participants": 3, "startDate": "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.BookingRecord
	decode(t, w, &created)

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/bookings/"+created.ID, owner, nil).Code)
	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodGet, "/api/v1/bookings/"+created.ID, stranger, nil).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/api/v1/bookings/missing", admin, nil).Code)

	w = srv.do(http.MethodGet, "/api/v1/bookings/me", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine struct {
		Bookings []models.BookingRecord `json:"bookings"`
		Total    int                    `json:"total"`
	}
	decode(t, w, &mine)
	assert.Equal(t, 1, mine.Total)

	w = srv.do(http.MethodGet, "/api/v1/bookings?tour=tour-1&date=2025-06-01", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(http.MethodPatch, "/api/v1/bookings/"+created.ID, admin, gin.H{"participants": 10})
	require.Equal(t, http.StatusOK, w.Code)
	w = srv.do(http.MethodPatch, "/api/v1/bookings/"+created.ID, admin, gin.H{"participants": 11})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/bookings/"+created.ID+"/cancel", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled models.BookingRecord
	decode(t, w, &cancelled)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

	w = srv.do(http.MethodPost, "/api/v1/bookings/"+created.ID+"/cancel", owner, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = srv.do(http.MethodGet, "/api/v1/tours/tour-1/check-availability?date=2025-06-01&participants=10", "", nil)
	assert.JSONEq(t, `{"available":true,"capacity":10,"alreadyBooked":0,"canAccept":10}`, w.Body.String())

	w = srv.do(http.MethodGet, "/api/v1/bookings/"+created.ID+"/history", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckoutAndMockCompletion(t *testing.T) {
	srv := setupTestServer(t)
	user := srv.token(t, "user-1", middleware.RoleUser)

	w := srv.do(http.MethodPost, "/api/v1/checkout/session", user, gin.H{"itemId": "tour-1", "date": "2025-06-01", "quantity": 4})
	require.Equal(t, http.StatusOK, w.Code)
	var session models.CheckoutResponse
	decode(t, w, &session)
	require.NotEmpty(t, session.SessionID)

	w = srv.do(http.MethodPost, "/api/v1/payments/mock/"+session.SessionID+"/complete", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Admitted  bool   `json:"admitted"`
		BookingID string `json:"bookingId"`
	}
	decode(t, w, &result)
	assert.True(t, result.Admitted)

	rec, err := srv.store.GetBooking(t.Context(), result.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPaid, rec.Status)
	assert.Equal(t, 80.0, *rec.Price)

	w = srv.do(http.MethodPost, "/api/v1/checkout/session", user, gin.H{"itemId": "tour-1", "date": "2025-06-01", "quantity": 7})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/checkout/session", "", gin.H{"itemId": "tour-1", "date": "2025-06-01", "quantity": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/payments/mock/cs_unknown/complete", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func checkoutCompletedEvent(eventID, sessionID string, quantity int, paymentStatus string) []byte {
	return checkoutSessionEvent("checkout.session.completed", eventID, sessionID, quantity, paymentStatus)
}

func checkoutSessionEvent(eventType, eventID, sessionID string, quantity int, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": %q,
			"object": "checkout.session",
			"payment_status": %q,
			"amount_total": %d,
			"metadata": {"itemId": "tour-1", "date": "2025-06-01", "quantity": "%d", "userId": "user-1"}
		}}
	}`, eventID, eventType, sessionID, paymentStatus, quantity*2000, quantity))
}

func (s *testServer) postWebhook(payload []byte, secret string) *httptest.ResponseRecorder {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestStripeWebhook(t *testing.T) {
	srv := setupTestServer(t)

	t.Run("Admits Paid Checkout", func(t *testing.T) {
		w := srv.postWebhook(checkoutCompletedEvent("evt_1", "cs_1", 3, "paid"), testWebhookSecret)
		require.Equal(t, http.StatusOK, w.Code)

		rec, err := srv.store.GetBookingByPaymentRef(t.Context(), "cs_1")
		require.NoError(t, err)
		assert.Equal(t, 3, rec.PartySize)
		assert.Equal(t, models.ProvenancePayment, rec.Provenance)
		assert.Equal(t, 60.0, *rec.Price)
	})

	t.Run("Redelivery Is Idempotent", func(t *testing.T) {
		w := srv.postWebhook(checkoutCompletedEvent("evt_1", "cs_1", 3, "paid"), testWebhookSecret)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"duplicate":true`)

		used, err := srv.store.UsedCapacity(t.Context(), "tour-1", "2025-06-01")
		require.NoError(t, err)
		assert.Equal(t, 3, used)
	})

	t.Run("Unpaid Session Skipped", func(t *testing.T) {
		w := srv.postWebhook(checkoutCompletedEvent("evt_2", "cs_2", 1, "unpaid"), testWebhookSecret)
		require.Equal(t, http.StatusOK, w.Code)

		_, err := srv.store.GetBookingByPaymentRef(t.Context(), "cs_2")
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})

	t.Run("Delayed Payment Admitted On Async Success", func(t *testing.T) {
		w := srv.postWebhook(checkoutSessionEvent("checkout.session.async_payment_succeeded", "evt_6", "cs_2", 1, "paid"), testWebhookSecret)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"admitted":true`)

		rec, err := srv.store.GetBookingByPaymentRef(t.Context(), "cs_2")
		require.NoError(t, err)
		assert.Equal(t, 1, rec.PartySize)
		assert.Equal(t, models.BookingStatusPaid, rec.Status)
	})

	t.Run("Over Capacity Acknowledged", func(t *testing.T) {
		w := srv.postWebhook(checkoutCompletedEvent("evt_3", "cs_3", 8, "paid"), testWebhookSecret)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"admitted":false`)
	})

	t.Run("Bad Signature", func(t *testing.T) {
		w := srv.postWebhook(checkoutCompletedEvent("evt_4", "cs_4", 1, "paid"), "whsec_wrong")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Other Events Acknowledged", func(t *testing.T) {
		payload := []byte(`{"id":"evt_5","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
		w := srv.postWebhook(payload, testWebhookSecret)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
