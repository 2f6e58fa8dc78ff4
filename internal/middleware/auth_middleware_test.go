package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourbook/booking-backend/pkg/jwt"
)

const testSecret = "test-access-secret-key-123456789"

func setupTestJWTService() *jwt.Service {
	return jwt.NewService(testSecret, time.Hour)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	userID := uuid.New().String()
	token, err := jwtService.GenerateAccessToken(userID, "traveller@example.com", []string{RoleUser})
	require.NoError(t, err)

	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		require.True(t, exists)
		c.JSON(http.StatusOK, gin.H{"message": "success", "user_id": userCtx.UserID})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	jwtService := setupTestJWTService()
	expired, err := jwt.NewService(testSecret, -time.Hour).GenerateAccessToken(uuid.New().String(), "", []string{RoleUser})
	require.NoError(t, err)
	foreign, err := jwt.NewService("other-secret", time.Hour).GenerateAccessToken(uuid.New().String(), "", []string{RoleUser})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"Missing Header", "", "MISSING_AUTH_HEADER"},
		{"Wrong Scheme", "Basic abc123", "INVALID_AUTH_FORMAT"},
		{"Empty Token", "Bearer   ", "INVALID_AUTH_FORMAT"},
		{"Garbage Token", "Bearer not.a.token", "INVALID_TOKEN"},
		{"Wrong Secret", "Bearer " + foreign, "INVALID_TOKEN"},
		{"Expired Token", "Bearer " + expired, "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
			})

			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
			assert.NotContains(t, w.Body.String(), "should not reach here")
		})
	}
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()

	tests := []struct {
		name     string
		roles    []string
		expected int
	}{
		{"Admin Allowed", []string{RoleAdmin}, http.StatusOK},
		{"Guide Allowed", []string{RoleUser, RoleGuide}, http.StatusOK},
		{"User Forbidden", []string{RoleUser}, http.StatusForbidden},
		{"No Roles Forbidden", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.GET("/staff", AuthMiddleware(jwtService, testLogger()), RequireRole(RoleAdmin, RoleGuide), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			token, err := jwtService.GenerateAccessToken(uuid.New().String(), "", tt.roles)
			require.NoError(t, err)

			req := httptest.NewRequest("GET", "/staff", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expected, w.Code)
		})
	}

	t.Run("Missing User Context", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/staff", RequireRole(RoleAdmin), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/staff", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "MISSING_USER_CONTEXT")
	})
}

func TestGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetUserContext(c)
	assert.False(t, ok)

	c.Set(UserContextKey, "not a user context")
	_, ok = GetUserContext(c)
	assert.False(t, ok)

	c.Set(UserContextKey, UserContext{UserID: "u-1", Roles: []string{RoleAdmin}})
	userCtx, ok := GetUserContext(c)
	require.True(t, ok)
	assert.Equal(t, "u-1", userCtx.UserID)
	assert.True(t, userCtx.IsAdmin())
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	router := setupTestRouter()
	router.Use(RequestLogger(testLogger()))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}
