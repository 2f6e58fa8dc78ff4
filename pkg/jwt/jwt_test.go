package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccessSecret = "test-access-secret-key-for-testing-purposes"

func TestNewService(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testAccessSecret, service.accessSecret)
	assert.Equal(t, time.Hour, service.accessTokenExpiry)
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	userID := uuid.New().String()
	roles := []string{"user", "admin"}

	token, err := service.GenerateAccessToken(userID, "guide@example.com", roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "guide@example.com", claims.Email)
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, userID, claims.Subject)
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("guide"))
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	userID := uuid.New().String()

	token, err := service.GenerateAccessToken(userID, "", []string{"user"})
	require.NoError(t, err)

	t.Run("Garbage", func(t *testing.T) {
		_, err := service.ValidateAccessToken("invalid.token.here")
		assert.Error(t, err)
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		_, err := NewService("wrong-secret", time.Hour).ValidateAccessToken(token)
		assert.Error(t, err)
		assert.False(t, IsExpiredError(err))
	})

	t.Run("Expired", func(t *testing.T) {
		expired, err := NewService(testAccessSecret, -time.Hour).GenerateAccessToken(userID, "", []string{"user"})
		require.NoError(t, err)
		_, err = service.ValidateAccessToken(expired)
		assert.Error(t, err)
		assert.True(t, IsExpiredError(err))
	})

	t.Run("Wrong Issuer", func(t *testing.T) {
		claims := Claims{
			UserID:    userID,
			TokenType: AccessToken,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				Issuer:    "someone-else",
			},
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)
		_, err = service.ValidateAccessToken(forged)
		assert.Error(t, err)
	})

	t.Run("Wrong Token Type", func(t *testing.T) {
		claims := Claims{
			UserID:    userID,
			TokenType: "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				Issuer:    Issuer,
			},
		}
		refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)
		_, err = service.ValidateAccessToken(refresh)
		assert.ErrorContains(t, err, "invalid token type")
	})

	t.Run("Missing User", func(t *testing.T) {
		claims := Claims{
			TokenType: AccessToken,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				Issuer:    Issuer,
			},
		}
		anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)
		_, err = service.ValidateAccessToken(anonymous)
		assert.Error(t, err)
	})
}

func TestIsTokenExpired(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	userID := uuid.New().String()

	token, err := service.GenerateAccessToken(userID, "", []string{"user"})
	require.NoError(t, err)
	assert.False(t, service.IsTokenExpired(token))

	expiredToken, err := NewService(testAccessSecret, -time.Hour).GenerateAccessToken(userID, "", []string{"user"})
	require.NoError(t, err)
	assert.True(t, service.IsTokenExpired(expiredToken))

	assert.True(t, service.IsTokenExpired("invalid.token.here"))
}

func TestEmptyRoles(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	token, err := service.GenerateAccessToken(uuid.New().String(), "", []string{})
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Empty(t, claims.Roles)
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	done := make(chan bool)
	errs := make(chan error, 100)

	for i := 0; i < 100; i++ {
		go func() {
			defer func() { done <- true }()

			token, err := service.GenerateAccessToken(uuid.New().String(), "", []string{"user"})
			if err != nil {
				errs <- err
				return
			}
			if _, err := service.ValidateAccessToken(token); err != nil {
				errs <- err
			}
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}

	close(errs)
	assert.Empty(t, errs)
}
