package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tourbook/booking-backend/internal/utils"
	"github.com/tourbook/booking-backend/pkg/jwt"
)

func main() {
	var (
		secret string
		userID string
		email  string
		roles  string
		ttl    time.Duration
	)
	flag.StringVar(&secret, "secret", "", "existing JWT_SECRET to sign a development token with")
	flag.StringVar(&userID, "user", "", "user id for a development access token")
	flag.StringVar(&email, "email", "", "email claim for the development token")
	flag.StringVar(&roles, "roles", "user", "comma separated roles for the development token")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "development token lifetime")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("Secret Generator for TourBook")
	fmt.Println("===========================================")
	fmt.Println()

	if secret == "" {
		generated, err := utils.GenerateJWTSecret()
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		secret = generated

		fmt.Println("Add this to your .env file:")
		fmt.Println()
		fmt.Printf("JWT_SECRET=%s\n", secret)
		fmt.Println()
	}

	if userID != "" {
		service := jwt.NewService(secret, ttl)
		token, err := service.GenerateAccessToken(userID, email, strings.Split(roles, ","))
		if err != nil {
			log.Fatalf("Failed to sign development token: %v", err)
		}
		fmt.Printf("Development access token for %s (%s, valid %s):\n\n", userID, roles, ttl)
		fmt.Printf("Authorization: Bearer %s\n\n", token)
	}

	fmt.Println("Keep secrets out of version control.")
	fmt.Println("===========================================")
}
