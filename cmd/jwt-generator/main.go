/*
JWT Token Generator for the DOS debug broker

This utility generates JWT tokens using the same secret key and algorithm
as the broker's HTTP management API, for testing and development.

Usage:
  go run main.go --expiry-hours 72
  go run main.go --expiry-hours 24 --secret-key "custom-secret" --user-id ci-runner
*/

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dosdebug/broker/internal/logging"
	"github.com/dosdebug/broker/internal/security"
)

var (
	role         = flag.String("role", "operator", "Token role (operator)")
	expiryHours  = flag.Int("expiry-hours", 24, "Token expiry in hours")
	secretKey    = flag.String("secret-key", "debug-broker-change-in-production", "JWT secret key")
	userID       = flag.String("user-id", "", "Subject (defaults to test_<role>)")
	outputFormat = flag.String("format", "token", "Output format: token, json")
)

func main() {
	flag.Parse()

	if !security.ValidRoles[*role] {
		fmt.Fprintf(os.Stderr, "Error: Invalid role '%s'. Valid roles: operator\n", *role)
		os.Exit(1)
	}

	if *expiryHours <= 0 {
		fmt.Fprintf(os.Stderr, "Error: Expiry hours must be positive\n")
		os.Exit(1)
	}

	if *userID == "" {
		*userID = "test_" + *role
	}

	logger := logging.GetLogger("jwt-generator")

	jwtHandler, err := security.NewJWTHandler(*secretKey, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create JWT handler: %v\n", err)
		os.Exit(1)
	}

	expiry := time.Duration(*expiryHours) * time.Hour
	token, err := jwtHandler.GenerateToken(*userID, *role, expiry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		expiresAt := time.Now().Add(expiry)
		output := fmt.Sprintf(`{
  "token": "%s",
  "user_id": "%s",
  "role": "%s",
  "expires_in_hours": %d,
  "expires_at": "%s",
  "algorithm": "HS256"
}`, token, *userID, *role, *expiryHours, expiresAt.Format(time.RFC3339))
		fmt.Println(output)
	case "token":
		fmt.Println(token)
	default:
		fmt.Fprintf(os.Stderr, "Error: Invalid output format '%s'. Valid formats: token, json\n", *outputFormat)
		os.Exit(1)
	}
}
