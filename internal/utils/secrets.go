package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/boxinggym/walkin-backend/pkg/payments"
)

// GenerateSecret generates a cryptographically secure random secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateServiceSecrets generates the staff token secret and the mock
// provider webhook secret. Stripe signing secrets come from the dashboard.
func GenerateServiceSecrets() (staffJWTSecret, mockWebhookSecret string, err error) {
	staffJWTSecret, err = GenerateSecret(32) // 256-bit
	if err != nil {
		return "", "", fmt.Errorf("failed to generate staff token secret: %w", err)
	}

	mockWebhookSecret, err = GenerateSecret(24)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}

	return staffJWTSecret, payments.MockSecretPrefix + mockWebhookSecret, nil
}
