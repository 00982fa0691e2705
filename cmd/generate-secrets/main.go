package main

import (
	"fmt"
	"log"

	"github.com/boxinggym/walkin-backend/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret Generator for the walk-in backend")
	fmt.Println("===========================================")
	fmt.Println()

	staffSecret, webhookSecret, err := utils.GenerateServiceSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("✅ Secrets generated successfully!")
	fmt.Println()
	fmt.Println("Add these to your .env file:")
	fmt.Println()
	fmt.Printf("STAFF_JWT_SECRET=%s\n", staffSecret)
	fmt.Printf("MOCK_WEBHOOK_SECRET=%s\n", webhookSecret)
	fmt.Println()
	fmt.Println("STRIPE_WEBHOOK_SECRET comes from the Stripe dashboard, not from here.")
	fmt.Println("⚠️  IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
