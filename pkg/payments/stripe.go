package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds Stripe credentials. Both values are secrets.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeProvider implements Provider with Stripe PaymentIntents
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	logger        *logrus.Logger
}

// NewStripeProvider creates a Stripe-backed provider
func NewStripeProvider(cfg StripeConfig, logger *logrus.Logger) *StripeProvider {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)

	return &StripeProvider{
		api:           sc,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

// Name returns "stripe"
func (p *StripeProvider) Name() string {
	return "stripe"
}

// CreateIntent creates a PaymentIntent with automatic payment methods
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	currency := strings.ToLower(req.Currency)
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(req.Amount, currency)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	start := time.Now()
	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"amount":     req.Amount.StringFixed(2),
			"currency":   currency,
			"booking_id": req.Metadata[MetadataBookingID],
		}).Error("Stripe payment intent creation failed")
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"payment_intent_id": pi.ID,
		"amount":            pi.Amount,
		"currency":          currency,
		"booking_id":        req.Metadata[MetadataBookingID],
		"duration_ms":       time.Since(start).Milliseconds(),
	}).Info("Stripe payment intent created")

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

// ParseEvent verifies the Stripe-Signature header and decodes the event
func (p *StripeProvider) ParseEvent(payload []byte, signatureHeader string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{
		ID:      evt.ID,
		RawType: string(evt.Type),
		Type:    EventUnknown,
		Created: time.Unix(evt.Created, 0).UTC(),
	}
	if evt.Data == nil {
		return out, nil
	}

	switch EventType(evt.Type) {
	case EventPaymentSucceeded, EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		currency := string(pi.Currency)
		out.Type = EventType(evt.Type)
		out.TransactionID = pi.ID
		out.Amount = FromMinorUnits(pi.Amount, currency)
		out.Currency = currency
		out.ProviderStatus = string(pi.Status)
		out.Metadata = pi.Metadata
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}

	case EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("failed to decode charge: %w", err)
		}
		currency := string(ch.Currency)
		out.Type = EventChargeRefunded
		if ch.PaymentIntent != nil {
			out.TransactionID = ch.PaymentIntent.ID
		}
		out.Amount = FromMinorUnits(ch.Amount, currency)
		out.AmountRefunded = FromMinorUnits(ch.AmountRefunded, currency)
		out.Currency = currency
		out.ProviderStatus = "refunded"
		out.Metadata = ch.Metadata
	}

	return out, nil
}
