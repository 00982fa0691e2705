package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MockSignatureHeader carries the HMAC of mock events
	MockSignatureHeader = "X-Mock-Signature"
	// MockSecretPrefix marks generated mock webhook secrets so they are not
	// mistaken for a provider's signing secret
	MockSecretPrefix = "mockwh_"
)

// MockProvider is a local stand-in for development and tests. Events are
// JSON documents signed with HMAC-SHA256 over the raw body.
type MockProvider struct {
	secret string

	mu      sync.Mutex
	intents []IntentRequest
}

// NewMockProvider creates a mock provider verifying events with secret
func NewMockProvider(secret string) *MockProvider {
	return &MockProvider{secret: secret}
}

// Name returns "mock"
func (p *MockProvider) Name() string {
	return "mock"
}

// CreateIntent records the request and returns a fake intent
func (p *MockProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.intents = append(p.intents, req)
	p.mu.Unlock()

	id := "pi_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		Status:       "requires_payment_method",
	}, nil
}

// Intents returns the intent requests seen so far
func (p *MockProvider) Intents() []IntentRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]IntentRequest, len(p.intents))
	copy(out, p.intents)
	return out
}

// MockEvent is the wire shape of a mock provider event
type MockEvent struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Created int64         `json:"created"`
	Data    MockEventData `json:"data"`
}

// MockEventData is the object carried by a mock event. Amounts are minor units.
type MockEventData struct {
	TransactionID  string            `json:"transaction_id"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded,omitempty"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	FailureMessage string            `json:"failure_message,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Sign returns the signature header value for payload
func (p *MockProvider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ParseEvent verifies the HMAC and decodes a MockEvent
func (p *MockProvider) ParseEvent(payload []byte, signatureHeader string) (*Event, error) {
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}
	if !hmac.Equal([]byte(p.Sign(payload)), []byte(strings.TrimSpace(signatureHeader))) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}

	var raw MockEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode mock event: %w", err)
	}

	currency := strings.ToLower(raw.Data.Currency)
	evt := &Event{
		ID:             raw.ID,
		RawType:        raw.Type,
		Type:           EventUnknown,
		TransactionID:  raw.Data.TransactionID,
		Amount:         FromMinorUnits(raw.Data.Amount, currency),
		AmountRefunded: FromMinorUnits(raw.Data.AmountRefunded, currency),
		Currency:       currency,
		ProviderStatus: raw.Data.Status,
		FailureMessage: raw.Data.FailureMessage,
		Metadata:       raw.Data.Metadata,
		Created:        time.Unix(raw.Created, 0).UTC(),
	}
	switch EventType(raw.Type) {
	case EventPaymentSucceeded, EventPaymentFailed, EventChargeRefunded:
		evt.Type = EventType(raw.Type)
	}
	return evt, nil
}
