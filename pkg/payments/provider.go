package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider defines the payment processor the booking flow depends on
type Provider interface {
	// CreateIntent opens a card transaction for the amount and returns the
	// handle plus a client token the kiosk uses to collect the card
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)

	// ParseEvent verifies the signature of a delivered event and decodes it.
	// Returns an error wrapping ErrInvalidSignature when verification fails.
	ParseEvent(payload []byte, signatureHeader string) (*Event, error)

	// Name returns the provider name recorded on payment events
	Name() string
}

// ErrInvalidSignature is returned when an event's signature does not verify
var ErrInvalidSignature = errors.New("payment event signature verification failed")

// Metadata keys attached to every intent for later correlation
const (
	MetadataBookingID = "booking_id"
	MetadataMemberID  = "member_id"
	MetadataClassID   = "class_id"
)

// IntentRequest describes a card transaction to open
type IntentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the provider handle for an open card transaction
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// EventType is the normalised kind of a provider event
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.payment_failed"
	EventChargeRefunded   EventType = "charge.refunded"
	EventUnknown          EventType = "unknown"
)

// Event is a verified provider event reduced to what the booking flow uses
type Event struct {
	ID             string
	Type           EventType
	RawType        string
	TransactionID  string // payment intent id
	Amount         decimal.Decimal
	AmountRefunded decimal.Decimal
	Currency       string
	ProviderStatus string
	FailureMessage string
	Metadata       map[string]string
	Created        time.Time
}

// BookingID resolves the booking the event refers to from its metadata
func (e *Event) BookingID() (uuid.UUID, bool) {
	for _, key := range []string{MetadataBookingID, "bookingId"} {
		if raw, ok := e.Metadata[key]; ok && raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return uuid.Nil, false
			}
			return id, true
		}
	}
	return uuid.Nil, false
}

// zeroDecimalCurrencies are charged in whole units
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true, "krw": true,
	"mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true, "vuv": true, "xaf": true,
	"xof": true, "xpf": true,
}

// ToMinorUnits converts a decimal amount to the provider's integer units (pence for GBP)
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[currency] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts provider integer units back to a decimal amount
func FromMinorUnits(units int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[currency] {
		return decimal.NewFromInt(units)
	}
	return decimal.New(units, -2)
}
