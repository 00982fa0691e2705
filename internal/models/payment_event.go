package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventOutcome records what the handler did with a provider event
type PaymentEventOutcome string

const (
	EventOutcomeApplied   PaymentEventOutcome = "applied"   // State changed
	EventOutcomeDuplicate PaymentEventOutcome = "duplicate" // Same event or transaction already processed
	EventOutcomeStale     PaymentEventOutcome = "stale"     // Older than the state we hold
	EventOutcomeIgnored   PaymentEventOutcome = "ignored"   // Unknown type or no booking metadata
	EventOutcomeUnmatched PaymentEventOutcome = "unmatched" // Refers to a booking/payment we do not track
	EventOutcomeRejected  PaymentEventOutcome = "rejected"  // Signature verification failed
	EventOutcomeError     PaymentEventOutcome = "error"     // Store failure; provider will redeliver
)

// PaymentEvent is an immutable log entry for one received provider event
type PaymentEvent struct {
	ID                    uuid.UUID           `json:"id" db:"id"`
	Provider              string              `json:"provider" db:"provider"`
	ProviderEventID       *string             `json:"provider_event_id,omitempty" db:"provider_event_id"`
	EventType             string              `json:"event_type" db:"event_type"`
	ProviderTransactionID *string             `json:"provider_transaction_id,omitempty" db:"provider_transaction_id"`
	BookingID             *uuid.UUID          `json:"booking_id,omitempty" db:"booking_id"`
	Outcome               PaymentEventOutcome `json:"outcome" db:"outcome"`
	ErrorMessage          *string             `json:"error_message,omitempty" db:"error_message"`
	RawPayload            *string             `json:"raw_payload,omitempty" db:"raw_payload"`
	IPAddress             *string             `json:"ip_address,omitempty" db:"ip_address"`
	ProcessingTimeMs      *int                `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	ReceivedAt            time.Time           `json:"received_at" db:"received_at"`
}

// NewPaymentEvent starts a log entry for a received event
func NewPaymentEvent(provider, eventType string) *PaymentEvent {
	return &PaymentEvent{
		ID:         uuid.New(),
		Provider:   provider,
		EventType:  eventType,
		ReceivedAt: time.Now(),
	}
}

// SetProviderEventID sets the provider's event id (dedupe key)
func (e *PaymentEvent) SetProviderEventID(id string) *PaymentEvent {
	if id != "" {
		e.ProviderEventID = &id
	}
	return e
}

// SetTransaction sets the provider transaction id
func (e *PaymentEvent) SetTransaction(txnID string) *PaymentEvent {
	if txnID != "" {
		e.ProviderTransactionID = &txnID
	}
	return e
}

// SetBooking links the entry to a booking
func (e *PaymentEvent) SetBooking(id uuid.UUID) *PaymentEvent {
	e.BookingID = &id
	return e
}

// SetRawPayload stores the raw body exactly as received
func (e *PaymentEvent) SetRawPayload(body []byte) *PaymentEvent {
	raw := string(body)
	e.RawPayload = &raw
	return e
}

// SetIPAddress records the sender address
func (e *PaymentEvent) SetIPAddress(ip string) *PaymentEvent {
	if ip != "" {
		e.IPAddress = &ip
	}
	return e
}

// Finish stamps the outcome and processing time
func (e *PaymentEvent) Finish(outcome PaymentEventOutcome, err error) *PaymentEvent {
	e.Outcome = outcome
	if err != nil {
		msg := err.Error()
		e.ErrorMessage = &msg
	}
	ms := int(time.Since(e.ReceivedAt).Milliseconds())
	e.ProcessingTimeMs = &ms
	return e
}
