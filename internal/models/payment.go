package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how money was taken
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// IsValid returns true if the method is recognised
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodCash, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// Ptr returns a pointer to m, for nullable columns
func (m PaymentMethod) Ptr() *PaymentMethod {
	return &m
}

// PaymentRecordStatus is the internal state of a Payment row
type PaymentRecordStatus string

const (
	PaymentRecordPending   PaymentRecordStatus = "pending"
	PaymentRecordCompleted PaymentRecordStatus = "completed"
	PaymentRecordFailed    PaymentRecordStatus = "failed"
	PaymentRecordRefunded  PaymentRecordStatus = "refunded"
)

// IsValid returns true if the status is recognised
func (s PaymentRecordStatus) IsValid() bool {
	switch s {
	case PaymentRecordPending, PaymentRecordCompleted, PaymentRecordFailed, PaymentRecordRefunded:
		return true
	}
	return false
}

// ParsePaymentRecordStatus converts a string to a PaymentRecordStatus
func ParsePaymentRecordStatus(s string) (PaymentRecordStatus, error) {
	status := PaymentRecordStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payment record status: %s", s)
	}
	return status, nil
}

// DuplicateChargeNote marks a card charge that arrived for a booking already
// settled another way. The payment stays pending until staff refund it.
const DuplicateChargeNote = "Duplicate charge: booking was not awaiting payment, refund due"

// Payment is one monetary transaction against a member, optionally for a booking.
// Once completed only the refund fields change.
type Payment struct {
	ID                    uuid.UUID           `json:"id" db:"id"`
	MemberID              uuid.UUID           `json:"member_id" db:"member_id"`
	BookingID             *uuid.UUID          `json:"booking_id,omitempty" db:"booking_id"`
	Amount                decimal.Decimal     `json:"amount" db:"amount"`
	Currency              string              `json:"currency" db:"currency"`
	Method                PaymentMethod       `json:"method" db:"method"`
	ProviderTransactionID *string             `json:"provider_transaction_id,omitempty" db:"provider_transaction_id"`
	ProviderStatus        *string             `json:"provider_status,omitempty" db:"provider_status"`
	Status                PaymentRecordStatus `json:"status" db:"status"`
	RefundedAt            *time.Time          `json:"refunded_at,omitempty" db:"refunded_at"`
	RefundAmount          decimal.NullDecimal `json:"refund_amount" db:"refund_amount"`
	RefundReason          *string             `json:"refund_reason,omitempty" db:"refund_reason"`
	Notes                 *string             `json:"notes,omitempty" db:"notes"`
	RecordedBy            *uuid.UUID          `json:"recorded_by,omitempty" db:"recorded_by"`
	ProviderEventAt       *time.Time          `json:"provider_event_at,omitempty" db:"provider_event_at"`
	CreatedAt             time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at" db:"updated_at"`
}

// IsNewerThan reports whether the payment has already absorbed a provider
// event created after t. Used to discard stale, redelivered events.
func (p *Payment) IsNewerThan(t time.Time) bool {
	return p.ProviderEventAt != nil && p.ProviderEventAt.After(t)
}

// RefundUpdate is what a refund event writes onto a payment
type RefundUpdate struct {
	RefundAmount    decimal.Decimal
	RefundedAt      time.Time
	Reason          *string
	ProviderStatus  string
	ProviderEventAt time.Time
}
