package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeAction names a committed mutation pushed to admin dashboards
type ChangeAction string

const (
	ChangeBookingCreated   ChangeAction = "booking.created"
	ChangeBookingUpdated   ChangeAction = "booking.updated"
	ChangeBookingCancelled ChangeAction = "booking.cancelled"
	ChangeBookingAttended  ChangeAction = "booking.attended"
	ChangePaymentRecorded  ChangeAction = "payment.recorded"
	ChangePaymentRefunded  ChangeAction = "payment.refunded"
)

// ChangeEvent is emitted after a booking or payment change commits.
// SessionDate lets subscribers filter to the day they are watching.
type ChangeEvent struct {
	ID            uuid.UUID     `json:"id"`
	Action        ChangeAction  `json:"action"`
	Table         string        `json:"table"`
	RecordID      uuid.UUID     `json:"record_id"`
	BookingID     *uuid.UUID    `json:"booking_id,omitempty"`
	SessionDate   string        `json:"session_date"`
	Status        BookingStatus `json:"status,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// NewBookingChange builds a change event describing b's current state
func NewBookingChange(action ChangeAction, b *Booking) ChangeEvent {
	id := b.ID
	return ChangeEvent{
		ID:            uuid.New(),
		Action:        action,
		Table:         "bookings",
		RecordID:      b.ID,
		BookingID:     &id,
		SessionDate:   b.SessionDateString(),
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		OccurredAt:    time.Now(),
	}
}

// NewPaymentChange builds a change event for a payment row linked to b
func NewPaymentChange(action ChangeAction, p *Payment, b *Booking) ChangeEvent {
	evt := ChangeEvent{
		ID:         uuid.New(),
		Action:     action,
		Table:      "payments",
		RecordID:   p.ID,
		BookingID:  p.BookingID,
		OccurredAt: time.Now(),
	}
	if b != nil {
		evt.SessionDate = b.SessionDateString()
		evt.Status = b.Status
		evt.PaymentStatus = b.PaymentStatus
	}
	return evt
}
