package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// BOOKING STATUS (state machine)
// ============================================================================

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed" // Place held; may still owe payment
	BookingStatusCancelled BookingStatus = "cancelled" // Failed payment, timeout, refund or staff cancel
	BookingStatusAttended  BookingStatus = "attended"  // Checked in at the desk
	BookingStatusNoShow    BookingStatus = "no_show"   // Session passed without check-in
)

// validBookingTransitions is the booking state machine. Cancelled bookings are
// reinstated only when a card payment settles for them.
var validBookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusConfirmed: {BookingStatusAttended, BookingStatusCancelled, BookingStatusNoShow},
	BookingStatusCancelled: {BookingStatusConfirmed},
	BookingStatusAttended:  {},
	BookingStatusNoShow:    {},
}

// IsValid returns true if the status is a recognised booking status
func (s BookingStatus) IsValid() bool {
	_, exists := validBookingTransitions[s]
	return exists
}

// CanTransitionTo returns true if moving from s to target is allowed
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validBookingTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible
func (s BookingStatus) IsTerminal() bool {
	return len(validBookingTransitions[s]) == 0
}

// CountsTowardCapacity reports whether a booking in this state occupies a place
func (s BookingStatus) CountsTowardCapacity() bool {
	return s != BookingStatusCancelled
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts a string to a BookingStatus
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// PaymentStatus is the payment state recorded on a booking
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusWaived   PaymentStatus = "waived" // Membership or trial, nothing owed
)

// IsValid returns true if the status is a recognised payment status
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusRefunded, PaymentStatusWaived:
		return true
	}
	return false
}

// IsSettled reports whether nothing more is owed for the booking
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusPaid || s == PaymentStatusWaived
}

// ParsePaymentStatus converts a string to a PaymentStatus
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payment status: %s", s)
	}
	return status, nil
}

// BookingType says how the place is paid for
type BookingType string

const (
	BookingTypeDropIn     BookingType = "drop_in"
	BookingTypeMembership BookingType = "membership"
	BookingTypeTrial      BookingType = "trial"
)

// IsValid returns true if the type is recognised
func (t BookingType) IsValid() bool {
	switch t {
	case BookingTypeDropIn, BookingTypeMembership, BookingTypeTrial:
		return true
	}
	return false
}

// InitialPaymentStatus is the payment status a new booking of this type starts in
func (t BookingType) InitialPaymentStatus() PaymentStatus {
	if t == BookingTypeDropIn {
		return PaymentStatusPending
	}
	return PaymentStatusWaived
}

// ParseBookingType converts a string to a BookingType. Empty means drop-in.
func ParseBookingType(s string) (BookingType, error) {
	if s == "" {
		return BookingTypeDropIn, nil
	}
	t := BookingType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid booking type: %s", s)
	}
	return t, nil
}

// Channel is where a record was created
type Channel string

const (
	ChannelKiosk  Channel = "kiosk"
	ChannelAdmin  Channel = "admin"
	ChannelOnline Channel = "online"
)

// IsValid returns true if the channel is recognised
func (c Channel) IsValid() bool {
	switch c {
	case ChannelKiosk, ChannelAdmin, ChannelOnline:
		return true
	}
	return false
}

// ============================================================================
// BOOKING
// ============================================================================

// Booking is one member's place in one concrete session of a class
type Booking struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	MemberID         uuid.UUID       `json:"member_id" db:"member_id"`
	ClassID          uuid.UUID       `json:"class_id" db:"class_id"`
	SessionDate      time.Time       `json:"session_date" db:"session_date"`
	SessionStartTime string          `json:"session_start_time" db:"session_start_time"`
	BookingType      BookingType     `json:"booking_type" db:"booking_type"`
	Status           BookingStatus   `json:"status" db:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status" db:"payment_status"`
	Amount           decimal.Decimal `json:"amount" db:"amount"` // Snapshot of the class price at creation
	Currency         string          `json:"currency" db:"currency"`
	PaymentIntentID  *string         `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	PaymentMethod    *PaymentMethod  `json:"payment_method,omitempty" db:"payment_method"`
	CashRequestedAt  *time.Time      `json:"cash_requested_at,omitempty" db:"cash_requested_at"`
	CheckedInAt      *time.Time      `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason     *string         `json:"cancel_reason,omitempty" db:"cancel_reason"`
	Channel          Channel         `json:"channel" db:"channel"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// SessionDateString returns the session date as YYYY-MM-DD
func (b *Booking) SessionDateString() string {
	return b.SessionDate.Format(DateLayout)
}

// CanCheckIn reports whether the booking may be marked attended
func (b *Booking) CanCheckIn() bool {
	return b.Status.CanTransitionTo(BookingStatusAttended) && b.PaymentStatus.IsSettled()
}

// AwaitingPayment reports whether the booking is live and still owes money
func (b *Booking) AwaitingPayment() bool {
	return b.Status == BookingStatusConfirmed && b.PaymentStatus == PaymentStatusPending
}

// CashDeadline returns when a pending cash request lapses, or nil
func (b *Booking) CashDeadline(timeout time.Duration) *time.Time {
	if b.CashRequestedAt == nil {
		return nil
	}
	deadline := b.CashRequestedAt.Add(timeout)
	return &deadline
}

// DateLayout is the wire format of session dates
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date in loc
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// CreateBookingRequest books a member into a session
type CreateBookingRequest struct {
	MemberID    string `json:"member_id" binding:"required"`
	ClassID     string `json:"class_id" binding:"required"`
	SessionDate string `json:"session_date" binding:"required"` // YYYY-MM-DD
	BookingType string `json:"booking_type,omitempty"`
}

// Validate checks the request shape
func (r *CreateBookingRequest) Validate() error {
	if _, err := uuid.Parse(r.MemberID); err != nil {
		return errors.New("member_id must be a valid UUID")
	}
	if _, err := uuid.Parse(r.ClassID); err != nil {
		return errors.New("class_id must be a valid UUID")
	}
	if _, err := time.Parse(DateLayout, r.SessionDate); err != nil {
		return errors.New("session_date must be YYYY-MM-DD")
	}
	if _, err := ParseBookingType(r.BookingType); err != nil {
		return err
	}
	return nil
}

// PaymentIntentResponse is returned to the kiosk so it can collect the card
type PaymentIntentResponse struct {
	BookingID       uuid.UUID       `json:"booking_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	ClientSecret    string          `json:"client_secret"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

// CashRequestResponse tells the kiosk how long the member has to pay at the desk
type CashRequestResponse struct {
	BookingID uuid.UUID `json:"booking_id"`
	Deadline  time.Time `json:"deadline"`
}

// ConfirmCashRequest is sent by staff when cash is taken
type ConfirmCashRequest struct {
	Notes string `json:"notes,omitempty"`
}

// CancelBookingRequest is sent by staff to cancel a booking
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// BookingFilter narrows booking listings
type BookingFilter struct {
	SessionDate time.Time
	ClassID     *uuid.UUID
	Status      *BookingStatus
}
