package services

import (
	"fmt"

	"github.com/google/uuid"
)

// NotFoundError is returned when a referenced member, class, booking or payment does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func notFound(resource string, id uuid.UUID) error {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

// CapacityExceededError is returned when a session has no places left
type CapacityExceededError struct {
	ClassID     uuid.UUID
	ClassName   string
	SessionDate string
	Capacity    int
	Booked      int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("class %s on %s is full (%d/%d booked)", e.ClassName, e.SessionDate, e.Booked, e.Capacity)
}

// AlreadyPaidError is returned when payment is requested for a booking that owes nothing
type AlreadyPaidError struct {
	BookingID     uuid.UUID
	PaymentStatus string
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("booking %s is already %s", e.BookingID, e.PaymentStatus)
}

// InvalidSignatureError is returned when a payment event fails signature verification.
// No state is touched when this is returned.
type InvalidSignatureError struct {
	Provider string
	Reason   string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid %s event signature: %s", e.Provider, e.Reason)
}

// InvalidTransitionError is returned when an operation is not allowed from the current state
type InvalidTransitionError struct {
	Entity string
	ID     uuid.UUID
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// ValidationError is returned for malformed or inconsistent input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IneligibleError is returned when a member may not take a booking
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return "not eligible: " + e.Reason
}
