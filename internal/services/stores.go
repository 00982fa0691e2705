package services

import (
	"context"
	"time"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/google/uuid"
)

// The store interfaces below are satisfied by the repositories in
// internal/database. Lookups return (nil, nil) when the row does not exist
// and conditional updates return (nil, nil) when the row was not in the
// expected state.

// MemberStore persists members
type MemberStore interface {
	Create(ctx context.Context, m *models.Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	GetByEmail(ctx context.Context, email string) (*models.Member, error)
	Search(ctx context.Context, term string, limit int) ([]models.Member, error)
	Update(ctx context.Context, m *models.Member) error
	SetStatus(ctx context.Context, id uuid.UUID, status models.MemberStatus) (bool, error)
}

// ClassStore persists class templates
type ClassStore interface {
	Create(ctx context.Context, c *models.Class) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Class, error)
	Update(ctx context.Context, c *models.Class) error
	List(ctx context.Context, activeOnly bool) ([]models.Class, error)
	ListActiveByDay(ctx context.Context, dayOfWeek int) ([]models.Class, error)
}

// BookingStore persists bookings and their state transitions
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	CountActiveForSlot(ctx context.Context, classID uuid.UUID, sessionDate time.Time, startTime string) (int, error)
	CountActiveByClass(ctx context.Context, sessionDate time.Time) (map[uuid.UUID]int, error)
	MemberHasSlot(ctx context.Context, memberID, classID uuid.UUID, sessionDate time.Time, startTime string) (bool, error)
	MemberHasTrial(ctx context.Context, memberID uuid.UUID) (bool, error)
	List(ctx context.Context, f models.BookingFilter) ([]models.Booking, error)
	ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Booking, error)

	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) (*models.Booking, error)
	RequestCash(ctx context.Context, id uuid.UUID, at time.Time) (*models.Booking, error)
	MarkAttended(ctx context.Context, id uuid.UUID, at time.Time) (*models.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*models.Booking, error)
	MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*models.Booking, error)

	ExpireStaleCash(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	MarkNoShows(ctx context.Context, before time.Time, limit int) ([]models.Booking, error)
}

// PaymentStore persists payments. The settle, confirm and refund operations
// each run in a single transaction together with the booking update.
type PaymentStore interface {
	GetByProviderTransactionID(ctx context.Context, txnID string) (*models.Payment, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Payment, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error)
	SettleCardPayment(ctx context.Context, p *models.Payment) (*models.Booking, error)
	ConfirmCash(ctx context.Context, p *models.Payment, at time.Time) (*models.Booking, error)
	ApplyRefund(ctx context.Context, paymentID uuid.UUID, upd models.RefundUpdate) (*models.Payment, *models.Booking, error)
}

// PaymentEventStore is the provider event log
type PaymentEventStore interface {
	Log(ctx context.Context, e *models.PaymentEvent) error
	AlreadyProcessed(ctx context.Context, provider, providerEventID string) (bool, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentEvent, error)
}

// ChangePublisher pushes committed changes to live dashboards
type ChangePublisher interface {
	Publish(ctx context.Context, evt models.ChangeEvent) error
}

// Stores bundles the persistence handles the booking flow needs
type Stores struct {
	Members       MemberStore
	Classes       ClassStore
	Bookings      BookingStore
	Payments      PaymentStore
	PaymentEvents PaymentEventStore
}
