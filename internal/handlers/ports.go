package handlers

import (
	"context"
	"time"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/internal/services"
	"github.com/google/uuid"
)

// BookingAPI is the booking lifecycle as seen by the HTTP layer
type BookingAPI interface {
	CreateBooking(ctx context.Context, req *models.CreateBookingRequest, channel models.Channel) (*models.Booking, error)
	IssuePaymentIntent(ctx context.Context, id uuid.UUID) (*models.PaymentIntentResponse, error)
	RequestCashPayment(ctx context.Context, id uuid.UUID) (*models.CashRequestResponse, error)
	ConfirmCashPayment(ctx context.Context, id uuid.UUID, req models.ConfirmCashRequest, meta services.RequestMeta) (*models.Booking, error)
	MarkAttended(ctx context.Context, id uuid.UUID, meta services.RequestMeta) (*models.Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID, reason string, meta services.RequestMeta) (*models.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBookingDetail(ctx context.Context, id uuid.UUID) (*services.BookingDetail, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	ListMemberBookings(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Booking, error)
	ListSessions(ctx context.Context, date time.Time) ([]models.Session, error)
	HandlePaymentEvent(ctx context.Context, payload []byte, signature string, meta services.RequestMeta) (*services.EventResult, error)
	Today() time.Time
	Location() *time.Location
}

// MemberAPI manages member records
type MemberAPI interface {
	CreateMember(ctx context.Context, req *models.CreateMemberRequest, channel models.Channel) (*models.Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
	SearchMembers(ctx context.Context, query string, limit int) ([]models.Member, error)
	UpdateMember(ctx context.Context, id uuid.UUID, req *models.UpdateMemberRequest) (*models.Member, error)
	SetMemberStatus(ctx context.Context, id uuid.UUID, status string, meta services.RequestMeta) error
	ListMemberPayments(ctx context.Context, id uuid.UUID) ([]models.Payment, error)
}

// ClassAPI manages the timetable
type ClassAPI interface {
	CreateClass(ctx context.Context, req *models.ClassRequest) (*models.Class, error)
	UpdateClass(ctx context.Context, id uuid.UUID, req *models.ClassRequest) (*models.Class, error)
	GetClass(ctx context.Context, id uuid.UUID) (*models.Class, error)
	ListClasses(ctx context.Context, activeOnly bool) ([]models.Class, error)
}

// JobRunner triggers and reports background sweeps
type JobRunner interface {
	RunNow(job string) (services.JobRun, error)
	GetJobStatus() []services.JobStatus
}

// HistoryReader reads the audit trail of a record
type HistoryReader interface {
	GetEntityHistory(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]services.RecentEvent, error)
}
