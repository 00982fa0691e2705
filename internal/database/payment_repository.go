package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const paymentColumns = `
	id, member_id, booking_id, amount, currency, method, provider_transaction_id,
	provider_status, status, refunded_at, refund_amount, refund_reason, notes,
	recorded_by, provider_event_at, created_at, updated_at`

// PaymentRepository handles payment rows and the booking updates that must
// commit together with them
type PaymentRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

// GetByProviderTransactionID returns the payment for a provider transaction, or nil
func (r *PaymentRepository) GetByProviderTransactionID(ctx context.Context, txnID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.GetContext(ctx, &p,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_transaction_id = $1`, txnID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by transaction: %w", err)
	}
	return &p, nil
}

// ListByMember returns a member's payments, newest first
func (r *PaymentRepository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := r.db.SelectContext(ctx, &payments,
		`SELECT `+paymentColumns+` FROM payments WHERE member_id = $1 ORDER BY created_at DESC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member payments: %w", err)
	}
	return payments, nil
}

// ListByBooking returns every payment recorded against a booking
func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := r.db.SelectContext(ctx, &payments,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking payments: %w", err)
	}
	return payments, nil
}

// SettleCardPayment marks the payment's booking paid and inserts the card
// payment in the same transaction.
//
// Returns ErrConflict when a payment with the same provider transaction id
// already exists. The returned booking is nil when the booking was not
// awaiting payment (already paid by cash, refunded). The charge is still
// recorded, but as a pending payment flagged for refund, so a booking never
// holds more than one completed payment.
func (r *PaymentRepository) SettleCardPayment(ctx context.Context, p *models.Payment) (*models.Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var booking *models.Booking
	if p.BookingID != nil {
		var b models.Booking
		query := `
			UPDATE bookings SET
				payment_status = 'paid', status = 'confirmed', payment_method = 'card',
				payment_intent_id = COALESCE(payment_intent_id, $2),
				cancelled_at = NULL, cancel_reason = NULL, updated_at = NOW()
			WHERE id = $1 AND payment_status = 'pending' AND status IN ('confirmed', 'cancelled')
			RETURNING ` + bookingColumns

		err = tx.GetContext(ctx, &b, query, *p.BookingID, p.ProviderTransactionID)
		switch {
		case err == sql.ErrNoRows:
			r.logger.WithFields(logrus.Fields{
				"booking_id":              *p.BookingID,
				"provider_transaction_id": p.ProviderTransactionID,
			}).Warn("Card payment settled for a booking that was not awaiting payment")
		case err != nil:
			return nil, fmt.Errorf("failed to mark booking paid: %w", err)
		default:
			booking = &b
		}
	}

	if booking == nil {
		note := models.DuplicateChargeNote
		p.Status = models.PaymentRecordPending
		p.Notes = &note
	}
	if err := insertPayment(ctx, tx, p); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit card settlement: %w", err)
	}
	return booking, nil
}

// ConfirmCash marks a confirmed, pending booking paid in cash, stamps check-in
// and inserts the cash payment. Returns (nil, nil) when the booking was no
// longer awaiting payment, e.g. the cash timeout cancelled it first.
func (r *PaymentRepository) ConfirmCash(ctx context.Context, p *models.Payment, at time.Time) (*models.Booking, error) {
	if p.BookingID == nil {
		return nil, fmt.Errorf("cash confirmation requires a booking")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var b models.Booking
	query := `
		UPDATE bookings SET
			payment_status = 'paid', status = 'confirmed', payment_method = 'cash',
			checked_in_at = COALESCE(checked_in_at, $2), updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed' AND payment_status = 'pending'
		RETURNING ` + bookingColumns

	err = tx.GetContext(ctx, &b, query, *p.BookingID, at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark booking paid in cash: %w", err)
	}

	if err := insertPayment(ctx, tx, p); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cash confirmation: %w", err)
	}
	return &b, nil
}

// ApplyRefund marks a payment refunded. When it was the booking's completed
// payment the booking is cancelled too; refunding a duplicate charge leaves
// the booking alone. Returns (nil, nil, nil) when the payment is missing or
// already holds a newer provider event.
func (r *PaymentRepository) ApplyRefund(ctx context.Context, paymentID uuid.UUID, upd models.RefundUpdate) (*models.Payment, *models.Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous models.PaymentRecordStatus
	err = tx.GetContext(ctx, &previous, `SELECT status FROM payments WHERE id = $1 FOR UPDATE`, paymentID)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock payment: %w", err)
	}

	var p models.Payment
	query := `
		UPDATE payments SET
			status = 'refunded', refunded_at = $2, refund_amount = $3,
			refund_reason = COALESCE($4, refund_reason), provider_status = $5,
			provider_event_at = $6, updated_at = NOW()
		WHERE id = $1 AND (provider_event_at IS NULL OR provider_event_at <= $6)
		RETURNING ` + paymentColumns

	err = tx.GetContext(ctx, &p, query,
		paymentID, upd.RefundedAt, upd.RefundAmount, upd.Reason, upd.ProviderStatus, upd.ProviderEventAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to mark payment refunded: %w", err)
	}

	var booking *models.Booking
	if p.BookingID != nil && previous == models.PaymentRecordCompleted {
		var b models.Booking
		query := `
			UPDATE bookings SET
				payment_status = 'refunded', status = 'cancelled',
				cancelled_at = COALESCE(cancelled_at, $2),
				cancel_reason = COALESCE(cancel_reason, 'payment refunded'), updated_at = NOW()
			WHERE id = $1
			RETURNING ` + bookingColumns

		err = tx.GetContext(ctx, &b, query, *p.BookingID, upd.RefundedAt)
		if err != nil && err != sql.ErrNoRows {
			return nil, nil, fmt.Errorf("failed to cascade refund to booking: %w", err)
		}
		if err == nil {
			booking = &b
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit refund: %w", err)
	}
	return &p, booking, nil
}

func insertPayment(ctx context.Context, tx *sqlx.Tx, p *models.Payment) error {
	query := `
		INSERT INTO payments (
			id, member_id, booking_id, amount, currency, method, provider_transaction_id,
			provider_status, status, notes, recorded_by, provider_event_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := tx.QueryRowxContext(ctx, query,
		p.ID, p.MemberID, p.BookingID, p.Amount, p.Currency, p.Method, p.ProviderTransactionID,
		p.ProviderStatus, p.Status, p.Notes, p.RecordedBy, p.ProviderEventAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}
