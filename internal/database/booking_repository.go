package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const bookingColumns = `
	id, member_id, class_id, session_date, session_start_time, booking_type,
	status, payment_status, amount, currency, payment_intent_id, payment_method,
	cash_requested_at, checked_in_at, cancelled_at, cancel_reason, channel,
	created_at, updated_at`

// BookingRepository handles booking operations.
//
// State-changing methods are conditional UPDATEs on the current status: they
// return (nil, nil) when the row was not in the expected state, so whichever
// concurrent writer commits first wins and the other observes no change.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a booking
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, member_id, class_id, session_date, session_start_time, booking_type,
			status, payment_status, amount, currency, channel, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		b.ID, b.MemberID, b.ClassID, b.SessionDate, b.SessionStartTime, b.BookingType,
		b.Status, b.PaymentStatus, b.Amount, b.Currency, b.Channel,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID returns the booking or nil when absent
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// CountActiveForSlot counts non-cancelled bookings for one session occurrence
func (r *BookingRepository) CountActiveForSlot(ctx context.Context, classID uuid.UUID, sessionDate time.Time, startTime string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE class_id = $1 AND session_date = $2 AND session_start_time = $3
		AND status <> 'cancelled'`

	if err := r.db.GetContext(ctx, &count, query, classID, sessionDate, startTime); err != nil {
		return 0, fmt.Errorf("failed to count bookings for slot: %w", err)
	}
	return count, nil
}

// CountActiveByClass returns non-cancelled booking counts per class for a date
func (r *BookingRepository) CountActiveByClass(ctx context.Context, sessionDate time.Time) (map[uuid.UUID]int, error) {
	var rows []struct {
		ClassID uuid.UUID `db:"class_id"`
		Count   int       `db:"count"`
	}
	query := `
		SELECT class_id, COUNT(*) AS count FROM bookings
		WHERE session_date = $1 AND status <> 'cancelled'
		GROUP BY class_id`

	if err := r.db.SelectContext(ctx, &rows, query, sessionDate); err != nil {
		return nil, fmt.Errorf("failed to count bookings by class: %w", err)
	}

	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		counts[row.ClassID] = row.Count
	}
	return counts, nil
}

// MemberHasSlot reports whether the member already holds a live booking for the slot
func (r *BookingRepository) MemberHasSlot(ctx context.Context, memberID, classID uuid.UUID, sessionDate time.Time, startTime string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE member_id = $1 AND class_id = $2 AND session_date = $3
			AND session_start_time = $4 AND status <> 'cancelled'
		)`

	if err := r.db.GetContext(ctx, &exists, query, memberID, classID, sessionDate, startTime); err != nil {
		return false, fmt.Errorf("failed to check member slot: %w", err)
	}
	return exists, nil
}

// MemberHasTrial reports whether the member has ever taken a trial booking
func (r *BookingRepository) MemberHasTrial(ctx context.Context, memberID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM bookings WHERE member_id = $1 AND booking_type = 'trial')`

	if err := r.db.GetContext(ctx, &exists, query, memberID); err != nil {
		return false, fmt.Errorf("failed to check trial bookings: %w", err)
	}
	return exists, nil
}

// List returns bookings for a session date, optionally narrowed by class and status
func (r *BookingRepository) List(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE session_date = $1
		AND ($2::uuid IS NULL OR class_id = $2)
		AND ($3::text IS NULL OR status = $3)
		ORDER BY session_start_time, created_at`

	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	if err := r.db.SelectContext(ctx, &bookings, query, f.SessionDate, f.ClassID, status); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListByMember returns a member's bookings, newest session first
func (r *BookingRepository) ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Booking, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	bookings := []models.Booking{}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE member_id = $1
		ORDER BY session_date DESC, session_start_time DESC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &bookings, query, memberID, limit); err != nil {
		return nil, fmt.Errorf("failed to list member bookings: %w", err)
	}
	return bookings, nil
}

// SetPaymentIntent records the card payment handle on a booking still awaiting payment
func (r *BookingRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) (*models.Booking, error) {
	query := `
		UPDATE bookings SET
			payment_intent_id = $2, payment_method = 'card', cash_requested_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed' AND payment_status = 'pending'
		RETURNING ` + bookingColumns

	return r.updateOne(ctx, query, id, intentID)
}

// RequestCash marks a live, unpaid booking as waiting for cash at the desk
func (r *BookingRepository) RequestCash(ctx context.Context, id uuid.UUID, at time.Time) (*models.Booking, error) {
	query := `
		UPDATE bookings SET
			payment_method = 'cash', cash_requested_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed' AND payment_status = 'pending'
		RETURNING ` + bookingColumns

	return r.updateOne(ctx, query, id, at)
}

// MarkAttended checks a confirmed, settled booking in
func (r *BookingRepository) MarkAttended(ctx context.Context, id uuid.UUID, at time.Time) (*models.Booking, error) {
	query := `
		UPDATE bookings SET
			status = 'attended', checked_in_at = COALESCE(checked_in_at, $2), updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed' AND payment_status IN ('paid', 'waived')
		RETURNING ` + bookingColumns

	return r.updateOne(ctx, query, id, at)
}

// Cancel cancels a confirmed booking
func (r *BookingRepository) Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*models.Booking, error) {
	query := `
		UPDATE bookings SET
			status = 'cancelled', cancelled_at = $3, cancel_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed'
		RETURNING ` + bookingColumns

	return r.updateOne(ctx, query, id, reason, at)
}

// MarkPaymentFailed cancels a booking whose card payment failed. A booking that
// has since been paid is left alone.
func (r *BookingRepository) MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*models.Booking, error) {
	query := `
		UPDATE bookings SET
			status = 'cancelled', payment_status = 'pending',
			cancelled_at = $3, cancel_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed' AND payment_status = 'pending'
		RETURNING ` + bookingColumns

	return r.updateOne(ctx, query, id, reason, at)
}

// ExpireStaleCash cancels bookings whose cash request is older than cutoff.
// Rows locked by a concurrent cash confirmation are skipped and picked up by
// the next sweep if that confirmation rolls back.
func (r *BookingRepository) ExpireStaleCash(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	expired := []models.Booking{}
	query := `
		UPDATE bookings SET
			status = 'cancelled', cancelled_at = NOW(),
			cancel_reason = 'cash payment not received in time', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM bookings
			WHERE payment_method = 'cash' AND status = 'confirmed' AND payment_status = 'pending'
			AND cash_requested_at < $1
			ORDER BY cash_requested_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'confirmed' AND payment_status = 'pending'
		RETURNING ` + bookingColumns

	if err := r.db.SelectContext(ctx, &expired, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to expire stale cash bookings: %w", err)
	}
	return expired, nil
}

// MarkNoShows closes out confirmed bookings for sessions before the given date
func (r *BookingRepository) MarkNoShows(ctx context.Context, before time.Time, limit int) ([]models.Booking, error) {
	marked := []models.Booking{}
	query := `
		UPDATE bookings SET status = 'no_show', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM bookings
			WHERE status = 'confirmed' AND session_date < $1
			ORDER BY session_date
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'confirmed'
		RETURNING ` + bookingColumns

	if err := r.db.SelectContext(ctx, &marked, query, before, limit); err != nil {
		return nil, fmt.Errorf("failed to mark no-shows: %w", err)
	}
	return marked, nil
}

func (r *BookingRepository) updateOne(ctx context.Context, query string, args ...interface{}) (*models.Booking, error) {
	var b models.Booking
	err := r.db.GetContext(ctx, &b, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	return &b, nil
}
