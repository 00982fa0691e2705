package database

import (
	"context"
	"fmt"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// PaymentEventRepository stores the log of received provider events
type PaymentEventRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentEventRepository creates a new payment event repository
func NewPaymentEventRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentEventRepository {
	return &PaymentEventRepository{
		db:     db,
		logger: logger,
	}
}

// Log writes an event entry. A failure here is logged loudly; the caller
// decides whether it is fatal for the request.
func (r *PaymentEventRepository) Log(ctx context.Context, e *models.PaymentEvent) error {
	if e == nil {
		return fmt.Errorf("payment event cannot be nil")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	query := `
		INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, provider_transaction_id,
			booking_id, outcome, error_message, raw_payload, ip_address,
			processing_time_ms, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Provider, e.ProviderEventID, e.EventType, e.ProviderTransactionID,
		e.BookingID, e.Outcome, e.ErrorMessage, e.RawPayload, e.IPAddress,
		e.ProcessingTimeMs, e.ReceivedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":        e.EventType,
			"provider_event_id": e.ProviderEventID,
			"outcome":           e.Outcome,
		}).Error("Failed to record payment event")
		return fmt.Errorf("failed to log payment event: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"payment_event_id": e.ID,
		"event_type":       e.EventType,
		"outcome":          e.Outcome,
	}).Debug("Payment event recorded")

	return nil
}

// AlreadyProcessed reports whether the provider event was handled before.
// Events that failed with a store error or were rejected do not count, so a
// redelivery is processed again.
func (r *PaymentEventRepository) AlreadyProcessed(ctx context.Context, provider, providerEventID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payment_events
			WHERE provider = $1 AND provider_event_id = $2
			AND outcome NOT IN ('error', 'rejected')
		)`

	if err := r.db.GetContext(ctx, &exists, query, provider, providerEventID); err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return exists, nil
}

// ListByBooking returns the event history of a booking, oldest first
func (r *PaymentEventRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentEvent, error) {
	events := []models.PaymentEvent{}
	query := `
		SELECT id, provider, provider_event_id, event_type, provider_transaction_id,
		       booking_id, outcome, error_message, raw_payload, ip_address,
		       processing_time_ms, received_at
		FROM payment_events
		WHERE booking_id = $1
		ORDER BY received_at`

	if err := r.db.SelectContext(ctx, &events, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list payment events: %w", err)
	}
	return events, nil
}
