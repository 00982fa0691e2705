package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/boxinggym/walkin-backend/internal/database"
	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/pkg/payments"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventResult tells the webhook handler what happened to a delivered event.
// Every result is acknowledged to the provider with 200.
type EventResult struct {
	EventID   string                     `json:"event_id"`
	EventType string                     `json:"event_type"`
	Outcome   models.PaymentEventOutcome `json:"outcome"`
	BookingID *uuid.UUID                 `json:"booking_id,omitempty"`
}

// HandlePaymentEvent verifies and applies one provider event.
//
// A bad signature returns InvalidSignatureError and touches nothing. Store
// failures are returned as plain errors so the provider redelivers. All other
// cases, including duplicates, stale events and events for unknown bookings,
// return a result to acknowledge.
func (s *BookingService) HandlePaymentEvent(ctx context.Context, payload []byte, signature string, meta RequestMeta) (*EventResult, error) {
	entry := models.NewPaymentEvent(s.provider.Name(), "unverified").
		SetRawPayload(payload).
		SetIPAddress(meta.IPAddress)

	evt, err := s.provider.ParseEvent(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"provider":   s.provider.Name(),
				"ip_address": meta.IPAddress,
			}).Warn("Rejected payment event with invalid signature")

			// The body is unauthenticated, keep it out of the log table
			entry.RawPayload = nil
			s.recordEvent(ctx, entry.Finish(models.EventOutcomeRejected, err))
			if s.auditor != nil {
				s.auditor.LogWebhookSignatureInvalid(ctx, s.provider.Name(), err.Error(), meta)
			}
			return nil, &InvalidSignatureError{Provider: s.provider.Name(), Reason: err.Error()}
		}

		// Signed but undecodable: redelivery will not help
		s.logger.WithError(err).Error("Failed to decode verified payment event")
		s.recordEvent(ctx, entry.Finish(models.EventOutcomeIgnored, err))
		return &EventResult{EventType: entry.EventType, Outcome: models.EventOutcomeIgnored}, nil
	}

	entry.EventType = evt.RawType
	entry.SetProviderEventID(evt.ID).SetTransaction(evt.TransactionID)
	result := &EventResult{EventID: evt.ID, EventType: evt.RawType}

	log := s.logger.WithFields(logrus.Fields{
		"event_id":       evt.ID,
		"event_type":     evt.RawType,
		"transaction_id": evt.TransactionID,
	})

	if evt.ID != "" {
		seen, err := s.stores.PaymentEvents.AlreadyProcessed(ctx, s.provider.Name(), evt.ID)
		if err != nil {
			return nil, s.failEvent(ctx, entry, evt, fmt.Errorf("failed to check event history: %w", err))
		}
		if seen {
			log.Info("Payment event already processed")
			return s.finishEvent(ctx, entry, evt, result, models.EventOutcomeDuplicate), nil
		}
	}

	var outcome models.PaymentEventOutcome
	switch evt.Type {
	case payments.EventPaymentSucceeded:
		outcome, err = s.applyPaymentSucceeded(ctx, evt, entry, log)
	case payments.EventPaymentFailed:
		outcome, err = s.applyPaymentFailed(ctx, evt, entry, log)
	case payments.EventChargeRefunded:
		outcome, err = s.applyRefund(ctx, evt, entry, log)
	default:
		log.Debug("Ignoring payment event type")
		outcome = models.EventOutcomeIgnored
	}
	if err != nil {
		return nil, s.failEvent(ctx, entry, evt, err)
	}

	result.BookingID = entry.BookingID
	return s.finishEvent(ctx, entry, evt, result, outcome), nil
}

func (s *BookingService) applyPaymentSucceeded(ctx context.Context, evt *payments.Event, entry *models.PaymentEvent, log *logrus.Entry) (models.PaymentEventOutcome, error) {
	bookingID, ok := evt.BookingID()
	if !ok {
		log.Warn("Payment succeeded without booking metadata")
		return models.EventOutcomeIgnored, nil
	}
	entry.SetBooking(bookingID)
	log = log.WithField("booking_id", bookingID)

	// Without a transaction id replays cannot be told apart
	if evt.TransactionID == "" {
		log.Warn("Payment succeeded without transaction reference")
		return models.EventOutcomeIgnored, nil
	}

	existing, err := s.stores.Payments.GetByProviderTransactionID(ctx, evt.TransactionID)
	if err != nil {
		return "", fmt.Errorf("failed to look up payment: %w", err)
	}
	if existing != nil {
		if existing.Status == models.PaymentRecordRefunded || existing.IsNewerThan(evt.Created) {
			log.WithField("payment_status", existing.Status).Info("Discarding stale payment success")
			return models.EventOutcomeStale, nil
		}
		log.Info("Payment already recorded for transaction")
		return models.EventOutcomeDuplicate, nil
	}

	booking, err := s.stores.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return "", fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		log.Warn("Payment succeeded for unknown booking")
		return models.EventOutcomeUnmatched, nil
	}

	if !evt.Amount.Equal(booking.Amount) {
		log.WithFields(logrus.Fields{
			"charged":  evt.Amount.StringFixed(2),
			"expected": booking.Amount.StringFixed(2),
		}).Warn("Card amount differs from booking amount")
	}

	currency := evt.Currency
	if currency == "" {
		currency = booking.Currency
	}
	created := evt.Created
	txnID := evt.TransactionID
	providerStatus := evt.ProviderStatus
	payment := &models.Payment{
		ID:                    uuid.New(),
		MemberID:              booking.MemberID,
		BookingID:             &bookingID,
		Amount:                evt.Amount,
		Currency:              currency,
		Method:                models.PaymentMethodCard,
		ProviderTransactionID: &txnID,
		Status:                models.PaymentRecordCompleted,
		ProviderStatus:        &providerStatus,
		ProviderEventAt:       &created,
	}

	updated, err := s.stores.Payments.SettleCardPayment(ctx, payment)
	if errors.Is(err, database.ErrConflict) {
		log.Info("Concurrent delivery already recorded this payment")
		return models.EventOutcomeDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to settle card payment: %w", err)
	}

	if updated == nil {
		// Paid twice (cash then card, or a refunded booking charged again).
		// The charge is kept as a pending payment for staff to refund.
		log.WithFields(logrus.Fields{
			"payment_id":     payment.ID,
			"booking_status": booking.Status,
			"payment_status": booking.PaymentStatus,
		}).Warn("Card payment recorded for a booking that was not awaiting payment")
		s.publish(ctx, models.NewPaymentChange(models.ChangePaymentRecorded, payment, booking))
		return models.EventOutcomeApplied, nil
	}

	log.WithField("amount", payment.Amount.StringFixed(2)).Info("Card payment settled")
	s.monitor.TrackTransition("card", string(updated.PaymentStatus))
	s.publish(ctx, models.NewPaymentChange(models.ChangePaymentRecorded, payment, updated))
	s.publish(ctx, models.NewBookingChange(models.ChangeBookingUpdated, updated))
	return models.EventOutcomeApplied, nil
}

func (s *BookingService) applyPaymentFailed(ctx context.Context, evt *payments.Event, entry *models.PaymentEvent, log *logrus.Entry) (models.PaymentEventOutcome, error) {
	bookingID, ok := evt.BookingID()
	if !ok {
		log.Warn("Payment failure without booking metadata")
		return models.EventOutcomeIgnored, nil
	}
	entry.SetBooking(bookingID)
	log = log.WithField("booking_id", bookingID)

	booking, err := s.stores.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return "", fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		log.Warn("Payment failed for unknown booking")
		return models.EventOutcomeUnmatched, nil
	}

	reason := "card payment failed"
	if evt.FailureMessage != "" {
		reason += ": " + evt.FailureMessage
	}
	updated, err := s.stores.Bookings.MarkPaymentFailed(ctx, bookingID, reason, s.now())
	if err != nil {
		return "", fmt.Errorf("failed to cancel booking: %w", err)
	}
	if updated == nil {
		log.WithFields(logrus.Fields{
			"booking_status": booking.Status,
			"payment_status": booking.PaymentStatus,
		}).Info("Payment failure no longer applies to booking")
		return models.EventOutcomeStale, nil
	}

	log.WithField("reason", evt.FailureMessage).Info("Booking cancelled after card failure")
	s.monitor.TrackTransition("card_failed", string(updated.Status))
	s.publish(ctx, models.NewBookingChange(models.ChangeBookingCancelled, updated))
	return models.EventOutcomeApplied, nil
}

func (s *BookingService) applyRefund(ctx context.Context, evt *payments.Event, entry *models.PaymentEvent, log *logrus.Entry) (models.PaymentEventOutcome, error) {
	if evt.TransactionID == "" {
		log.Warn("Refund without transaction reference")
		return models.EventOutcomeIgnored, nil
	}

	payment, err := s.stores.Payments.GetByProviderTransactionID(ctx, evt.TransactionID)
	if err != nil {
		return "", fmt.Errorf("failed to look up payment: %w", err)
	}
	if payment == nil {
		log.Warn("Refund for a payment we do not hold")
		return models.EventOutcomeUnmatched, nil
	}
	if payment.BookingID != nil {
		entry.SetBooking(*payment.BookingID)
	}
	if payment.IsNewerThan(evt.Created) {
		log.Info("Discarding stale refund event")
		return models.EventOutcomeStale, nil
	}

	amount := evt.AmountRefunded
	if !amount.IsPositive() {
		amount = payment.Amount
	}
	refunded, booking, err := s.stores.Payments.ApplyRefund(ctx, payment.ID, models.RefundUpdate{
		RefundAmount:    amount,
		RefundedAt:      evt.Created,
		ProviderStatus:  evt.ProviderStatus,
		ProviderEventAt: evt.Created,
	})
	if err != nil {
		return "", fmt.Errorf("failed to apply refund: %w", err)
	}
	if refunded == nil {
		log.Info("Refund lost to a newer provider event")
		return models.EventOutcomeStale, nil
	}

	log.WithFields(logrus.Fields{
		"payment_id":    refunded.ID,
		"refund_amount": amount.StringFixed(2),
	}).Info("Payment refunded")

	s.publish(ctx, models.NewPaymentChange(models.ChangePaymentRefunded, refunded, booking))
	if booking != nil {
		s.monitor.TrackTransition("refund", string(booking.Status))
		s.publish(ctx, models.NewBookingChange(models.ChangeBookingCancelled, booking))
	}
	return models.EventOutcomeApplied, nil
}

func (s *BookingService) finishEvent(ctx context.Context, entry *models.PaymentEvent, evt *payments.Event, result *EventResult, outcome models.PaymentEventOutcome) *EventResult {
	s.recordEvent(ctx, entry.Finish(outcome, nil))
	s.monitor.TrackPaymentEvent(string(evt.Type), string(outcome))
	result.Outcome = outcome
	return result
}

func (s *BookingService) failEvent(ctx context.Context, entry *models.PaymentEvent, evt *payments.Event, err error) error {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"event_id":   evt.ID,
		"event_type": evt.RawType,
	}).Error("Payment event processing failed")
	s.recordEvent(ctx, entry.Finish(models.EventOutcomeError, err))
	s.monitor.TrackPaymentEvent(string(evt.Type), string(models.EventOutcomeError))
	return err
}

// recordEvent writes the event log row. A failure here is logged only: the
// state change has committed and replays are caught by the unique
// transaction id.
func (s *BookingService) recordEvent(ctx context.Context, entry *models.PaymentEvent) {
	if entry.Outcome == models.EventOutcomeRejected {
		s.monitor.TrackPaymentEvent("unverified", string(entry.Outcome))
	}
	if err := s.stores.PaymentEvents.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": entry.EventType,
			"outcome":    entry.Outcome,
		}).Error("Failed to record payment event")
	}
}
