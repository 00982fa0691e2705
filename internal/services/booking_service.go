package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/internal/monitoring"
	"github.com/boxinggym/walkin-backend/pkg/payments"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BookingOptions are the lifecycle tunables of the booking service
type BookingOptions struct {
	Currency       string
	CashTimeout    time.Duration
	Location       *time.Location
	SweepBatchSize int
}

// BookingService owns the booking lifecycle: creation, card and cash payment,
// provider events, check-in, cancellation and the background sweeps
type BookingService struct {
	stores    Stores
	provider  payments.Provider
	publisher ChangePublisher
	auditor   Auditor
	monitor   *monitoring.Monitor
	opts      BookingOptions
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBookingService creates a booking service. publisher, auditor and monitor may be nil.
func NewBookingService(
	stores Stores,
	provider payments.Provider,
	publisher ChangePublisher,
	auditor Auditor,
	monitor *monitoring.Monitor,
	opts BookingOptions,
	logger *logrus.Logger,
) *BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CashTimeout <= 0 {
		opts.CashTimeout = 5 * time.Minute
	}
	if opts.SweepBatchSize <= 0 {
		opts.SweepBatchSize = 100
	}
	if opts.Currency == "" {
		opts.Currency = "gbp"
	}

	return &BookingService{
		stores:    stores,
		provider:  provider,
		publisher: publisher,
		auditor:   auditor,
		monitor:   monitor,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// CashTimeout returns how long a cash request is held
func (s *BookingService) CashTimeout() time.Duration {
	return s.opts.CashTimeout
}

// today returns midnight of the current day in the gym's timezone
func (s *BookingService) today() time.Time {
	now := s.now().In(s.opts.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.opts.Location)
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking books a member into one session of a class.
//
// Capacity is checked and then the row inserted without serialising
// concurrent requests, so two simultaneous bookings for the last place can
// both succeed.
func (s *BookingService) CreateBooking(ctx context.Context, req *models.CreateBookingRequest, channel models.Channel) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	memberID := uuid.MustParse(req.MemberID)
	classID := uuid.MustParse(req.ClassID)
	bookingType, _ := models.ParseBookingType(req.BookingType)
	// Memberships and trials skip payment, so only staff may grant them
	if bookingType != models.BookingTypeDropIn && channel != models.ChannelAdmin {
		return nil, s.reject("staff_only_type", &ValidationError{
			Field:   "booking_type",
			Message: fmt.Sprintf("%s bookings must be made by staff", bookingType),
		})
	}

	member, err := s.stores.Members.GetByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	if member == nil {
		return nil, notFound("member", memberID)
	}
	if !member.CanBook() {
		return nil, s.reject("member_inactive", &IneligibleError{Reason: fmt.Sprintf("member is %s", member.Status)})
	}

	class, err := s.stores.Classes.GetByID(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to load class: %w", err)
	}
	if class == nil {
		return nil, notFound("class", classID)
	}
	if !class.IsActive {
		return nil, s.reject("class_inactive", &IneligibleError{Reason: fmt.Sprintf("%s is not running", class.Name)})
	}

	sessionDate, err := models.ParseDate(req.SessionDate, s.opts.Location)
	if err != nil {
		return nil, &ValidationError{Field: "session_date", Message: err.Error()}
	}
	if !class.RunsOn(sessionDate) {
		return nil, s.reject("wrong_day", &ValidationError{
			Field:   "session_date",
			Message: fmt.Sprintf("%s runs on %s", class.Name, time.Weekday(class.DayOfWeek)),
		})
	}
	if sessionDate.Before(s.today()) {
		return nil, s.reject("past_session", &ValidationError{Field: "session_date", Message: "session is in the past"})
	}

	if member.AgeGroup != class.AgeGroup {
		return nil, s.reject("age_group", &IneligibleError{
			Reason: fmt.Sprintf("%s is for %s members, member is %s", class.Name, class.AgeGroup, member.AgeGroup),
		})
	}

	if bookingType == models.BookingTypeTrial {
		hadTrial, err := s.stores.Bookings.MemberHasTrial(ctx, memberID)
		if err != nil {
			return nil, fmt.Errorf("failed to check trial history: %w", err)
		}
		if hadTrial {
			return nil, s.reject("trial_used", &IneligibleError{Reason: "member has already had a trial session"})
		}
	}

	already, err := s.stores.Bookings.MemberHasSlot(ctx, memberID, classID, sessionDate, class.StartTime)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing booking: %w", err)
	}
	if already {
		return nil, s.reject("duplicate", &ValidationError{Message: "member is already booked into this session"})
	}

	booked, err := s.stores.Bookings.CountActiveForSlot(ctx, classID, sessionDate, class.StartTime)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	if booked >= class.MaxCapacity {
		return nil, s.reject("capacity", &CapacityExceededError{
			ClassID:     classID,
			ClassName:   class.Name,
			SessionDate: req.SessionDate,
			Capacity:    class.MaxCapacity,
			Booked:      booked,
		})
	}

	booking := &models.Booking{
		ID:               uuid.New(),
		MemberID:         memberID,
		ClassID:          classID,
		SessionDate:      sessionDate,
		SessionStartTime: class.StartTime,
		BookingType:      bookingType,
		Status:           models.BookingStatusConfirmed,
		PaymentStatus:    bookingType.InitialPaymentStatus(),
		Amount:           class.DropInPrice,
		Currency:         s.opts.Currency,
		Channel:          channel,
	}
	if err := s.stores.Bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"member_id":    memberID,
		"class":        class.Name,
		"session_date": req.SessionDate,
		"booking_type": bookingType,
		"channel":      channel,
		"amount":       booking.Amount.StringFixed(2),
		"places_left":  class.MaxCapacity - booked - 1,
	}).Info("Booking created")

	s.monitor.TrackBookingCreated(string(channel), string(bookingType))
	s.publish(ctx, models.NewBookingChange(models.ChangeBookingCreated, booking))
	return booking, nil
}

// reject counts a refused booking request and passes the error through
func (s *BookingService) reject(reason string, err error) error {
	s.monitor.TrackBookingRejected(reason)
	s.logger.WithField("reason", reason).WithError(err).Info("Booking request rejected")
	return err
}

// ============================================================================
// CARD PATH
// ============================================================================

// IssuePaymentIntent opens a card transaction with the provider for a booking
// that still owes its drop-in price
func (s *BookingService) IssuePaymentIntent(ctx context.Context, id uuid.UUID) (*models.PaymentIntentResponse, error) {
	booking, err := s.stores.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, notFound("booking", id)
	}
	if err := s.checkAwaitingPayment(booking, "paid"); err != nil {
		return nil, err
	}

	intent, err := s.provider.CreateIntent(ctx, payments.IntentRequest{
		Amount:      booking.Amount,
		Currency:    booking.Currency,
		Description: fmt.Sprintf("Drop-in session %s", booking.SessionDateString()),
		Metadata: map[string]string{
			payments.MetadataBookingID: booking.ID.String(),
			payments.MetadataMemberID:  booking.MemberID.String(),
			payments.MetadataClassID:   booking.ClassID.String(),
		},
		// A double tap on the kiosk gets the same intent back
		IdempotencyKey: "booking-intent-" + booking.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	updated, err := s.stores.Bookings.SetPaymentIntent(ctx, id, intent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to store payment intent: %w", err)
	}
	if updated == nil {
		return nil, s.transitionError(ctx, booking, "paid")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":        id,
		"payment_intent_id": intent.ID,
		"amount":            booking.Amount.StringFixed(2),
	}).Info("Payment intent issued")

	s.publish(ctx, models.NewBookingChange(models.ChangeBookingUpdated, updated))
	return &models.PaymentIntentResponse{
		BookingID:       id,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          booking.Amount,
		Currency:        booking.Currency,
	}, nil
}

// checkAwaitingPayment rejects payment operations on bookings that owe nothing
// or can no longer be paid for
func (s *BookingService) checkAwaitingPayment(b *models.Booking, target string) error {
	if b.PaymentStatus.IsSettled() {
		return &AlreadyPaidError{BookingID: b.ID, PaymentStatus: string(b.PaymentStatus)}
	}
	if !b.AwaitingPayment() {
		from := string(b.Status)
		if b.PaymentStatus == models.PaymentStatusRefunded {
			from = string(models.PaymentStatusRefunded)
		}
		return &InvalidTransitionError{Entity: "booking", ID: b.ID, From: from, To: target}
	}
	return nil
}

// transitionError reports a conditional update that matched no row. The
// booking is reloaded so the error names the state that won.
func (s *BookingService) transitionError(ctx context.Context, before *models.Booking, target string) error {
	from := before.Status
	if current, err := s.stores.Bookings.GetByID(ctx, before.ID); err == nil && current != nil {
		from = current.Status
		if current.PaymentStatus.IsSettled() && target == "paid" {
			return &AlreadyPaidError{BookingID: current.ID, PaymentStatus: string(current.PaymentStatus)}
		}
	}
	return &InvalidTransitionError{Entity: "booking", ID: before.ID, From: string(from), To: target}
}

// ============================================================================
// CASH PATH
// ============================================================================

// RequestCashPayment records that the member will pay at the desk. The place
// is held until the returned deadline.
func (s *BookingService) RequestCashPayment(ctx context.Context, id uuid.UUID) (*models.CashRequestResponse, error) {
	booking, err := s.stores.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, notFound("booking", id)
	}
	if err := s.checkAwaitingPayment(booking, "cash_requested"); err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.stores.Bookings.RequestCash(ctx, id, now)
	if err != nil {
		return nil, fmt.Errorf("failed to request cash payment: %w", err)
	}
	if updated == nil {
		return nil, s.transitionError(ctx, booking, "cash_requested")
	}

	deadline := now.Add(s.opts.CashTimeout)
	s.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"deadline":   deadline,
	}).Info("Cash payment requested")

	s.publish(ctx, models.NewBookingChange(models.ChangeBookingUpdated, updated))
	return &models.CashRequestResponse{BookingID: id, Deadline: deadline}, nil
}

// ConfirmCashPayment records cash taken at the desk by a member of staff. The
// booking is marked paid and checked in and a cash Payment is written in the
// same transaction. If the cash timeout cancelled the booking first the
// confirmation fails with InvalidTransitionError.
func (s *BookingService) ConfirmCashPayment(ctx context.Context, id uuid.UUID, req models.ConfirmCashRequest, meta RequestMeta) (*models.Booking, error) {
	if meta.StaffID == nil {
		return nil, &ValidationError{Field: "staff", Message: "cash confirmation requires a staff identity"}
	}

	booking, err := s.stores.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, notFound("booking", id)
	}
	if err := s.checkAwaitingPayment(booking, "paid"); err != nil {
		return nil, err
	}

	notes := fmt.Sprintf("Cash received by %s", meta.StaffLabel())
	if extra := strings.TrimSpace(req.Notes); extra != "" {
		notes += ": " + extra
	}
	bookingID := booking.ID
	payment := &models.Payment{
		ID:         uuid.New(),
		MemberID:   booking.MemberID,
		BookingID:  &bookingID,
		Amount:     booking.Amount,
		Currency:   booking.Currency,
		Method:     models.PaymentMethodCash,
		Status:     models.PaymentRecordCompleted,
		Notes:      &notes,
		RecordedBy: meta.StaffID,
	}

	updated, err := s.stores.Payments.ConfirmCash(ctx, payment, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to confirm cash payment: %w", err)
	}
	if updated == nil {
		s.logger.WithFields(logrus.Fields{
			"booking_id": id,
			"staff_id":   *meta.StaffID,
		}).Warn("Cash confirmation lost to a concurrent change")
		return nil, s.transitionError(ctx, booking, "paid")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"payment_id": payment.ID,
		"staff_id":   *meta.StaffID,
		"amount":     payment.Amount.StringFixed(2),
	}).Info("Cash payment confirmed")

	s.monitor.TrackTransition("cash", string(updated.PaymentStatus))
	if s.auditor != nil {
		s.auditor.LogCashConfirmed(ctx, updated, payment.Amount, meta)
	}
	s.publish(ctx, models.NewPaymentChange(models.ChangePaymentRecorded, payment, updated))
	s.publish(ctx, models.NewBookingChange(models.ChangeBookingUpdated, updated))
	return updated, nil
}

// ============================================================================
// STAFF ACTIONS
// ============================================================================

// MarkAttended checks a member in. The booking must be confirmed and paid or waived.
func (s *BookingService) MarkAttended(ctx context.Context, id uuid.UUID, meta RequestMeta) (*models.Booking, error) {
	booking, err := s.stores.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, notFound("booking", id)
	}
	if !booking.CanCheckIn() {
		from := string(booking.Status)
		if booking.Status == models.BookingStatusConfirmed {
			from = fmt.Sprintf("%s (payment %s)", booking.Status, booking.PaymentStatus)
		}
		return nil, &InvalidTransitionError{Entity: "booking", ID: id, From: from, To: string(models.BookingStatusAttended)}
	}

	updated, err := s.stores.Bookings.MarkAttended(ctx, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to mark attended: %w", err)
	}
	if updated == nil {
		return nil, s.transitionError(ctx, booking, string(models.BookingStatusAttended))
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"member_id":  updated.MemberID,
	}).Info("Member checked in")

	s.monitor.TrackTransition("check_in", string(updated.Status))
	if s.auditor != nil {
		s.auditor.LogStaffAction(ctx, AuditBookingCheckedIn, "booking", id, meta, nil)
	}
	s.publish(ctx, models.NewBookingChange(models.ChangeBookingAttended, updated))
	return updated, nil
}

// CancelBooking cancels a confirmed booking. Money already taken is refunded
// from the provider dashboard, which then sends a refund event.
func (s *BookingService) CancelBooking(ctx context.Context, id uuid.UUID, reason string, meta RequestMeta) (*models.Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "a cancellation reason is required"}
	}

	booking, err := s.stores.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, notFound("booking", id)
	}
	if !booking.Status.CanTransitionTo(models.BookingStatusCancelled) {
		return nil, &InvalidTransitionError{Entity: "booking", ID: id, From: string(booking.Status), To: string(models.BookingStatusCancelled)}
	}

	updated, err := s.stores.Bookings.Cancel(ctx, id, reason, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	if updated == nil {
		return nil, s.transitionError(ctx, booking, string(models.BookingStatusCancelled))
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     id,
		"reason":         reason,
		"payment_status": updated.PaymentStatus,
	}).Info("Booking cancelled by staff")

	s.monitor.TrackTransition("staff_cancel", string(updated.Status))
	if s.auditor != nil {
		s.auditor.LogStaffAction(ctx, AuditBookingCancelled, "booking", id, meta, map[string]interface{}{
			"reason":         reason,
			"payment_status": updated.PaymentStatus,
		})
	}
	s.publish(ctx, models.NewBookingChange(models.ChangeBookingCancelled, updated))
	return updated, nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetBooking returns one booking
func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.stores.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, notFound("booking", id)
	}
	return booking, nil
}

// BookingDetail is a booking with its payments and provider event history
type BookingDetail struct {
	Booking  *models.Booking       `json:"booking"`
	Payments []models.Payment      `json:"payments"`
	Events   []models.PaymentEvent `json:"payment_events"`
}

// GetBookingDetail returns a booking with its money trail, for staff
func (s *BookingService) GetBookingDetail(ctx context.Context, id uuid.UUID) (*BookingDetail, error) {
	booking, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	paid, err := s.stores.Payments.ListByBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	events, err := s.stores.PaymentEvents.ListByBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment events: %w", err)
	}
	return &BookingDetail{Booking: booking, Payments: paid, Events: events}, nil
}

// ListBookings returns the bookings of one session date, optionally narrowed
func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	if filter.SessionDate.IsZero() {
		filter.SessionDate = s.today()
	}
	bookings, err := s.stores.Bookings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListMemberBookings returns a member's most recent bookings
func (s *BookingService) ListMemberBookings(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Booking, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	bookings, err := s.stores.Bookings.ListByMember(ctx, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list member bookings: %w", err)
	}
	return bookings, nil
}

// ListSessions returns every active class running on date with live occupancy
func (s *BookingService) ListSessions(ctx context.Context, date time.Time) ([]models.Session, error) {
	classes, err := s.stores.Classes.ListActiveByDay(ctx, int(date.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	counts, err := s.stores.Bookings.CountActiveByClass(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}

	sessions := make([]models.Session, 0, len(classes))
	for _, class := range classes {
		booked := counts[class.ID]
		remaining := class.MaxCapacity - booked
		if remaining < 0 {
			remaining = 0
		}
		sessions = append(sessions, models.Session{
			Class:       class,
			SessionDate: date.Format(models.DateLayout),
			StartsAt:    class.SessionStart(date, s.opts.Location),
			Booked:      booked,
			Remaining:   remaining,
			IsFull:      remaining == 0,
		})
	}
	return sessions, nil
}

// Today returns the current date in the gym's timezone
func (s *BookingService) Today() time.Time {
	return s.today()
}

// Location returns the gym's timezone
func (s *BookingService) Location() *time.Location {
	return s.opts.Location
}

// publish pushes a change to dashboards. Failures are logged only; the
// change has already been committed.
func (s *BookingService) publish(ctx context.Context, evt models.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action":    evt.Action,
			"record_id": evt.RecordID,
		}).Warn("Failed to publish change event")
	}
}
