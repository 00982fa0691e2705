package database

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var paymentRowColumns = []string{
	"id", "member_id", "booking_id", "amount", "currency", "method", "provider_transaction_id",
	"provider_status", "status", "refunded_at", "refund_amount", "refund_reason", "notes",
	"recorded_by", "provider_event_at", "created_at", "updated_at",
}

func cardPayment(bookingID uuid.UUID, txnID string) *models.Payment {
	eventAt := time.Now().Add(-time.Minute)
	status := "succeeded"
	return &models.Payment{
		ID:                    uuid.New(),
		MemberID:              uuid.New(),
		BookingID:             &bookingID,
		Amount:                decimal.RequireFromString("10.00"),
		Currency:              "gbp",
		Method:                models.PaymentMethodCard,
		ProviderTransactionID: &txnID,
		ProviderStatus:        &status,
		Status:                models.PaymentRecordCompleted,
		ProviderEventAt:       &eventAt,
	}
}

func TestPaymentRepository_SettleCardPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("Marks booking paid and inserts completed payment", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db, quietLogger())
		bookingID := uuid.New()
		p := cardPayment(bookingID, "pi_123")
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings SET\s+payment_status = 'paid', status = 'confirmed'`).
			WithArgs(bookingID, "pi_123").
			WillReturnRows(bookingRows(bookingRow{
				id: bookingID, memberID: p.MemberID, classID: uuid.New(),
				status: "confirmed", paymentStatus: "paid", paymentMethod: "card",
			}))
		mock.ExpectQuery(`INSERT INTO payments`).
			WithArgs(p.ID, p.MemberID, bookingID, sqlmock.AnyArg(), "gbp", "card", "pi_123",
				"succeeded", "completed", nil, nil, anyTime{}).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectCommit()

		b, err := repo.SettleCardPayment(ctx, p)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, models.PaymentStatusPaid, b.PaymentStatus)
		assert.Equal(t, models.BookingStatusConfirmed, b.Status)
		assert.Equal(t, models.PaymentRecordCompleted, p.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate transaction id rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db, quietLogger())
		bookingID := uuid.New()
		p := cardPayment(bookingID, "pi_dup")

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings SET`).
			WillReturnRows(bookingRows(bookingRow{
				id: bookingID, memberID: p.MemberID, classID: uuid.New(),
				status: "confirmed", paymentStatus: "paid", paymentMethod: "card",
			}))
		mock.ExpectQuery(`INSERT INTO payments`).
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
		mock.ExpectRollback()

		b, err := repo.SettleCardPayment(ctx, p)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Nil(t, b)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Booking already paid records a pending duplicate charge", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db, quietLogger())
		bookingID := uuid.New()
		p := cardPayment(bookingID, "pi_456")
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings SET`).
			WillReturnRows(sqlmock.NewRows(bookingRowColumns))
		mock.ExpectQuery(`INSERT INTO payments`).
			WithArgs(p.ID, p.MemberID, bookingID, sqlmock.AnyArg(), "gbp", "card", "pi_456",
				"succeeded", "pending", models.DuplicateChargeNote, nil, anyTime{}).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectCommit()

		b, err := repo.SettleCardPayment(ctx, p)
		assert.NoError(t, err)
		assert.Nil(t, b)
		assert.Equal(t, models.PaymentRecordPending, p.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentRepository_ConfirmCash(t *testing.T) {
	ctx := context.Background()
	at := time.Now()

	newCash := func(bookingID uuid.UUID) *models.Payment {
		staff := uuid.New()
		notes := "Cash received by staff S"
		return &models.Payment{
			ID: uuid.New(), MemberID: uuid.New(), BookingID: &bookingID,
			Amount: decimal.RequireFromString("10.00"), Currency: "gbp",
			Method: models.PaymentMethodCash, Status: models.PaymentRecordCompleted,
			Notes: &notes, RecordedBy: &staff,
		}
	}

	t.Run("Booking awaiting payment", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db, quietLogger())
		bookingID := uuid.New()
		p := newCash(bookingID)
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings SET\s+payment_status = 'paid'.+payment_method = 'cash'.+WHERE id = \$1 AND status = 'confirmed' AND payment_status = 'pending'`).
			WithArgs(bookingID, at).
			WillReturnRows(bookingRows(bookingRow{
				id: bookingID, memberID: p.MemberID, classID: uuid.New(),
				status: "confirmed", paymentStatus: "paid", paymentMethod: "cash", checkedInAt: at,
			}))
		mock.ExpectQuery(`INSERT INTO payments`).
			WithArgs(p.ID, p.MemberID, bookingID, sqlmock.AnyArg(), "gbp", "cash", nil,
				nil, "completed", "Cash received by staff S", p.RecordedBy.String(), nil).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectCommit()

		b, err := repo.ConfirmCash(ctx, p, at)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, models.PaymentStatusPaid, b.PaymentStatus)
		assert.NotNil(t, b.CheckedInAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Timeout already cancelled the booking", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db, quietLogger())
		p := newCash(uuid.New())

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings SET`).WillReturnRows(sqlmock.NewRows(bookingRowColumns))
		mock.ExpectRollback()

		b, err := repo.ConfirmCash(ctx, p, at)
		assert.NoError(t, err)
		assert.Nil(t, b)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentRepository_ApplyRefund(t *testing.T) {
	ctx := context.Background()
	eventAt := time.Now()
	upd := models.RefundUpdate{
		RefundAmount:    decimal.RequireFromString("10.00"),
		RefundedAt:      eventAt,
		ProviderStatus:  "refunded",
		ProviderEventAt: eventAt,
	}
	refundedRow := func(paymentID, memberID, bookingID uuid.UUID, notes interface{}) *sqlmock.Rows {
		return sqlmock.NewRows(paymentRowColumns).AddRow(
			paymentID.String(), memberID.String(), bookingID.String(), "10.00", "gbp", "card", "pi_123",
			"refunded", "refunded", eventAt, "10.00", nil, notes,
			nil, eventAt, eventAt, eventAt,
		)
	}

	t.Run("Cascades to booking", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db, quietLogger())
		paymentID, bookingID, memberID := uuid.New(), uuid.New(), uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM payments WHERE id = \$1 FOR UPDATE`).
			WithArgs(paymentID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
		mock.ExpectQuery(`UPDATE payments SET\s+status = 'refunded'`).
			WithArgs(paymentID, eventAt, sqlmock.AnyArg(), nil, "refunded", eventAt).
			WillReturnRows(refundedRow(paymentID, memberID, bookingID, nil))
		mock.ExpectQuery(`UPDATE bookings SET\s+payment_status = 'refunded', status = 'cancelled'`).
			WithArgs(bookingID, eventAt).
			WillReturnRows(bookingRows(bookingRow{
				id: bookingID, memberID: memberID, classID: uuid.New(),
				status: "cancelled", paymentStatus: "refunded", paymentMethod: "card",
			}))
		mock.ExpectCommit()

		p, b, err := repo.ApplyRefund(ctx, paymentID, upd)
		require.NoError(t, err)
		require.NotNil(t, p)
		require.NotNil(t, b)
		assert.Equal(t, models.PaymentRecordRefunded, p.Status)
		assert.True(t, p.RefundAmount.Valid)
		assert.Equal(t, models.BookingStatusCancelled, b.Status)
		assert.Equal(t, models.PaymentStatusRefunded, b.PaymentStatus)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate charge refund leaves booking alone", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db, quietLogger())
		paymentID, bookingID, memberID := uuid.New(), uuid.New(), uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM payments`).
			WithArgs(paymentID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
		mock.ExpectQuery(`UPDATE payments SET`).
			WillReturnRows(refundedRow(paymentID, memberID, bookingID, models.DuplicateChargeNote))
		mock.ExpectCommit()

		p, b, err := repo.ApplyRefund(ctx, paymentID, upd)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Nil(t, b)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Stale event changes nothing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db, quietLogger())

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM payments`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("refunded"))
		mock.ExpectQuery(`UPDATE payments SET`).WillReturnRows(sqlmock.NewRows(paymentRowColumns))
		mock.ExpectRollback()

		p, b, err := repo.ApplyRefund(ctx, uuid.New(), upd)
		assert.NoError(t, err)
		assert.Nil(t, p)
		assert.Nil(t, b)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing payment changes nothing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db, quietLogger())

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM payments`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}))
		mock.ExpectRollback()

		p, b, err := repo.ApplyRefund(ctx, uuid.New(), upd)
		assert.NoError(t, err)
		assert.Nil(t, p)
		assert.Nil(t, b)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentRepository_GetByProviderTransactionID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, quietLogger())
	ctx := context.Background()

	mock.ExpectQuery(`SELECT .+ FROM payments WHERE provider_transaction_id = \$1`).
		WithArgs("pi_missing").
		WillReturnRows(sqlmock.NewRows(paymentRowColumns))

	p, err := repo.GetByProviderTransactionID(ctx, "pi_missing")
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(assert.AnError))
}
