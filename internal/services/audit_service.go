package services

import (
	"context"
	"fmt"
	"time"

	"github.com/boxinggym/walkin-backend/internal/database"
	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/internal/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Audit actions written to audit_logs
const (
	AuditWebhookSignatureInvalid = "security.webhook_signature_invalid"
	AuditStaffTokenRejected      = "security.staff_token_rejected"
	AuditCashConfirmed           = "booking.cash_confirmed"
	AuditBookingCancelled        = "booking.cancelled_by_staff"
	AuditBookingCheckedIn        = "booking.checked_in"
	AuditMemberStatusChanged     = "member.status_changed"
	AuditSweepTriggered          = "jobs.sweep_triggered"
)

// RequestMeta identifies who made a request and from where
type RequestMeta struct {
	StaffID   *uuid.UUID
	StaffName string // display name or email from the staff token
	IPAddress string
	UserAgent string
}

// StaffLabel names the staff member for payment notes
func (m RequestMeta) StaffLabel() string {
	switch {
	case m.StaffName != "" && m.StaffID != nil:
		return fmt.Sprintf("%s (%s)", m.StaffName, m.StaffID)
	case m.StaffName != "":
		return m.StaffName
	case m.StaffID != nil:
		return "staff " + m.StaffID.String()
	}
	return "unknown staff"
}

// Auditor records security and staff actions
type Auditor interface {
	LogWebhookSignatureInvalid(ctx context.Context, provider, reason string, meta RequestMeta)
	LogCashConfirmed(ctx context.Context, booking *models.Booking, amount decimal.Decimal, meta RequestMeta)
	LogStaffAction(ctx context.Context, action, entityType string, entityID uuid.UUID, meta RequestMeta, details map[string]interface{})
}

// AuditService writes audit events to the audit_logs table
type AuditService struct {
	db     database.DB
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB, logger *logrus.Logger) *AuditService {
	return &AuditService{db: db, logger: logger}
}

// AuditEvent is one row of the audit trail
type AuditEvent struct {
	ActorID    *uuid.UUID // nil for unauthenticated callers
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	IPAddress  string
	UserAgent  string
	Details    models.JSONB
}

// LogWebhookSignatureInvalid records a provider event that failed verification
func (s *AuditService) LogWebhookSignatureInvalid(ctx context.Context, provider, reason string, meta RequestMeta) {
	s.logEvent(ctx, AuditEvent{
		Action:     AuditWebhookSignatureInvalid,
		EntityType: "webhook",
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: models.JSONB{
			"provider": provider,
			"reason":   reason,
		},
	})
}

// LogCashConfirmed records staff taking cash for a booking
func (s *AuditService) LogCashConfirmed(ctx context.Context, booking *models.Booking, amount decimal.Decimal, meta RequestMeta) {
	id := booking.ID
	s.logEvent(ctx, AuditEvent{
		ActorID:    meta.StaffID,
		Action:     AuditCashConfirmed,
		EntityType: "booking",
		EntityID:   &id,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: models.JSONB{
			"member_id":    booking.MemberID,
			"amount":       amount.StringFixed(2),
			"currency":     booking.Currency,
			"session_date": booking.SessionDateString(),
		},
	})
}

// LogStaffAction records any other staff mutation
func (s *AuditService) LogStaffAction(ctx context.Context, action, entityType string, entityID uuid.UUID, meta RequestMeta, details map[string]interface{}) {
	s.logEvent(ctx, AuditEvent{
		ActorID:    meta.StaffID,
		Action:     action,
		EntityType: entityType,
		EntityID:   &entityID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details:    details,
	})
}

// logEvent writes the row. Audit failures are logged and never fail the
// action being audited.
func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) {
	device := utils.ParseUserAgent(event.UserAgent)
	if event.Details == nil {
		event.Details = models.JSONB{}
	}

	query := `
		INSERT INTO audit_logs (
			actor_id, action, entity_type, entity_id, ip_address, user_agent,
			device_type, browser, os, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ActorID,
		event.Action,
		event.EntityType,
		event.EntityID,
		nullIfEmpty(event.IPAddress),
		nullIfEmpty(event.UserAgent),
		device.DeviceType,
		device.Browser,
		device.OS,
		event.Details,
	)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action":      event.Action,
			"entity_type": event.EntityType,
		}).Error("Failed to write audit event")
	}
}

// RecentEvent is an audit row as shown to admins
type RecentEvent struct {
	Action     string       `json:"action" db:"action"`
	EntityType string       `json:"entity_type" db:"entity_type"`
	EntityID   *uuid.UUID   `json:"entity_id,omitempty" db:"entity_id"`
	ActorID    *uuid.UUID   `json:"actor_id,omitempty" db:"actor_id"`
	IPAddress  *string      `json:"ip_address,omitempty" db:"ip_address"`
	DeviceType *string      `json:"device_type,omitempty" db:"device_type"`
	Details    models.JSONB `json:"details" db:"details"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

// GetEntityHistory returns the audit trail of one booking or member, newest first
func (s *AuditService) GetEntityHistory(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]RecentEvent, error) {
	events := []RecentEvent{}
	query := `
		SELECT action, entity_type, entity_id, actor_id, ip_address, device_type, details, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	if err := s.db.SelectContext(ctx, &events, query, entityType, entityID, limit); err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}
	return events, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
