package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boxinggym/walkin-backend/internal/database"
	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/pkg/validator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MemberService registers and maintains members
type MemberService struct {
	members  MemberStore
	payments PaymentStore
	phones   *validator.PhoneValidator
	auditor  Auditor
	location *time.Location
	logger   *logrus.Logger
	now      func() time.Time
}

// NewMemberService creates a member service. auditor may be nil.
func NewMemberService(members MemberStore, payments PaymentStore, auditor Auditor, loc *time.Location, logger *logrus.Logger) *MemberService {
	if loc == nil {
		loc = time.UTC
	}
	return &MemberService{
		members:  members,
		payments: payments,
		phones:   validator.NewPhoneValidator(),
		auditor:  auditor,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateMember registers a member from the kiosk or the admin app
func (s *MemberService) CreateMember(ctx context.Context, req *models.CreateMemberRequest, channel models.Channel) (*models.Member, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	dob, err := models.ParseDate(req.DateOfBirth, s.location)
	if err != nil {
		return nil, &ValidationError{Field: "date_of_birth", Message: err.Error()}
	}
	today := s.now().In(s.location)
	if dob.After(today) {
		return nil, &ValidationError{Field: "date_of_birth", Message: "date of birth is in the future"}
	}

	ageGroup := models.AgeGroupFor(dob, today)
	if req.AgeGroup != nil && *req.AgeGroup != "" {
		if ageGroup, err = models.ParseAgeGroup(*req.AgeGroup); err != nil {
			return nil, &ValidationError{Field: "age_group", Message: err.Error()}
		}
	}

	member := &models.Member{
		ID:                   uuid.New(),
		FirstName:            strings.TrimSpace(req.FirstName),
		LastName:             strings.TrimSpace(req.LastName),
		DateOfBirth:          dob,
		AgeGroup:             ageGroup,
		EmergencyContactName: trimmed(req.EmergencyContactName),
		MedicalNotes:         trimmed(req.MedicalNotes),
		Status:               models.MemberStatusActive,
		CreatedVia:           channel,
	}
	if err := s.applyContact(ctx, member, req.Email, req.Phone, req.EmergencyContactPhone); err != nil {
		return nil, err
	}

	if err := s.members.Create(ctx, member); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, &ValidationError{Field: "email", Message: "email already registered"}
		}
		return nil, fmt.Errorf("failed to create member: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"member_id": member.ID,
		"age_group": member.AgeGroup,
		"channel":   channel,
	}).Info("Member registered")
	return member, nil
}

// applyContact normalises and checks email and phone numbers onto m
func (s *MemberService) applyContact(ctx context.Context, m *models.Member, email, phone, emergencyPhone *string) error {
	if e := trimmed(email); e != nil {
		lower := strings.ToLower(*e)
		existing, err := s.members.GetByEmail(ctx, lower)
		if err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if existing != nil && existing.ID != m.ID {
			return &ValidationError{Field: "email", Message: "email already registered"}
		}
		m.Email = &lower
	}

	if p := trimmed(phone); p != nil {
		normalised, err := s.phones.Validate(*p)
		if err != nil {
			return &ValidationError{Field: "phone", Message: err.Error()}
		}
		m.Phone = &normalised
	}

	if p := trimmed(emergencyPhone); p != nil {
		normalised, err := s.phones.Validate(*p)
		if err != nil {
			return &ValidationError{Field: "emergency_contact_phone", Message: err.Error()}
		}
		m.EmergencyContactPhone = &normalised
	}
	return nil
}

// GetMember returns one member
func (s *MemberService) GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	member, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	if member == nil {
		return nil, notFound("member", id)
	}
	return member, nil
}

// SearchMembers finds members by name, email or phone for the kiosk look-up
func (s *MemberService) SearchMembers(ctx context.Context, query string, limit int) ([]models.Member, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, &ValidationError{Field: "q", Message: "search needs at least 2 characters"}
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	// Phone numbers are stored in E.164, search the same way
	if normalised, err := s.phones.Validate(query); err == nil {
		query = normalised
	}

	members, err := s.members.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search members: %w", err)
	}
	return members, nil
}

// UpdateMember applies an admin edit. Nil fields are left unchanged.
func (s *MemberService) UpdateMember(ctx context.Context, id uuid.UUID, req *models.UpdateMemberRequest) (*models.Member, error) {
	member, err := s.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		if strings.TrimSpace(*req.FirstName) == "" {
			return nil, &ValidationError{Field: "first_name", Message: "cannot be empty"}
		}
		member.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		if strings.TrimSpace(*req.LastName) == "" {
			return nil, &ValidationError{Field: "last_name", Message: "cannot be empty"}
		}
		member.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.AgeGroup != nil {
		group, err := models.ParseAgeGroup(*req.AgeGroup)
		if err != nil {
			return nil, &ValidationError{Field: "age_group", Message: err.Error()}
		}
		member.AgeGroup = group
	}
	if req.EmergencyContactName != nil {
		member.EmergencyContactName = trimmed(req.EmergencyContactName)
	}
	if req.MedicalNotes != nil {
		member.MedicalNotes = trimmed(req.MedicalNotes)
	}
	if err := s.applyContact(ctx, member, req.Email, req.Phone, req.EmergencyContactPhone); err != nil {
		return nil, err
	}

	if err := s.members.Update(ctx, member); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, &ValidationError{Field: "email", Message: "email already registered"}
		}
		return nil, fmt.Errorf("failed to update member: %w", err)
	}

	s.logger.WithField("member_id", id).Info("Member updated")
	return member, nil
}

// SetMemberStatus activates, deactivates or suspends a member. Members are never deleted.
func (s *MemberService) SetMemberStatus(ctx context.Context, id uuid.UUID, status string, meta RequestMeta) error {
	parsed, err := models.ParseMemberStatus(status)
	if err != nil {
		return &ValidationError{Field: "status", Message: err.Error()}
	}

	found, err := s.members.SetStatus(ctx, id, parsed)
	if err != nil {
		return fmt.Errorf("failed to set member status: %w", err)
	}
	if !found {
		return notFound("member", id)
	}

	s.logger.WithFields(logrus.Fields{
		"member_id": id,
		"status":    parsed,
	}).Info("Member status changed")
	if s.auditor != nil {
		s.auditor.LogStaffAction(ctx, AuditMemberStatusChanged, "member", id, meta, map[string]interface{}{
			"status": parsed,
		})
	}
	return nil
}

// ListMemberPayments returns a member's payment history. Staff only.
func (s *MemberService) ListMemberPayments(ctx context.Context, id uuid.UUID) ([]models.Payment, error) {
	if _, err := s.GetMember(ctx, id); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByMember(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list member payments: %w", err)
	}
	return payments, nil
}

// trimmed returns nil for nil or blank strings, otherwise the trimmed value
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
