package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AgeGroup is the age band a member or class belongs to
type AgeGroup string

const (
	AgeGroupInfant AgeGroup = "infant" // under 5
	AgeGroupJunior AgeGroup = "junior" // 5 to 15
	AgeGroupSenior AgeGroup = "senior" // 16 and over
)

// IsValid reports whether g is a known age group
func (g AgeGroup) IsValid() bool {
	switch g {
	case AgeGroupInfant, AgeGroupJunior, AgeGroupSenior:
		return true
	}
	return false
}

// ParseAgeGroup converts a string to an AgeGroup
func ParseAgeGroup(s string) (AgeGroup, error) {
	g := AgeGroup(strings.ToLower(strings.TrimSpace(s)))
	if !g.IsValid() {
		return "", fmt.Errorf("invalid age group: %s", s)
	}
	return g, nil
}

// AgeGroupFor derives the age group from a date of birth as of the given day
func AgeGroupFor(dob, on time.Time) AgeGroup {
	age := on.Year() - dob.Year()
	if on.Month() < dob.Month() || (on.Month() == dob.Month() && on.Day() < dob.Day()) {
		age--
	}
	switch {
	case age < 5:
		return AgeGroupInfant
	case age < 16:
		return AgeGroupJunior
	default:
		return AgeGroupSenior
	}
}

// MemberStatus is the membership state. Members are never hard-deleted.
type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusInactive  MemberStatus = "inactive"
	MemberStatusSuspended MemberStatus = "suspended"
)

// IsValid reports whether s is a known member status
func (s MemberStatus) IsValid() bool {
	switch s {
	case MemberStatusActive, MemberStatusInactive, MemberStatusSuspended:
		return true
	}
	return false
}

// ParseMemberStatus converts a string to a MemberStatus
func ParseMemberStatus(s string) (MemberStatus, error) {
	status := MemberStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid member status: %s", s)
	}
	return status, nil
}

// Member is a person attending classes
type Member struct {
	ID                    uuid.UUID    `json:"id" db:"id"`
	FirstName             string       `json:"first_name" db:"first_name"`
	LastName              string       `json:"last_name" db:"last_name"`
	Email                 *string      `json:"email,omitempty" db:"email"`
	Phone                 *string      `json:"phone,omitempty" db:"phone"`
	DateOfBirth           time.Time    `json:"date_of_birth" db:"date_of_birth"`
	AgeGroup              AgeGroup     `json:"age_group" db:"age_group"`
	EmergencyContactName  *string      `json:"emergency_contact_name,omitempty" db:"emergency_contact_name"`
	EmergencyContactPhone *string      `json:"emergency_contact_phone,omitempty" db:"emergency_contact_phone"`
	MedicalNotes          *string      `json:"medical_notes,omitempty" db:"medical_notes"`
	Status                MemberStatus `json:"status" db:"status"`
	CreatedVia            Channel      `json:"created_via" db:"created_via"`
	CreatedAt             time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at" db:"updated_at"`
}

// FullName returns "First Last"
func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// CanBook reports whether the member may take new bookings
func (m *Member) CanBook() bool {
	return m.Status == MemberStatusActive
}

// CreateMemberRequest is the registration payload from the kiosk or admin app
type CreateMemberRequest struct {
	FirstName             string  `json:"first_name" binding:"required"`
	LastName              string  `json:"last_name" binding:"required"`
	Email                 *string `json:"email,omitempty"`
	Phone                 *string `json:"phone,omitempty"`
	DateOfBirth           string  `json:"date_of_birth" binding:"required"` // YYYY-MM-DD
	AgeGroup              *string `json:"age_group,omitempty"`
	EmergencyContactName  *string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string `json:"emergency_contact_phone,omitempty"`
	MedicalNotes          *string `json:"medical_notes,omitempty"`
}

// Validate performs shape checks that do not need the store
func (r *CreateMemberRequest) Validate() error {
	if strings.TrimSpace(r.FirstName) == "" {
		return errors.New("first_name is required")
	}
	if strings.TrimSpace(r.LastName) == "" {
		return errors.New("last_name is required")
	}
	if r.DateOfBirth == "" {
		return errors.New("date_of_birth is required")
	}
	if r.Email != nil && *r.Email != "" && !strings.Contains(*r.Email, "@") {
		return errors.New("email is not valid")
	}
	return nil
}

// UpdateMemberRequest carries admin edits; nil fields are left unchanged
type UpdateMemberRequest struct {
	FirstName             *string `json:"first_name,omitempty"`
	LastName              *string `json:"last_name,omitempty"`
	Email                 *string `json:"email,omitempty"`
	Phone                 *string `json:"phone,omitempty"`
	EmergencyContactName  *string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string `json:"emergency_contact_phone,omitempty"`
	MedicalNotes          *string `json:"medical_notes,omitempty"`
	AgeGroup              *string `json:"age_group,omitempty"`
}

// SetMemberStatusRequest changes the membership status
type SetMemberStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
