package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const memberColumns = `
	id, first_name, last_name, email, phone, date_of_birth, age_group,
	emergency_contact_name, emergency_contact_phone, medical_notes,
	status, created_via, created_at, updated_at`

// MemberRepository handles member database operations
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Create inserts a member. Returns ErrConflict when the email is already registered.
func (r *MemberRepository) Create(ctx context.Context, m *models.Member) error {
	query := `
		INSERT INTO members (
			id, first_name, last_name, email, phone, date_of_birth, age_group,
			emergency_contact_name, emergency_contact_phone, medical_notes,
			status, created_via, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.FirstName, m.LastName, m.Email, m.Phone, m.DateOfBirth, m.AgeGroup,
		m.EmergencyContactName, m.EmergencyContactPhone, m.MedicalNotes,
		m.Status, m.CreatedVia,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// GetByID returns the member or nil when absent
func (r *MemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var m models.Member
	err := r.db.GetContext(ctx, &m, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

// GetByEmail returns the member registered with email, or nil
func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	var m models.Member
	err := r.db.GetContext(ctx, &m, `SELECT `+memberColumns+` FROM members WHERE LOWER(email) = LOWER($1)`, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member by email: %w", err)
	}
	return &m, nil
}

// Search matches name, email or phone. An empty term lists the most recent members.
func (r *MemberRepository) Search(ctx context.Context, term string, limit int) ([]models.Member, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	members := []models.Member{}
	term = strings.TrimSpace(term)
	if term == "" {
		err := r.db.SelectContext(ctx, &members,
			`SELECT `+memberColumns+` FROM members ORDER BY created_at DESC LIMIT $1`, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list members: %w", err)
		}
		return members, nil
	}

	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE (first_name || ' ' || last_name) ILIKE $1
		   OR email ILIKE $1
		   OR phone LIKE $2
		ORDER BY last_name, first_name
		LIMIT $3`

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, term)
	phonePattern := "%" + digits + "%"
	if len(digits) < 4 {
		phonePattern = "" // too short to be a useful phone fragment
	}

	err := r.db.SelectContext(ctx, &members, query, "%"+term+"%", phonePattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search members: %w", err)
	}
	return members, nil
}

// Update writes the editable profile fields
func (r *MemberRepository) Update(ctx context.Context, m *models.Member) error {
	query := `
		UPDATE members SET
			first_name = $2, last_name = $3, email = $4, phone = $5, age_group = $6,
			emergency_contact_name = $7, emergency_contact_phone = $8, medical_notes = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.FirstName, m.LastName, m.Email, m.Phone, m.AgeGroup,
		m.EmergencyContactName, m.EmergencyContactPhone, m.MedicalNotes,
	).Scan(&m.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update member: %w", err)
	}
	return nil
}

// SetStatus changes the membership status. Returns false when the member does not exist.
func (r *MemberRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.MemberStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE members SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return false, fmt.Errorf("failed to update member status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}
