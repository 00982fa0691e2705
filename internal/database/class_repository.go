package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const classColumns = `
	id, name, slug, age_group, day_of_week, start_time, duration_minutes,
	max_capacity, drop_in_price, is_active, created_at, updated_at`

// ClassRepository handles class template operations
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new class repository
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create inserts a class. Returns ErrConflict on a duplicate slug.
func (r *ClassRepository) Create(ctx context.Context, c *models.Class) error {
	query := `
		INSERT INTO classes (
			id, name, slug, age_group, day_of_week, start_time, duration_minutes,
			max_capacity, drop_in_price, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		c.ID, c.Name, c.Slug, c.AgeGroup, c.DayOfWeek, c.StartTime, c.DurationMinutes,
		c.MaxCapacity, c.DropInPrice, c.IsActive,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create class: %w", err)
	}
	return nil
}

// GetByID returns the class or nil when absent
func (r *ClassRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Class, error) {
	var c models.Class
	err := r.db.GetContext(ctx, &c, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get class: %w", err)
	}
	return &c, nil
}

// Update overwrites the template. Existing bookings keep their own amount snapshot.
func (r *ClassRepository) Update(ctx context.Context, c *models.Class) error {
	query := `
		UPDATE classes SET
			name = $2, slug = $3, age_group = $4, day_of_week = $5, start_time = $6,
			duration_minutes = $7, max_capacity = $8, drop_in_price = $9, is_active = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		c.ID, c.Name, c.Slug, c.AgeGroup, c.DayOfWeek, c.StartTime,
		c.DurationMinutes, c.MaxCapacity, c.DropInPrice, c.IsActive,
	).Scan(&c.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("class %s not found", c.ID)
	}
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update class: %w", err)
	}
	return nil
}

// List returns classes ordered by weekday and start time
func (r *ClassRepository) List(ctx context.Context, activeOnly bool) ([]models.Class, error) {
	classes := []models.Class{}
	query := `SELECT ` + classColumns + ` FROM classes`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY day_of_week, start_time, name`

	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	return classes, nil
}

// ListActiveByDay returns the active classes running on a weekday
func (r *ClassRepository) ListActiveByDay(ctx context.Context, dayOfWeek int) ([]models.Class, error) {
	classes := []models.Class{}
	query := `
		SELECT ` + classColumns + `
		FROM classes
		WHERE is_active = TRUE AND day_of_week = $1
		ORDER BY start_time, name`

	if err := r.db.SelectContext(ctx, &classes, query, dayOfWeek); err != nil {
		return nil, fmt.Errorf("failed to list classes for day: %w", err)
	}
	return classes, nil
}
