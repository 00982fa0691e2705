package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boxinggym/walkin-backend/internal/database"
	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ClassService manages the weekly class templates
type ClassService struct {
	classes ClassStore
	logger  *logrus.Logger
}

// NewClassService creates a class service
func NewClassService(classes ClassStore, logger *logrus.Logger) *ClassService {
	return &ClassService{classes: classes, logger: logger}
}

// CreateClass adds a class template
func (s *ClassService) CreateClass(ctx context.Context, req *models.ClassRequest) (*models.Class, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	class := &models.Class{ID: uuid.New(), IsActive: true}
	applyClassRequest(class, req)

	if err := s.classes.Create(ctx, class); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, &ValidationError{Field: "slug", Message: fmt.Sprintf("slug %q is already used", class.Slug)}
		}
		return nil, fmt.Errorf("failed to create class: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"class_id": class.ID,
		"name":     class.Name,
		"day":      class.DayOfWeek,
		"start":    class.StartTime,
	}).Info("Class created")
	return class, nil
}

// UpdateClass replaces a class template. Bookings already taken keep the
// price they were made at.
func (s *ClassService) UpdateClass(ctx context.Context, id uuid.UUID, req *models.ClassRequest) (*models.Class, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	class, err := s.GetClass(ctx, id)
	if err != nil {
		return nil, err
	}
	oldPrice := class.DropInPrice
	applyClassRequest(class, req)

	if err := s.classes.Update(ctx, class); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, &ValidationError{Field: "slug", Message: fmt.Sprintf("slug %q is already used", class.Slug)}
		}
		return nil, fmt.Errorf("failed to update class: %w", err)
	}

	log := s.logger.WithField("class_id", id)
	if !oldPrice.Equal(class.DropInPrice) {
		log = log.WithFields(logrus.Fields{
			"old_price": oldPrice.StringFixed(2),
			"new_price": class.DropInPrice.StringFixed(2),
		})
	}
	log.Info("Class updated")
	return class, nil
}

func applyClassRequest(c *models.Class, req *models.ClassRequest) {
	c.Name = strings.TrimSpace(req.Name)
	c.Slug = strings.TrimSpace(req.Slug)
	if c.Slug == "" {
		c.Slug = models.Slugify(c.Name)
	}
	c.AgeGroup, _ = models.ParseAgeGroup(req.AgeGroup)
	c.DayOfWeek = req.DayOfWeek
	c.StartTime = req.StartTime
	c.DurationMinutes = req.DurationMinutes
	if c.DurationMinutes == 0 {
		c.DurationMinutes = 60
	}
	c.MaxCapacity = req.MaxCapacity
	c.DropInPrice = req.DropInPrice.Round(2)
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
}

// GetClass returns one class
func (s *ClassService) GetClass(ctx context.Context, id uuid.UUID) (*models.Class, error) {
	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load class: %w", err)
	}
	if class == nil {
		return nil, notFound("class", id)
	}
	return class, nil
}

// ListClasses returns the timetable
func (s *ClassService) ListClasses(ctx context.Context, activeOnly bool) ([]models.Class, error) {
	classes, err := s.classes.List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	return classes, nil
}
