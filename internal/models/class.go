package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var startTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Class is a recurring weekly session template
type Class struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Slug            string          `json:"slug" db:"slug"`
	AgeGroup        AgeGroup        `json:"age_group" db:"age_group"`
	DayOfWeek       int             `json:"day_of_week" db:"day_of_week"` // 0 = Sunday
	StartTime       string          `json:"start_time" db:"start_time"`   // HH:MM, gym local time
	DurationMinutes int             `json:"duration_minutes" db:"duration_minutes"`
	MaxCapacity     int             `json:"max_capacity" db:"max_capacity"`
	DropInPrice     decimal.Decimal `json:"drop_in_price" db:"drop_in_price"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// RunsOn reports whether the class has a session on the given date
func (c *Class) RunsOn(date time.Time) bool {
	return int(date.Weekday()) == c.DayOfWeek
}

// SessionStart returns the session start instant on the given date in loc
func (c *Class) SessionStart(date time.Time, loc *time.Location) time.Time {
	var h, m int
	fmt.Sscanf(c.StartTime, "%d:%d", &h, &m)
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, loc)
}

// Session is one concrete occurrence of a class, with live occupancy
type Session struct {
	Class       Class     `json:"class"`
	SessionDate string    `json:"session_date"`
	StartsAt    time.Time `json:"starts_at"`
	Booked      int       `json:"booked"`
	Remaining   int       `json:"remaining"`
	IsFull      bool      `json:"is_full"`
}

// ClassRequest is used for both create and full update
type ClassRequest struct {
	Name            string          `json:"name" binding:"required"`
	Slug            string          `json:"slug"`
	AgeGroup        string          `json:"age_group" binding:"required"`
	DayOfWeek       int             `json:"day_of_week"`
	StartTime       string          `json:"start_time" binding:"required"`
	DurationMinutes int             `json:"duration_minutes"`
	MaxCapacity     int             `json:"max_capacity" binding:"required"`
	DropInPrice     decimal.Decimal `json:"drop_in_price"`
	IsActive        *bool           `json:"is_active,omitempty"`
}

// Validate checks the request shape
func (r *ClassRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if _, err := ParseAgeGroup(r.AgeGroup); err != nil {
		return err
	}
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return errors.New("day_of_week must be between 0 and 6")
	}
	if !startTimePattern.MatchString(r.StartTime) {
		return errors.New("start_time must be HH:MM")
	}
	if r.MaxCapacity <= 0 {
		return errors.New("max_capacity must be positive")
	}
	if r.DurationMinutes < 0 {
		return errors.New("duration_minutes cannot be negative")
	}
	if r.DropInPrice.IsNegative() {
		return errors.New("drop_in_price cannot be negative")
	}
	return nil
}

// Slugify turns a class name into a url-safe slug
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
