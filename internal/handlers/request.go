package handlers

import (
	"strconv"
	"time"

	"github.com/boxinggym/walkin-backend/internal/middleware"
	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/boxinggym/walkin-backend/internal/services"
	"github.com/boxinggym/walkin-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestMeta collects the caller identity for audit entries and payment notes
func requestMeta(c *gin.Context) services.RequestMeta {
	meta := services.RequestMeta{
		IPAddress: utils.ClientIP(c),
		UserAgent: c.Request.UserAgent(),
	}
	if staff, ok := middleware.GetStaffContext(c); ok {
		id := staff.StaffID
		meta.StaffID = &id
		meta.StaffName = staff.DisplayName()
	}
	return meta
}

// uuidParam parses a path parameter, writing a 400 when it is not a UUID
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// sessionDate reads ?date=YYYY-MM-DD in gym local time, defaulting to today
func sessionDate(c *gin.Context, loc *time.Location, today time.Time) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return today, true
	}
	date, err := models.ParseDate(raw, loc)
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return fallback
}
