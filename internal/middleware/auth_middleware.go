package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/boxinggym/walkin-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StaffContextKey is the key used to store the authenticated staff member in the Gin context
const StaffContextKey = "staff"

// StaffContext is the authenticated staff member behind an admin request
type StaffContext struct {
	StaffID uuid.UUID `json:"staff_id"`
	Name    string    `json:"name"`
	Email   string    `json:"email,omitempty"`
	Roles   []string  `json:"roles"`
}

// RejectionHook is called when a staff token is refused, e.g. to write an audit entry
type RejectionHook func(c *gin.Context, code string)

// StaffAuth validates the Bearer staff token on admin routes
func StaffAuth(jwtService *jwt.Service, logger *logrus.Logger, onReject RejectionHook) gin.HandlerFunc {
	reject := func(c *gin.Context, status int, errName, message, code string) {
		logger.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"ip":   c.ClientIP(),
			"code": code,
		}).Warn("Staff auth failed")
		if onReject != nil {
			onReject(c, code)
		}
		c.AbortWithStatusJSON(status, gin.H{
			"error":   errName,
			"message": message,
			"code":    code,
		})
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			reject(c, http.StatusUnauthorized, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		// Check Bearer token format
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			reject(c, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		claims, err := jwtService.ValidateStaffToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				reject(c, http.StatusUnauthorized, "token_expired", "Staff token has expired. Please sign in again.", "TOKEN_EXPIRED")
			} else {
				reject(c, http.StatusUnauthorized, "invalid_token", "Invalid staff token", "INVALID_TOKEN")
			}
			return
		}

		c.Set(StaffContextKey, StaffContext{
			StaffID: claims.StaffID,
			Name:    claims.Name,
			Email:   claims.Email,
			Roles:   claims.Roles,
		})
		c.Next()
	}
}

// RequireRole only lets through staff holding one of roles. Admins pass every check.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		staff, exists := GetStaffContext(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Staff context not found. Auth middleware may not be applied.",
				"code":    "MISSING_STAFF_CONTEXT",
			})
			return
		}

		if !staff.HasAnyRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "You don't have permission to access this resource",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			return
		}

		c.Next()
	}
}

// HasAnyRole reports whether the staff member holds any of roles
func (s StaffContext) HasAnyRole(roles ...string) bool {
	for _, have := range s.Roles {
		if have == jwt.RoleAdmin {
			return true
		}
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// DisplayName is the name recorded on payment notes and audit entries
func (s StaffContext) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Email
}

// GetStaffContext retrieves the staff context from Gin context
func GetStaffContext(c *gin.Context) (StaffContext, bool) {
	value, exists := c.Get(StaffContextKey)
	if !exists {
		return StaffContext{}, false
	}

	staff, ok := value.(StaffContext)
	if !ok {
		return StaffContext{}, false
	}

	return staff, true
}

// MustGetStaffContext retrieves the staff context or panics (use only after StaffAuth)
func MustGetStaffContext(c *gin.Context) StaffContext {
	staff, exists := GetStaffContext(c)
	if !exists {
		panic("staff context not found - ensure StaffAuth is applied")
	}
	return staff
}
