package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Staff roles
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// TokenType represents the type of JWT token
type TokenType string

// StaffToken is the only token type the admin app accepts
const StaffToken TokenType = "staff"

// ErrTokenExpired is returned when a token is past its expiry
var ErrTokenExpired = errors.New("token has expired")

// Claims represents the staff JWT claims
type Claims struct {
	StaffID   uuid.UUID `json:"staff_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry role. Admins hold every role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

// Service issues and validates staff tokens
type Service struct {
	secret string
	issuer string
	expiry time.Duration
}

// NewService creates a new JWT service
func NewService(secret, issuer string, expiry time.Duration) *Service {
	return &Service{
		secret: secret,
		issuer: issuer,
		expiry: expiry,
	}
}

// GenerateStaffToken signs a token for a front-desk or admin user
func (s *Service) GenerateStaffToken(staffID uuid.UUID, name, email string, roles []string) (string, error) {
	if len(roles) == 0 {
		return "", fmt.Errorf("staff token needs at least one role")
	}

	now := time.Now()
	claims := Claims{
		StaffID:   staffID,
		Name:      name,
		Email:     email,
		Roles:     roles,
		TokenType: StaffToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   staffID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign staff token: %w", err)
	}

	return tokenString, nil
}

// ValidateStaffToken validates and parses a staff token
func (s *Service) ValidateStaffToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.TokenType != StaffToken {
		return nil, fmt.Errorf("invalid token type: expected %s, got %s", StaffToken, claims.TokenType)
	}
	if claims.StaffID == uuid.Nil {
		return nil, fmt.Errorf("token has no staff id")
	}

	return claims, nil
}

// ExtractClaims extracts claims from a token without validation (for debugging)
func (s *Service) ExtractClaims(tokenString string) (*Claims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// GetTokenExpiry returns the expiry time of a token
func (s *Service) GetTokenExpiry(tokenString string) (time.Time, error) {
	claims, err := s.ExtractClaims(tokenString)
	if err != nil {
		return time.Time{}, err
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no expiry time")
	}

	return claims.ExpiresAt.Time, nil
}
