package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates the national number is not 10 or 11 digits
	ErrInvalidLength = errors.New("phone number must have 10 or 11 digits")

	// ErrInvalidPrefix indicates the number is not a UK mobile or geographic number
	ErrInvalidPrefix = errors.New("phone number must start with 01, 02, 03 or 07")

	// ErrInvalidFormat indicates the number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates the number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

// validPrefixes are the UK number ranges members can be reached on
var validPrefixes = []string{
	"01", // geographic
	"02", // geographic (London, Cardiff, ...)
	"03", // non-geographic, charged as geographic
	"07", // mobile
}

var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator validates and normalises UK phone numbers
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate checks a UK phone number and returns it in E.164 form (+447700900123).
// Accepts 07700 900123, 07700-900-123, +44 7700 900123 and 0044 7700 900123.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	national := v.Sanitize(phone)
	if !phoneRegex.MatchString(national) {
		return "", ErrInvalidFormat
	}

	// Mobiles are always 11 digits; some geographic ranges are 10
	if len(national) != 11 && len(national) != 10 {
		return "", ErrInvalidLength
	}
	if !v.IsValidPrefix(national) {
		return "", ErrInvalidPrefix
	}
	if strings.HasPrefix(national, "07") && len(national) != 11 {
		return "", ErrInvalidLength
	}

	return "+44" + national[1:], nil
}

// Sanitize strips separators and rewrites an international prefix to the
// national trunk form (0...)
func (v *PhoneValidator) Sanitize(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	phone = replacer.Replace(strings.TrimSpace(phone))

	switch {
	case strings.HasPrefix(phone, "+44"):
		phone = phone[3:]
	case strings.HasPrefix(phone, "0044"):
		phone = phone[4:]
	default:
		return phone
	}
	// +44 (0)7700 ... keeps a redundant trunk zero
	if !strings.HasPrefix(phone, "0") {
		phone = "0" + phone
	}
	return phone
}

// IsValidPrefix checks the national number starts with a bookable UK range
func (v *PhoneValidator) IsValidPrefix(national string) bool {
	if len(national) < 2 {
		return false
	}
	prefix := national[:2]
	for _, p := range validPrefixes {
		if prefix == p {
			return true
		}
	}
	return false
}

// IsMobile reports whether the number is a UK mobile
func (v *PhoneValidator) IsMobile(phone string) bool {
	e164, err := v.Validate(phone)
	return err == nil && strings.HasPrefix(e164, "+447")
}

// Format returns the number in national display form: 07700 900123
func (v *PhoneValidator) Format(phone string) (string, error) {
	e164, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	national := "0" + e164[3:]
	if len(national) == 11 {
		return fmt.Sprintf("%s %s", national[:5], national[5:]), nil
	}
	return fmt.Sprintf("%s %s", national[:4], national[4:]), nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
