package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// IdentifierRegex validates user, session and permission identifiers
	IdentifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:@-]+$`)

	// RoomNameRegex validates conference room names
	RoomNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const (
	MaxIdentifierLength = 128
	MaxRoomNameLength   = 128
	MaxTitleLength      = 200
	MaxTextLength       = 2000
)

// ValidateEmail validates email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateOptionalEmail accepts an empty string.
func ValidateOptionalEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return nil
	}
	return ValidateEmail(email)
}

// ValidateIdentifier validates an opaque id such as a publisher or subscriber id.
func ValidateIdentifier(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > MaxIdentifierLength {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, MaxIdentifierLength)
	}
	if !IdentifierRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}

// ValidateRoomName validates a room name before it is namespaced by tenant.
func ValidateRoomName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("roomName is required")
	}
	if len(name) > MaxRoomNameLength {
		return fmt.Errorf("roomName is too long (max %d characters)", MaxRoomNameLength)
	}
	if !RoomNameRegex.MatchString(name) {
		return fmt.Errorf("roomName contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateTitle validates stream title
func ValidateTitle(title string) error {
	if err := ValidateStringLength(title, 0, MaxTitleLength, "title"); err != nil {
		return err
	}
	return ValidatePrintable(title, "title")
}

// ValidateText validates free-form metadata such as descriptions.
func ValidateText(s, fieldName string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return ValidateStringLength(s, 0, MaxTextLength, fieldName)
}

// ValidatePrintable rejects control characters.
func ValidatePrintable(s, fieldName string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains control characters", fieldName)
		}
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
