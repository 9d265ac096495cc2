package model

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-.]{1,32}$`)

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SanitizeUsername trims surrounding whitespace and checks the allowed alphabet.
// Usernames are 1-32 characters of letters, digits, '_', '-' and '.'.
func SanitizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ValidationError{Field: "username", Message: "must not be empty"}
	}
	if !usernamePattern.MatchString(username) {
		return "", ValidationError{Field: "username", Message: "use letters, digits, '_', '-' or '.' (max 32)"}
	}
	return username, nil
}

// ValidateMetricName rejects empty or oversized metric names.
func ValidateMetricName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError{Field: "metric_name", Message: "must not be empty"}
	}
	if len(name) > 64 {
		return ValidationError{Field: "metric_name", Message: "must be at most 64 bytes"}
	}
	return nil
}

// ValidateMetricValue rejects NaN and infinite values.
func ValidateMetricValue(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ValidationError{Field: "metric_value", Message: "must be a finite number"}
	}
	return nil
}
