// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const fallbackRegion = "US"

// NormalizeE164 formats a phone number to E.164, using region for numbers
// without a country prefix. If parsing fails, it returns the trimmed input.
func NormalizeE164(input, region string) string {
	normalized, err := ParseE164(input, region)
	if err != nil {
		return strings.TrimSpace(input)
	}
	return normalized
}

// ParseE164 is the strict variant used before dialing: it returns an error
// when the number cannot be parsed or is not a valid number for its region.
func ParseE164(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("phone number is empty")
	}
	if region == "" {
		region = fallbackRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number %q: %w", trimmed, err)
	}

	if !phonenumbers.IsValidNumber(number) {
		return "", fmt.Errorf("phone number %q is not valid", trimmed)
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}
