package utils

import (
	"fmt"
	"unicode"
)

// MaxTagLength bounds tag names accepted from configuration and the HTTP API
const MaxTagLength = 128

// MaxListLimit bounds page sizes accepted from the HTTP API
const MaxListLimit = 500

// ValidateTag validates a hook tag name
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("tag must not be empty")
	}

	if len(tag) > MaxTagLength {
		return fmt.Errorf("tag exceeds %d characters: %s", MaxTagLength, tag)
	}

	for _, r := range tag {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return fmt.Errorf("tag contains whitespace or control characters: %q", tag)
		}
	}

	return nil
}

// ValidateLimit validates a list page size
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive: %d", limit)
	}

	if limit > MaxListLimit {
		return fmt.Errorf("limit exceeds maximum of %d: %d", MaxListLimit, limit)
	}

	return nil
}
